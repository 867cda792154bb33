package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Redis configuration (multi-instance session registry)
	Redis RedisConfig `yaml:"redis" json:"redis"`

	// Playback session configuration
	Session SessionConfig `yaml:"session" json:"session"`

	// Stream token configuration
	Token TokenConfig `yaml:"token" json:"token"`

	// CDN configuration
	CDN CDNConfig `yaml:"cdn" json:"cdn"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host           string        `yaml:"host" json:"host" env:"STREAMGATE_HOST" default:"0.0.0.0"`
	Port           int           `yaml:"port" json:"port" env:"STREAMGATE_PORT" default:"8080"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout" env:"STREAMGATE_READ_TIMEOUT" default:"30s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout" env:"STREAMGATE_WRITE_TIMEOUT" default:"30s"`
	EnableCORS     bool          `yaml:"enable_cors" json:"enable_cors" env:"STREAMGATE_ENABLE_CORS" default:"true"`
	TrustedProxies []string      `yaml:"trusted_proxies" json:"trusted_proxies" env:"STREAMGATE_TRUSTED_PROXIES"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type            string        `yaml:"type" json:"type" env:"DATABASE_TYPE" default:"sqlite"`
	Host            string        `yaml:"host" json:"host" env:"POSTGRES_HOST" default:"localhost"`
	Port            int           `yaml:"port" json:"port" env:"POSTGRES_PORT" default:"5432"`
	Username        string        `yaml:"username" json:"username" env:"POSTGRES_USER" default:"streamgate"`
	Password        string        `yaml:"password" json:"-" env:"POSTGRES_PASSWORD"`
	Database        string        `yaml:"database" json:"database" env:"POSTGRES_DB" default:"streamgate"`
	DataDir         string        `yaml:"data_dir" json:"data_dir" env:"STREAMGATE_DATA_DIR" default:"./data"`
	DatabasePath    string        `yaml:"database_path" json:"database_path" env:"STREAMGATE_DATABASE_PATH"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" env:"DB_MAX_OPEN_CONNS" default:"50"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" default:"2h"`
	LogQueries      bool          `yaml:"log_queries" json:"log_queries" env:"DB_LOG_QUERIES" default:"false"`
}

// RedisConfig holds the connection settings for the shared session store.
// An empty URL selects the in-process registry.
type RedisConfig struct {
	URL          string        `yaml:"url" json:"url" env:"REDIS_URL"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// SessionConfig holds playback session configuration
type SessionConfig struct {
	TTL                time.Duration `yaml:"ttl" json:"ttl" env:"STREAMGATE_SESSION_TTL" default:"4h"`
	DefaultStreamLimit int           `yaml:"default_stream_limit" json:"default_stream_limit" env:"STREAMGATE_DEFAULT_STREAM_LIMIT" default:"1"`
	CompletionPercent  float64       `yaml:"completion_percent" json:"completion_percent" env:"STREAMGATE_COMPLETION_PERCENT" default:"90"`
}

// TokenConfig holds stream token configuration
type TokenConfig struct {
	Secret string `yaml:"secret" json:"-" env:"STREAMGATE_TOKEN_SECRET" default:"dev-token-secret-change-in-production"`
	Issuer string `yaml:"issuer" json:"issuer" env:"STREAMGATE_TOKEN_ISSUER" default:"streamgate"`
	// Grace is added on top of the session TTL so a token never expires
	// before a still-valid session.
	Grace  time.Duration `yaml:"grace" json:"grace" env:"STREAMGATE_TOKEN_GRACE" default:"15m"`
	Leeway time.Duration `yaml:"leeway" json:"leeway" env:"STREAMGATE_TOKEN_LEEWAY" default:"60s"`
}

// CDNConfig holds stream URL generation configuration
type CDNConfig struct {
	BaseURL        string `yaml:"base_url" json:"base_url" env:"CDN_URL" default:"https://cdn.thewans.com"`
	LicenseBaseURL string `yaml:"license_base_url" json:"license_base_url" env:"DRM_LICENSE_URL" default:"https://drm.thewans.com"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"STREAMGATE_LOG_LEVEL" default:"info"`
	Format string `yaml:"format" json:"format" env:"STREAMGATE_LOG_FORMAT" default:"json"`
}

// ConfigManager manages application configuration with hot-reload support
type ConfigManager struct {
	config     *Config
	configPath string
	watchers   []ConfigWatcher
	mu         sync.RWMutex
}

// ConfigWatcher is called when configuration changes
type ConfigWatcher func(oldConfig, newConfig *Config)

var (
	globalConfigManager *ConfigManager
	configOnce          sync.Once
)

// GetConfigManager returns the global configuration manager instance
func GetConfigManager() *ConfigManager {
	configOnce.Do(func() {
		globalConfigManager = NewConfigManager()
	})
	return globalConfigManager
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		config:   DefaultConfig(),
		watchers: make([]ConfigWatcher, 0),
	}
}

// DefaultConfig returns the default application configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			EnableCORS:     true,
			TrustedProxies: []string{},
		},
		Database: DatabaseConfig{
			Type:            "sqlite",
			DataDir:         "./data",
			MaxOpenConns:    50,
			MaxIdleConns:    10,
			ConnMaxLifetime: 2 * time.Hour,
			LogQueries:      false,
		},
		Redis: RedisConfig{
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Session: SessionConfig{
			TTL:                4 * time.Hour,
			DefaultStreamLimit: 1,
			CompletionPercent:  90,
		},
		Token: TokenConfig{
			Secret: "dev-token-secret-change-in-production",
			Issuer: "streamgate",
			Grace:  15 * time.Minute,
			Leeway: 60 * time.Second,
		},
		CDN: CDNConfig{
			BaseURL:        "https://cdn.thewans.com",
			LicenseBaseURL: "https://drm.thewans.com",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func (cm *ConfigManager) LoadConfig(configPath string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	oldConfig := *cm.config
	cm.configPath = configPath

	// Start with default configuration
	newConfig := DefaultConfig()

	// Load from file if it exists
	if configPath != "" && fileExists(configPath) {
		if err := cm.loadFromFile(configPath, newConfig); err != nil {
			return fmt.Errorf("failed to load config from file: %w", err)
		}
		log.Printf("✅ Configuration loaded from file: %s", configPath)
	}

	// Override with environment variables
	if err := cm.loadFromEnv(newConfig); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate configuration
	if err := cm.validateConfig(newConfig); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// Apply derived configurations
	cm.applyDerivedConfig(newConfig)

	cm.config = newConfig

	// Notify watchers of config change
	for _, watcher := range cm.watchers {
		go watcher(&oldConfig, newConfig)
	}

	return nil
}

// GetConfig returns the current configuration (thread-safe)
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	// Return a copy to prevent external modifications
	configCopy := *cm.config
	return &configCopy
}

// AddWatcher adds a configuration change watcher
func (cm *ConfigManager) AddWatcher(watcher ConfigWatcher) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.watchers = append(cm.watchers, watcher)
}

// Helper methods

func (cm *ConfigManager) loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

func (cm *ConfigManager) loadFromEnv(config *Config) error {
	return loadStructFromEnv(reflect.ValueOf(config).Elem())
}

func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		// Handle nested structs recursively
		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		defaultTag := fieldType.Tag.Get("default")

		envValue := os.Getenv(envTag)
		if envValue == "" && defaultTag != "" {
			envValue = defaultTag
		}

		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s: %w", fieldType.Name, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intVal)
		}
	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatVal)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			values := strings.Split(value, ",")
			for i, v := range values {
				values[i] = strings.TrimSpace(v)
			}
			field.Set(reflect.ValueOf(values))
		}
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

func (cm *ConfigManager) validateConfig(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Type != "sqlite" && config.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}

	if config.Session.TTL <= 0 {
		return fmt.Errorf("invalid session ttl: %s", config.Session.TTL)
	}

	if config.Session.DefaultStreamLimit < 1 {
		return fmt.Errorf("invalid default stream limit: %d", config.Session.DefaultStreamLimit)
	}

	if config.Session.CompletionPercent <= 0 || config.Session.CompletionPercent > 100 {
		return fmt.Errorf("invalid completion percent: %f", config.Session.CompletionPercent)
	}

	if config.Token.Secret == "" {
		return fmt.Errorf("token secret must not be empty")
	}

	return nil
}

func (cm *ConfigManager) applyDerivedConfig(config *Config) {
	// Set derived database path if not explicitly set
	if config.Database.DatabasePath == "" && config.Database.Type == "sqlite" {
		config.Database.DatabasePath = filepath.Join(config.Database.DataDir, "streamgate.db")
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Global convenience functions

// Get returns the current global configuration
func Get() *Config {
	return GetConfigManager().GetConfig()
}

// Load loads configuration from the specified path
func Load(configPath string) error {
	return GetConfigManager().LoadConfig(configPath)
}

// AddWatcher adds a global configuration watcher
func AddWatcher(watcher ConfigWatcher) {
	GetConfigManager().AddWatcher(watcher)
}
