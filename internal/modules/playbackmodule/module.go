package playbackmodule

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/thewans/streamgate/internal/config"
	"github.com/thewans/streamgate/internal/database"
	"github.com/thewans/streamgate/internal/logger"
	"github.com/thewans/streamgate/internal/modules/modulemanager"
	"github.com/thewans/streamgate/internal/modules/rightsmodule"
)

// Module wires the session registry, token issuer and session manager into
// the module system.
type Module struct {
	id   string
	name string
	core bool

	db       *gorm.DB
	registry SessionRegistry
	audit    *AuditWriter
	manager  *Manager
}

// Auto-register the module when imported
func init() {
	Register()
}

// Register registers this module with the module system
func Register() {
	modulemanager.Register(&Module{
		id:   "system.playback",
		name: "Playback Sessions",
		core: true,
	})
}

// ID returns the module ID
func (m *Module) ID() string {
	return m.id
}

// Name returns the module name
func (m *Module) Name() string {
	return m.name
}

// Core returns whether this is a core module
func (m *Module) Core() bool {
	return m.core
}

// Migrate sets up the module's database schema
func (m *Module) Migrate(db *gorm.DB) error {
	m.db = db
	return db.AutoMigrate(&database.PlaybackLog{}, &database.WatchHistory{})
}

// Init initializes the module. When a Redis URL is configured the registry
// is Redis-backed so multiple instances share one admission view; otherwise
// sessions live in process memory.
func (m *Module) Init() error {
	cfg := config.Get()
	log := logger.NewComponentLogger("playback")

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		opts.DialTimeout = cfg.Redis.DialTimeout
		opts.ReadTimeout = cfg.Redis.ReadTimeout
		opts.WriteTimeout = cfg.Redis.WriteTimeout
		m.registry = NewRedisRegistry(redis.NewClient(opts), log)
	} else {
		m.registry = NewMemoryRegistry()
	}

	issuer := NewTokenIssuer(
		cfg.Token.Secret,
		cfg.Token.Issuer,
		cfg.Session.TTL+cfg.Token.Grace,
		cfg.Token.Leeway,
		cfg.CDN.LicenseBaseURL,
	)

	m.audit = NewAuditWriter(m.db, log)
	m.manager = NewManager(m.db, m.registry, rightsmodule.NewResolver(m.db, log), issuer, m.audit, ManagerConfig{
		SessionTTL:         cfg.Session.TTL,
		DefaultStreamLimit: cfg.Session.DefaultStreamLimit,
		CompletionPercent:  cfg.Session.CompletionPercent,
		CDNBaseURL:         cfg.CDN.BaseURL,
	}, log)

	return nil
}

// RegisterRoutes registers the module's HTTP routes
func (m *Module) RegisterRoutes(router *gin.Engine) {
	handler := NewAPIHandler(m.manager)
	registerRoutes(router, handler)
}

// Manager exposes the session manager to other modules
func (m *Module) Manager() *Manager {
	return m.manager
}
