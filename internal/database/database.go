package database

import (
	"fmt"
	"hash/fnv"
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/thewans/streamgate/internal/config"
)

var DB *gorm.DB

// Initialize sets up the database connection from the loaded configuration
func Initialize() {
	cfg := config.Get().Database

	var err error
	switch cfg.Type {
	case "postgres":
		DB, err = connectPostgres(cfg)
	case "sqlite":
		DB, err = connectSQLite(cfg)
	default:
		log.Fatalf("Unsupported database type: %s", cfg.Type)
	}

	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	sqlDB, err := DB.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := Migrate(DB); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Printf("✅ Database initialized with %s", cfg.Type)
}

// Migrate applies the shared schema. Module-specific schemas are migrated by
// the modules themselves through the module manager.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Film{},
		&Plan{},
		&Subscription{},
		&Transaction{},
		&Device{},
	)
}

func connectPostgres(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port)

	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(cfg.LogQueries),
	})
}

func connectSQLite(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dbPath := cfg.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(cfg.DataDir, "streamgate.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: newGormLogger(cfg.LogQueries),
	})
}

func newGormLogger(logQueries bool) gormlogger.Interface {
	if logQueries {
		return gormlogger.Default.LogMode(gormlogger.Info)
	}
	return gormlogger.Default.LogMode(gormlogger.Warn)
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// AdvisoryLock takes a transaction-scoped advisory lock keyed by the given
// strings when the dialect supports it. On postgres this serializes
// concurrent writers of the same key; sqlite already serializes writers at
// the engine level, so the call is a no-op there. The lock is released when
// the surrounding transaction commits or rolls back.
func AdvisoryLock(tx *gorm.DB, parts ...string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}

	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}

	// pg_advisory_xact_lock takes a signed bigint
	key := int64(h.Sum64())
	if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", key).Error; err != nil {
		return fmt.Errorf("failed to take advisory lock: %w", err)
	}
	return nil
}

// Now returns the database-independent current time in UTC. Timestamps are
// always stored in UTC so entitlement expiry comparisons are stable across
// instances.
func Now() time.Time {
	return time.Now().UTC()
}
