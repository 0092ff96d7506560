package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/ncruces/go-sqlite3/gormlite"
	"github.com/xelth-com/claimsync/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps gorm.DB and remembers which dialect it was opened with
type DB struct {
	*gorm.DB
	driver string
}

// Connect opens the local store. SQLite is the on-device default; postgres
// is used by shared depot tablets that keep their queue on a LAN server.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "", "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		log.Printf("📦 Mode: [SQLite] - Opening %s", cfg.Path)
		dialector = gormlite.Open(sqliteDSN(cfg.Path))
	case "postgres":
		log.Printf("🌐 Mode: [PostgreSQL] - Connecting to %s:%s", cfg.Host, cfg.Port)
		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host,
			cfg.Port,
			cfg.Username,
			cfg.Password,
			cfg.Database,
		)
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	// Configure GORM
	logLevel := logger.Warn
	if cfg.Alter {
		logLevel = logger.Silent
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		if cfg.Driver == "postgres" {
			sqlDB.SetMaxIdleConns(10)
			sqlDB.SetMaxOpenConns(100)
			sqlDB.SetConnMaxLifetime(time.Hour)
		} else {
			// one writer keeps SQLite transactions serialized
			sqlDB.SetMaxOpenConns(1)
		}
	}

	log.Println("✅ Database connection established")

	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}
	return &DB{DB: db, driver: driver}, nil
}

// sqliteDSN builds a file DSN with WAL journaling and a busy timeout
func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// Driver returns the dialect name
func (db *DB) Driver() string {
	return db.driver
}

// Close closes the underlying connection pool
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate triggers GORM schema synchronization
func (db *DB) AutoMigrate(models ...interface{}) error {
	return db.DB.AutoMigrate(models...)
}
