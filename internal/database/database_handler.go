package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
	"github.com/NoorahSmith/ViewCounter-d/internal/support"
)

type Config struct {
	ExistingDB  *gorm.DB
	Dialector   gorm.Dialector
	Logger      logger.Interface
	AutoMigrate bool
}

type Option func(*Config)

// Store persists run history. It is safe for concurrent use.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres at dsn unless an option supplies another
// dialector or an existing connection, then migrates the history tables.
func Open(dsn string, opts ...Option) (*Store, error) {
	cfg := Config{
		Logger:      silentLogger(),
		AutoMigrate: true,
	}
	if dsn != "" {
		cfg.Dialector = postgres.Open(dsn)
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var db *gorm.DB
	switch {
	case cfg.ExistingDB != nil:
		db = cfg.ExistingDB
	case cfg.Dialector != nil:
		opened, err := gorm.Open(cfg.Dialector, &gorm.Config{Logger: cfg.Logger})
		if err != nil {
			return nil, fmt.Errorf("database: open connection: %w", err)
		}
		db = opened
		configureConnectionPool(db)
	default:
		return nil, errors.New("database: no dsn, dialector or existing connection provided")
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(migrations()...); err != nil {
			return nil, fmt.Errorf("database: auto migrate: %w", err)
		}
		log.Debug("Database migration completed.")
	}

	return &Store{db: db}, nil
}

func migrations() []any {
	return []any{
		&domain.RunRecord{},
		&domain.VisitRecord{},
	}
}

func silentLogger() logger.Interface {
	return logger.New(
		log.Default(),
		logger.Config{LogLevel: logger.Silent},
	)
}

func WithExistingDB(db *gorm.DB) Option {
	return func(cfg *Config) {
		cfg.ExistingDB = db
	}
}

func WithDialector(d gorm.Dialector) Option {
	return func(cfg *Config) {
		cfg.Dialector = d
	}
}

func WithLogger(l logger.Interface) Option {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

func WithAutoMigrate(enabled bool) Option {
	return func(cfg *Config) {
		cfg.AutoMigrate = enabled
	}
}

func configureConnectionPool(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Error("database: get sql.DB", "error", err)
		return
	}

	maxOpen := support.GetEnvInt("DB_MAX_OPEN_CONNS", 8)
	maxIdle := support.GetEnvInt("DB_MAX_IDLE_CONNS", maxOpen)
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	connLifetimeSeconds := support.GetEnvInt("DB_CONN_MAX_LIFETIME", 300)

	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if connLifetimeSeconds > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(connLifetimeSeconds) * time.Second)
	}
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
