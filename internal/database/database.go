// Package database is the PostgreSQL persistence layer. It stores encrypted
// integration credentials and the client directory behind the repository
// interfaces the rest of the system consumes, so callers never see GORM.
package database

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// ErrInvalidInput is returned when an operation's input fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidDBObject is returned when the database handle is missing a
	// required component.
	ErrInvalidDBObject = errors.New("invalid database object")
)

// DefaultQueryTimeout bounds every database operation.
const DefaultQueryTimeout = 10 * time.Second

// Db wraps the GORM engine with the logger and per-query timeout every
// operation uses. All methods are safe for concurrent use.
type Db struct {
	Engine *gorm.DB
	Logger *zap.Logger

	queryTimeout time.Duration
}

type Option func(*Db)

// WithQueryTimeout overrides the per-operation timeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(db *Db) {
		if d > 0 {
			db.queryTimeout = d
		}
	}
}

// New opens a PostgreSQL connection, migrates the schema, and returns the
// database handle.
func New(dsn string, logger *zap.Logger, opts ...Option) (*Db, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty dsn", ErrInvalidInput)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	engine, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return NewWithEngine(engine, logger, opts...)
}

// NewWithEngine wraps an already-open engine, used by tests.
func NewWithEngine(engine *gorm.DB, logger *zap.Logger, opts ...Option) (*Db, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: missing gorm engine", ErrInvalidDBObject)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	db := &Db{
		Engine:       engine,
		Logger:       logger,
		queryTimeout: DefaultQueryTimeout,
	}

	for _, opt := range opts {
		opt(db)
	}

	if err := db.performSchemaMigration(); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *Db) performSchemaMigration() error {
	if err := db.Engine.AutoMigrate(&credentialRecord{}, &clientRecord{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	db.Logger.Info("database schema migrated")

	return nil
}

// GetQueryTimeout returns the per-operation timeout.
func (db *Db) GetQueryTimeout() time.Duration {
	return db.queryTimeout
}
