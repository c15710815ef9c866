package store

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/thesquelched/suggestive-sub000/internal/models"
)

// GORMConfig is the store-wide GORM configuration.
var GORMConfig = &gorm.Config{
	Logger:                 logger.Default.LogMode(logger.Silent),
	SkipDefaultTransaction: true,
	PrepareStmt:            true,
}

// Store owns the catalog database. All writers must go through the
// process-wide write mutex; readers only need a session scope.
type Store struct {
	gormDB  *gorm.DB
	writeMu sync.Mutex
	logger  *zerolog.Logger
}

// Open opens (creating if necessary) the catalog database at path and
// migrates the schema.
func Open(path string, log *zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), GORMConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{gormDB: db, logger: log}, nil
}

var memorySeq atomic.Int64

// OpenMemory opens a fresh in-memory catalog, used by tests. Each call
// yields an independent database shared across the pool's connections.
func OpenMemory(log *zerolog.Logger) (*Store, error) {
	name := fmt.Sprintf("file:mem%d?mode=memory&cache=shared", memorySeq.Add(1))
	return Open(name, log)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Session is a scoped unit of work against the catalog.
type Session struct {
	db *gorm.DB
}

// Scoped runs fn inside a session. When commit is true the session is a
// transaction committed on success and rolled back on any error; when
// false the session is read-only and always rolled back.
func (s *Store) Scoped(commit bool, fn func(*Session) error) error {
	tx := s.gormDB.Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin session: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&Session{db: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if !commit {
		tx.Rollback()
		return nil
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// LockWrites acquires the process-wide write mutex.
func (s *Store) LockWrites() {
	s.writeMu.Lock()
}

// UnlockWrites releases the process-wide write mutex.
func (s *Store) UnlockWrites() {
	s.writeMu.Unlock()
}

// WithWriteLock runs fn while holding the write mutex.
func (s *Store) WithWriteLock(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return fn()
}
