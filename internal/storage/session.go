// Package storage manages per-session persistent state: namespaced
// key-value data, a lazily created embedded SQLite database, and a
// confined workspace directory. Sessions expire through an explicit TTL
// sweep, never implicitly per request.
package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sentinel errors call sites branch on.
var (
	// ErrKeyNotFound distinguishes an absent key from an empty value.
	ErrKeyNotFound = errors.New("key not found")
	// ErrInvalidPath marks a file path that would escape the session workspace.
	ErrInvalidPath = errors.New("invalid path")
)

// defaultNamespace is created with every session.
const defaultNamespace = "default"

// Session holds one session's state. All fields behind mu; the embedded
// database opens lazily on the first relational operation.
type Session struct {
	ID           string
	CreatedAt    time.Time
	WorkspaceDir string

	mu     sync.RWMutex
	data   map[string]map[string]string // namespace -> key -> value
	dbPath string
	db     *gorm.DB
}

func newSession(id, workspaceDir, dbPath string) *Session {
	return &Session{
		ID:           id,
		CreatedAt:    time.Now(),
		WorkspaceDir: workspaceDir,
		dbPath:       dbPath,
		data:         map[string]map[string]string{defaultNamespace: {}},
	}
}

// database returns the session's embedded database, opening it on first
// use. WAL mode keeps concurrent readers cheap; busy_timeout covers
// writer contention inside one session.
func (s *Session) database(gormLogger logger.Interface) (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", s.dbPath)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening session database: %w", err)
	}

	s.db = db
	return db, nil
}

// close releases the database connection if one was opened.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return
	}
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	s.db = nil
}
