package storage

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm/logger"

	"github.com/jkaninda/sanduku/internal/workspace"
)

// Manager owns the session table. The table lock is held only across
// check/insert/delete; per-session operations synchronize on the session
// itself.
type Manager struct {
	ws         *workspace.Workspace
	ttl        time.Duration
	logger     *slog.Logger
	gormLogger logger.Interface

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager. ttl <= 0 falls back to 24h.
func NewManager(ws *workspace.Workspace, ttl time.Duration, slogger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		ws:     ws,
		ttl:    ttl,
		logger: slogger,
		gormLogger: logger.New(
			slogAdapter{slogger},
			logger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session for id, allocating it on first use.
// Idempotent under concurrent calls with the same id: the lock spans the
// check-and-create, so exactly one allocation wins.
func (m *Manager) GetOrCreate(id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s, nil
	}

	dir := m.ws.SessionDir(id)
	s := newSession(id, dir, m.ws.SessionDBPath(id))
	m.sessions[id] = s

	m.logger.Info("session created",
		slog.String("session_id", id),
		slog.String("workspace", dir),
	)
	return s, nil
}

// Delete destroys a session: closes the database, removes the workspace
// tree (database file included), and drops the table entry.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s: not found", id)
	}

	s.close()
	if err := os.RemoveAll(s.WorkspaceDir); err != nil {
		return fmt.Errorf("removing session workspace: %w", err)
	}

	m.logger.Info("session deleted", slog.String("session_id", id))
	return nil
}

// SweepExpired removes every session older than the TTL. This is the
// explicit expiry path; nothing expires implicitly per request. Returns
// the number of sessions removed.
func (m *Manager) SweepExpired() int {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.CreatedAt.Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.close()
		if err := os.RemoveAll(s.WorkspaceDir); err != nil {
			m.logger.Warn("removing expired session workspace",
				slog.String("session_id", s.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if len(expired) > 0 {
		m.logger.Info("expired sessions swept",
			slog.Int("removed", len(expired)),
			slog.Duration("ttl", m.ttl),
		)
	}
	return len(expired)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// SessionInfo is a read-only diagnostic snapshot of one session.
type SessionInfo struct {
	SessionID      string    `json:"session_id"`
	CreatedAt      time.Time `json:"created_at"`
	Namespaces     []string  `json:"namespaces"`
	KVKeysCount    int       `json:"kv_keys_count"`
	KVStorageBytes int64     `json:"kv_storage_bytes"`
	WorkspaceBytes int64     `json:"workspace_bytes"`
	HasDatabase    bool      `json:"has_database"`
}

// Info reports a session's storage usage, creating the session if it
// does not yet exist.
func (m *Manager) Info(id string) (SessionInfo, error) {
	s, err := m.GetOrCreate(id)
	if err != nil {
		return SessionInfo{}, err
	}

	s.mu.RLock()
	namespaces := make([]string, 0, len(s.data))
	keys := 0
	var kvBytes int64
	for ns, entries := range s.data {
		namespaces = append(namespaces, ns)
		keys += len(entries)
		for _, v := range entries {
			kvBytes += int64(len(v))
		}
	}
	dbPath := s.dbPath
	s.mu.RUnlock()
	sort.Strings(namespaces)

	var workspaceBytes int64
	_ = filepath.WalkDir(s.WorkspaceDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			workspaceBytes += info.Size()
		}
		return nil
	})

	_, dbErr := os.Stat(dbPath)

	return SessionInfo{
		SessionID:      s.ID,
		CreatedAt:      s.CreatedAt,
		Namespaces:     namespaces,
		KVKeysCount:    keys,
		KVStorageBytes: kvBytes,
		WorkspaceBytes: workspaceBytes,
		HasDatabase:    dbErr == nil,
	}, nil
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}
