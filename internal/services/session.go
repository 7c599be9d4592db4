package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"exam-dashboard/internal/models"
	"exam-dashboard/internal/observability"
)

// Session is one browser's dashboard state: its own table cache and the
// table currently on screen. Nothing is shared between sessions.
type Session struct {
	ID    string
	cache *TableCache

	mu       sync.RWMutex
	table    *models.Table
	filename string
	lastSeen time.Time
}

// Upload loads a file through the session cache and makes it current. A
// failed upload clears the current table.
func (s *Session) Upload(ctx context.Context, filename string, data []byte) (*models.Table, bool, error) {
	table, cached, err := s.cache.Load(ctx, filename, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.table = nil
		s.filename = ""
		return nil, false, err
	}
	s.table = table
	s.filename = filename
	return table, cached, nil
}

func (s *Session) Current() (*models.Table, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table, s.filename, s.table != nil
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = nil
	s.filename = ""
}

func (s *Session) Cache() *TableCache {
	return s.cache
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) seen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

type SessionOptions struct {
	CacheEntries int
	TTL          time.Duration
	MaxSessions  int
}

type SessionStore struct {
	loader  *Loader
	opts    SessionOptions
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionStore(loader *Loader, opts SessionOptions, logger *slog.Logger, metrics *observability.Metrics) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1
	}
	return &SessionStore{
		loader:   loader,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns a live session and refreshes its idle timer.
func (st *SessionStore) Get(id string) (*Session, bool) {
	now := st.now()

	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweepLocked(now)

	s, ok := st.sessions[id]
	if !ok {
		return nil, false
	}
	s.touch(now)
	return s, true
}

// Create starts a new session, evicting the least recently used one when
// the store is full.
func (st *SessionStore) Create() *Session {
	now := st.now()
	s := &Session{
		ID:       uuid.NewString(),
		cache:    NewTableCache(st.loader, st.opts.CacheEntries, st.metrics),
		lastSeen: now,
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweepLocked(now)

	for len(st.sessions) >= st.opts.MaxSessions {
		st.evictOldestLocked()
	}
	st.sessions[s.ID] = s
	st.metrics.SetSessions(len(st.sessions))
	return s
}

// Clear drops every session, releasing their tables.
func (st *SessionStore) Clear() {
	st.mu.Lock()
	defer st.mu.Unlock()
	clear(st.sessions)
	st.metrics.SetSessions(0)
}

func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *SessionStore) sweepLocked(now time.Time) {
	if st.opts.TTL <= 0 {
		return
	}
	for id, s := range st.sessions {
		if now.Sub(s.seen()) > st.opts.TTL {
			delete(st.sessions, id)
			st.logger.Debug("session expired", "session_id", id)
		}
	}
	st.metrics.SetSessions(len(st.sessions))
}

func (st *SessionStore) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, s := range st.sessions {
		if seen := s.seen(); oldestID == "" || seen.Before(oldest) {
			oldestID, oldest = id, seen
		}
	}
	if oldestID != "" {
		delete(st.sessions, oldestID)
		st.logger.Debug("session evicted", "session_id", oldestID)
	}
}

// Stats reports store-wide counters for the admin endpoint.
func (st *SessionStore) Stats() map[string]any {
	st.mu.Lock()
	defer st.mu.Unlock()

	var (
		loaded  int
		cached  int
		hits    int64
		misses  int64
		rowsSum int
	)
	for _, s := range st.sessions {
		if t, _, ok := s.Current(); ok {
			loaded++
			rowsSum += t.Len()
		}
		cached += s.cache.Len()
		hits += s.cache.Hits()
		misses += s.cache.Misses()
	}

	return map[string]any{
		"sessions":        len(st.sessions),
		"sessions_loaded": loaded,
		"rows_in_memory":  rowsSum,
		"cached_tables":   cached,
		"cache_hits":      hits,
		"cache_misses":    misses,
	}
}

type sessionContextKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

func SessionFrom(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok
}
