package session

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiftsuite/shiftboard/pkg/dataset"
	"github.com/shiftsuite/shiftboard/pkg/scenario"
	"github.com/shiftsuite/shiftboard/pkg/slotinfo"
)

// Session is one uploaded archive's live state: the extracted directory plus
// the scenario set opened over it. LastAccess is guarded by the Manager.
type Session struct {
	// ID is the unique session identifier.
	ID string

	// IP is the client IP the session was created from.
	IP string

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	// LastAccess is when the session was last touched.
	LastAccess time.Time

	// Dir is the extracted archive directory, owned by the session.
	Dir string

	// SourceFile is the original upload file name.
	SourceFile string

	// Bytes is the extracted archive size on disk.
	Bytes int64

	// Scenarios is the scenario set opened over Dir.
	Scenarios *scenario.Set

	// Slot is the slot granularity detected from the primary scenario.
	Slot slotinfo.Info
}

// Manifest builds the persistence record for the session.
func (s *Session) Manifest() *Manifest {
	return &Manifest{
		ID:         s.ID,
		IP:         s.IP,
		CreatedAt:  s.CreatedAt,
		LastAccess: s.LastAccess,
		SourceFile: s.SourceFile,
		Dir:        s.Dir,
		Bytes:      s.Bytes,
		Scenarios:  s.Scenarios.Names(),
		Slot:       s.Slot,
	}
}

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// MaxSessions is the maximum number of live sessions before eviction.
	// Default: 128.
	MaxSessions int

	// MaxSessionsPerIP is the maximum number of sessions per client IP.
	// 0 disables the per-IP limit.
	// Default: 8.
	MaxSessionsPerIP int

	// TTL is how long an untouched session survives.
	// Default: 2 hours.
	TTL time.Duration

	// CleanupInterval is how often expired sessions are swept.
	// Default: 1 minute.
	CleanupInterval time.Duration

	// EvictionPolicy determines which session goes when MaxSessions is hit.
	// Default: EvictionLRU.
	EvictionPolicy EvictionPolicy

	// Cache configures each scenario's dataset cache.
	Cache dataset.CacheConfig
}

// EvictionPolicy determines which sessions are evicted first.
type EvictionPolicy int

const (
	// EvictionLRU evicts the least recently accessed session first.
	EvictionLRU EvictionPolicy = iota

	// EvictionOldest evicts the oldest session first (by creation time).
	EvictionOldest

	// EvictionRandom evicts a random session (faster but less fair).
	EvictionRandom
)

// DefaultManagerConfig returns a ManagerConfig with sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxSessions:      128,
		MaxSessionsPerIP: 8,
		TTL:              2 * time.Hour,
		CleanupInterval:  1 * time.Minute,
		EvictionPolicy:   EvictionLRU,
		Cache:            dataset.DefaultCacheConfig(),
	}
}

// Error types for session management.
var (
	// ErrTooManySessionsFromIP is returned when the per-IP limit is exceeded.
	ErrTooManySessionsFromIP = errors.New("too many sessions from this IP address")

	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionGone is returned when a persisted session's extracted
	// directory no longer exists on disk.
	ErrSessionGone = errors.New("session data no longer on disk")

	// ErrManagerStopped is returned when operations are attempted on a
	// stopped manager.
	ErrManagerStopped = errors.New("session manager is stopped")
)

// Manager owns all live sessions. It enforces the global and per-IP session
// limits, evicts per the configured policy when full, sweeps idle sessions,
// and persists manifests through the configured Store.
type Manager struct {
	mu sync.RWMutex

	// All sessions by ID
	sessions map[string]*Session

	// Sessions in LRU order (front = most recently accessed)
	lruQueue *list.List
	lruIndex map[string]*list.Element

	// Session count per IP address
	sessionsByIP map[string]int

	config ManagerConfig
	store  Store
	logger *slog.Logger

	// Random source (for EvictionRandom); overrideable for tests.
	randIntN func(n int) int

	// onAdd and onRemove, when set, observe every session entering or
	// leaving the registry. onRemove receives the reason ("removed",
	// "evicted", "expired", ...). Both are called outside the lock.
	onAdd    func(sess *Session)
	onRemove func(sess *Session, reason string)

	done    chan struct{}
	stopped bool
}

// NewManager creates a session manager. store may be nil to disable
// manifest persistence.
func NewManager(store Store, config ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultManagerConfig()
	if config.MaxSessions <= 0 {
		config.MaxSessions = defaults.MaxSessions
	}
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}

	m := &Manager{
		sessions:     make(map[string]*Session),
		lruQueue:     list.New(),
		lruIndex:     make(map[string]*list.Element),
		sessionsByIP: make(map[string]int),
		config:       config,
		store:        store,
		logger:       logger.With("component", "session_manager"),
		randIntN:     rand.IntN,
		done:         make(chan struct{}),
	}

	go m.cleanupLoop()

	return m
}

// SetOnAdd installs a callback observing every session entering the
// registry, whether freshly created or resumed from a manifest. Set it
// before the manager sees traffic.
func (m *Manager) SetOnAdd(fn func(sess *Session)) {
	m.mu.Lock()
	m.onAdd = fn
	m.mu.Unlock()
}

// SetOnRemove installs a callback observing every session removal: explicit
// deletes, capacity eviction, TTL expiry, and shedding alike. Set it before
// the manager sees traffic.
func (m *Manager) SetOnRemove(fn func(sess *Session, reason string)) {
	m.mu.Lock()
	m.onRemove = fn
	m.mu.Unlock()
}

// added fires the onAdd hook. Call without holding the lock.
func (m *Manager) added(sess *Session) {
	m.mu.RLock()
	onAdd := m.onAdd
	m.mu.RUnlock()
	if onAdd != nil {
		onAdd(sess)
	}
}

// CheckIPLimit verifies that the IP hasn't exceeded its session limit.
// Called before accepting an upload, so the client is refused before the
// archive is transferred.
func (m *Manager) CheckIPLimit(ip string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.stopped {
		return ErrManagerStopped
	}

	if m.config.MaxSessionsPerIP > 0 && m.sessionsByIP[ip] >= m.config.MaxSessionsPerIP {
		return ErrTooManySessionsFromIP
	}
	return nil
}

// Create registers a new session over an extracted archive directory.
// When the manager is full, sessions are evicted per the configured policy
// to make room; the per-IP limit is never evicted around.
func (m *Manager) Create(ctx context.Context, ip, dir, sourceFile string, bytes int64, scenarios []string) (*Session, error) {
	set, err := scenario.NewSet(dir, scenarios, m.config.Cache, m.logger)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:         uuid.NewString(),
		IP:         ip,
		CreatedAt:  time.Now(),
		LastAccess: time.Now(),
		Dir:        dir,
		SourceFile: sourceFile,
		Bytes:      bytes,
		Scenarios:  set,
	}
	if primary, err := set.Get(""); err == nil {
		sess.Slot = primary.Slot(ctx)
	} else {
		sess.Slot = slotinfo.Default()
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		set.Close()
		return nil, ErrManagerStopped
	}
	if m.config.MaxSessionsPerIP > 0 && m.sessionsByIP[ip] >= m.config.MaxSessionsPerIP {
		m.mu.Unlock()
		set.Close()
		return nil, ErrTooManySessionsFromIP
	}

	var evicted []*Session
	for len(m.sessions) >= m.config.MaxSessions {
		victim := m.evictOneLocked()
		if victim == nil {
			break
		}
		evicted = append(evicted, victim)
	}

	m.sessions[sess.ID] = sess
	m.lruIndex[sess.ID] = m.lruQueue.PushFront(sess.ID)
	m.sessionsByIP[ip]++

	m.logger.Info("session created",
		"session_id", sess.ID,
		"ip", ip,
		"scenarios", len(scenarios),
		"total", len(m.sessions))
	m.mu.Unlock()

	for _, victim := range evicted {
		m.dispose(victim, "evicted")
	}

	m.added(sess)
	m.persist(sess)

	return sess, nil
}

// Get retrieves a session by ID and marks it accessed.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, ErrManagerStopped
	}

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	sess.LastAccess = time.Now()
	if elem, ok := m.lruIndex[sessionID]; ok {
		m.lruQueue.MoveToFront(elem)
	}
	return sess, nil
}

// Resume reopens a session from its persisted manifest after a restart.
// The extracted directory must still exist on disk.
func (m *Manager) Resume(ctx context.Context, sessionID string) (*Session, error) {
	if m.store == nil {
		return nil, ErrSessionNotFound
	}

	data, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrSessionNotFound
	}

	manifest, err := DecodeManifest(data)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(manifest.Dir); err != nil {
		m.store.Delete(ctx, sessionID)
		return nil, ErrSessionGone
	}

	set, err := scenario.NewSet(manifest.Dir, manifest.Scenarios, m.config.Cache, m.logger)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:         manifest.ID,
		IP:         manifest.IP,
		CreatedAt:  manifest.CreatedAt,
		LastAccess: time.Now(),
		Dir:        manifest.Dir,
		SourceFile: manifest.SourceFile,
		Bytes:      manifest.Bytes,
		Scenarios:  set,
		Slot:       manifest.Slot,
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		set.Close()
		return nil, ErrManagerStopped
	}
	if existing, ok := m.sessions[sess.ID]; ok {
		// Lost the race with another resume; use the winner.
		m.mu.Unlock()
		set.Close()
		return existing, nil
	}
	m.sessions[sess.ID] = sess
	m.lruIndex[sess.ID] = m.lruQueue.PushFront(sess.ID)
	m.sessionsByIP[sess.IP]++
	m.mu.Unlock()

	m.added(sess)
	m.logger.Info("session resumed", "session_id", sess.ID)
	return sess, nil
}

// Touch updates the last access time for a session.
func (m *Manager) Touch(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[sessionID]; ok {
		sess.LastAccess = time.Now()
		if elem, ok := m.lruIndex[sessionID]; ok {
			m.lruQueue.MoveToFront(elem)
		}
	}
}

// Remove deletes a session, closes its scenario caches, and removes its
// extracted directory from disk.
func (m *Manager) Remove(sessionID string) error {
	m.mu.Lock()
	sess := m.removeLocked(sessionID)
	m.mu.Unlock()

	if sess == nil {
		return ErrSessionNotFound
	}
	m.dispose(sess, "removed")
	return nil
}

// Shed evicts up to n sessions using the configured eviction policy and
// returns how many were released. Called by the memory monitor when the
// heap crosses its soft or hard limit.
func (m *Manager) Shed(n int, reason string) int {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return 0
	}

	var victims []*Session
	for i := 0; i < n; i++ {
		victim := m.evictOneLocked()
		if victim == nil {
			break
		}
		victims = append(victims, victim)
	}
	m.mu.Unlock()

	for _, victim := range victims {
		m.dispose(victim, reason)
	}
	return len(victims)
}

// removeLocked unlinks a session from the bookkeeping maps and returns it.
// The caller must dispose of it after releasing the lock.
func (m *Manager) removeLocked(sessionID string) *Session {
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}

	delete(m.sessions, sessionID)
	m.sessionsByIP[sess.IP]--
	if m.sessionsByIP[sess.IP] <= 0 {
		delete(m.sessionsByIP, sess.IP)
	}
	if elem, ok := m.lruIndex[sessionID]; ok {
		m.lruQueue.Remove(elem)
		delete(m.lruIndex, sessionID)
	}
	return sess
}

// dispose releases a session's resources outside the manager lock.
func (m *Manager) dispose(sess *Session, reason string) {
	sess.Scenarios.Close()
	if sess.Dir != "" {
		if err := os.RemoveAll(sess.Dir); err != nil {
			m.logger.Warn("failed to remove session directory",
				"session_id", sess.ID,
				"dir", sess.Dir,
				"error", err)
		}
	}
	if m.store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			m.store.Delete(ctx, sess.ID)
		}()
	}

	m.logger.Debug("session disposed",
		"session_id", sess.ID,
		"reason", reason)

	m.mu.RLock()
	onRemove := m.onRemove
	m.mu.RUnlock()
	if onRemove != nil {
		onRemove(sess, reason)
	}
}

// persist writes a session's manifest to the store asynchronously.
func (m *Manager) persist(sess *Session) {
	if m.store == nil {
		return
	}

	data, err := EncodeManifest(sess.Manifest())
	if err != nil {
		m.logger.Warn("failed to encode session manifest",
			"session_id", sess.ID,
			"error", err)
		return
	}
	expiresAt := time.Now().Add(m.config.TTL)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.Save(ctx, sess.ID, data, expiresAt); err != nil {
			m.logger.Warn("failed to persist session manifest",
				"session_id", sess.ID,
				"error", err)
		}
	}()
}

// evictOneLocked picks one session per the configured EvictionPolicy and
// unlinks it (must be called with lock held). Returns the victim for the
// caller to dispose of, or nil when nothing can be evicted.
func (m *Manager) evictOneLocked() *Session {
	if m.lruQueue.Len() == 0 {
		return nil
	}

	var sessionID string

	switch m.config.EvictionPolicy {
	case EvictionOldest:
		var oldestID string
		var oldestTime time.Time
		found := false

		for e := m.lruQueue.Front(); e != nil; e = e.Next() {
			id := e.Value.(string)
			sess := m.sessions[id]
			if sess == nil {
				continue
			}
			if !found || sess.CreatedAt.Before(oldestTime) {
				found = true
				oldestID = id
				oldestTime = sess.CreatedAt
			}
		}

		if found {
			sessionID = oldestID
		} else if back := m.lruQueue.Back(); back != nil {
			sessionID = back.Value.(string)
		}
	case EvictionRandom:
		// Deterministic in tests via randIntN override.
		n := m.lruQueue.Len()
		intn := m.randIntN
		if intn == nil {
			intn = rand.IntN
		}

		idx := intn(n)
		if idx < 0 {
			idx = 0
		} else if idx >= n {
			idx = n - 1
		}

		e := m.lruQueue.Front()
		for i := 0; i < idx && e != nil; i++ {
			e = e.Next()
		}
		if e == nil {
			e = m.lruQueue.Back()
		}
		if e != nil {
			sessionID = e.Value.(string)
		}
	default:
		// Least recently used session is at the back.
		if back := m.lruQueue.Back(); back != nil {
			sessionID = back.Value.(string)
		}
	}

	if sessionID == "" {
		return nil
	}

	m.logger.Info("evicting session",
		"session_id", sessionID,
		"policy", m.config.EvictionPolicy,
		"reason", "session_limit_exceeded")

	return m.removeLocked(sessionID)
}

// cleanupLoop periodically sweeps idle sessions.
func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpired()
		case <-m.done:
			return
		}
	}
}

// cleanupExpired removes sessions idle for longer than TTL.
func (m *Manager) cleanupExpired() {
	m.mu.Lock()

	if m.stopped {
		m.mu.Unlock()
		return
	}

	now := time.Now()
	var expired []*Session
	for id, sess := range m.sessions {
		if now.Sub(sess.LastAccess) > m.config.TTL {
			if removed := m.removeLocked(id); removed != nil {
				expired = append(expired, removed)
			}
		}
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	for _, sess := range expired {
		m.dispose(sess, "expired")
	}

	if len(expired) > 0 {
		m.logger.Info("cleaned up idle sessions",
			"count", len(expired),
			"remaining", remaining)
	}
}

// Shutdown stops the manager, persists all manifests, and closes scenario
// caches. Extracted directories are left on disk so sessions can be resumed.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()

	if m.stopped {
		m.mu.Unlock()
		return nil
	}

	m.stopped = true
	close(m.done)

	toSave := make(map[string]StoredManifest, len(m.sessions))
	sessions := make([]*Session, 0, len(m.sessions))
	expiresAt := time.Now().Add(m.config.TTL)
	for id, sess := range m.sessions {
		sessions = append(sessions, sess)
		data, err := EncodeManifest(sess.Manifest())
		if err != nil {
			m.logger.Warn("failed to encode session manifest",
				"session_id", id,
				"error", err)
			continue
		}
		toSave[id] = StoredManifest{Data: data, ExpiresAt: expiresAt}
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Scenarios.Close()
	}

	if m.store != nil && len(toSave) > 0 {
		if err := m.store.SaveAll(ctx, toSave); err != nil {
			m.logger.Warn("failed to persist sessions on shutdown",
				"error", err,
				"count", len(toSave))
			return err
		}
		m.logger.Info("persisted sessions on shutdown", "count", len(toSave))
	}

	return nil
}

// Stats returns manager statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return ManagerStats{
		Total:     len(m.sessions),
		UniqueIPs: len(m.sessionsByIP),
		Limit:     m.config.MaxSessions,
	}
}

// ManagerStats contains session manager statistics.
type ManagerStats struct {
	// Total is the number of live sessions.
	Total int `json:"total"`

	// UniqueIPs is the number of distinct client IP addresses.
	UniqueIPs int `json:"unique_ips"`

	// Limit is the configured session limit.
	Limit int `json:"limit"`
}
