package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/domain/audit"
	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.UserStore       = (*MemoryUserStore)(nil)
	_ ports.SessionTable    = (*MemorySessionTable)(nil)
	_ ports.SessionIndex    = (*MemorySessionIndex)(nil)
	_ ports.ExpiryScheduler = (*RecordingScheduler)(nil)
	_ ports.AuditLogger     = (*RecordingAuditLogger)(nil)
	_ ports.PasswordHasher  = PlainHasher{}
	_ ports.Validator       = StaticValidator{}
)

// MemoryUserStore is an in-memory user store for unit tests.
// Setting Err makes every call fail with it; ReplaceErr fails Replace only.
type MemoryUserStore struct {
	mu         sync.Mutex
	users      map[string]domainauth.User
	Err        error
	ReplaceErr error
}

// NewMemoryUserStore creates a store seeded with users.
func NewMemoryUserStore(users ...domainauth.User) *MemoryUserStore {
	m := &MemoryUserStore{users: make(map[string]domainauth.User)}
	for _, u := range users {
		m.users[u.Username] = u
	}
	return m
}

func (m *MemoryUserStore) Add(_ context.Context, user domainauth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.users[user.Username]; ok {
		return domainauth.ErrUserExists
	}
	m.users[user.Username] = user
	return nil
}

func (m *MemoryUserStore) Get(_ context.Context, username string) (domainauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return domainauth.User{}, m.Err
	}
	u, ok := m.users[username]
	if !ok {
		return domainauth.User{}, domainauth.ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryUserStore) Replace(_ context.Context, oldUsername string, user domainauth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.ReplaceErr != nil {
		return m.ReplaceErr
	}
	if _, ok := m.users[oldUsername]; !ok {
		return domainauth.ErrUserNotFound
	}
	if user.Username != oldUsername {
		if _, taken := m.users[user.Username]; taken {
			return domainauth.ErrUserExists
		}
		delete(m.users, oldUsername)
	}
	m.users[user.Username] = user
	return nil
}

func (m *MemoryUserStore) Remove(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.users, username)
	return nil
}

func (m *MemoryUserStore) AdminCount(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	n := 0
	for _, u := range m.users {
		if u.IsAdmin() {
			n++
		}
	}
	return n, nil
}

// Snapshot returns the stored user without going through the error hook.
func (m *MemoryUserStore) Snapshot(username string) (domainauth.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	return u, ok
}

// MemorySessionTable is an in-memory sessions table keyed by username.
type MemorySessionTable struct {
	mu   sync.Mutex
	rows map[string]domainauth.Session
	Err  error
}

// NewMemorySessionTable creates a table seeded with sessions.
func NewMemorySessionTable(sessions ...domainauth.Session) *MemorySessionTable {
	m := &MemorySessionTable{rows: make(map[string]domainauth.Session)}
	for _, s := range sessions {
		m.rows[s.Username] = s
	}
	return m
}

func (m *MemorySessionTable) Put(_ context.Context, sess domainauth.Session) (domainauth.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return domainauth.Session{}, false, m.Err
	}
	prev, ok := m.rows[sess.Username]
	m.rows[sess.Username] = sess
	return prev, ok, nil
}

func (m *MemorySessionTable) FindByID(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return domainauth.Session{}, m.Err
	}
	for _, s := range m.rows {
		if s.ID == id {
			return s, nil
		}
	}
	return domainauth.Session{}, domainauth.ErrSessionNotFound
}

func (m *MemorySessionTable) FindByUsername(_ context.Context, username string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return domainauth.Session{}, m.Err
	}
	s, ok := m.rows[username]
	if !ok {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	return s, nil
}

func (m *MemorySessionTable) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	for name, s := range m.rows {
		if s.ID == id {
			delete(m.rows, name)
			return true, nil
		}
	}
	return false, nil
}

func (m *MemorySessionTable) PruneExpired(_ context.Context, now time.Time) ([]domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var kept []domainauth.Session
	for name, s := range m.rows {
		if s.Expired(now) {
			delete(m.rows, name)
			continue
		}
		kept = append(kept, s)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Username < kept[j].Username })
	return kept, nil
}

// Len returns the number of rows.
func (m *MemorySessionTable) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// MemorySessionIndex is an in-memory SessionIndex. PutErr fails writes only.
type MemorySessionIndex struct {
	mu       sync.Mutex
	byID     map[string]domainauth.Session
	byUser   map[string]string
	PutErr   error
	ClearErr error
	// Lookups counts LookupID and LookupUsername calls.
	Lookups int
}

// NewMemorySessionIndex creates an empty index.
func NewMemorySessionIndex() *MemorySessionIndex {
	return &MemorySessionIndex{
		byID:   make(map[string]domainauth.Session),
		byUser: make(map[string]string),
	}
}

func (m *MemorySessionIndex) Put(_ context.Context, sess domainauth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	m.byID[sess.ID] = sess
	m.byUser[sess.Username] = sess.ID
	return nil
}

func (m *MemorySessionIndex) LookupID(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lookups++
	s, ok := m.byID[id]
	if !ok {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	return s, nil
}

func (m *MemorySessionIndex) LookupUsername(_ context.Context, username string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lookups++
	s, ok := m.byID[m.byUser[username]]
	if !ok {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	return s, nil
}

func (m *MemorySessionIndex) Remove(_ context.Context, sess domainauth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, sess.ID)
	if m.byUser[sess.Username] == sess.ID {
		delete(m.byUser, sess.Username)
	}
	return nil
}

func (m *MemorySessionIndex) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClearErr != nil {
		return m.ClearErr
	}
	clear(m.byID)
	clear(m.byUser)
	return nil
}

// RecordingScheduler remembers every scheduled session instead of arming timers.
type RecordingScheduler struct {
	mu        sync.Mutex
	scheduled []domainauth.Session
}

func (r *RecordingScheduler) Schedule(sess domainauth.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, sess)
}

// Scheduled returns a copy of the scheduled sessions in call order.
func (r *RecordingScheduler) Scheduled() []domainauth.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domainauth.Session(nil), r.scheduled...)
}

// RecordingAuditLogger keeps recorded events in memory.
type RecordingAuditLogger struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *RecordingAuditLogger) Record(_ context.Context, ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *RecordingAuditLogger) Events() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

// PlainHasher "hashes" by prefixing, which keeps tests fast and deterministic.
type PlainHasher struct{}

const plainPrefix = "plain$"

func (PlainHasher) Hash(password string) (string, error) { return plainPrefix + password, nil }

func (PlainHasher) Verify(hash, password string) error {
	if hash != plainPrefix+password {
		return domainauth.ErrWrongCredential
	}
	return nil
}

// StaticValidator rejects exactly the values listed in Reject with the mapped messages.
type StaticValidator struct {
	Reject map[string][]string
}

func (v StaticValidator) Validate(value string) []string {
	return v.Reject[value]
}
