package identity

import (
	"context"
	"sync"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
)

// StaticResolver maps fixed tokens to users. Test double for the HTTP and
// store-backed resolvers.
type StaticResolver struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{users: make(map[string]User)}
}

func (r *StaticResolver) Add(token string, u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[token] = u
}

func (r *StaticResolver) Resolve(_ context.Context, token string) (*User, error) {
	r.mu.RLock()
	u, ok := r.users[token]
	r.mu.RUnlock()
	if !ok || token == "" {
		return nil, apperr.New(apperr.KindAuth, "Unable to verify user.")
	}
	u.AccessToken = token
	return &u, nil
}

// MemoryProfiles is an in-memory ProfileStore.
type MemoryProfiles struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	prefs    map[string]Preferences
	err      error
}

func NewMemoryProfiles() *MemoryProfiles {
	return &MemoryProfiles{
		profiles: make(map[string]Profile),
		prefs:    make(map[string]Preferences),
	}
}

func (m *MemoryProfiles) PutProfile(p Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p
}

func (m *MemoryProfiles) PutPreferences(userID string, p Preferences) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[userID] = p
}

// FailWith makes every subsequent lookup return err.
func (m *MemoryProfiles) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryProfiles) Profile(_ context.Context, userID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryProfiles) Preferences(_ context.Context, userID string) (*Preferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.prefs[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
