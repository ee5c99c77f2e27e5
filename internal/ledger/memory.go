package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps every record in process memory. It backs dev mode
// and tests; restarts lose everything.
type MemoryStore struct {
	mu           sync.Mutex
	users        map[int64]*User
	byCredential map[string]int64
	nextID       int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[int64]*User),
		byCredential: make(map[string]int64),
		nextID:       1,
	}
}

func (s *MemoryStore) CreateGuest(_ context.Context, name, credential string, gold int64) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &User{
		ID:         s.nextID,
		Name:       name,
		Credential: credential,
		Guest:      true,
		Gold:       gold,
		CreatedAt:  time.Now(),
	}
	s.nextID++
	s.users[u.ID] = u
	s.byCredential[credential] = u.ID
	out := *u
	return &out, nil
}

func (s *MemoryStore) UserByCredential(_ context.Context, credential string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCredential[credential]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *s.users[id]
	return &out, nil
}

func (s *MemoryStore) UserByID(_ context.Context, id int64) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (s *MemoryStore) SaveGold(_ context.Context, uid int64, gold int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return ErrUserNotFound
	}
	u.Gold = gold
	return nil
}

func (s *MemoryStore) SaveStats(_ context.Context, uid int64, expGain int64, games, wins int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return ErrUserNotFound
	}
	u.Exp += expGain
	u.Games += games
	u.Wins += wins
	return nil
}
