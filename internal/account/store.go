package account

import (
	"context"
	"sort"
	"strings"
	"sync"

	"paflow/pkg/platform/sentinel"
)

// Store persists accounts. Create runs assignIdentifier with the generated
// primary key before the row becomes visible, so the identifier is set in the
// same transaction that creates the account.
type Store interface {
	Create(ctx context.Context, acct *Account, assignIdentifier func(id int64) string) (*Account, error)
	FindByID(ctx context.Context, id int64) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	ListByScope(ctx context.Context, scopeID int64) ([]*Account, error)
}

// MemoryStore is an in-memory account store for tests and local development.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[int64]*Account
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[int64]*Account)}
}

func (s *MemoryStore) Create(ctx context.Context, acct *Account, assignIdentifier func(id int64) string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if strings.EqualFold(existing.Email, acct.Email) {
			return nil, sentinel.ErrConflict
		}
	}

	s.nextID++
	cp := *acct
	cp.ID = s.nextID
	cp.Identifier = assignIdentifier(cp.ID)
	s.byID[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id int64) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

func (s *MemoryStore) ListByScope(ctx context.Context, scopeID int64) ([]*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Account, 0)
	for _, acct := range s.byID {
		if acct.ScopeID == scopeID {
			cp := *acct
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acct := range s.byID {
		if strings.EqualFold(acct.Email, email) {
			cp := *acct
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}
