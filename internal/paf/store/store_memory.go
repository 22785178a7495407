package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"paflow/internal/paf/models"
	"paflow/pkg/platform/sentinel"
)

// MemoryStore is an in-memory PAF store for tests and local development. The
// mutex plays the role of the row lock: ExecuteTransition holds it across
// validation and mutation, so concurrent attempts serialize exactly as they
// do against PostgreSQL.
type MemoryStore struct {
	mu            sync.Mutex
	pafs          map[int64]*models.PAF
	history       []models.HistoryEntry
	outbox        []models.StatusEvent
	nextPAFID     int64
	nextHistoryID int64
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{pafs: make(map[int64]*models.PAF)}
}

func (s *MemoryStore) Create(ctx context.Context, p *models.PAF, first models.HistoryEntry) (*models.PAF, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPAFID++
	cp := p.Clone()
	cp.ID = s.nextPAFID
	s.pafs[cp.ID] = cp

	first.PAFID = cp.ID
	s.appendHistoryLocked(first)
	return cp.Clone(), nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id int64) (*models.PAF, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pafs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) ExecuteTransition(ctx context.Context, pafID int64, expected models.Status, apply func(*models.PAF) error, entry models.HistoryEntry) (*models.PAF, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pafs[pafID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if p.Status != expected {
		return nil, sentinel.ErrStateConflict
	}

	cp := p.Clone()
	if err := apply(cp); err != nil {
		return nil, err
	}
	s.pafs[pafID] = cp

	entry.PAFID = pafID
	s.appendHistoryLocked(entry)
	s.outbox = append(s.outbox, models.StatusEvent{
		PAFID:             cp.ID,
		DisplayIdentifier: cp.DisplayIdentifier,
		Status:            cp.Status,
		ActorID:           entry.ActorID,
		Notes:             entry.Notes,
		OccurredAt:        entry.CreatedAt,
	})
	return cp.Clone(), nil
}

func (s *MemoryStore) History(ctx context.Context, pafID int64) ([]models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []models.HistoryEntry
	for _, e := range s.history {
		if e.PAFID == pafID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *MemoryStore) ListByScope(ctx context.Context, scopeID int64, status models.Status) ([]*models.PAF, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pafs []*models.PAF
	for _, p := range s.pafs {
		if p.LicenseeScopeID != scopeID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		pafs = append(pafs, p.Clone())
	}
	sortNewestFirst(pafs)
	return pafs, nil
}

func (s *MemoryStore) ListByParty(ctx context.Context, actorID int64) ([]*models.PAF, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pafs []*models.PAF
	for _, p := range s.pafs {
		if p.CreatorID == actorID || (p.HasAgent() && p.AgentID == actorID) {
			pafs = append(pafs, p.Clone())
		}
	}
	sortNewestFirst(pafs)
	return pafs, nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context, scopeID int64) (map[models.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.Status]int)
	for _, p := range s.pafs {
		if p.LicenseeScopeID == scopeID {
			counts[p.Status]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) CountRenewalDue(ctx context.Context, scopeID int64, deadline time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, p := range s.pafs {
		if p.LicenseeScopeID != scopeID || p.Status != models.StatusValidatedActive {
			continue
		}
		if p.ExpirationDate != nil && !p.ExpirationDate.After(deadline) {
			n++
		}
	}
	return n, nil
}

// OutboxEvents returns every status event recorded so far. Test helper; the
// PostgreSQL outbox is drained by the notify worker instead.
func (s *MemoryStore) OutboxEvents() []models.StatusEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StatusEvent(nil), s.outbox...)
}

func (s *MemoryStore) appendHistoryLocked(entry models.HistoryEntry) {
	s.nextHistoryID++
	entry.ID = s.nextHistoryID
	s.history = append(s.history, entry)
}

func sortNewestFirst(pafs []*models.PAF) {
	sort.Slice(pafs, func(i, j int) bool { return pafs[i].ID > pafs[j].ID })
}
