// Package snapmem is the in-memory snapshot store used by unit tests
// and no-db deployments.
package snapmem

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"veilcloud/internal/domain"
)

type Store struct {
	mu      sync.RWMutex
	byID    map[string]domain.Snapshot
	byScope map[string][]string
	clock   func() time.Time
}

func New() *Store {
	return NewWithClock(nil)
}

func NewWithClock(clock func() time.Time) *Store {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		byID:    make(map[string]domain.Snapshot),
		byScope: make(map[string][]string),
		clock:   clock,
	}
}

func (s *Store) Create(ctx context.Context, snapshot domain.Snapshot) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if snapshot.ID == "" {
		snapshot.ID = newID()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = s.clock()
	}
	snapshot.RootHash = cloneBytes(snapshot.RootHash)

	s.byID[snapshot.ID] = snapshot
	s.byScope[snapshot.Scope] = append(s.byScope[snapshot.Scope], snapshot.ID)
	return snapshot, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	out := snapshot
	out.RootHash = cloneBytes(snapshot.RootHash)
	return &out, nil
}

func (s *Store) ListByScope(ctx context.Context, scope string, limit int) ([]domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byScope[scope]
	out := make([]domain.Snapshot, 0, len(ids))
	// newest first; creation order is insertion order
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		snapshot := s.byID[ids[i]]
		snapshot.RootHash = cloneBytes(snapshot.RootHash)
		out = append(out, snapshot)
	}
	return out, nil
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
