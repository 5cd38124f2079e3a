// Package ledgermem is the in-memory ledger used by unit tests and no-DB
// deployments. One writer at a time per scope; reads run concurrently.
package ledgermem

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"veilcloud/internal/domain"
	"veilcloud/internal/infra/merkle"
)

type Ledger struct {
	mu     sync.RWMutex
	scopes map[string]*scopeState
	clock  func() time.Time
}

type scopeState struct {
	tree    *merkle.Tree
	entries []domain.LedgerEntry
	byID    map[string]int64
}

func New() *Ledger {
	return NewWithClock(nil)
}

func NewWithClock(clock func() time.Time) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{
		scopes: make(map[string]*scopeState),
		clock:  clock,
	}
}

func (l *Ledger) Append(ctx context.Context, scope string, entry []byte) (domain.AppendReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.AppendReceipt{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.ensureScope(scope)
	leafHash := merkle.LeafHash(entry)
	index, err := state.tree.Append(leafHash)
	if err != nil {
		return domain.AppendReceipt{}, err
	}

	entryID, err := newEntryID()
	if err != nil {
		return domain.AppendReceipt{}, err
	}
	record := domain.LedgerEntry{
		ID:        entryID,
		Index:     index,
		Hash:      leafHash,
		Data:      cloneBytes(entry),
		Timestamp: l.clock().UTC(),
	}
	state.entries = append(state.entries, record)
	state.byID[entryID] = index

	return domain.AppendReceipt{
		EntryID: entryID,
		Index:   index,
		Hash:    cloneBytes(leafHash),
	}, nil
}

func (l *Ledger) GetEntry(ctx context.Context, scope, entryID string) (*domain.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	state := l.scopes[scope]
	if state == nil {
		return nil, domain.ErrEntryNotFound
	}
	index, ok := state.byID[entryID]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	entry := cloneEntry(state.entries[index])
	return &entry, nil
}

func (l *Ledger) GetProof(ctx context.Context, scope, entryID string) (*domain.LedgerProof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	state := l.scopes[scope]
	if state == nil {
		return nil, domain.ErrEntryNotFound
	}
	index, ok := state.byID[entryID]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	siblings, directions, err := state.tree.InclusionPath(index)
	if err != nil {
		return nil, err
	}
	return &domain.LedgerProof{
		Root:       state.tree.Root(),
		Siblings:   siblings,
		Directions: directions,
		Index:      index,
		TreeSize:   state.tree.Size(),
	}, nil
}

func (l *Ledger) GetConsistencyProof(ctx context.Context, scope string, fromSize, toSize int64) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	state := l.scopes[scope]
	if state == nil {
		return nil, domain.ErrInvalidRange
	}
	return merkle.ConsistencyPath(state.tree.LeafHashes(), fromSize, toSize)
}

func (l *Ledger) GetRootHash(ctx context.Context, scope string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	state := l.scopes[scope]
	if state == nil {
		return nil, nil
	}
	return state.tree.Root(), nil
}

func (l *Ledger) GetTreeSize(ctx context.Context, scope string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	state := l.scopes[scope]
	if state == nil {
		return 0, nil
	}
	return state.tree.Size(), nil
}

func (l *Ledger) GetLatestEntry(ctx context.Context, scope string) (*domain.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	state := l.scopes[scope]
	if state == nil || len(state.entries) == 0 {
		return nil, nil
	}
	entry := cloneEntry(state.entries[len(state.entries)-1])
	return &entry, nil
}

func (l *Ledger) ensureScope(scope string) *scopeState {
	state := l.scopes[scope]
	if state == nil {
		state = &scopeState{
			tree: merkle.New(),
			byID: make(map[string]int64),
		}
		l.scopes[scope] = state
	}
	return state
}

func newEntryID() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	raw[6] = (raw[6] & 0x0f) | 0x40
	raw[8] = (raw[8] & 0x3f) | 0x80
	hexStr := hex.EncodeToString(raw)
	return fmt.Sprintf("%s-%s-%s-%s-%s", hexStr[0:8], hexStr[8:12], hexStr[12:16], hexStr[16:20], hexStr[20:32]), nil
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func cloneEntry(entry domain.LedgerEntry) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:        entry.ID,
		Index:     entry.Index,
		Hash:      cloneBytes(entry.Hash),
		Data:      cloneBytes(entry.Data),
		Timestamp: entry.Timestamp,
	}
}
