package domain

import (
	"context"
	"time"
)

// LedgerEntry is one appended log entry as reported by the ledger.
type LedgerEntry struct {
	ID        string
	Index     int64
	Hash      []byte
	Data      []byte
	Timestamp time.Time
}

// AppendReceipt acknowledges a serialized append.
type AppendReceipt struct {
	EntryID string
	Index   int64
	Hash    []byte
}

// LedgerProof is the raw proof material a ledger hands back for one entry.
// TreeSize may be zero when the ledger omits it; callers must fill it from
// GetTreeSize before verification.
type LedgerProof struct {
	Root       []byte
	Siblings   [][]byte
	Directions []Direction
	Index      int64
	TreeSize   int64
}

// Ledger is the append-only hash-linked log behind the proof service.
// Implementations must serialize appends per scope so indices are unique,
// gap-free and strictly increasing; reads may run concurrently.
//
// GetRootHash and GetLatestEntry report absence (empty log) as nil with a
// nil error, matching the tree's "no root" state.
type Ledger interface {
	Append(ctx context.Context, scope string, entry []byte) (AppendReceipt, error)
	GetEntry(ctx context.Context, scope, entryID string) (*LedgerEntry, error)
	GetProof(ctx context.Context, scope, entryID string) (*LedgerProof, error)
	GetConsistencyProof(ctx context.Context, scope string, fromSize, toSize int64) ([][]byte, error)
	GetRootHash(ctx context.Context, scope string) ([]byte, error)
	GetTreeSize(ctx context.Context, scope string) (int64, error)
	GetLatestEntry(ctx context.Context, scope string) (*LedgerEntry, error)
}
