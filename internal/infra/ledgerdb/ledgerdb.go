// Package ledgerdb backs the ledger contract with the relational entry
// store. Proof material is recomputed from stored leaf hashes on demand;
// the database transaction in the repository serializes index
// assignment.
package ledgerdb

import (
	"context"
	"errors"

	"veilcloud/internal/domain"
	"veilcloud/internal/infra/db"
	"veilcloud/internal/infra/merkle"
)

type Ledger struct {
	repo *db.LedgerEntryRepository
}

func New(repo *db.LedgerEntryRepository) *Ledger {
	return &Ledger{repo: repo}
}

func (l *Ledger) Append(ctx context.Context, scope string, entry []byte) (domain.AppendReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.AppendReceipt{}, err
	}
	if l.repo == nil {
		return domain.AppendReceipt{}, errors.New("ledger repository required")
	}

	entryID, err := db.NewUUID()
	if err != nil {
		return domain.AppendReceipt{}, err
	}
	leafHash := merkle.LeafHash(entry)
	index, err := l.repo.Append(ctx, scope, entryID, entry, leafHash)
	if err != nil {
		return domain.AppendReceipt{}, err
	}
	return domain.AppendReceipt{
		EntryID: entryID,
		Index:   index,
		Hash:    leafHash,
	}, nil
}

func (l *Ledger) GetEntry(ctx context.Context, scope, entryID string) (*domain.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.repo == nil {
		return nil, errors.New("ledger repository required")
	}
	return l.repo.GetByEntryID(ctx, scope, entryID)
}

func (l *Ledger) GetProof(ctx context.Context, scope, entryID string) (*domain.LedgerProof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.repo == nil {
		return nil, errors.New("ledger repository required")
	}

	entry, err := l.repo.GetByEntryID(ctx, scope, entryID)
	if err != nil {
		return nil, err
	}
	leaves, err := l.repo.ListLeafHashes(ctx, scope, 0)
	if err != nil {
		return nil, err
	}
	tree, err := merkle.Build(leaves)
	if err != nil {
		return nil, err
	}
	siblings, directions, err := tree.InclusionPath(entry.Index)
	if err != nil {
		return nil, err
	}
	return &domain.LedgerProof{
		Root:       tree.Root(),
		Siblings:   siblings,
		Directions: directions,
		Index:      entry.Index,
		TreeSize:   tree.Size(),
	}, nil
}

func (l *Ledger) GetConsistencyProof(ctx context.Context, scope string, fromSize, toSize int64) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.repo == nil {
		return nil, errors.New("ledger repository required")
	}

	leaves, err := l.repo.ListLeafHashes(ctx, scope, toSize)
	if err != nil {
		return nil, err
	}
	if int64(len(leaves)) != toSize {
		return nil, domain.ErrInvalidRange
	}
	return merkle.ConsistencyPath(leaves, fromSize, toSize)
}

func (l *Ledger) GetRootHash(ctx context.Context, scope string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.repo == nil {
		return nil, errors.New("ledger repository required")
	}

	leaves, err := l.repo.ListLeafHashes(ctx, scope, 0)
	if err != nil {
		return nil, err
	}
	tree, err := merkle.Build(leaves)
	if err != nil {
		return nil, err
	}
	return tree.Root(), nil
}

func (l *Ledger) GetTreeSize(ctx context.Context, scope string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if l.repo == nil {
		return 0, errors.New("ledger repository required")
	}
	return l.repo.Count(ctx, scope)
}

func (l *Ledger) GetLatestEntry(ctx context.Context, scope string) (*domain.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.repo == nil {
		return nil, errors.New("ledger repository required")
	}
	return l.repo.Latest(ctx, scope)
}
