package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"veilcloud/internal/domain"
	"veilcloud/internal/infra/merkle"
)

// BundleInstructions travels inside exported proof bundles so a third
// party can verify them without this codebase.
const BundleInstructions = "For each entry: compute SHA-256 of the raw entry bytes and compare to " +
	"`hash`. Then replay the proof: starting from the entry hash, for each sibling " +
	"compute SHA-256(self||sibling) when the direction is \"right\" and " +
	"SHA-256(sibling||self) when it is \"left\". Directions must match the entry " +
	"index: at each layer an even index pairs to the right, an odd index to the " +
	"left, and the index halves moving up. The final digest must equal `root`."

// ProofService is the facade the API layer consumes. Generation talks
// to the ledger; verification is pure and never returns an error for a
// failed check, only a result with Valid=false and a reason.
type ProofService struct {
	Ledger    domain.Ledger
	Snapshots SnapshotRepository
	Clock     func() time.Time
}

type RecordEntryResponse struct {
	EntryID  string
	Index    int64
	Hash     []byte
	Root     []byte
	TreeSize int64
}

func (s *ProofService) RecordEntry(ctx context.Context, scope string, entry []byte) (*RecordEntryResponse, error) {
	receipt, err := s.Ledger.Append(ctx, scope, entry)
	if err != nil {
		return nil, err
	}
	root, err := s.Ledger.GetRootHash(ctx, scope)
	if err != nil {
		return nil, err
	}
	size, err := s.Ledger.GetTreeSize(ctx, scope)
	if err != nil {
		return nil, err
	}
	return &RecordEntryResponse{
		EntryID:  receipt.EntryID,
		Index:    receipt.Index,
		Hash:     receipt.Hash,
		Root:     root,
		TreeSize: size,
	}, nil
}

func (s *ProofService) GenerateInclusionProof(ctx context.Context, scope, entryID string) (*domain.InclusionProof, error) {
	ledgerProof, err := s.Ledger.GetProof(ctx, scope, entryID)
	if err != nil {
		return nil, err
	}
	entry, err := s.Ledger.GetEntry(ctx, scope, entryID)
	if err != nil {
		return nil, err
	}

	treeSize := ledgerProof.TreeSize
	if treeSize == 0 {
		treeSize, err = s.Ledger.GetTreeSize(ctx, scope)
		if err != nil {
			return nil, err
		}
	}

	return &domain.InclusionProof{
		Scope:      scope,
		EntryID:    entryID,
		EntryIndex: ledgerProof.Index,
		EntryHash:  entry.Hash,
		Siblings:   ledgerProof.Siblings,
		Directions: ledgerProof.Directions,
		Root:       ledgerProof.Root,
		TreeSize:   treeSize,
	}, nil
}

func (s *ProofService) VerifyInclusionProof(proof domain.InclusionProof) domain.VerificationResult {
	result := domain.VerificationResult{VerifiedAt: s.now()}

	ok, err := merkle.VerifyInclusion(proof.EntryHash, proof.EntryIndex, proof.TreeSize,
		proof.Siblings, proof.Directions, proof.Root)
	if err != nil {
		result.Reason = fmt.Sprintf("malformed proof: %v", err)
		return result
	}
	if !ok {
		result.Reason = "proof does not reproduce the claimed root"
		return result
	}
	result.Valid = true
	return result
}

func (s *ProofService) GenerateConsistencyProof(ctx context.Context, scope, fromSnapshotID, toSnapshotID string) (*domain.ConsistencyProof, error) {
	from, err := s.Snapshots.GetByID(ctx, fromSnapshotID)
	if err != nil {
		return nil, err
	}
	to, err := s.Snapshots.GetByID(ctx, toSnapshotID)
	if err != nil {
		return nil, err
	}
	if from.Scope != scope || to.Scope != scope {
		return nil, fmt.Errorf("%w: snapshots must belong to scope %q", domain.ErrInvalidRange, scope)
	}
	if from.TreeSize > to.TreeSize {
		return nil, fmt.Errorf("%w: snapshot %q is newer than %q", domain.ErrInvalidRange, fromSnapshotID, toSnapshotID)
	}

	siblings, err := s.Ledger.GetConsistencyProof(ctx, scope, from.TreeSize, to.TreeSize)
	if err != nil {
		return nil, err
	}
	return &domain.ConsistencyProof{
		Scope:    scope,
		FromRoot: from.RootHash,
		ToRoot:   to.RootHash,
		Siblings: siblings,
		FromSize: from.TreeSize,
		ToSize:   to.TreeSize,
	}, nil
}

func (s *ProofService) VerifyConsistencyProof(proof domain.ConsistencyProof) domain.VerificationResult {
	result := domain.VerificationResult{VerifiedAt: s.now()}

	ok, err := merkle.VerifyConsistency(proof.FromRoot, proof.ToRoot,
		proof.FromSize, proof.ToSize, proof.Siblings)
	switch {
	case errors.Is(err, domain.ErrInvalidRange):
		result.Reason = fmt.Sprintf("invalid size range [%d, %d]", proof.FromSize, proof.ToSize)
		return result
	case err != nil:
		result.Reason = fmt.Sprintf("malformed proof: %v", err)
		return result
	case !ok:
		result.Reason = "proof does not reproduce the claimed roots"
		return result
	}
	result.Valid = true
	return result
}

func (s *ProofService) CreateSnapshot(ctx context.Context, scope string) (domain.Snapshot, error) {
	root, err := s.Ledger.GetRootHash(ctx, scope)
	if err != nil {
		return domain.Snapshot{}, err
	}
	size, err := s.Ledger.GetTreeSize(ctx, scope)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if size == 0 || root == nil {
		return domain.Snapshot{}, fmt.Errorf("%w: scope %q has no entries to anchor", domain.ErrEmptyLog, scope)
	}
	return s.Snapshots.Create(ctx, domain.Snapshot{
		Scope:     scope,
		RootHash:  root,
		TreeSize:  size,
		CreatedAt: s.now(),
	})
}

func (s *ProofService) GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error) {
	return s.Snapshots.GetByID(ctx, id)
}

func (s *ProofService) ListSnapshots(ctx context.Context, scope string, limit int) ([]domain.Snapshot, error) {
	return s.Snapshots.ListByScope(ctx, scope, limit)
}

func (s *ProofService) ExportProofBundle(ctx context.Context, scope string, entryIDs []string) (*domain.ProofBundle, error) {
	entries := make([]domain.BundleEntry, 0, len(entryIDs))
	for _, entryID := range entryIDs {
		proof, err := s.GenerateInclusionProof(ctx, scope, entryID)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", entryID, err)
		}
		entries = append(entries, domain.BundleEntry{
			EntryID: entryID,
			Hash:    proof.EntryHash,
			Proof:   *proof,
		})
	}

	root, err := s.Ledger.GetRootHash(ctx, scope)
	if err != nil {
		return nil, err
	}
	size, err := s.Ledger.GetTreeSize(ctx, scope)
	if err != nil {
		return nil, err
	}
	return &domain.ProofBundle{
		Scope:                    scope,
		Entries:                  entries,
		CurrentRoot:              root,
		TreeSize:                 size,
		VerificationInstructions: BundleInstructions,
		ExportedAt:               s.now(),
	}, nil
}

func (s *ProofService) GetTreeState(ctx context.Context, scope string) (*domain.TreeState, error) {
	root, err := s.Ledger.GetRootHash(ctx, scope)
	if err != nil {
		return nil, err
	}
	size, err := s.Ledger.GetTreeSize(ctx, scope)
	if err != nil {
		return nil, err
	}
	state := &domain.TreeState{Root: root, TreeSize: size}

	latest, err := s.Ledger.GetLatestEntry(ctx, scope)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		state.LastEntryID = latest.ID
	}
	return state, nil
}

func (s *ProofService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}
