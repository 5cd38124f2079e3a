package domain

import "time"

// InclusionProof carries everything an independent verifier needs to
// recompute the root from one leaf: the sibling path with per-step
// directions, the claimed root and the tree size the root was taken at.
type InclusionProof struct {
	Scope      string
	EntryID    string
	EntryIndex int64
	EntryHash  []byte
	Siblings   [][]byte
	Directions []Direction
	Root       []byte
	TreeSize   int64
}

// ConsistencyProof relates two recorded tree sizes of the same scope and
// proves the smaller tree's leaves are a prefix of the larger tree's.
type ConsistencyProof struct {
	Scope    string
	FromRoot []byte
	ToRoot   []byte
	Siblings [][]byte
	FromSize int64
	ToSize   int64
}

// VerificationResult is a successfully computed verdict. A false Valid is
// not an error condition; Reason says what diverged.
type VerificationResult struct {
	Valid      bool
	Reason     string
	VerifiedAt time.Time
}

// TreeState reports the live tree. Root is nil and LastEntryID empty for
// an empty log.
type TreeState struct {
	Root        []byte
	TreeSize    int64
	LastEntryID string
}

type BundleEntry struct {
	EntryID string
	Hash    []byte
	Proof   InclusionProof
}

// ProofBundle batches inclusion proofs for offline third-party
// verification.
type ProofBundle struct {
	Scope                    string
	Entries                  []BundleEntry
	CurrentRoot              []byte
	TreeSize                 int64
	VerificationInstructions string
	ExportedAt               time.Time
}
