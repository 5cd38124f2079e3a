package merkle

import (
	"errors"
	"fmt"
	"testing"

	"veilcloud/internal/domain"
)

func consistencyLeaves(t *testing.T, n int) [][]byte {
	t.Helper()
	leaves := make([][]byte, n)
	for i := range leaves {
		leaves[i] = LeafHash([]byte(fmt.Sprintf("entry-%d", i)))
	}
	return leaves
}

func rootAt(t *testing.T, leaves [][]byte, size int) []byte {
	t.Helper()
	tree, err := Build(leaves[:size])
	if err != nil {
		t.Fatalf("Build(%d): %v", size, err)
	}
	return tree.Root()
}

func TestConsistencyProvesPrefix(t *testing.T) {
	pairs := [][2]int{
		{1, 1}, {1, 2}, {2, 3}, {3, 4}, {1, 5}, {4, 8}, {5, 11}, {7, 7}, {6, 13}, {11, 16},
	}
	leaves := consistencyLeaves(t, 16)
	for _, pair := range pairs {
		from, to := pair[0], pair[1]
		oldRoot := rootAt(t, leaves, from)
		newRoot := rootAt(t, leaves, to)

		path, err := ConsistencyPath(leaves, int64(from), int64(to))
		if err != nil {
			t.Fatalf("ConsistencyPath(%d, %d): %v", from, to, err)
		}
		if from == to && len(path) != 0 {
			t.Fatalf("(%d, %d): equal sizes must yield an empty proof", from, to)
		}
		ok, err := VerifyConsistency(oldRoot, newRoot, int64(from), int64(to), path)
		if err != nil {
			t.Fatalf("VerifyConsistency(%d, %d): %v", from, to, err)
		}
		if !ok {
			t.Fatalf("(%d, %d): honest consistency proof rejected", from, to)
		}
	}
}

func TestConsistencyEveryPairUpTo12(t *testing.T) {
	leaves := consistencyLeaves(t, 12)
	for to := 1; to <= 12; to++ {
		for from := 1; from <= to; from++ {
			path, err := ConsistencyPath(leaves, int64(from), int64(to))
			if err != nil {
				t.Fatalf("ConsistencyPath(%d, %d): %v", from, to, err)
			}
			ok, err := VerifyConsistency(rootAt(t, leaves, from), rootAt(t, leaves, to), int64(from), int64(to), path)
			if err != nil || !ok {
				t.Fatalf("(%d, %d) = %v, %v; want true", from, to, ok, err)
			}
		}
	}
}

func TestConsistencyDetectsRewrittenHistory(t *testing.T) {
	leaves := consistencyLeaves(t, 8)
	oldRoot := rootAt(t, leaves, 5)

	rewritten := clonePath(leaves)
	rewritten[1] = LeafHash([]byte("forged"))
	newRoot := rootAt(t, rewritten, 8)
	path, err := ConsistencyPath(rewritten, 5, 8)
	if err != nil {
		t.Fatalf("ConsistencyPath: %v", err)
	}

	ok, err := VerifyConsistency(oldRoot, newRoot, 5, 8, path)
	if err != nil {
		t.Fatalf("VerifyConsistency: %v", err)
	}
	if ok {
		t.Fatal("rewritten prefix must not verify against the original root")
	}
}

func TestConsistencyDetectsTamperedPath(t *testing.T) {
	leaves := consistencyLeaves(t, 9)
	path, err := ConsistencyPath(leaves, 4, 9)
	if err != nil {
		t.Fatalf("ConsistencyPath: %v", err)
	}
	oldRoot := rootAt(t, leaves, 4)
	newRoot := rootAt(t, leaves, 9)

	for i := range path {
		tampered := clonePath(path)
		tampered[i][0] ^= 0x01
		ok, err := VerifyConsistency(oldRoot, newRoot, 4, 9, tampered)
		if err != nil {
			t.Fatalf("VerifyConsistency: %v", err)
		}
		if ok {
			t.Fatalf("tampered path element %d verified", i)
		}
	}

	ok, err := VerifyConsistency(oldRoot, newRoot, 4, 9, path[:len(path)-1])
	if err != nil {
		t.Fatalf("VerifyConsistency: %v", err)
	}
	if ok {
		t.Fatal("truncated path must not verify")
	}
}

func TestConsistencyEqualSizesCompareRoots(t *testing.T) {
	leaves := consistencyLeaves(t, 4)
	root := rootAt(t, leaves, 4)
	other := rootAt(t, leaves, 3)

	ok, err := VerifyConsistency(root, root, 4, 4, nil)
	if err != nil || !ok {
		t.Fatalf("equal roots = %v, %v; want true", ok, err)
	}
	ok, err = VerifyConsistency(other, root, 4, 4, nil)
	if err != nil {
		t.Fatalf("VerifyConsistency: %v", err)
	}
	if ok {
		t.Fatal("differing roots at equal size must not verify")
	}
}

func TestConsistencyInvalidRange(t *testing.T) {
	leaves := consistencyLeaves(t, 4)
	root := rootAt(t, leaves, 4)

	if _, err := ConsistencyPath(leaves, 0, 4); !errors.Is(err, domain.ErrInvalidRange) {
		t.Fatalf("from=0: err = %v, want ErrInvalidRange", err)
	}
	if _, err := ConsistencyPath(leaves, 3, 2); !errors.Is(err, domain.ErrInvalidRange) {
		t.Fatalf("inverted: err = %v, want ErrInvalidRange", err)
	}
	if _, err := ConsistencyPath(leaves, 2, 5); !errors.Is(err, domain.ErrInvalidRange) {
		t.Fatalf("beyond leaves: err = %v, want ErrInvalidRange", err)
	}
	if _, err := VerifyConsistency(root, root, 5, 3, nil); !errors.Is(err, domain.ErrInvalidRange) {
		t.Fatalf("verify inverted: err = %v, want ErrInvalidRange", err)
	}
}
