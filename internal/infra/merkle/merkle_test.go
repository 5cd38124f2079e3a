package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"testing"

	"veilcloud/internal/domain"
)

func TestEmptyTree(t *testing.T) {
	tree := New()
	if tree.Size() != 0 {
		t.Fatalf("size = %d, want 0", tree.Size())
	}
	if tree.Root() != nil {
		t.Fatal("empty tree must have no root")
	}
	if _, _, err := tree.InclusionPath(0); !errors.Is(err, domain.ErrIndexOutOfRange) {
		t.Fatalf("err = %v, want ErrIndexOutOfRange", err)
	}
}

func TestSingleLeaf(t *testing.T) {
	leaf := LeafHash([]byte("a"))
	tree, err := Build([][]byte{leaf})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !bytes.Equal(tree.Root(), leaf) {
		t.Fatal("single-leaf root must equal the leaf hash")
	}
	siblings, directions, err := tree.InclusionPath(0)
	if err != nil {
		t.Fatalf("InclusionPath: %v", err)
	}
	if len(siblings) != 0 || len(directions) != 0 {
		t.Fatalf("proof lengths = %d/%d, want empty", len(siblings), len(directions))
	}
	ok, err := VerifyInclusion(leaf, 0, 1, siblings, directions, tree.Root())
	if err != nil {
		t.Fatalf("VerifyInclusion: %v", err)
	}
	if !ok {
		t.Fatal("expected empty proof to verify against itself")
	}
}

func TestFourLeavesConcrete(t *testing.T) {
	leaves := testLeaves("a", "b", "c", "d")
	tree, err := Build(leaves)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	left := combine(leaves[0], leaves[1])
	right := combine(leaves[2], leaves[3])
	wantRoot := combine(left, right)
	if !bytes.Equal(tree.Root(), wantRoot) {
		t.Fatal("root mismatch for abcd")
	}
	if tree.Height() != 3 {
		t.Fatalf("height = %d, want 3", tree.Height())
	}

	siblings, directions, err := tree.InclusionPath(0)
	if err != nil {
		t.Fatalf("InclusionPath: %v", err)
	}
	if len(siblings) != 2 {
		t.Fatalf("proof length = %d, want 2", len(siblings))
	}
	if directions[0] != domain.DirectionRight || directions[1] != domain.DirectionRight {
		t.Fatalf("directions = %v, want [right right]", directions)
	}
	if !bytes.Equal(siblings[0], leaves[1]) || !bytes.Equal(siblings[1], right) {
		t.Fatal("unexpected siblings for leaf 0")
	}

	ok, err := VerifyInclusion(leaves[0], 0, 4, siblings, directions, tree.Root())
	if err != nil || !ok {
		t.Fatalf("verify(0) = %v, %v; want true", ok, err)
	}
	ok, err = VerifyInclusion(leaves[0], 1, 4, siblings, directions, tree.Root())
	if err != nil {
		t.Fatalf("VerifyInclusion: %v", err)
	}
	if ok {
		t.Fatal("proof for index 0 must not verify at index 1")
	}
}

func TestOddLayerDuplication(t *testing.T) {
	leaves := testLeaves("a", "b", "c")
	tree, err := Build(leaves)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	left := combine(leaves[0], leaves[1])
	right := combine(leaves[2], leaves[2])
	if !bytes.Equal(tree.Root(), combine(left, right)) {
		t.Fatal("odd leaf must pair with itself")
	}

	siblings, directions, err := tree.InclusionPath(2)
	if err != nil {
		t.Fatalf("InclusionPath: %v", err)
	}
	if !bytes.Equal(siblings[0], leaves[2]) || directions[0] != domain.DirectionRight {
		t.Fatal("tail leaf must record itself as right sibling")
	}
	if !bytes.Equal(siblings[1], left) || directions[1] != domain.DirectionLeft {
		t.Fatal("second layer sibling mismatch")
	}
	ok, err := VerifyInclusion(leaves[2], 2, 3, siblings, directions, tree.Root())
	if err != nil || !ok {
		t.Fatalf("verify(2) = %v, %v; want true", ok, err)
	}
}

func TestAppendMatchesRebuild(t *testing.T) {
	var leaves [][]byte
	incremental := New()
	for i := 0; i < 12; i++ {
		leaf := LeafHash([]byte(fmt.Sprintf("entry-%d", i)))
		leaves = append(leaves, leaf)

		index, err := incremental.Append(leaf)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if index != int64(i) {
			t.Fatalf("index = %d, want %d", index, i)
		}

		rebuilt, err := Build(leaves)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if !bytes.Equal(incremental.Root(), rebuilt.Root()) {
			t.Fatalf("size %d: incremental root diverges from rebuild", i+1)
		}
	}
}

func TestAllIndicesVerify(t *testing.T) {
	for n := 1; n <= 16; n++ {
		leaves := make([][]byte, n)
		for i := range leaves {
			leaves[i] = LeafHash([]byte(fmt.Sprintf("n%d-i%d", n, i)))
		}
		tree, err := Build(leaves)
		if err != nil {
			t.Fatalf("Build(%d): %v", n, err)
		}
		for i := 0; i < n; i++ {
			siblings, directions, err := tree.InclusionPath(int64(i))
			if err != nil {
				t.Fatalf("InclusionPath(%d/%d): %v", i, n, err)
			}
			if len(siblings) != pathLength(int64(n)) {
				t.Fatalf("n=%d: proof length %d, want %d", n, len(siblings), pathLength(int64(n)))
			}
			ok, err := VerifyInclusion(leaves[i], int64(i), int64(n), siblings, directions, tree.Root())
			if err != nil || !ok {
				t.Fatalf("verify(%d/%d) = %v, %v; want true", i, n, ok, err)
			}
		}
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	leaves := testLeaves("a", "b", "c", "d", "e")
	tree, err := Build(leaves)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	siblings, directions, err := tree.InclusionPath(2)
	if err != nil {
		t.Fatalf("InclusionPath: %v", err)
	}
	root := tree.Root()

	check := func(name string, leaf []byte, index int64, sib [][]byte, dir []domain.Direction, r []byte) {
		t.Helper()
		ok, err := VerifyInclusion(leaf, index, 5, sib, dir, r)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if ok {
			t.Fatalf("%s: tampered proof verified", name)
		}
	}

	check("wrong leaf", LeafHash([]byte("x")), 2, siblings, directions, root)
	check("wrong index", leaves[2], 3, siblings, directions, root)

	tamperedSib := clonePath(siblings)
	tamperedSib[1][0] ^= 0xff
	check("tampered sibling", leaves[2], 2, tamperedSib, directions, root)

	swapped := append([]domain.Direction(nil), directions...)
	if swapped[0] == domain.DirectionRight {
		swapped[0] = domain.DirectionLeft
	} else {
		swapped[0] = domain.DirectionRight
	}
	check("swapped direction", leaves[2], 2, siblings, swapped, root)

	other, err := Build(testLeaves("p", "q", "r", "s", "t"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	check("foreign root", leaves[2], 2, siblings, directions, other.Root())

	check("short path", leaves[2], 2, siblings[:1], directions[:1], root)
}

func TestVerifyMalformedHashes(t *testing.T) {
	leaves := testLeaves("a", "b")
	tree, err := Build(leaves)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	siblings, directions, err := tree.InclusionPath(0)
	if err != nil {
		t.Fatalf("InclusionPath: %v", err)
	}

	if _, err := VerifyInclusion([]byte("short"), 0, 2, siblings, directions, tree.Root()); !errors.Is(err, ErrInvalidHashLen) {
		t.Fatalf("err = %v, want ErrInvalidHashLen", err)
	}
	if _, err := VerifyInclusion(leaves[0], 0, 2, [][]byte{{0x01}}, directions, tree.Root()); !errors.Is(err, ErrInvalidHashLen) {
		t.Fatalf("err = %v, want ErrInvalidHashLen", err)
	}
}

func TestRootOrderSensitivity(t *testing.T) {
	ab, err := Build(testLeaves("a", "b"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ba, err := Build(testLeaves("b", "a"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if bytes.Equal(ab.Root(), ba.Root()) {
		t.Fatal("root must be sensitive to leaf order")
	}

	again, err := Build(testLeaves("a", "b"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !bytes.Equal(ab.Root(), again.Root()) {
		t.Fatal("root must be deterministic")
	}
}

func testLeaves(entries ...string) [][]byte {
	out := make([][]byte, len(entries))
	for i, entry := range entries {
		out[i] = LeafHash([]byte(entry))
	}
	return out
}

func combine(left, right []byte) []byte {
	hasher := sha256.New()
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}

func clonePath(path [][]byte) [][]byte {
	out := make([][]byte, len(path))
	for i, hash := range path {
		out[i] = append([]byte(nil), hash...)
	}
	return out
}
