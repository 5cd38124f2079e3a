// Package merkle implements the hash tree behind the audit log: SHA-256
// leaves, parent = SHA-256(left || right), and an odd node at any layer
// pairing with itself. Proof paths carry explicit left/right directions.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"

	"veilcloud/internal/domain"
)

const HashSize = sha256.Size

var ErrInvalidHashLen = errors.New("invalid hash length")

// LeafHash digests raw entry bytes into a leaf hash.
func LeafHash(entry []byte) []byte {
	sum := sha256.Sum256(entry)
	return sum[:]
}

// NodeHash combines two child hashes by raw concatenation, no separator.
// Byte-exact order is load-bearing: changing it breaks interop with
// existing roots.
func NodeHash(left, right []byte) []byte {
	hasher := sha256.New()
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}

// Tree holds every layer of the hash structure. layers[0] is the ordered
// leaf-hash sequence; the last layer holds the single root. An empty tree
// has no layers and no root.
//
// Tree is not goroutine-safe; owners serialize Append and may fan out
// reads behind their own lock.
type Tree struct {
	layers [][][]byte
}

func New() *Tree {
	return &Tree{}
}

// Build constructs the full layered tree from ordered leaf hashes.
func Build(leafHashes [][]byte) (*Tree, error) {
	tree := New()
	for _, leafHash := range leafHashes {
		if _, err := tree.Append(leafHash); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

func (t *Tree) Size() int64 {
	if len(t.layers) == 0 {
		return 0
	}
	return int64(len(t.layers[0]))
}

// Height is the number of layers: ceil(log2(size)) + 1, zero when empty.
func (t *Tree) Height() int {
	return len(t.layers)
}

// Root returns nil for an empty tree.
func (t *Tree) Root() []byte {
	if len(t.layers) == 0 {
		return nil
	}
	top := t.layers[len(t.layers)-1]
	return cloneHash(top[0])
}

// Append adds one leaf hash and recomputes the O(log n) nodes on the
// rightmost path; everything left of it is untouched.
func (t *Tree) Append(leafHash []byte) (int64, error) {
	if err := validateHash(leafHash); err != nil {
		return 0, err
	}
	if len(t.layers) == 0 {
		t.layers = [][][]byte{{cloneHash(leafHash)}}
		return 0, nil
	}

	t.layers[0] = append(t.layers[0], cloneHash(leafHash))
	index := len(t.layers[0]) - 1

	idx := index
	for level := 0; len(t.layers[level]) > 1; level++ {
		parent := idx / 2
		left := t.layers[level][2*parent]
		right := left
		if 2*parent+1 < len(t.layers[level]) {
			right = t.layers[level][2*parent+1]
		}
		node := NodeHash(left, right)
		switch {
		case level+1 == len(t.layers):
			t.layers = append(t.layers, [][]byte{node})
		case parent == len(t.layers[level+1]):
			t.layers[level+1] = append(t.layers[level+1], node)
		default:
			t.layers[level+1][parent] = node
		}
		idx = parent
	}
	return int64(index), nil
}

// LeafHashes returns a copy of the ordered leaf-hash sequence.
func (t *Tree) LeafHashes() [][]byte {
	if len(t.layers) == 0 {
		return nil
	}
	out := make([][]byte, len(t.layers[0]))
	for i, leaf := range t.layers[0] {
		out[i] = cloneHash(leaf)
	}
	return out
}

// InclusionPath walks from leaf index toward the root, recording each
// layer's sibling and its side. The odd last node of a layer records
// itself as the sibling, direction right, matching the build-time padding
// rule.
func (t *Tree) InclusionPath(index int64) ([][]byte, []domain.Direction, error) {
	if index < 0 || index >= t.Size() {
		return nil, nil, domain.ErrIndexOutOfRange
	}

	siblings := make([][]byte, 0, len(t.layers)-1)
	directions := make([]domain.Direction, 0, len(t.layers)-1)
	idx := int(index)
	for level := 0; level < len(t.layers)-1; level++ {
		layer := t.layers[level]
		sibling := idx ^ 1
		if sibling >= len(layer) {
			sibling = idx
		}
		direction := domain.DirectionRight
		if idx%2 == 1 {
			direction = domain.DirectionLeft
		}
		siblings = append(siblings, cloneHash(layer[sibling]))
		directions = append(directions, direction)
		idx /= 2
	}
	return siblings, directions, nil
}

// VerifyInclusion replays NodeHash along the proof path in index-derived
// direction order and compares against the claimed root. A stated
// direction disagreeing with the index, a path of the wrong length, or
// any divergent hash yields false; only malformed hash lengths are
// errors.
func VerifyInclusion(leafHash []byte, index, treeSize int64, siblings [][]byte, directions []domain.Direction, root []byte) (bool, error) {
	if err := validateHash(leafHash); err != nil {
		return false, err
	}
	if err := validateHash(root); err != nil {
		return false, err
	}
	for _, sibling := range siblings {
		if err := validateHash(sibling); err != nil {
			return false, err
		}
	}
	if treeSize <= 0 || index < 0 || index >= treeSize {
		return false, nil
	}
	if len(siblings) != len(directions) || len(siblings) != pathLength(treeSize) {
		return false, nil
	}

	hash := cloneHash(leafHash)
	idx := index
	for i, sibling := range siblings {
		expected := domain.DirectionRight
		if idx%2 == 1 {
			expected = domain.DirectionLeft
		}
		if directions[i] != expected {
			return false, nil
		}
		if expected == domain.DirectionRight {
			hash = NodeHash(hash, sibling)
		} else {
			hash = NodeHash(sibling, hash)
		}
		idx /= 2
	}
	return bytes.Equal(hash, root), nil
}

// pathLength is tree height minus one: the number of layer transitions
// between a leaf and the root.
func pathLength(treeSize int64) int {
	length := 0
	for size := treeSize; size > 1; size = (size + 1) / 2 {
		length++
	}
	return length
}

func validateHash(hash []byte) error {
	if len(hash) != HashSize {
		return ErrInvalidHashLen
	}
	return nil
}

func cloneHash(hash []byte) []byte {
	if hash == nil {
		return nil
	}
	out := make([]byte, len(hash))
	copy(out, hash)
	return out
}
