package merkle

import (
	"bytes"
	"math/bits"
	"sort"

	"veilcloud/internal/domain"
)

// Consistency proofs relate two sizes of the same append-only leaf
// sequence. The proof is the ordered list of subtree roots for the binary
// decomposition ("peaks") of the old prefix, followed by the aligned
// decomposition of the appended range. Both decompositions are pure
// functions of (fromSize, toSize), so no positions travel in the proof:
// the verifier rebuilds the span lists and consumes hashes positionally,
// then folds them upward with the same self-pairing rule the tree builds
// with, recomputing both roots.
type span struct {
	start int
	size  int // power of two
}

// ConsistencyPath produces the proof hashes relating fromSize to toSize
// over the given leaf-hash sequence.
func ConsistencyPath(leafHashes [][]byte, fromSize, toSize int64) ([][]byte, error) {
	if fromSize <= 0 || toSize <= 0 || fromSize > toSize || toSize > int64(len(leafHashes)) {
		return nil, domain.ErrInvalidRange
	}
	if fromSize == toSize {
		return [][]byte{}, nil
	}

	tree, err := Build(leafHashes[:toSize])
	if err != nil {
		return nil, err
	}
	spans := append(prefixPeaks(int(fromSize)), rangeBlocks(int(fromSize), int(toSize))...)
	path := make([][]byte, 0, len(spans))
	for _, sp := range spans {
		level := bits.TrailingZeros(uint(sp.size))
		path = append(path, cloneHash(tree.layers[level][sp.start>>level]))
	}
	return path, nil
}

// VerifyConsistency recomputes both claimed roots from the proof hashes
// and compares them against the stored roots. Any rewritten or reordered
// prefix diverges. Size pairs outside 1 <= from <= to are an error, not a
// verdict.
func VerifyConsistency(oldRoot, newRoot []byte, fromSize, toSize int64, siblings [][]byte) (bool, error) {
	if err := validateHash(oldRoot); err != nil {
		return false, err
	}
	if err := validateHash(newRoot); err != nil {
		return false, err
	}
	for _, sibling := range siblings {
		if err := validateHash(sibling); err != nil {
			return false, err
		}
	}
	if fromSize <= 0 || toSize <= 0 || fromSize > toSize {
		return false, domain.ErrInvalidRange
	}
	if fromSize == toSize {
		if len(siblings) != 0 {
			return false, nil
		}
		return bytes.Equal(oldRoot, newRoot), nil
	}

	peaks := prefixPeaks(int(fromSize))
	blocks := rangeBlocks(int(fromSize), int(toSize))
	if len(siblings) != len(peaks)+len(blocks) {
		return false, nil
	}

	oldComputed, ok := foldSpans(int(fromSize), peaks, siblings[:len(peaks)])
	if !ok {
		return false, nil
	}
	all := make([]span, 0, len(peaks)+len(blocks))
	all = append(all, peaks...)
	all = append(all, blocks...)
	newComputed, ok := foldSpans(int(toSize), all, siblings)
	if !ok {
		return false, nil
	}
	return bytes.Equal(oldComputed, oldRoot) && bytes.Equal(newComputed, newRoot), nil
}

// prefixPeaks decomposes [0, size) into perfect subtrees, largest first.
// Each peak is aligned to its own size, so its hash is a node of every
// tree the prefix belongs to.
func prefixPeaks(size int) []span {
	spans := make([]span, 0, bits.OnesCount(uint(size)))
	start := 0
	for remaining := size; remaining > 0; {
		block := 1 << (bits.Len(uint(remaining)) - 1)
		spans = append(spans, span{start: start, size: block})
		start += block
		remaining -= block
	}
	return spans
}

// rangeBlocks greedily decomposes [from, to) into aligned perfect
// subtrees of the larger tree.
func rangeBlocks(from, to int) []span {
	var spans []span
	for start := from; start < to; {
		block := start & -start
		for start+block > to {
			block >>= 1
		}
		spans = append(spans, span{start: start, size: block})
		start += block
	}
	return spans
}

// foldSpans replays the layered build of a size-n tree from subtree roots
// covering [0, n), applying the odd-node self-pairing rule whenever a
// parent's right child falls outside a layer. Returns false when the
// spans cannot reach a single root.
func foldSpans(n int, spans []span, hashes [][]byte) ([]byte, bool) {
	sizes := layerSizes(n)
	nodes := make([]map[int][]byte, len(sizes))
	for i := range nodes {
		nodes[i] = make(map[int][]byte)
	}
	for i, sp := range spans {
		level := bits.TrailingZeros(uint(sp.size))
		if level >= len(sizes) {
			return nil, false
		}
		pos := sp.start >> level
		if pos >= sizes[level] {
			return nil, false
		}
		nodes[level][pos] = hashes[i]
	}

	for level := 0; level < len(sizes)-1; level++ {
		positions := make([]int, 0, len(nodes[level]))
		for pos := range nodes[level] {
			positions = append(positions, pos)
		}
		sort.Ints(positions)
		for _, pos := range positions {
			parent := pos / 2
			if _, done := nodes[level+1][parent]; done {
				continue
			}
			left, ok := nodes[level][2*parent]
			if !ok {
				continue
			}
			right := left
			if 2*parent+1 < sizes[level] {
				if right, ok = nodes[level][2*parent+1]; !ok {
					continue
				}
			}
			nodes[level+1][parent] = NodeHash(left, right)
		}
	}

	root, ok := nodes[len(sizes)-1][0]
	return root, ok
}

// layerSizes lists the node count of every layer of a size-n tree, leaves
// first.
func layerSizes(n int) []int {
	sizes := []int{n}
	for size := n; size > 1; {
		size = (size + 1) / 2
		sizes = append(sizes, size)
	}
	return sizes
}
