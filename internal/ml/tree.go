package ml

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Node is one node of a flattened binary tree. Leaves have Feature == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a regression tree stored as a flat node slice rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Eval walks the tree for one feature row.
func (t *Tree) Eval(row []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// check verifies a decoded tree against rows of width columns. Children
// must come after their parent, as grow emits them, so Eval always reaches
// a leaf.
func (t *Tree) check(width int) error {
	if t == nil || len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			if !finite(n.Value) {
				return fmt.Errorf("leaf %d has value %v", i, n.Value)
			}
			continue
		}
		if n.Feature >= width {
			return fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, width)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has children %d and %d outside (%d, %d)", i, n.Left, n.Right, i, len(t.Nodes))
		}
	}
	return nil
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

type treeParams struct {
	maxDepth       int // 0 means unlimited
	minSamplesLeaf int
	maxFeatures    int // 0 means all
}

// treeBuilder grows a CART tree that minimizes squared error on target.
// For 0/1 targets this is the same split ordering as Gini impurity.
// Leaf values come from leaf, so the same builder serves both random
// forest probability leaves and boosting Newton-step leaves.
type treeBuilder struct {
	data   []float64
	stride int
	width  int
	target []float64
	leaf   func(idx []int) float64
	params treeParams
	rng    *rand.Rand

	nodes    []Node
	features []int
	order    []int
}

func newTreeBuilder(x *mat.Dense, target []float64, leaf func([]int) float64, params treeParams, rng *rand.Rand) *treeBuilder {
	raw := x.RawMatrix()
	b := &treeBuilder{
		data:   raw.Data,
		stride: raw.Stride,
		width:  raw.Cols,
		target: target,
		leaf:   leaf,
		params: params,
		rng:    rng,
	}
	if b.params.minSamplesLeaf < 1 {
		b.params.minSamplesLeaf = 1
	}
	b.features = make([]int, b.width)
	for i := range b.features {
		b.features[i] = i
	}
	return b
}

func (b *treeBuilder) build(idx []int) *Tree {
	b.nodes = b.nodes[:0]
	b.order = make([]int, len(idx))
	b.grow(idx, 0)
	return &Tree{Nodes: slices.Clone(b.nodes)}
}

func (b *treeBuilder) at(row, col int) float64 {
	return b.data[row*b.stride+col]
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1})

	if (b.params.maxDepth > 0 && depth >= b.params.maxDepth) || len(idx) < 2*b.params.minSamplesLeaf || b.pure(idx) {
		b.nodes[id].Value = b.leaf(idx)
		return id
	}

	feature, thr, ok := b.bestSplit(idx)
	if !ok {
		b.nodes[id].Value = b.leaf(idx)
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.at(i, feature) <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id] = Node{Feature: feature, Threshold: thr, Left: l, Right: r}
	return id
}

func (b *treeBuilder) pure(idx []int) bool {
	first := b.target[idx[0]]
	for _, i := range idx[1:] {
		if b.target[i] != first {
			return false
		}
	}
	return true
}

// bestSplit scans candidate features in random order until maxFeatures
// non-constant ones have been evaluated and returns the split with the
// largest reduction in squared error.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	var total float64
	for _, i := range idx {
		total += b.target[i]
	}
	parent := total * total / float64(n)

	limit := b.width
	if b.params.maxFeatures > 0 && b.params.maxFeatures < b.width {
		limit = b.params.maxFeatures
		b.rng.Shuffle(len(b.features), func(i, j int) {
			b.features[i], b.features[j] = b.features[j], b.features[i]
		})
	}

	bestGain := 1e-12
	bestFeature, bestThr := -1, 0.0
	order := b.order[:n]
	minLeaf := b.params.minSamplesLeaf
	visited := 0

	for _, f := range b.features {
		if visited >= limit {
			break
		}
		copy(order, idx)
		slices.SortFunc(order, func(a, c int) int {
			va, vc := b.at(a, f), b.at(c, f)
			switch {
			case va < vc:
				return -1
			case va > vc:
				return 1
			}
			return 0
		})
		if b.at(order[0], f) == b.at(order[n-1], f) {
			continue
		}
		visited++

		var leftSum float64
		for k := 0; k < n-1; k++ {
			leftSum += b.target[order[k]]
			nl := k + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			v, next := b.at(order[k], f), b.at(order[k+1], f)
			if v == next {
				continue
			}
			rightSum := total - leftSum
			gain := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr) - parent
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThr = v + (next-v)/2
				if bestThr == next {
					bestThr = v
				}
			}
		}
	}

	return bestFeature, bestThr, bestFeature >= 0
}
