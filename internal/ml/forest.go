package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// RandomForest is a bagged ensemble of CART trees. Each tree sees a
// bootstrap sample and sqrt(features) candidates per split. Tree i is
// seeded from (Seed, i), so the fitted forest does not depend on how the
// trees were scheduled across goroutines.
type RandomForest struct {
	NTrees         int    `json:"n_trees"`
	MaxDepth       int    `json:"max_depth,omitempty"`
	MinSamplesLeaf int    `json:"min_samples_leaf"`
	Seed           uint64 `json:"seed"`
	// Workers bounds fitting parallelism; 0 uses GOMAXPROCS.
	Workers int `json:"-"`

	Width int     `json:"width"`
	Trees []*Tree `json:"trees"`
}

// NewRandomForest returns a 200-tree forest.
func NewRandomForest(seed uint64) *RandomForest {
	return &RandomForest{NTrees: 200, MinSamplesLeaf: 1, Seed: seed}
}

func (m *RandomForest) Kind() string { return KindRandomForest }

func (m *RandomForest) Fit(x *mat.Dense, y []int) error {
	if err := checkTrainingData(x, y); err != nil {
		return err
	}
	nTrees := m.NTrees
	if nTrees <= 0 {
		nTrees = 200
	}
	n, d := x.Dims()
	target := make([]float64, n)
	for i, v := range y {
		target[i] = float64(v)
	}
	maxFeatures := max(1, int(math.Sqrt(float64(d))))

	workers := m.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]*Tree, nTrees)
	var g errgroup.Group
	g.SetLimit(workers)
	for t := 0; t < nTrees; t++ {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(m.Seed, uint64(t)))
			sample := make([]int, n)
			for i := range sample {
				sample[i] = rng.IntN(n)
			}
			b := newTreeBuilder(x, target, meanLeaf(target), treeParams{
				maxDepth:       m.MaxDepth,
				minSamplesLeaf: m.MinSamplesLeaf,
				maxFeatures:    maxFeatures,
			}, rng)
			trees[t] = b.build(sample)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.Width = d
	m.Trees = trees
	return nil
}

// PredictProba averages the positive-class share of each tree's leaf.
func (m *RandomForest) PredictProba(x *mat.Dense) ([]float64, error) {
	if len(m.Trees) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkWidth(x, m.Width); err != nil {
		return nil, err
	}
	n, _ := x.Dims()
	out := make([]float64, n)
	for i := range out {
		row := x.RawRowView(i)
		var sum float64
		for _, t := range m.Trees {
			sum += t.Eval(row)
		}
		out[i] = sum / float64(len(m.Trees))
	}
	return out, nil
}

func (m *RandomForest) checkState(width int) error {
	if m.Width != width {
		return fmt.Errorf("forest expects %d features, preprocessor emits %d", m.Width, width)
	}
	return checkTrees(m.Trees, width)
}

func (m *RandomForest) Predict(x *mat.Dense) ([]int, error) {
	p, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return threshold(p), nil
}

func meanLeaf(target []float64) func([]int) float64 {
	return func(idx []int) float64 {
		var s float64
		for _, i := range idx {
			s += target[i]
		}
		return s / float64(len(idx))
	}
}
