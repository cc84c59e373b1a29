package ml

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// GradientBoosting is a boosted ensemble of depth-limited regression trees
// trained on the log-loss gradient. Leaves hold regularized Newton steps
// sum(g) / (sum(h) + Lambda).
type GradientBoosting struct {
	NRounds      int     `json:"n_rounds"`
	LearningRate float64 `json:"learning_rate"`
	MaxDepth     int     `json:"max_depth"`
	Lambda       float64 `json:"lambda"`

	Width int     `json:"width"`
	Init  float64 `json:"init"`
	Trees []*Tree `json:"trees"`
}

// NewGradientBoosting returns 300 rounds of depth-5 trees at learning rate 0.05.
func NewGradientBoosting() *GradientBoosting {
	return &GradientBoosting{NRounds: 300, LearningRate: 0.05, MaxDepth: 5, Lambda: 1}
}

func (m *GradientBoosting) Kind() string { return KindGradientBoosting }

func (m *GradientBoosting) Fit(x *mat.Dense, y []int) error {
	if err := checkTrainingData(x, y); err != nil {
		return err
	}
	if m.NRounds <= 0 {
		m.NRounds = 300
	}
	n, d := x.Dims()

	var pos float64
	for _, v := range y {
		pos += float64(v)
	}
	prior := pos / float64(n)
	m.Init = math.Log(prior / (1 - prior))

	score := make([]float64, n)
	for i := range score {
		score[i] = m.Init
	}
	resid := make([]float64, n)
	hess := make([]float64, n)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	leaf := func(idx []int) float64 {
		var g, h float64
		for _, i := range idx {
			g += resid[i]
			h += hess[i]
		}
		return g / (h + m.Lambda)
	}

	// Splits consider every feature, so the rng is never drawn from.
	b := newTreeBuilder(x, resid, leaf, treeParams{maxDepth: m.MaxDepth}, rand.New(rand.NewPCG(0, 0)))

	m.Trees = make([]*Tree, 0, m.NRounds)
	for round := 0; round < m.NRounds; round++ {
		for i := range score {
			p := sigmoid(score[i])
			resid[i] = float64(y[i]) - p
			hess[i] = p * (1 - p)
		}
		t := b.build(all)
		scaleLeaves(t, m.LearningRate)
		for i := range score {
			score[i] += t.Eval(x.RawRowView(i))
		}
		m.Trees = append(m.Trees, t)
	}

	m.Width = d
	return nil
}

// DecisionFunction returns the raw additive log-odds per row.
func (m *GradientBoosting) DecisionFunction(x *mat.Dense) ([]float64, error) {
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
		s := m.Init
		for _, t := range m.Trees {
			s += t.Eval(row)
		}
		out[i] = s
	}
	return out, nil
}

func (m *GradientBoosting) PredictProba(x *mat.Dense) ([]float64, error) {
	z, err := m.DecisionFunction(x)
	if err != nil {
		return nil, err
	}
	for i, v := range z {
		z[i] = sigmoid(v)
	}
	return z, nil
}

func (m *GradientBoosting) checkState(width int) error {
	if m.Width != width {
		return fmt.Errorf("boosting expects %d features, preprocessor emits %d", m.Width, width)
	}
	if !finite(m.Init) {
		return fmt.Errorf("boosting init score is %v", m.Init)
	}
	return checkTrees(m.Trees, width)
}

func (m *GradientBoosting) Predict(x *mat.Dense) ([]int, error) {
	p, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return threshold(p), nil
}

// scaleLeaves applies shrinkage so stored trees already include the learning rate.
func scaleLeaves(t *Tree, rate float64) {
	for i := range t.Nodes {
		if t.Nodes[i].Feature < 0 {
			t.Nodes[i].Value *= rate
		}
	}
}
