package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"loan-approval/internal/features"
)

// Split holds the training and holdout partitions of a dataset.
type Split struct {
	Train   *Dataset
	Holdout *Dataset
}

// StratifiedSplit partitions ds so each label keeps its share in both
// partitions. The same seed always yields the same split.
func StratifiedSplit(ds *Dataset, testSize float64, seed uint64) (*Split, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, errors.New("split: empty dataset")
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, fmt.Errorf("split: test size must be in (0, 1), got %f", testSize)
	}

	byLabel := map[int][]int{}
	for i, y := range ds.Labels {
		byLabel[y] = append(byLabel[y], i)
	}
	labels := make([]int, 0, len(byLabel))
	for y := range byLabel {
		labels = append(labels, y)
	}
	slices.Sort(labels)

	rng := rand.New(rand.NewPCG(seed, seed))
	var trainIdx, testIdx []int
	for _, y := range labels {
		idx := byLabel[y]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		n := len(idx)
		nTest := int(math.Round(float64(n) * testSize))
		if n >= 2 {
			nTest = max(1, min(nTest, n-1))
		} else {
			nTest = 0
		}
		testIdx = append(testIdx, idx[:nTest]...)
		trainIdx = append(trainIdx, idx[nTest:]...)
	}
	slices.Sort(trainIdx)
	slices.Sort(testIdx)

	if len(trainIdx) == 0 || len(testIdx) == 0 {
		return nil, fmt.Errorf("split: %d rows are too few for a %.0f%% holdout", ds.Len(), testSize*100)
	}

	return &Split{Train: ds.subset(trainIdx), Holdout: ds.subset(testIdx)}, nil
}

func (d *Dataset) subset(idx []int) *Dataset {
	out := &Dataset{
		Rows:   make([]features.Row, len(idx)),
		Labels: make([]int, len(idx)),
	}
	for i, j := range idx {
		out.Rows[i] = d.Rows[j]
		out.Labels[i] = d.Labels[j]
	}
	return out
}

// Positives counts rows labelled 1.
func (d *Dataset) Positives() int {
	n := 0
	for _, y := range d.Labels {
		n += y
	}
	return n
}
