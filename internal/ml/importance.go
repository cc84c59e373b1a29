package ml

import (
	"errors"
	"math/rand/v2"
	"slices"
	"sort"

	"loan-approval/internal/dataset"

	"gonum.org/v1/gonum/mat"
)

// permutationImportance shuffles each transformed column of the holdout set
// in turn and records how much AUC drops against baseline. Results are
// ordered by importance, highest first.
func permutationImportance(p *Pipeline, holdout *dataset.Dataset, baseline float64, seed uint64) ([]FeatureImportance, error) {
	pc, ok := p.Classifier.(ProbabilisticClassifier)
	if !ok {
		return nil, errors.New("permutation importance needs probability output")
	}
	x, err := p.Preprocessor.Transform(holdout.Rows)
	if err != nil {
		return nil, err
	}
	names := p.Preprocessor.FeatureNames()
	rng := rand.New(rand.NewPCG(seed, seed))

	n, d := x.Dims()
	work := mat.DenseCopyOf(x)
	col := make([]float64, n)
	out := make([]FeatureImportance, 0, d)

	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		shuffled := slices.Clone(col)
		rng.Shuffle(n, func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		work.SetCol(j, shuffled)

		proba, err := pc.PredictProba(work)
		if err != nil {
			return nil, err
		}
		auc, err := ROCAUC(holdout.Labels, proba)
		if err != nil {
			return nil, err
		}
		out = append(out, FeatureImportance{Name: names[j], Importance: baseline - auc})

		work.SetCol(j, col)
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Importance > out[b].Importance
	})
	return out, nil
}
