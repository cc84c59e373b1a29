package ml

import (
	"errors"
	"math"
	"math/rand/v2"

	"loan-approval/internal/dataset"
	"loan-approval/internal/features"
	"loan-approval/internal/loan"

	"gonum.org/v1/gonum/mat"
)

var (
	occupations = []string{"Salaried", "Self-Employed", "Student", "Unemployed"}
	intents     = []string{"Business", "Debt Consolidation", "Education", "Home Improvement", "Medical", "Personal"}
	products    = []string{"Credit Card", "Line of Credit", "Personal Loan"}
)

// syntheticApplicant draws a plausible applicant.
func syntheticApplicant(rng *rand.Rand) loan.Applicant {
	income := 20000 + rng.Float64()*130000
	return loan.Applicant{
		Age:                   18 + rng.IntN(60),
		YearsEmployed:         math.Floor(rng.Float64() * 30),
		AnnualIncome:          income,
		CreditScore:           300 + rng.IntN(551),
		CreditHistoryYears:    math.Floor(rng.Float64() * 25),
		SavingsAssets:         rng.Float64() * 60000,
		CurrentDebt:           rng.Float64() * income * 0.8,
		DefaultsOnFile:        rng.IntN(2),
		DelinquenciesLast2Yrs: rng.IntN(4),
		DerogatoryMarks:       rng.IntN(3),
		LoanAmount:            1000 + rng.Float64()*income*0.6,
		InterestRate:          5 + rng.Float64()*20,
		OccupationStatus:      occupations[rng.IntN(len(occupations))],
		LoanIntent:            intents[rng.IntN(len(intents))],
		ProductType:           products[rng.IntN(len(products))],
	}
}

// approvalSignal is the rule synthetic labels follow.
func approvalSignal(a loan.Applicant) int {
	dti := a.CurrentDebt / (a.AnnualIncome + features.Epsilon)
	score := float64(a.CreditScore-575)/100 - 3*dti - float64(a.DefaultsOnFile)
	if score > 0 {
		return 1
	}
	return 0
}

// syntheticDataset builds n raw (not engineered) rows whose labels follow
// approvalSignal.
func syntheticDataset(n int, seed uint64) *dataset.Dataset {
	rng := rand.New(rand.NewPCG(seed, 7))
	ds := &dataset.Dataset{Rows: make([]features.Row, n), Labels: make([]int, n)}
	for i := range n {
		a := syntheticApplicant(rng)
		ds.Rows[i] = a.Row()
		ds.Labels[i] = approvalSignal(a)
	}
	return ds
}

// permutedLabels returns a copy of ds with labels shuffled across rows.
func permutedLabels(ds *dataset.Dataset, seed uint64) *dataset.Dataset {
	rng := rand.New(rand.NewPCG(seed, 11))
	labels := append([]int(nil), ds.Labels...)
	rng.Shuffle(len(labels), func(i, j int) { labels[i], labels[j] = labels[j], labels[i] })
	return &dataset.Dataset{Rows: ds.Rows, Labels: labels}
}

// linearData returns a design matrix whose label is the sign of a fixed
// linear combination plus noise.
func linearData(n, d int, seed uint64) (*mat.Dense, []int) {
	rng := rand.New(rand.NewPCG(seed, 3))
	x := mat.NewDense(n, d, nil)
	y := make([]int, n)
	for i := range n {
		var s float64
		for j := range d {
			v := rng.NormFloat64()
			x.Set(i, j, v)
			s += v * float64(d-j)
		}
		if s+0.5*rng.NormFloat64() > 0 {
			y[i] = 1
		}
	}
	return x, y
}

// fastCandidates keeps the default families at sizes that train quickly.
func fastCandidates(seed uint64) []Candidate {
	return []Candidate{
		{Name: "log_reg", New: func() Classifier { return NewLogisticRegression() }},
		{Name: "random_forest", New: func() Classifier {
			rf := NewRandomForest(seed)
			rf.NTrees = 25
			return rf
		}},
		{Name: "gradient_boosting", New: func() Classifier {
			gb := NewGradientBoosting()
			gb.NRounds = 40
			gb.MaxDepth = 3
			return gb
		}},
	}
}

// columnClassifier scores rows by one column. Two instances over the same
// column produce identical AUCs.
type columnClassifier struct {
	Name   string `json:"name"`
	Column int    `json:"column"`
}

func (c *columnClassifier) Kind() string                    { return c.Name }
func (c *columnClassifier) Fit(x *mat.Dense, y []int) error { return nil }

func (c *columnClassifier) PredictProba(x *mat.Dense) ([]float64, error) {
	n, _ := x.Dims()
	out := make([]float64, n)
	for i := range out {
		out[i] = sigmoid(x.At(i, c.Column))
	}
	return out, nil
}

func (c *columnClassifier) Predict(x *mat.Dense) ([]int, error) {
	p, err := c.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return threshold(p), nil
}

// hardClassifier has no probability output.
type hardClassifier struct{}

func (hardClassifier) Kind() string                    { return "hard" }
func (hardClassifier) Fit(x *mat.Dense, y []int) error { return nil }
func (hardClassifier) Predict(x *mat.Dense) ([]int, error) {
	n, _ := x.Dims()
	return make([]int, n), nil
}

// failingClassifier never fits.
type failingClassifier struct{}

var errFitFailed = errors.New("fit failed")

func (failingClassifier) Kind() string                        { return "failing" }
func (failingClassifier) Fit(x *mat.Dense, y []int) error     { return errFitFailed }
func (failingClassifier) Predict(x *mat.Dense) ([]int, error) { return nil, ErrNotFitted }
