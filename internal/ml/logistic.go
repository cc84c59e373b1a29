package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LogisticRegression is an L2-regularized linear classifier fitted by
// damped Newton iterations (IRLS). C is the inverse regularization strength;
// the intercept is not penalized.
type LogisticRegression struct {
	C       float64 `json:"c"`
	MaxIter int     `json:"max_iter"`
	Tol     float64 `json:"tol"`

	Weights    []float64 `json:"weights"`
	Intercept  float64   `json:"intercept"`
	Iterations int       `json:"iterations"`
}

// NewLogisticRegression returns a model with C=1 and at most 500 iterations.
func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{C: 1, MaxIter: 500, Tol: 1e-6}
}

func (m *LogisticRegression) Kind() string { return KindLogisticRegression }

func (m *LogisticRegression) Fit(x *mat.Dense, y []int) error {
	if err := checkTrainingData(x, y); err != nil {
		return err
	}
	if m.C <= 0 {
		return fmt.Errorf("logistic regression: C must be positive, got %f", m.C)
	}
	maxIter := m.MaxIter
	if maxIter <= 0 {
		maxIter = 500
	}

	n, d := x.Dims()
	xa := mat.NewDense(n, d+1, nil)
	for i := 0; i < n; i++ {
		row := xa.RawRowView(i)
		copy(row[:d], x.RawRowView(i))
		row[d] = 1
	}
	reg := 1 / m.C

	beta := mat.NewVecDense(d+1, nil)
	cand := mat.NewVecDense(d+1, nil)
	step := mat.NewVecDense(d+1, nil)
	grad := mat.NewVecDense(d+1, nil)
	resid := mat.NewVecDense(n, nil)
	z := mat.NewVecDense(n, nil)
	xw := mat.NewDense(n, d+1, nil)
	h := mat.NewSymDense(d+1, nil)

	loss := logisticObjective(xa, y, beta, reg, z)
	m.Iterations = 0
	for iter := 0; iter < maxIter; iter++ {
		z.MulVec(xa, beta)
		for i := 0; i < n; i++ {
			p := sigmoid(z.AtVec(i))
			resid.SetVec(i, p-float64(y[i]))
			sw := math.Sqrt(p * (1 - p))
			src, dst := xa.RawRowView(i), xw.RawRowView(i)
			for j := range dst {
				dst[j] = src[j] * sw
			}
		}

		grad.MulVec(xa.T(), resid)
		for j := 0; j < d; j++ {
			grad.SetVec(j, grad.AtVec(j)+reg*beta.AtVec(j))
		}

		h.SymOuterK(1, xw.T())
		for j := 0; j < d; j++ {
			h.SetSym(j, j, h.At(j, j)+reg)
		}
		h.SetSym(d, d, h.At(d, d)+1e-10)

		var chol mat.Cholesky
		if ok := chol.Factorize(h); !ok {
			return errors.New("logistic regression: hessian is not positive definite")
		}
		if err := chol.SolveVecTo(step, grad); err != nil {
			return fmt.Errorf("logistic regression: newton step: %w", err)
		}

		t := 1.0
		newLoss := loss
		for k := 0; k < 30; k++ {
			cand.AddScaledVec(beta, -t, step)
			newLoss = logisticObjective(xa, y, cand, reg, z)
			if newLoss <= loss+1e-12 {
				break
			}
			t /= 2
		}
		beta.CopyVec(cand)
		m.Iterations = iter + 1

		if t*mat.Norm(step, math.Inf(1)) < m.Tol || loss-newLoss < m.Tol*math.Max(1, math.Abs(loss))*1e-3 {
			break
		}
		loss = newLoss
	}

	m.Weights = make([]float64, d)
	for j := 0; j < d; j++ {
		m.Weights[j] = beta.AtVec(j)
	}
	m.Intercept = beta.AtVec(d)
	return nil
}

// DecisionFunction returns the linear score x·w + b for each row.
func (m *LogisticRegression) DecisionFunction(x *mat.Dense) ([]float64, error) {
	if err := checkWidth(x, len(m.Weights)); err != nil {
		return nil, err
	}
	n, _ := x.Dims()
	w := mat.NewVecDense(len(m.Weights), m.Weights)
	z := mat.NewVecDense(n, nil)
	z.MulVec(x, w)
	out := make([]float64, n)
	for i := range out {
		out[i] = z.AtVec(i) + m.Intercept
	}
	return out, nil
}

func (m *LogisticRegression) PredictProba(x *mat.Dense) ([]float64, error) {
	z, err := m.DecisionFunction(x)
	if err != nil {
		return nil, err
	}
	for i, v := range z {
		z[i] = sigmoid(v)
	}
	return z, nil
}

func (m *LogisticRegression) checkState(width int) error {
	if len(m.Weights) != width {
		return fmt.Errorf("logistic regression has %d weights for %d features", len(m.Weights), width)
	}
	if !finite(m.Weights...) || !finite(m.Intercept) {
		return errors.New("logistic regression has non-finite coefficients")
	}
	return nil
}

func (m *LogisticRegression) Predict(x *mat.Dense) ([]int, error) {
	p, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return threshold(p), nil
}

// logisticObjective is the summed log-loss plus the L2 penalty on the
// weights (not the intercept, which is the last coefficient). z is scratch.
func logisticObjective(xa *mat.Dense, y []int, beta *mat.VecDense, reg float64, z *mat.VecDense) float64 {
	z.MulVec(xa, beta)
	var loss float64
	for i, yi := range y {
		zi := z.AtVec(i)
		loss += softplus(zi) - float64(yi)*zi
	}
	d := beta.Len() - 1
	var sq float64
	for j := 0; j < d; j++ {
		w := beta.AtVec(j)
		sq += w * w
	}
	return loss + 0.5*reg*sq
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// softplus computes log(1 + e^x) without overflow.
func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}
