// Package preprocess turns engineered rows into the dense design matrix the
// classifiers consume: one-hot indicators for categorical columns followed
// by standardized numeric columns.
package preprocess

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"loan-approval/internal/features"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CategoricalColumns are one-hot encoded, in this order.
var CategoricalColumns = []string{"occupation_status", "loan_intent", "product_type"}

// NumericColumns are centered and scaled, in this order.
var NumericColumns = []string{
	"age", "years_employed", "annual_income",
	"credit_score", "credit_history_years", "savings_assets",
	"current_debt", "defaults_on_file", "delinquencies_last_2yrs",
	"derogatory_marks", "loan_amount", "interest_rate",
	features.DebtToIncome, features.LoanToIncome,
}

// ErrNotFitted is returned when Transform is called before Fit.
var ErrNotFitted = errors.New("preprocessor is not fitted")

// Encoder holds the vocabulary learned for one categorical column.
type Encoder struct {
	Column     string   `json:"column"`
	Categories []string `json:"categories"`
}

// Scaler holds the centering and scaling parameters for one numeric column.
type Scaler struct {
	Column string  `json:"column"`
	Mean   float64 `json:"mean"`
	Scale  float64 `json:"scale"`
}

// Preprocessor is the fitted column transformation. Its exported fields are
// the complete state persisted with a trained pipeline.
type Preprocessor struct {
	Encoders []Encoder `json:"encoders"`
	Scalers  []Scaler  `json:"scalers"`
	Fitted   bool      `json:"fitted"`
}

// New returns an unfitted preprocessor over the declared columns.
func New() *Preprocessor {
	p := &Preprocessor{}
	for _, c := range CategoricalColumns {
		p.Encoders = append(p.Encoders, Encoder{Column: c})
	}
	for _, c := range NumericColumns {
		p.Scalers = append(p.Scalers, Scaler{Column: c, Scale: 1})
	}
	return p
}

// Fit learns category vocabularies and numeric mean / standard deviation
// from rows. Refitting replaces all previously learned state.
func (p *Preprocessor) Fit(rows []features.Row) error {
	if len(rows) == 0 {
		return errors.New("fit preprocessor: no rows")
	}

	for i := range p.Encoders {
		enc := &p.Encoders[i]
		seen := make(map[string]struct{})
		for r, row := range rows {
			v, ok := row.Categorical[enc.Column]
			if !ok {
				return fmt.Errorf("fit preprocessor: row %d: missing column %q", r, enc.Column)
			}
			seen[v] = struct{}{}
		}
		enc.Categories = enc.Categories[:0]
		for v := range seen {
			enc.Categories = append(enc.Categories, v)
		}
		slices.Sort(enc.Categories)
	}

	col := make([]float64, len(rows))
	for i := range p.Scalers {
		sc := &p.Scalers[i]
		for r, row := range rows {
			v, err := numeric(row, sc.Column)
			if err != nil {
				return fmt.Errorf("fit preprocessor: row %d: %w", r, err)
			}
			col[r] = v
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		sc.Mean, sc.Scale = mean, std
	}

	p.Fitted = true
	return nil
}

// Width is the number of output columns.
func (p *Preprocessor) Width() int {
	n := len(p.Scalers)
	for _, enc := range p.Encoders {
		n += len(enc.Categories)
	}
	return n
}

// Check verifies that decoded state can drive Transform: at least one output
// column, strictly sorted vocabularies, and finite scaling with a nonzero
// scale.
func (p *Preprocessor) Check() error {
	if !p.Fitted {
		return ErrNotFitted
	}
	if p.Width() == 0 {
		return errors.New("preprocessor has no output columns")
	}
	for _, enc := range p.Encoders {
		for i := 1; i < len(enc.Categories); i++ {
			if enc.Categories[i-1] >= enc.Categories[i] {
				return fmt.Errorf("categories of %q are not sorted and unique", enc.Column)
			}
		}
	}
	for _, sc := range p.Scalers {
		if !isFinite(sc.Mean) || !isFinite(sc.Scale) || sc.Scale == 0 {
			return fmt.Errorf("scaler for %q has mean %v and scale %v", sc.Column, sc.Mean, sc.Scale)
		}
	}
	return nil
}

// FeatureNames lists the output columns in matrix order.
func (p *Preprocessor) FeatureNames() []string {
	names := make([]string, 0, p.Width())
	for _, enc := range p.Encoders {
		for _, c := range enc.Categories {
			names = append(names, enc.Column+"_"+c)
		}
	}
	for _, sc := range p.Scalers {
		names = append(names, sc.Column)
	}
	return names
}

// Transform encodes rows with the parameters learned at fit time. A category
// not seen during Fit yields an all-zero indicator block.
func (p *Preprocessor) Transform(rows []features.Row) (*mat.Dense, error) {
	if !p.Fitted {
		return nil, ErrNotFitted
	}
	if len(rows) == 0 {
		return nil, errors.New("transform: no rows")
	}

	width := p.Width()
	out := mat.NewDense(len(rows), width, nil)
	for r, row := range rows {
		dst := out.RawRowView(r)
		if err := p.encodeRow(row, dst); err != nil {
			return nil, fmt.Errorf("transform: row %d: %w", r, err)
		}
	}
	return out, nil
}

func (p *Preprocessor) encodeRow(row features.Row, dst []float64) error {
	off := 0
	for _, enc := range p.Encoders {
		v, ok := row.Categorical[enc.Column]
		if !ok {
			return fmt.Errorf("missing column %q", enc.Column)
		}
		if i, found := slices.BinarySearch(enc.Categories, v); found {
			dst[off+i] = 1
		}
		off += len(enc.Categories)
	}
	for _, sc := range p.Scalers {
		v, err := numeric(row, sc.Column)
		if err != nil {
			return err
		}
		dst[off] = (v - sc.Mean) / sc.Scale
		off++
	}
	return nil
}

func numeric(row features.Row, col string) (float64, error) {
	v, ok := row.Numeric[col]
	if !ok {
		return 0, fmt.Errorf("missing column %q", col)
	}
	if !isFinite(v) {
		return 0, fmt.Errorf("column %q is not finite", col)
	}
	return v, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
