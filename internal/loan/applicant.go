// Package loan defines the applicant record accepted by the loan approval
// model and the bounds checks every record must pass before it reaches the
// pipeline.
package loan

import (
	"fmt"
	"math"
	"strings"

	"loan-approval/internal/features"
)

// Applicant is one loan application as submitted for scoring.
type Applicant struct {
	Age                   int     `json:"age"`
	YearsEmployed         float64 `json:"years_employed"`
	AnnualIncome          float64 `json:"annual_income"`
	CreditScore           int     `json:"credit_score"`
	CreditHistoryYears    float64 `json:"credit_history_years"`
	SavingsAssets         float64 `json:"savings_assets"`
	CurrentDebt           float64 `json:"current_debt"`
	DefaultsOnFile        int     `json:"defaults_on_file"`
	DelinquenciesLast2Yrs int     `json:"delinquencies_last_2yrs"`
	DerogatoryMarks       int     `json:"derogatory_marks"`
	LoanAmount            float64 `json:"loan_amount"`
	InterestRate          float64 `json:"interest_rate"`
	OccupationStatus      string  `json:"occupation_status"`
	LoanIntent            string  `json:"loan_intent"`
	ProductType           string  `json:"product_type"`
}

// ValidationError reports every bound an applicant violates.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid applicant: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Validate checks all field bounds. Out-of-range values are rejected, never clamped.
func (a Applicant) Validate() error {
	verr := &ValidationError{}

	intRange(verr, "age", a.Age, 18, 100)
	intRange(verr, "credit_score", a.CreditScore, 300, 850)
	intRange(verr, "defaults_on_file", a.DefaultsOnFile, 0, math.MaxInt)
	intRange(verr, "delinquencies_last_2yrs", a.DelinquenciesLast2Yrs, 0, math.MaxInt)
	intRange(verr, "derogatory_marks", a.DerogatoryMarks, 0, math.MaxInt)

	nonNegative(verr, "years_employed", a.YearsEmployed)
	nonNegative(verr, "annual_income", a.AnnualIncome)
	nonNegative(verr, "credit_history_years", a.CreditHistoryYears)
	nonNegative(verr, "savings_assets", a.SavingsAssets)
	nonNegative(verr, "current_debt", a.CurrentDebt)
	nonNegative(verr, "loan_amount", a.LoanAmount)
	nonNegative(verr, "interest_rate", a.InterestRate)

	required(verr, "occupation_status", a.OccupationStatus)
	required(verr, "loan_intent", a.LoanIntent)
	required(verr, "product_type", a.ProductType)

	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}

// Row converts the applicant into the generic row consumed by feature
// engineering and preprocessing.
func (a Applicant) Row() features.Row {
	return features.Row{
		Numeric: map[string]float64{
			"age":                     float64(a.Age),
			"years_employed":          a.YearsEmployed,
			"annual_income":           a.AnnualIncome,
			"credit_score":            float64(a.CreditScore),
			"credit_history_years":    a.CreditHistoryYears,
			"savings_assets":          a.SavingsAssets,
			"current_debt":            a.CurrentDebt,
			"defaults_on_file":        float64(a.DefaultsOnFile),
			"delinquencies_last_2yrs": float64(a.DelinquenciesLast2Yrs),
			"derogatory_marks":        float64(a.DerogatoryMarks),
			"loan_amount":             a.LoanAmount,
			"interest_rate":           a.InterestRate,
		},
		Categorical: map[string]string{
			"occupation_status": a.OccupationStatus,
			"loan_intent":       a.LoanIntent,
			"product_type":      a.ProductType,
		},
	}
}

func intRange(verr *ValidationError, field string, v, lo, hi int) {
	if v < lo || v > hi {
		if hi == math.MaxInt {
			verr.add("%s must be >= %d, got %d", field, lo, v)
			return
		}
		verr.add("%s must be between %d and %d, got %d", field, lo, hi, v)
	}
}

func nonNegative(verr *ValidationError, field string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		verr.add("%s must be a finite number", field)
		return
	}
	if v < 0 {
		verr.add("%s must be >= 0, got %g", field, v)
	}
}

func required(verr *ValidationError, field, v string) {
	if strings.TrimSpace(v) == "" {
		verr.add("%s is required", field)
	}
}
