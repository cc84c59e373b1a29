// Package features derives model inputs from raw applicant columns. Engineer
// is used unchanged by training and inference, so the derived columns mean
// the same thing on both paths.
package features

import "fmt"

// Epsilon keeps the income ratios finite when annual income is zero.
const Epsilon = 1e-9

const (
	DebtToIncome = "debt_to_income_ratio"
	LoanToIncome = "loan_to_income_ratio"
)

// requiredColumns are the raw inputs the derived ratios are computed from.
var requiredColumns = []string{"current_debt", "loan_amount", "annual_income"}

// Engineer returns a copy of row with the debt-to-income and loan-to-income
// ratios set. Existing ratio columns are overwritten, never trusted.
func Engineer(row Row) (Row, error) {
	for _, col := range requiredColumns {
		if _, ok := row.Numeric[col]; !ok {
			return Row{}, fmt.Errorf("feature engineering: missing column %q", col)
		}
	}

	out := row.Clone()
	income := row.Numeric["annual_income"] + Epsilon
	out.Numeric[DebtToIncome] = row.Numeric["current_debt"] / income
	out.Numeric[LoanToIncome] = row.Numeric["loan_amount"] / income
	return out, nil
}

// EngineerAll applies Engineer to every row. The first failing row aborts
// the whole batch.
func EngineerAll(rows []Row) ([]Row, error) {
	out := make([]Row, len(rows))
	for i, r := range rows {
		e, err := Engineer(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = e
	}
	return out, nil
}
