package loan

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleApplicant() Applicant {
	return Applicant{
		Age:                   30,
		YearsEmployed:         4,
		AnnualIncome:          50000,
		CreditScore:           700,
		CreditHistoryYears:    6,
		SavingsAssets:         10000,
		CurrentDebt:           5000,
		DefaultsOnFile:        0,
		DelinquenciesLast2Yrs: 0,
		DerogatoryMarks:       0,
		LoanAmount:            10000,
		InterestRate:          10.5,
		OccupationStatus:      "Salaried",
		LoanIntent:            "Education",
		ProductType:           "Personal Loan",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(a *Applicant)
		wantErr string
	}{
		{"example is valid", func(a *Applicant) {}, ""},
		{"age 15 rejected", func(a *Applicant) { a.Age = 15 }, "age"},
		{"age 101 rejected", func(a *Applicant) { a.Age = 101 }, "age"},
		{"age 18 accepted", func(a *Applicant) { a.Age = 18 }, ""},
		{"credit score too low", func(a *Applicant) { a.CreditScore = 299 }, "credit_score"},
		{"credit score too high", func(a *Applicant) { a.CreditScore = 851 }, "credit_score"},
		{"negative income", func(a *Applicant) { a.AnnualIncome = -1 }, "annual_income"},
		{"zero income accepted", func(a *Applicant) { a.AnnualIncome = 0 }, ""},
		{"negative defaults", func(a *Applicant) { a.DefaultsOnFile = -1 }, "defaults_on_file"},
		{"NaN debt", func(a *Applicant) { a.CurrentDebt = math.NaN() }, "current_debt"},
		{"infinite loan", func(a *Applicant) { a.LoanAmount = math.Inf(1) }, "loan_amount"},
		{"blank occupation", func(a *Applicant) { a.OccupationStatus = "  " }, "occupation_status"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := exampleApplicant()
			tc.mutate(&a)

			err := a.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected *ValidationError, got %T", err)
			assert.Contains(t, verr.Error(), tc.wantErr)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	a := exampleApplicant()
	a.Age = 10
	a.InterestRate = -2
	a.ProductType = ""

	var verr *ValidationError
	require.ErrorAs(t, a.Validate(), &verr)
	assert.Len(t, verr.Problems, 3)
}

func TestApplicant_Row(t *testing.T) {
	row := exampleApplicant().Row()

	assert.Equal(t, 30.0, row.Numeric["age"])
	assert.Equal(t, 700.0, row.Numeric["credit_score"])
	assert.Equal(t, 10.5, row.Numeric["interest_rate"])
	assert.Len(t, row.Numeric, 12)
	assert.Equal(t, "Personal Loan", row.Categorical["product_type"])
}

const exampleJSON = `{
	"age": 30, "years_employed": 4, "annual_income": 50000, "credit_score": 700,
	"credit_history_years": 6, "savings_assets": 10000, "current_debt": 5000,
	"defaults_on_file": 0, "delinquencies_last_2yrs": 0, "derogatory_marks": 0,
	"loan_amount": 10000, "interest_rate": 10.5, "occupation_status": "Salaried",
	"loan_intent": "Education", "product_type": "Personal Loan"
}`

func TestDecodeApplicant(t *testing.T) {
	a, err := DecodeApplicant(strings.NewReader(exampleJSON))
	require.NoError(t, err)
	assert.Equal(t, exampleApplicant(), a)
}

func TestDecodeApplicant_MissingField(t *testing.T) {
	body := strings.Replace(exampleJSON, `"annual_income": 50000,`, "", 1)

	_, err := DecodeApplicant(strings.NewReader(body))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "annual_income is required")
}

func TestDecodeApplicant_ZeroIsNotMissing(t *testing.T) {
	body := strings.Replace(exampleJSON, `"annual_income": 50000`, `"annual_income": 0`, 1)

	a, err := DecodeApplicant(strings.NewReader(body))
	require.NoError(t, err)
	assert.Zero(t, a.AnnualIncome)
}

func TestDecodeApplicant_IgnoresUnknownFields(t *testing.T) {
	body := strings.Replace(exampleJSON, "{", `{"customer_id": "C000001", "loan_status": 1,`, 1)

	a, err := DecodeApplicant(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, exampleApplicant(), a)
}

func TestDecodeApplicant_Malformed(t *testing.T) {
	_, err := DecodeApplicant(strings.NewReader(`{invalid-json}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "malformed request")
}
