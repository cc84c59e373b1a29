package loan

import (
	"encoding/json"
	"fmt"
	"io"
)

// Request is the wire form of an applicant. Pointer fields let absent keys be
// told apart from zero values.
type Request struct {
	Age                   *int     `json:"age"`
	YearsEmployed         *float64 `json:"years_employed"`
	AnnualIncome          *float64 `json:"annual_income"`
	CreditScore           *int     `json:"credit_score"`
	CreditHistoryYears    *float64 `json:"credit_history_years"`
	SavingsAssets         *float64 `json:"savings_assets"`
	CurrentDebt           *float64 `json:"current_debt"`
	DefaultsOnFile        *int     `json:"defaults_on_file"`
	DelinquenciesLast2Yrs *int     `json:"delinquencies_last_2yrs"`
	DerogatoryMarks       *int     `json:"derogatory_marks"`
	LoanAmount            *float64 `json:"loan_amount"`
	InterestRate          *float64 `json:"interest_rate"`
	OccupationStatus      *string  `json:"occupation_status"`
	LoanIntent            *string  `json:"loan_intent"`
	ProductType           *string  `json:"product_type"`
}

// Applicant resolves the request into a validated applicant. Missing fields
// and bound violations are both reported as a *ValidationError.
func (r Request) Applicant() (Applicant, error) {
	verr := &ValidationError{}
	a := Applicant{
		Age:                   intField(verr, "age", r.Age),
		YearsEmployed:         floatField(verr, "years_employed", r.YearsEmployed),
		AnnualIncome:          floatField(verr, "annual_income", r.AnnualIncome),
		CreditScore:           intField(verr, "credit_score", r.CreditScore),
		CreditHistoryYears:    floatField(verr, "credit_history_years", r.CreditHistoryYears),
		SavingsAssets:         floatField(verr, "savings_assets", r.SavingsAssets),
		CurrentDebt:           floatField(verr, "current_debt", r.CurrentDebt),
		DefaultsOnFile:        intField(verr, "defaults_on_file", r.DefaultsOnFile),
		DelinquenciesLast2Yrs: intField(verr, "delinquencies_last_2yrs", r.DelinquenciesLast2Yrs),
		DerogatoryMarks:       intField(verr, "derogatory_marks", r.DerogatoryMarks),
		LoanAmount:            floatField(verr, "loan_amount", r.LoanAmount),
		InterestRate:          floatField(verr, "interest_rate", r.InterestRate),
		OccupationStatus:      stringField(verr, "occupation_status", r.OccupationStatus),
		LoanIntent:            stringField(verr, "loan_intent", r.LoanIntent),
		ProductType:           stringField(verr, "product_type", r.ProductType),
	}
	if len(verr.Problems) > 0 {
		return Applicant{}, verr
	}
	if err := a.Validate(); err != nil {
		return Applicant{}, err
	}
	return a, nil
}

// DecodeApplicant reads one JSON request body and validates it. Fields it
// does not know, such as a customer_id, are ignored.
func DecodeApplicant(r io.Reader) (Applicant, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return Applicant{}, &ValidationError{Problems: []string{fmt.Sprintf("malformed request: %v", err)}}
	}
	return req.Applicant()
}

func intField(verr *ValidationError, name string, v *int) int {
	if v == nil {
		verr.add("%s is required", name)
		return 0
	}
	return *v
}

func floatField(verr *ValidationError, name string, v *float64) float64 {
	if v == nil {
		verr.add("%s is required", name)
		return 0
	}
	return *v
}

func stringField(verr *ValidationError, name string, v *string) string {
	if v == nil {
		verr.add("%s is required", name)
		return ""
	}
	return *v
}
