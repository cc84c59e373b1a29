package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawRow(income, debt, loan float64) Row {
	return Row{
		Numeric: map[string]float64{
			"annual_income": income,
			"current_debt":  debt,
			"loan_amount":   loan,
		},
		Categorical: map[string]string{"loan_intent": "Education"},
	}
}

func TestEngineer_Ratios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name               string
		income, debt, loan float64
	}{
		{"typical", 60000, 15000, 20000},
		{"zero income", 0, 5000, 1000},
		{"zero debt", 42000, 0, 7000},
		{"fractional", 1234.5, 99.25, 0.5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Engineer(rawRow(tc.income, tc.debt, tc.loan))
			require.NoError(t, err)

			assert.Equal(t, tc.debt/(tc.income+1e-9), out.Numeric[DebtToIncome])
			assert.Equal(t, tc.loan/(tc.income+1e-9), out.Numeric[LoanToIncome])
		})
	}
}

func TestEngineer_DoesNotMutateInput(t *testing.T) {
	in := rawRow(50000, 5000, 10000)

	out, err := Engineer(in)
	require.NoError(t, err)

	_, hasRatio := in.Numeric[DebtToIncome]
	assert.False(t, hasRatio, "input row must not gain derived columns")
	assert.Len(t, in.Numeric, 3)

	out.Categorical["loan_intent"] = "Medical"
	assert.Equal(t, "Education", in.Categorical["loan_intent"])
}

func TestEngineer_Idempotent(t *testing.T) {
	first, err := Engineer(rawRow(75000, 12000, 30000))
	require.NoError(t, err)

	second, err := Engineer(first)
	require.NoError(t, err)

	assert.Equal(t, first.Numeric, second.Numeric)
}

func TestEngineer_OverwritesStaleRatios(t *testing.T) {
	in := rawRow(10000, 1000, 2000)
	in.Numeric[DebtToIncome] = 99
	in.Numeric[LoanToIncome] = -1

	out, err := Engineer(in)
	require.NoError(t, err)

	assert.Equal(t, 1000/(10000+Epsilon), out.Numeric[DebtToIncome])
	assert.Equal(t, 2000/(10000+Epsilon), out.Numeric[LoanToIncome])
}

func TestEngineer_MissingColumn(t *testing.T) {
	row := Row{Numeric: map[string]float64{"annual_income": 1, "current_debt": 1}}

	_, err := Engineer(row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loan_amount")
}

func TestEngineerAll(t *testing.T) {
	rows := []Row{rawRow(1, 2, 3), rawRow(4, 5, 6)}

	out, err := EngineerAll(rows)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 5/(4+Epsilon), out[1].Numeric[DebtToIncome])

	rows = append(rows, Row{Numeric: map[string]float64{}})
	_, err = EngineerAll(rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}
