package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"

	"loan-approval/internal/dataset"
	"loan-approval/internal/features"
	"loan-approval/internal/loan"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	occupations = []string{"Salaried", "Self-Employed", "Student", "Unemployed"}
	intents     = []string{"Business", "Debt Consolidation", "Education", "Home Improvement", "Medical", "Personal"}
	products    = []string{"Credit Card", "Line of Credit", "Personal Loan"}
)

func main() {
	var (
		output = flag.String("output", "data/loan_data.csv", "CSV file to write")
		rows   = flag.Int("rows", 5000, "Number of applications to generate")
		seed   = flag.Uint64("seed", 42, "Random seed")
		noise  = flag.Float64("noise", 0.5, "Standard deviation of the label noise")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *rows < 10 {
		log.Fatal().Int("rows", *rows).Msg("need at least 10 rows")
	}

	fmt.Printf("Generating %d loan applications...\n", *rows)
	fmt.Printf("  Seed: %d\n", *seed)
	fmt.Printf("  Output: %s\n", *output)

	ds := generate(*rows, *seed, *noise)
	if err := dataset.SaveCSV(*output, ds); err != nil {
		log.Fatal().Err(err).Msg("Failed to write data")
	}

	fmt.Printf("✓ Wrote %d rows (%d approved, %.1f%%)\n",
		ds.Len(), ds.Positives(), 100*float64(ds.Positives())/float64(ds.Len()))
}

// generate draws applicants from loose marginals and labels them with a
// noisy affordability score, so the approval rate lands near one half.
func generate(n int, seed uint64, noise float64) *dataset.Dataset {
	rng := rand.New(rand.NewPCG(seed, seed^0x5eed))
	ds := &dataset.Dataset{Rows: make([]features.Row, n), Labels: make([]int, n)}

	for i := range n {
		age := 18 + rng.IntN(58)
		occupation := occupations[rng.IntN(len(occupations))]
		income := math.Exp(10.8 + 0.5*rng.NormFloat64())
		if occupation == "Student" || occupation == "Unemployed" {
			income *= 0.4
		}
		a := loan.Applicant{
			Age:                   age,
			YearsEmployed:         math.Floor(rng.Float64() * float64(age-17)),
			AnnualIncome:          math.Round(income),
			CreditScore:           clampInt(int(680+70*rng.NormFloat64()), 300, 850),
			CreditHistoryYears:    math.Floor(rng.Float64() * float64(age-17)),
			SavingsAssets:         math.Round(rng.ExpFloat64() * 15000),
			CurrentDebt:           math.Round(rng.Float64() * income * 0.7),
			DefaultsOnFile:        boolInt(rng.Float64() < 0.08),
			DelinquenciesLast2Yrs: rng.IntN(4) * boolInt(rng.Float64() < 0.3),
			DerogatoryMarks:       boolInt(rng.Float64() < 0.1),
			LoanAmount:            math.Round(1000 + rng.Float64()*income*0.5),
			InterestRate:          math.Round((6+rng.Float64()*18)*100) / 100,
			OccupationStatus:      occupation,
			LoanIntent:            intents[rng.IntN(len(intents))],
			ProductType:           products[rng.IntN(len(products))],
		}

		dti := a.CurrentDebt / (a.AnnualIncome + features.Epsilon)
		lti := a.LoanAmount / (a.AnnualIncome + features.Epsilon)
		score := float64(a.CreditScore-650)/60 -
			2.5*dti - 2*lti -
			1.5*float64(a.DefaultsOnFile) -
			0.4*float64(a.DelinquenciesLast2Yrs) -
			0.8*float64(a.DerogatoryMarks) +
			math.Log1p(a.SavingsAssets/10000)*0.5 +
			noise*rng.NormFloat64()

		ds.Rows[i] = a.Row()
		ds.Labels[i] = boolInt(score > 0)
	}
	return ds
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
