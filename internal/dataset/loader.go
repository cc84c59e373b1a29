// Package dataset loads historical loan applications for training and
// splits them into training and holdout sets.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"loan-approval/internal/features"

	"github.com/rs/zerolog/log"
)

const (
	// TargetColumn holds the binary approval label.
	TargetColumn = "loan_status"
	// IDColumn identifies the customer and is never a model input.
	IDColumn = "customer_id"
)

// DummyPrefixes mark pre-encoded one-hot columns that some exports carry.
// They are dropped so categories are only encoded once.
var DummyPrefixes = []string{"occupation_status_", "product_type_", "loan_intent_"}

// CategoricalColumns are read as strings; everything else is parsed as a number.
var CategoricalColumns = []string{"occupation_status", "loan_intent", "product_type"}

// ErrMissingTarget is returned when the input has no loan_status column.
var ErrMissingTarget = errors.New("missing target column " + TargetColumn)

// Dataset is a set of labelled rows.
type Dataset struct {
	Rows   []features.Row
	Labels []int
	// Skipped counts input lines dropped for unparsable values.
	Skipped int
}

// Len returns the number of labelled rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// LoadCSV reads a training file from disk.
func LoadCSV(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	ds, err := ReadCSV(file)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Int("rows", ds.Len()).
		Int("skipped", ds.Skipped).
		Msg("Training data loaded")

	return ds, nil
}

// ReadCSV parses CSV training data with a header row.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	targetIdx := -1
	keep := make([]bool, len(header))
	for i, col := range header {
		col = strings.TrimSpace(col)
		header[i] = col
		switch {
		case col == TargetColumn:
			targetIdx = i
		case col == IDColumn, isDummy(col):
		default:
			keep[i] = true
		}
	}
	if targetIdx < 0 {
		return nil, ErrMissingTarget
	}

	ds := &Dataset{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		label, err := parseLabel(record[targetIdx])
		if err != nil {
			log.Warn().Int("line", line).Err(err).Msg("Skipping row with invalid label")
			ds.Skipped++
			continue
		}

		row, err := parseRow(header, keep, record)
		if err != nil {
			log.Warn().Int("line", line).Err(err).Msg("Skipping row with invalid value")
			ds.Skipped++
			continue
		}

		ds.Rows = append(ds.Rows, row)
		ds.Labels = append(ds.Labels, label)
	}

	return ds, nil
}

func parseRow(header []string, keep []bool, record []string) (features.Row, error) {
	row := features.Row{
		Numeric:     make(map[string]float64, len(header)),
		Categorical: make(map[string]string, len(CategoricalColumns)),
	}
	for i, col := range header {
		if !keep[i] {
			continue
		}
		raw := strings.TrimSpace(record[i])
		if slices.Contains(CategoricalColumns, col) {
			row.Categorical[col] = raw
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return features.Row{}, fmt.Errorf("column %q: %w", col, err)
		}
		row.Numeric[col] = v
	}
	return row, nil
}

func parseLabel(raw string) (int, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("label %q: %w", raw, err)
	}
	switch v {
	case 0:
		return 0, nil
	case 1:
		return 1, nil
	}
	return 0, fmt.Errorf("label %q is not binary", raw)
}

func isDummy(col string) bool {
	for _, p := range DummyPrefixes {
		if strings.HasPrefix(col, p) {
			return true
		}
	}
	return false
}
