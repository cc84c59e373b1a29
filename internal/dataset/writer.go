package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
)

// WriteCSV writes ds in the layout ReadCSV expects: a customer_id column,
// numeric columns in name order, the categorical columns, then loan_status.
// Every row must carry the columns of the first row.
func WriteCSV(w io.Writer, ds *Dataset) error {
	if ds.Len() == 0 {
		return fmt.Errorf("write CSV: no rows")
	}
	numeric := slices.Sorted(maps.Keys(ds.Rows[0].Numeric))

	cw := csv.NewWriter(w)
	header := append([]string{IDColumn}, numeric...)
	header = append(header, CategoricalColumns...)
	header = append(header, TargetColumn)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for i, row := range ds.Rows {
		record[0] = fmt.Sprintf("C%06d", i+1)
		for j, col := range numeric {
			v, ok := row.Numeric[col]
			if !ok {
				return fmt.Errorf("write CSV: row %d: missing column %q", i, col)
			}
			record[1+j] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		for j, col := range CategoricalColumns {
			record[1+len(numeric)+j] = row.Categorical[col]
		}
		record[len(record)-1] = strconv.Itoa(ds.Labels[i])
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// SaveCSV writes ds to path, creating the parent directory.
func SaveCSV(path string, ds *Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	if err := WriteCSV(file, ds); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
