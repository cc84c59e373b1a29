package features

import "maps"

// Row is a single tabular observation. Numeric and categorical columns are
// kept apart so downstream encoders never have to guess a column's type.
type Row struct {
	Numeric     map[string]float64
	Categorical map[string]string
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	out := Row{
		Numeric:     make(map[string]float64, len(r.Numeric)+2),
		Categorical: make(map[string]string, len(r.Categorical)),
	}
	maps.Copy(out.Numeric, r.Numeric)
	maps.Copy(out.Categorical, r.Categorical)
	return out
}
