package ml

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"loan-approval/internal/features"
	"loan-approval/internal/loan"

	"gonum.org/v1/gonum/stat"
)

// PSI bands commonly used for credit scorecards.
const (
	DriftModerateThreshold    = 0.1
	DriftSignificantThreshold = 0.25

	defaultDriftBins = 10
	// psiFloor stands in for an empty bin so the log term stays finite.
	psiFloor = 1e-4
)

// DriftSeverity classifies a population stability index.
type DriftSeverity string

const (
	DriftNone        DriftSeverity = "none"
	DriftModerate    DriftSeverity = "moderate"
	DriftSignificant DriftSeverity = "significant"
)

// FeatureBaseline is the training distribution of one numeric column as
// quantile bins.
type FeatureBaseline struct {
	Column   string    `json:"column"`
	Edges    []float64 `json:"edges"`
	Expected []float64 `json:"expected"`
}

// DriftBaseline is stored with the artifact so a server can compare live
// traffic with the rows the model was trained on.
type DriftBaseline struct {
	Features []FeatureBaseline `json:"features"`
}

// DriftMetrics defines the metrics methods needed by the drift monitor.
type DriftMetrics interface {
	FeatureDriftSet(column string, psi float64)
}

// NewDriftBaseline bins every column of rows at its empirical deciles
// (bins <= 0 uses ten bins). Tied cut points are merged, so a column with few
// distinct values gets fewer bins.
func NewDriftBaseline(rows []features.Row, columns []string, bins int) (*DriftBaseline, error) {
	if len(rows) == 0 {
		return nil, errors.New("drift baseline: no rows")
	}
	if bins <= 0 {
		bins = defaultDriftBins
	}

	b := &DriftBaseline{}
	col := make([]float64, len(rows))
	for _, name := range columns {
		for i, row := range rows {
			v, ok := row.Numeric[name]
			if !ok {
				return nil, fmt.Errorf("drift baseline: row %d: missing column %q", i, name)
			}
			col[i] = v
		}
		sorted := slices.Clone(col)
		slices.Sort(sorted)

		var edges []float64
		for k := 1; k < bins; k++ {
			q := stat.Quantile(float64(k)/float64(bins), stat.Empirical, sorted, nil)
			if len(edges) == 0 || q > edges[len(edges)-1] {
				edges = append(edges, q)
			}
		}

		fb := FeatureBaseline{Column: name, Edges: edges}
		fb.Expected = fb.proportions(col)
		b.Features = append(b.Features, fb)
	}
	return b, nil
}

// check verifies a decoded baseline: one more expected proportion than
// edges, edges strictly increasing and every value finite.
func (b *DriftBaseline) check() error {
	for _, f := range b.Features {
		if len(f.Expected) != len(f.Edges)+1 {
			return fmt.Errorf("drift baseline %q: %d proportions for %d edges", f.Column, len(f.Expected), len(f.Edges))
		}
		if !finite(f.Edges...) || !finite(f.Expected...) {
			return fmt.Errorf("drift baseline %q: non-finite values", f.Column)
		}
		for i := 1; i < len(f.Edges); i++ {
			if f.Edges[i-1] >= f.Edges[i] {
				return fmt.Errorf("drift baseline %q: edges not increasing", f.Column)
			}
		}
	}
	return nil
}

// bin returns the index of the bin holding v. Bins are closed on the right.
func (f FeatureBaseline) bin(v float64) int {
	return sort.Search(len(f.Edges), func(i int) bool { return v <= f.Edges[i] })
}

func (f FeatureBaseline) proportions(values []float64) []float64 {
	counts := make([]float64, len(f.Edges)+1)
	for _, v := range values {
		counts[f.bin(v)]++
	}
	for i := range counts {
		counts[i] /= float64(len(values))
	}
	return counts
}

// PopulationStabilityIndex is sum((a-e) * ln(a/e)) over bins, with empty
// bins floored at psiFloor.
func PopulationStabilityIndex(expected, actual []float64) float64 {
	var psi float64
	for i := range expected {
		e := math.Max(expected[i], psiFloor)
		a := math.Max(actual[i], psiFloor)
		psi += (a - e) * math.Log(a/e)
	}
	return psi
}

func severity(psi float64) DriftSeverity {
	switch {
	case psi >= DriftSignificantThreshold:
		return DriftSignificant
	case psi >= DriftModerateThreshold:
		return DriftModerate
	}
	return DriftNone
}

// DriftConfig configures a DriftMonitor.
type DriftConfig struct {
	WindowSize int // most recent applicants kept, default 1000
	MinSamples int // applicants needed before PSI is reported, default 100
}

// FeatureDrift is the PSI of one column over the current window.
type FeatureDrift struct {
	Column   string        `json:"column"`
	PSI      float64       `json:"psi"`
	Severity DriftSeverity `json:"severity"`
}

// DriftReport summarizes the current window against the baseline.
type DriftReport struct {
	RunID    string         `json:"run_id,omitempty"`
	Samples  int            `json:"samples"`
	Ready    bool           `json:"ready"`
	MaxPSI   float64        `json:"max_psi"`
	Severity DriftSeverity  `json:"severity"`
	Features []FeatureDrift `json:"features,omitempty"`
}

// DriftMonitor keeps a sliding window of served applicants and compares it
// with the baseline of the pipeline that scored them. A new run ID starts a
// fresh window. Safe for concurrent use.
type DriftMonitor struct {
	config  DriftConfig
	metrics DriftMetrics

	mu       sync.Mutex
	runID    string
	baseline *DriftBaseline
	window   [][]float64 // per baseline feature, ring buffer
	next     int
	count    int
}

// NewDriftMonitor creates a monitor. metrics may be nil.
func NewDriftMonitor(config DriftConfig, metrics DriftMetrics) *DriftMonitor {
	if config.WindowSize <= 0 {
		config.WindowSize = 1000
	}
	if config.MinSamples <= 0 {
		config.MinSamples = 100
	}
	if config.MinSamples > config.WindowSize {
		config.MinSamples = config.WindowSize
	}
	return &DriftMonitor{config: config, metrics: metrics}
}

// Observe adds one scored applicant. Pipelines trained without a baseline
// are ignored.
func (m *DriftMonitor) Observe(meta Metadata, a loan.Applicant) {
	if meta.Baseline == nil {
		return
	}
	row, err := features.Engineer(a.Row())
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if meta.RunID != m.runID || m.baseline == nil {
		m.reset(meta.RunID, meta.Baseline)
	}
	for i, fb := range m.baseline.Features {
		m.window[i][m.next] = row.Numeric[fb.Column]
	}
	m.next = (m.next + 1) % m.config.WindowSize
	if m.count < m.config.WindowSize {
		m.count++
	}
}

func (m *DriftMonitor) reset(runID string, b *DriftBaseline) {
	m.runID = runID
	m.baseline = b
	m.window = make([][]float64, len(b.Features))
	for i := range m.window {
		m.window[i] = make([]float64, m.config.WindowSize)
	}
	m.next, m.count = 0, 0
}

// Report computes PSI per feature over the current window.
func (m *DriftMonitor) Report() DriftReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := DriftReport{RunID: m.runID, Samples: m.count, Severity: DriftNone}
	if m.baseline == nil || m.count < m.config.MinSamples {
		return r
	}
	r.Ready = true

	for i, fb := range m.baseline.Features {
		psi := PopulationStabilityIndex(fb.Expected, fb.proportions(m.window[i][:m.count]))
		r.Features = append(r.Features, FeatureDrift{Column: fb.Column, PSI: psi, Severity: severity(psi)})
		r.MaxPSI = math.Max(r.MaxPSI, psi)
		if m.metrics != nil {
			m.metrics.FeatureDriftSet(fb.Column, psi)
		}
	}
	sort.SliceStable(r.Features, func(i, j int) bool { return r.Features[i].PSI > r.Features[j].PSI })
	r.Severity = severity(r.MaxPSI)
	return r
}
