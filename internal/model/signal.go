package model

import "time"

// BreakoutRule names the policy used to classify a breakout.
type BreakoutRule string

const (
	// RuleFinalBar: narrow band and close above the upper band at the final bar.
	RuleFinalBar BreakoutRule = "final"
	// RuleCrossing additionally requires the prior close to be at or below its upper band.
	RuleCrossing BreakoutRule = "crossing"
	// RuleRollingMean compares band width with its recent mean instead of a historical quantile.
	RuleRollingMean BreakoutRule = "rolling_mean"
)

// BreakoutVerdict is the classification of one symbol at its last bar.
type BreakoutVerdict struct {
	Symbol     string       `json:"symbol"`
	AsOf       time.Time    `json:"as_of"`
	IsBreakout bool         `json:"is_breakout"`
	Rule       BreakoutRule `json:"rule"`

	Narrow    bool `json:"narrow"`
	AboveBand bool `json:"above_band"`

	BandWidth        float64 `json:"band_width"`
	SqueezeWidth     float64 `json:"squeeze_width"`
	Threshold        float64 `json:"threshold"`
	ThresholdSamples int     `json:"threshold_samples"`
	Close            float64 `json:"close"`
	UpperBand        float64 `json:"upper_band"`
	PrevClose        float64 `json:"prev_close"`
	PrevUpperBand    float64 `json:"prev_upper_band"`
}

// FailureKind classifies why a symbol was excluded from a scan.
type FailureKind string

const (
	FailureFetch            FailureKind = "fetch_failed"
	FailureNoData           FailureKind = "no_data"
	FailureInsufficientData FailureKind = "insufficient_data"
)

// ScanResult is the outcome of one screening pass over a universe.
type ScanResult struct {
	ID       string    `json:"id"`
	Universe string    `json:"universe"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`

	Passing        []string               `json:"passing"`
	Evaluations    []BreakoutVerdict      `json:"evaluations"`
	CountScanned   int                    `json:"count_scanned"`
	CountFailed    int                    `json:"count_failed"`
	FailureReasons map[string]FailureKind `json:"failure_reasons"`
	RankedBy       string                 `json:"ranked_by,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Elapsed returns how long the scan took.
func (r *ScanResult) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Progress is an incremental report emitted while a scan runs.
type Progress struct {
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Symbol  string `json:"symbol"`
	Outcome string `json:"outcome"`
}

// Fraction returns completion in [0,1].
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Done) / float64(p.Total)
}
