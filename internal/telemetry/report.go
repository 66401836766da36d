package telemetry

import "time"

// GainSeconds is the cumulative time spent at one gain step.
type GainSeconds struct {
	Step    int     `json:"step"`
	GainDB  float64 `json:"gain_db"`
	Seconds uint32  `json:"seconds"`
}

// GainReport is emitted by the adaptive gain controller once per block.
// Counters are cumulative since the controller was created.
type GainReport struct {
	Timestamp     time.Time     `json:"timestamp"`
	Block         uint64        `json:"block"`
	GainStep      int           `json:"gain_step"`
	GainDB        float64       `json:"gain_db"`
	NoiseDBFS     float64       `json:"noise_dbfs"`
	GainChanges   uint64        `json:"gain_changes"`
	LoudUndecoded uint64        `json:"loud_undecoded"`
	LoudDecoded   uint64        `json:"loud_decoded"`
	RangeLimit    int           `json:"dynamic_range_limit_step"`
	RangeLimitDB  float64       `json:"dynamic_range_limit_db"`
	ScanState     string        `json:"scan_state"`
	GainSeconds   []GainSeconds `json:"gain_seconds"`
}

// Reporter captures per-block gain telemetry.
type Reporter interface {
	ReportGain(report GainReport)
}

// MultiReporter fans out telemetry to multiple destinations.
type MultiReporter []Reporter

// ReportGain forwards the report to each configured reporter.
func (m MultiReporter) ReportGain(report GainReport) {
	for _, r := range m {
		if r != nil {
			r.ReportGain(report)
		}
	}
}
