package telemetry

import (
	"github.com/rjboer/sdragc/internal/logging"
)

// StdoutReporter logs every gain report through the structured logger.
type StdoutReporter struct {
	logger logging.Logger
}

// NewStdoutReporter builds a stdout reporter with the provided logger.
func NewStdoutReporter(logger logging.Logger) StdoutReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return StdoutReporter{logger: logger}
}

func (r StdoutReporter) ReportGain(report GainReport) {
	fields := []logging.Field{
		{Key: "subsystem", Value: "telemetry"},
		{Key: "block", Value: report.Block},
		{Key: "gain_db", Value: report.GainDB},
		{Key: "gain_step", Value: report.GainStep},
		{Key: "noise_dbfs", Value: report.NoiseDBFS},
		{Key: "gain_changes", Value: report.GainChanges},
	}
	if report.ScanState != "" {
		fields = append(fields, logging.Field{Key: "scan", Value: report.ScanState})
	}
	if report.LoudUndecoded != 0 || report.LoudDecoded != 0 {
		fields = append(fields,
			logging.Field{Key: "loud_undecoded", Value: report.LoudUndecoded},
			logging.Field{Key: "loud_decoded", Value: report.LoudDecoded},
		)
	}
	r.logger.Info("adaptive gain", fields...)
}
