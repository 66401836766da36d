package agc

import (
	"io"

	"github.com/rjboer/sdragc/internal/logging"
	"github.com/rjboer/sdragc/internal/telemetry"
)

// tableDriver is a GainDriver over a fixed dB table that records every
// SetGain request.
type tableDriver struct {
	table    []float64
	gain     int
	requests []int
	// coerce, when set, maps a request to the step the hardware settles on.
	coerce func(int) int
}

func newTableDriver(steps int, start int) *tableDriver {
	table := make([]float64, steps)
	for i := range table {
		table[i] = float64(i) * 2.5
	}
	return &tableDriver{table: table, gain: start}
}

func (d *tableDriver) Gain() int { return d.gain }

func (d *tableDriver) SetGain(step int) (int, error) {
	d.requests = append(d.requests, step)
	if d.coerce != nil {
		step = d.coerce(step)
	}
	d.gain = step
	return step, nil
}

func (d *tableDriver) GainDB(step int) float64 { return d.table[step] }

func (d *tableDriver) MaxGain() int { return len(d.table) - 1 }

type noGainDriver struct{ tableDriver }

func (noGainDriver) MaxGain() int { return -1 }

type recordingReporter struct {
	reports []telemetry.GainReport
}

func (r *recordingReporter) ReportGain(report telemetry.GainReport) {
	r.reports = append(r.reports, report)
}

func quietLogger() logging.Logger {
	return logging.New(logging.Debug, logging.Text, io.Discard)
}

// testSampleRate gives 4-sample windows, 5000-sample subblocks and
// 100000-sample blocks.
const testSampleRate = 4 * windowsPerSecond

const testBlock = 4 * windowsPerSubblock * SubblocksPerBlock

func constantSamples(n int, v uint16) []uint16 {
	buf := make([]uint16, n)
	for i := range buf {
		buf[i] = v
	}
	return buf
}
