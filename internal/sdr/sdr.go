package sdr

import (
	"context"
)

// GainControl is the gain surface of a radio. Steps index the backend's
// gain table, 0..MaxGain. SetGain returns the step the hardware settled on.
type GainControl interface {
	Gain() int
	SetGain(step int) (int, error)
	GainDB(step int) float64
	// MaxGain returns the highest step, or -1 without gain control.
	MaxGain() int
}

// Source produces blocks of normalized IQ samples (|z| == 1 is full scale).
type Source interface {
	RX(ctx context.Context) ([]complex64, error)
}

// Receiver is a radio that both streams samples and exposes gain control.
type Receiver interface {
	Source
	GainControl
	SampleRate() float64
	Close() error
}

// NearestStep returns the table index whose value is closest to db.
func NearestStep(table []float64, db float64) int {
	best := 0
	for i, v := range table {
		if abs(v-db) < abs(table[best]-db) {
			best = i
		}
	}
	return best
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// StepForDB returns the step of g whose gain is closest to db.
func StepForDB(g GainControl, db float64) int {
	best := 0
	for step := 0; step <= g.MaxGain(); step++ {
		if abs(g.GainDB(step)-db) < abs(g.GainDB(best)-db) {
			best = step
		}
	}
	return best
}
