package agc

import "math"

const (
	// SubblocksPerBlock is the number of duty-cycle subblocks in one ~1s block.
	SubblocksPerBlock = 20

	// GainBuckets bounds the per-step gain-seconds histogram; higher steps
	// are accumulated in the last bucket.
	GainBuckets = 32

	windowsPerSecond   = 25000 // 40us burst windows
	windowsPerSubblock = 1250  // ~50ms subblocks

	// loudSampleThreshold is -3dBFS expressed as a linear uint16 magnitude.
	loudSampleThreshold uint16 = 46395

	histogramBuckets = 65536
	fullScale        = 65536.0
)

// Config captures adaptive gain control options. Delays are counted in blocks.
type Config struct {
	SampleRate float64

	BurstControl bool
	RangeControl bool

	// DutyCycle is the fraction (0..1] of subblocks that are inspected.
	DutyCycle float64

	MinGainDB float64
	MaxGainDB float64

	RangeTargetDB    float64
	RangePercentile  int
	RangeAlpha       float64
	RangeChangeDelay int
	RangeRescanDelay int

	BurstAlpha          float64
	BurstLoudRate       float64
	BurstQuietRate      float64
	BurstLoudRunlength  int
	BurstQuietRunlength int
	BurstChangeDelay    int
}

// DefaultConfig returns the stock tuning. Both controls start disabled.
func DefaultConfig() Config {
	return Config{
		SampleRate: 2_400_000,
		DutyCycle:  0.5,
		MinGainDB:  0,
		MaxGainDB:  99999,

		RangeTargetDB:    30,
		RangePercentile:  40,
		RangeAlpha:       2.0 / (5 + 1),
		RangeChangeDelay: 10,
		RangeRescanDelay: 3600,

		BurstAlpha:          2.0 / (5 + 1),
		BurstLoudRate:       5.0,
		BurstQuietRate:      5.0,
		BurstLoudRunlength:  10,
		BurstQuietRunlength: 10,
		BurstChangeDelay:    5,
	}
}

// Enabled reports whether any adaptive control was requested.
func (c Config) Enabled() bool {
	return c.BurstControl || c.RangeControl
}

// normalize clamps out-of-range values instead of rejecting them.
func (c Config) normalize() Config {
	if c.SampleRate < windowsPerSecond {
		c.SampleRate = windowsPerSecond
	}
	if c.RangePercentile < 0 {
		c.RangePercentile = 0
	}
	if c.RangePercentile > 100 {
		c.RangePercentile = 100
	}
	c.RangeAlpha = clampUnit(c.RangeAlpha)
	c.BurstAlpha = clampUnit(c.BurstAlpha)
	c.RangeChangeDelay = max(c.RangeChangeDelay, 0)
	c.RangeRescanDelay = max(c.RangeRescanDelay, 0)
	c.BurstChangeDelay = max(c.BurstChangeDelay, 0)
	c.BurstLoudRunlength = max(c.BurstLoudRunlength, 0)
	c.BurstQuietRunlength = max(c.BurstQuietRunlength, 0)
	return c
}

// dutyNumerator rounds fraction*SubblocksPerBlock to the number of active
// subblocks per block, within [1, SubblocksPerBlock].
func dutyNumerator(fraction float64) int {
	n := math.Round(SubblocksPerBlock * fraction)
	if math.IsNaN(n) || n <= 0 {
		return 1
	}
	if n > SubblocksPerBlock {
		return SubblocksPerBlock
	}
	return int(n)
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ema folds value into smoothed with weight alpha.
func ema(smoothed, value, alpha float64) float64 {
	return smoothed*(1-alpha) + value*alpha
}
