package agc

import "math"

// noiseEstimator tracks a smoothed percentile of sample magnitudes as the
// noise floor. Samples are bucketed by exact magnitude; the table is owned
// and zeroed once per block.
type noiseEstimator struct {
	enabled    bool
	percentile int
	alpha      float64

	hist  *[histogramBuckets]uint32
	total uint64

	smoothed float64
}

func newNoiseEstimator(enabled bool, percentile int, alpha float64) noiseEstimator {
	n := noiseEstimator{
		enabled:    enabled,
		percentile: percentile,
		alpha:      alpha,
	}
	if enabled {
		n.hist = new([histogramBuckets]uint32)
	}
	return n
}

func (n *noiseEstimator) update(buf []uint16) {
	if !n.enabled {
		return
	}
	n.total += uint64(len(buf))
	for _, v := range buf {
		n.hist[v]++
	}
}

// endOfBlock smooths this block's percentile into the estimate and resets
// the histogram. Blocks without samples leave the estimate untouched.
func (n *noiseEstimator) endOfBlock() {
	if !n.enabled {
		return
	}
	if n.total > 0 {
		p := percentileIndex(n.hist, n.total, n.percentile)
		n.smoothed = ema(n.smoothed, float64(p), n.alpha)
	}
	clear(n.hist[:])
	n.total = 0
}

// noiseDBFS reports the smoothed floor relative to full scale, or 0 before
// any estimate exists.
func (n *noiseEstimator) noiseDBFS() float64 {
	if n.smoothed <= 0 {
		return 0
	}
	return 20 * math.Log10(n.smoothed/fullScale)
}

// availableRange is the headroom in dB between the noise floor and full
// scale. An empty estimate yields +Inf.
func (n *noiseEstimator) availableRange() float64 {
	return -20 * math.Log10(n.smoothed/fullScale)
}

// percentileIndex returns the smallest magnitude whose cumulative count
// reaches total*pct/100.
func percentileIndex(hist *[histogramBuckets]uint32, total uint64, pct int) int {
	want := total * uint64(pct) / 100
	if want == 0 {
		want = 1
	}
	var cum uint64
	for i, c := range hist {
		cum += uint64(c)
		if cum >= want {
			return i
		}
	}
	return histogramBuckets - 1
}
