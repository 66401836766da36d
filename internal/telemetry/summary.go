package telemetry

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GainShare is the time spent at one gain setting.
type GainShare struct {
	GainDB  float64 `json:"gain_db"`
	Seconds uint32  `json:"seconds"`
	Percent float64 `json:"percent"`
}

// Summary is the cumulative view of a receiver's adaptive gain, shaped like
// the "adaptive" section of a stats file.
type Summary struct {
	GainDB        float64      `json:"gain_db"`
	RangeLimitDB  float64      `json:"dynamic_range_limit_db"`
	GainChanges   uint64       `json:"gain_changes"`
	LoudUndecoded uint64       `json:"loud_undecoded"`
	LoudDecoded   uint64       `json:"loud_decoded"`
	NoiseDBFS     float64      `json:"noise_dbfs"`
	GainSeconds   [][2]float64 `json:"gain_seconds"`
	TotalSeconds  float64      `json:"total_seconds"`
	MedianGainDB  float64      `json:"median_gain_db"`
	Shares        []GainShare  `json:"shares"`
}

// Summarize derives a Summary from a (cumulative) report. The median gain
// is weighted by time spent at each setting.
func Summarize(r GainReport) Summary {
	s := Summary{
		GainDB:        r.GainDB,
		RangeLimitDB:  r.RangeLimitDB,
		GainChanges:   r.GainChanges,
		LoudUndecoded: r.LoudUndecoded,
		LoudDecoded:   r.LoudDecoded,
		NoiseDBFS:     r.NoiseDBFS,
		GainSeconds:   [][2]float64{},
		Shares:        []GainShare{},
	}

	buckets := make([]GainSeconds, 0, len(r.GainSeconds))
	for _, gs := range r.GainSeconds {
		if gs.Seconds > 0 {
			buckets = append(buckets, gs)
		}
	}
	if len(buckets) == 0 {
		return s
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].GainDB < buckets[j].GainDB })

	gains := make([]float64, len(buckets))
	weights := make([]float64, len(buckets))
	for i, b := range buckets {
		gains[i] = b.GainDB
		weights[i] = float64(b.Seconds)
		s.GainSeconds = append(s.GainSeconds, [2]float64{b.GainDB, float64(b.Seconds)})
	}

	s.TotalSeconds = floats.Sum(weights)
	s.MedianGainDB = stat.Quantile(0.5, stat.Empirical, gains, weights)
	for i, b := range buckets {
		s.Shares = append(s.Shares, GainShare{
			GainDB:  b.GainDB,
			Seconds: b.Seconds,
			Percent: 100 * weights[i] / s.TotalSeconds,
		})
	}
	return s
}
