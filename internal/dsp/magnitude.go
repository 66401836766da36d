package dsp

import (
	"math"
)

// FullScale is the largest representable magnitude sample.
const FullScale = 65535

// CountAbove counts samples strictly greater than threshold.
func CountAbove(samples []uint16, threshold uint16) int {
	n := 0
	for _, s := range samples {
		if s > threshold {
			n++
		}
	}
	return n
}

// Magnitude converts normalized IQ samples (|z| <= 1 is in range) into
// linear uint16 magnitudes, saturating at FullScale as the ADC would.
// dst is reused when it has enough capacity.
func Magnitude(dst []uint16, iq []complex64) []uint16 {
	if cap(dst) < len(iq) {
		dst = make([]uint16, len(iq))
	}
	dst = dst[:len(iq)]
	for i, z := range iq {
		re, im := float64(real(z)), float64(imag(z))
		m := math.Sqrt(re*re+im*im) * FullScale
		if m >= FullScale {
			dst[i] = FullScale
			continue
		}
		dst[i] = uint16(m + 0.5)
	}
	return dst
}

// SignalLevel is the mean power of a span relative to full scale, so 1.0
// is a 0dBFS carrier.
func SignalLevel(mags []uint16) float64 {
	if len(mags) == 0 {
		return 0
	}
	var sum float64
	for _, m := range mags {
		v := float64(m) / FullScale
		sum += v * v
	}
	return sum / float64(len(mags))
}

// MagnitudeDBFS converts a linear magnitude to dBFS; zero maps to -Inf.
func MagnitudeDBFS(m float64) float64 {
	if m <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(m/FullScale)
}

// DBFSMagnitude is the inverse of MagnitudeDBFS.
func DBFSMagnitude(dbfs float64) float64 {
	return FullScale * math.Pow(10, dbfs/20)
}
