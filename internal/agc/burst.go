package agc

import "math"

// CountFunc counts how many samples exceed threshold. It must be free of
// side effects; it sits on the hot path.
type CountFunc func(samples []uint16, threshold uint16) int

// Decode describes a successfully decoded message that covers the span of
// samples it is fed with. SignalLevel is the mean linear power relative to
// full scale (1.0 == 0dBFS).
type Decode struct {
	SignalLevel float64
}

// burstDetector looks for runs of loud windows that did not decode, which
// indicate an over-amplified front end, and for decodes that were loud.
type burstDetector struct {
	enabled          bool
	samplesPerWindow int
	count            CountFunc

	windowRemaining int
	windowCounter   int
	runLength       int

	blockLoudUndecoded int
	blockLoudDecoded   int

	undecodedSmoothed float64
	decodedSmoothed   float64
	alpha             float64

	loudThreshold float64
}

func newBurstDetector(enabled bool, samplesPerWindow int, alpha float64, count CountFunc) burstDetector {
	return burstDetector{
		enabled:          enabled,
		samplesPerWindow: samplesPerWindow,
		count:            count,
		windowRemaining:  samplesPerWindow,
		alpha:            alpha,
	}
}

// setGainStep recomputes the loud-decode threshold as 3dB plus one gain
// step below full scale.
func (b *burstDetector) setGainStep(gainUpDB float64) {
	b.loudThreshold = math.Pow(10, (0-gainUpDB-3.0)/10.0)
}

// update scans samples that may cross window boundaries but not a subblock
// boundary.
func (b *burstDetector) update(buf []uint16) {
	if !b.enabled {
		return
	}

	if len(buf) < b.windowRemaining {
		b.windowCounter += b.count(buf, loudSampleThreshold)
		b.windowRemaining -= len(buf)
		return
	}

	// finish the open window
	n := b.windowRemaining
	b.endOfWindow(b.windowCounter + b.count(buf[:n], loudSampleThreshold))
	buf = buf[n:]

	for len(buf) >= b.samplesPerWindow {
		b.endOfWindow(b.count(buf[:b.samplesPerWindow], loudSampleThreshold))
		buf = buf[b.samplesPerWindow:]
	}

	b.windowCounter = b.count(buf, loudSampleThreshold)
	b.windowRemaining = b.samplesPerWindow - len(buf)
}

// skip steps over n samples belonging to a decoded message. Windows closed
// inside the span count as quiet.
func (b *burstDetector) skip(n int) {
	if !b.enabled {
		return
	}

	if n < b.windowRemaining {
		b.windowRemaining -= n
		return
	}

	b.endOfWindow(b.windowCounter)
	n -= b.windowRemaining

	for ; n >= b.samplesPerWindow; n -= b.samplesPerWindow {
		b.endOfWindow(0)
	}

	b.windowCounter = 0
	b.windowRemaining = b.samplesPerWindow - n
}

// recordDecode counts a decoded message that was louder than loudThreshold.
func (b *burstDetector) recordDecode(d *Decode) {
	if !b.enabled {
		return
	}
	if d.SignalLevel >= b.loudThreshold {
		b.blockLoudDecoded++
	}
}

// endOfWindow classifies a finished window holding counter loud samples.
// A run of 2..5 loud windows (80..200us) is the shape of a message that was
// too loud to decode.
func (b *burstDetector) endOfWindow(counter int) {
	if !b.enabled {
		return
	}
	if counter > b.samplesPerWindow/4 {
		b.runLength++
		return
	}
	if b.runLength >= 2 && b.runLength <= 5 {
		b.blockLoudUndecoded++
	}
	b.runLength = 0
}

// endOfBlock folds this block's counts into the smoothed rates and returns
// the raw counts for cumulative statistics.
func (b *burstDetector) endOfBlock(scale float64) (undecoded, decoded int) {
	if !b.enabled {
		return 0, 0
	}
	undecoded, decoded = b.blockLoudUndecoded, b.blockLoudDecoded
	b.undecodedSmoothed = ema(b.undecodedSmoothed, scale*float64(undecoded), b.alpha)
	b.decodedSmoothed = ema(b.decodedSmoothed, scale*float64(decoded), b.alpha)
	b.blockLoudUndecoded = 0
	b.blockLoudDecoded = 0
	return undecoded, decoded
}
