package receiver

import (
	"math"
	"time"

	"github.com/rjboer/sdragc/internal/dsp"
)

// Message is a span of magnitude samples [Start, End) that looked like a
// transmission. Decoded is false when the span was too distorted to read.
type Message struct {
	Start       int
	End         int
	Decoded     bool
	SignalLevel float64
}

// PulseDecoder finds on/off keyed messages of a fixed length in magnitude
// buffers. It stands in for a real demodulator: a message decodes unless
// too many of its samples sit at full scale.
type PulseDecoder struct {
	msgSamples      int
	thresholdFactor float64
	maxClipFraction float64
}

// DecoderConfig tunes the pulse decoder.
type DecoderConfig struct {
	MessageDuration time.Duration
	// ThresholdDB is how far above the buffer's mean magnitude a sample
	// must be to start a message.
	ThresholdDB     float64
	MaxClipFraction float64
}

// DefaultDecoderConfig matches a 120µs Mode S long message.
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		MessageDuration: 120 * time.Microsecond,
		ThresholdDB:     12,
		MaxClipFraction: 0.05,
	}
}

func NewPulseDecoder(sampleRate float64, cfg DecoderConfig) *PulseDecoder {
	def := DefaultDecoderConfig()
	if cfg.MessageDuration <= 0 {
		cfg.MessageDuration = def.MessageDuration
	}
	if cfg.ThresholdDB <= 0 {
		cfg.ThresholdDB = def.ThresholdDB
	}
	if cfg.MaxClipFraction <= 0 {
		cfg.MaxClipFraction = def.MaxClipFraction
	}
	return &PulseDecoder{
		msgSamples:      max(int(cfg.MessageDuration.Seconds()*sampleRate), 1),
		thresholdFactor: math.Pow(10, cfg.ThresholdDB/20),
		maxClipFraction: cfg.MaxClipFraction,
	}
}

// Decode returns the messages found in mags, in order and non-overlapping.
// A message cut off by the end of the buffer is not reported.
func (d *PulseDecoder) Decode(mags []uint16) []Message {
	if len(mags) == 0 {
		return nil
	}
	var sum float64
	for _, m := range mags {
		sum += float64(m)
	}
	threshold := sum / float64(len(mags)) * d.thresholdFactor
	if threshold >= dsp.FullScale {
		return nil
	}

	var msgs []Message
	for i := 0; i+d.msgSamples <= len(mags); i++ {
		if float64(mags[i]) <= threshold {
			continue
		}
		span := mags[i : i+d.msgSamples]
		msgs = append(msgs, d.classify(i, span, threshold))
		i += d.msgSamples - 1
	}
	return msgs
}

func (d *PulseDecoder) classify(start int, span []uint16, threshold float64) Message {
	msg := Message{Start: start, End: start + len(span)}

	clipped := 0
	on := make([]uint16, 0, len(span))
	for _, m := range span {
		if m == dsp.FullScale {
			clipped++
		}
		if float64(m) > threshold {
			on = append(on, m)
		}
	}
	if float64(clipped) > d.maxClipFraction*float64(len(span)) {
		return msg
	}
	msg.Decoded = true
	msg.SignalLevel = dsp.SignalLevel(on)
	return msg
}
