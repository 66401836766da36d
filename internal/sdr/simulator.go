package sdr

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// r820tGainsTenthDB is the tuner gain table of a common RTL-SDR dongle.
var r820tGainsTenthDB = []int{
	0, 9, 14, 27, 37, 77, 87, 125, 144, 157, 166, 197, 207, 229, 254,
	280, 297, 328, 338, 364, 372, 386, 402, 421, 434, 439, 445, 480, 496,
}

// SimConfig describes a synthetic front end. Levels are referred to the
// antenna, i.e. they are the dBFS a signal would reach at 0dB gain.
type SimConfig struct {
	SampleRate    float64
	NumSamples    int
	InitialGainDB float64

	AntennaNoiseDBFS  float64 // scales with gain
	ReceiverNoiseDBFS float64 // added after the gain stage

	MessageRate     float64 // messages per second
	MinMessageDBFS  float64
	MaxMessageDBFS  float64
	MessageDuration time.Duration

	Seed int64
}

// DefaultSimConfig models an ADS-B style receiver with a mix of distant and
// nearby transmitters; at full gain the floor is a little too high.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		SampleRate:        2_400_000,
		NumSamples:        1 << 16,
		InitialGainDB:     49.6,
		AntennaNoiseDBFS:  -78,
		ReceiverNoiseDBFS: -58,
		MessageRate:       200,
		MinMessageDBFS:    -75,
		MaxMessageDBFS:    -25,
		MessageDuration:   120 * time.Microsecond,
		Seed:              1,
	}
}

// Simulator synthesizes single-channel IQ whose noise floor and message
// amplitudes follow the current gain step. Loud messages clip at full scale.
type Simulator struct {
	mu    sync.RWMutex
	cfg   SimConfig
	table []float64
	gain  int
	rng   *rand.Rand
}

// NewSimulator builds a simulator using the RTL-SDR gain table.
func NewSimulator(cfg SimConfig) *Simulator {
	def := DefaultSimConfig()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.NumSamples == 0 {
		cfg.NumSamples = def.NumSamples
	}
	if cfg.MessageDuration == 0 {
		cfg.MessageDuration = def.MessageDuration
	}
	table := make([]float64, len(r820tGainsTenthDB))
	for i, g := range r820tGainsTenthDB {
		table[i] = float64(g) / 10
	}
	return &Simulator{
		cfg:   cfg,
		table: table,
		gain:  NearestStep(table, cfg.InitialGainDB),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (s *Simulator) SampleRate() float64 { return s.cfg.SampleRate }

func (s *Simulator) Close() error { return nil }

func (s *Simulator) Gain() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gain
}

// SetGain selects step, clamped to the table.
func (s *Simulator) SetGain(step int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gain = min(max(step, 0), len(s.table)-1)
	return s.gain, nil
}

func (s *Simulator) GainDB(step int) float64 {
	return s.table[min(max(step, 0), len(s.table)-1)]
}

func (s *Simulator) MaxGain() int { return len(s.table) - 1 }

// NoiseFloorDBFS is the expected noise power at the ADC for a gain step.
func (s *Simulator) NoiseFloorDBFS(step int) float64 {
	return s.noiseFloor(s.GainDB(step))
}

// RX returns one buffer of samples at the current gain.
func (s *Simulator) RX(ctx context.Context) ([]complex64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg
	gainDB := s.table[s.gain]
	n := cfg.NumSamples

	sigma := math.Sqrt(math.Pow(10, s.noiseFloor(gainDB)/10) / 2)
	out := make([]complex64, n)
	for i := range out {
		out[i] = complex(float32(s.rng.NormFloat64()*sigma), float32(s.rng.NormFloat64()*sigma))
	}

	msgLen := int(cfg.MessageDuration.Seconds() * cfg.SampleRate)
	chip := max(int(cfg.SampleRate*0.5e-6), 1)
	expected := cfg.MessageRate * float64(n) / cfg.SampleRate
	for m := s.poisson(expected); m > 0; m-- {
		start := s.rng.Intn(n)
		level := cfg.MinMessageDBFS + s.rng.Float64()*(cfg.MaxMessageDBFS-cfg.MinMessageDBFS)
		amp := math.Pow(10, (level+gainDB)/20)
		phase := s.rng.Float64() * 2 * math.Pi
		carrier := complex(float32(amp*math.Cos(phase)), float32(amp*math.Sin(phase)))
		for i := start; i < start+msgLen && i < n; i += chip {
			if s.rng.Intn(2) == 0 {
				continue
			}
			for j := i; j < i+chip && j < n; j++ {
				out[j] = clip(out[j] + carrier)
			}
		}
	}
	return out, nil
}

func (s *Simulator) noiseFloor(gainDB float64) float64 {
	ext := math.Pow(10, (s.cfg.AntennaNoiseDBFS+gainDB)/10)
	rx := math.Pow(10, s.cfg.ReceiverNoiseDBFS/10)
	return 10 * math.Log10(ext+rx)
}

func (s *Simulator) poisson(lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	l := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= s.rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

// clip saturates a sample at full scale like the ADC does.
func clip(z complex64) complex64 {
	re, im := float64(real(z)), float64(imag(z))
	m := math.Hypot(re, im)
	if m <= 1 {
		return z
	}
	return complex(float32(re/m), float32(im/m))
}
