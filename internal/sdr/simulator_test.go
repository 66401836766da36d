package sdr

import (
	"context"
	"math"
	"testing"
)

func TestSimulatorGainTable(t *testing.T) {
	sim := NewSimulator(DefaultSimConfig())
	if sim.MaxGain() != 28 {
		t.Fatalf("expected 29 gain steps, got max %d", sim.MaxGain())
	}
	if sim.Gain() != 28 || sim.GainDB(sim.Gain()) != 49.6 {
		t.Fatalf("initial gain should snap to 49.6dB, got step %d", sim.Gain())
	}

	if got, _ := sim.SetGain(100); got != 28 {
		t.Fatalf("expected clamp to top step, got %d", got)
	}
	if got, _ := sim.SetGain(-4); got != 0 {
		t.Fatalf("expected clamp to step 0, got %d", got)
	}
	if got, _ := sim.SetGain(12); got != 12 || sim.Gain() != 12 || sim.GainDB(12) != 20.7 {
		t.Fatalf("expected step 12 (20.7dB), got %d", got)
	}
}

func TestSimulatorSnapsInitialGain(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.InitialGainDB = 20
	if got := NewSimulator(cfg).Gain(); got != 11 {
		t.Fatalf("20dB should snap to 19.7dB (step 11), got %d", got)
	}
}

func TestSimulatorNoiseFloorFollowsGain(t *testing.T) {
	sim := NewSimulator(DefaultSimConfig())
	low := sim.NoiseFloorDBFS(0)
	high := sim.NoiseFloorDBFS(sim.MaxGain())
	if math.Abs(low+57.96) > 0.05 {
		t.Fatalf("at 0dB the receiver noise should dominate, got %.2f", low)
	}
	if math.Abs(high+28.39) > 0.05 {
		t.Fatalf("at full gain the antenna noise should dominate, got %.2f", high)
	}
}

func TestSimulatorRXNoisePower(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.MessageRate = 0
	sim := NewSimulator(cfg)
	sim.SetGain(10)

	samples, err := sim.RX(context.Background())
	if err != nil {
		t.Fatalf("rx failed: %v", err)
	}
	if len(samples) != cfg.NumSamples {
		t.Fatalf("expected %d samples, got %d", cfg.NumSamples, len(samples))
	}
	var power float64
	for _, z := range samples {
		power += float64(real(z))*float64(real(z)) + float64(imag(z))*float64(imag(z))
	}
	got := 10 * math.Log10(power/float64(len(samples)))
	if want := sim.NoiseFloorDBFS(10); math.Abs(got-want) > 0.5 {
		t.Fatalf("expected noise power near %.2f dBFS, got %.2f", want, got)
	}
}

func TestSimulatorLoudMessagesClip(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.MessageRate = 10000
	cfg.MinMessageDBFS = -20
	cfg.MaxMessageDBFS = -20
	sim := NewSimulator(cfg)

	samples, err := sim.RX(context.Background())
	if err != nil {
		t.Fatalf("rx failed: %v", err)
	}
	clipped := 0
	for _, z := range samples {
		m := math.Hypot(float64(real(z)), float64(imag(z)))
		if m > 1.0001 {
			t.Fatalf("sample exceeds full scale: %f", m)
		}
		if m > 0.999 {
			clipped++
		}
	}
	if clipped == 0 {
		t.Fatalf("expected clipped samples from loud messages")
	}
}

func TestSimulatorIsReproducible(t *testing.T) {
	a := NewSimulator(DefaultSimConfig())
	b := NewSimulator(DefaultSimConfig())
	sa, _ := a.RX(context.Background())
	sb, _ := b.RX(context.Background())
	for i := range sa {
		if sa[i] != sb[i] {
			t.Fatalf("sample %d differs between seeded runs", i)
		}
	}
}

func TestSimulatorRXHonoursContext(t *testing.T) {
	sim := NewSimulator(DefaultSimConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sim.RX(ctx); err == nil {
		t.Fatalf("expected error from cancelled context")
	}
}

func TestNearestStep(t *testing.T) {
	table := []float64{0, 10, 20}
	cases := map[float64]int{-5: 0, 4: 0, 6: 1, 19: 2, 100: 2}
	for db, want := range cases {
		if got := NearestStep(table, db); got != want {
			t.Fatalf("NearestStep(%v) = %d, want %d", db, got, want)
		}
	}
}
