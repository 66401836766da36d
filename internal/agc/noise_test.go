package agc

import (
	"math"
	"testing"
)

func TestPercentileIndex(t *testing.T) {
	hist := new([histogramBuckets]uint32)
	hist[1000] = 1000
	hist[2000] = 9000

	if got := percentileIndex(hist, 10000, 10); got != 1000 {
		t.Fatalf("10th percentile: expected 1000, got %d", got)
	}
	if got := percentileIndex(hist, 10000, 11); got != 2000 {
		t.Fatalf("11th percentile: expected 2000, got %d", got)
	}
	if got := percentileIndex(hist, 10000, 100); got != 2000 {
		t.Fatalf("100th percentile: expected 2000, got %d", got)
	}
	if got := percentileIndex(hist, 10000, 0); got != 1000 {
		t.Fatalf("0th percentile: expected smallest sample 1000, got %d", got)
	}
}

func TestPercentileIndexDoesNotOverrun(t *testing.T) {
	hist := new([histogramBuckets]uint32)
	hist[5] = 1
	// a total larger than the table holds must clamp to the last bucket
	if got := percentileIndex(hist, 100, 50); got != histogramBuckets-1 {
		t.Fatalf("expected clamp to %d, got %d", histogramBuckets-1, got)
	}
}

func TestNoiseEstimatorBlockCycle(t *testing.T) {
	n := newNoiseEstimator(true, 50, 0.5)
	n.update(constantSamples(10, 6554))
	if n.total != 10 {
		t.Fatalf("expected total 10, got %d", n.total)
	}
	n.endOfBlock()

	if math.Abs(n.smoothed-3277) > 1e-9 {
		t.Fatalf("expected smoothed 3277, got %f", n.smoothed)
	}
	if n.total != 0 || n.hist[6554] != 0 {
		t.Fatalf("histogram not reset at block end")
	}
	wantDBFS := 20 * math.Log10(3277/fullScale)
	if math.Abs(n.noiseDBFS()-wantDBFS) > 1e-9 {
		t.Fatalf("expected noise %f dBFS, got %f", wantDBFS, n.noiseDBFS())
	}
	if math.Abs(n.availableRange()+wantDBFS) > 1e-9 {
		t.Fatalf("available range should mirror the noise floor")
	}
}

func TestNoiseEstimatorSkipsEmptyBlocks(t *testing.T) {
	n := newNoiseEstimator(true, 50, 0.5)
	n.smoothed = 100
	n.endOfBlock()
	if n.smoothed != 100 {
		t.Fatalf("empty block changed the estimate to %f", n.smoothed)
	}
}

func TestNoiseEstimatorBeforeFirstEstimate(t *testing.T) {
	n := newNoiseEstimator(true, 50, 0.5)
	if n.noiseDBFS() != 0 {
		t.Fatalf("expected 0 dBFS without an estimate")
	}
	if !math.IsInf(n.availableRange(), 1) {
		t.Fatalf("expected unlimited range without an estimate")
	}
}
