package sdr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	plutoPhyDevice   = "ad9361-phy"
	plutoRxChannel   = "voltage0"
	plutoMinGainDB   = -3
	plutoMaxGainDB   = 71
	plutoAttrTimeout = 3 * time.Second
)

// AttributeIO reads and writes IIO device attributes.
type AttributeIO interface {
	ReadAttribute(ctx context.Context, device, channel, attr string) (string, error)
	WriteAttribute(ctx context.Context, device, channel, attr, value string) error
}

// PlutoGain drives the AD9361 receive gain of an ADALM-Pluto in 1dB steps.
// Step 0 is -3dB; the top step is 71dB.
type PlutoGain struct {
	mu    sync.Mutex
	io    AttributeIO
	table []float64
	gain  int
}

// NewPlutoGain switches the receiver to manual gain and reads the current
// setting back.
func NewPlutoGain(ctx context.Context, io AttributeIO) (*PlutoGain, error) {
	p := &PlutoGain{io: io}
	for db := plutoMinGainDB; db <= plutoMaxGainDB; db++ {
		p.table = append(p.table, float64(db))
	}

	ctx, cancel := context.WithTimeout(ctx, plutoAttrTimeout)
	defer cancel()
	if err := io.WriteAttribute(ctx, plutoPhyDevice, plutoRxChannel, "gain_control_mode", "manual"); err != nil {
		return nil, fmt.Errorf("set manual gain mode: %w", err)
	}
	step, err := p.readGain(ctx)
	if err != nil {
		return nil, err
	}
	p.gain = step
	return p, nil
}

func (p *PlutoGain) Gain() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gain
}

// SetGain writes the step's gain and returns the step the radio reports back.
func (p *PlutoGain) SetGain(step int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	step = min(max(step, 0), len(p.table)-1)
	ctx, cancel := context.WithTimeout(context.Background(), plutoAttrTimeout)
	defer cancel()

	value := strconv.Itoa(int(p.table[step]))
	if err := p.io.WriteAttribute(ctx, plutoPhyDevice, plutoRxChannel, "hardwaregain", value); err != nil {
		return p.gain, fmt.Errorf("write hardwaregain %s: %w", value, err)
	}
	actual, err := p.readGain(ctx)
	if err != nil {
		return p.gain, err
	}
	p.gain = actual
	return actual, nil
}

func (p *PlutoGain) GainDB(step int) float64 {
	return p.table[min(max(step, 0), len(p.table)-1)]
}

func (p *PlutoGain) MaxGain() int { return len(p.table) - 1 }

func (p *PlutoGain) readGain(ctx context.Context) (int, error) {
	raw, err := p.io.ReadAttribute(ctx, plutoPhyDevice, plutoRxChannel, "hardwaregain")
	if err != nil {
		return 0, fmt.Errorf("read hardwaregain: %w", err)
	}
	db, err := parseGainDB(raw)
	if err != nil {
		return 0, err
	}
	return NearestStep(p.table, db), nil
}

// parseGainDB accepts the sysfs form "71.000000 dB" as well as a bare number.
func parseGainDB(raw string) (float64, error) {
	field := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "dB"))
	db, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hardwaregain %q: %w", raw, err)
	}
	return db, nil
}
