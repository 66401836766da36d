// Package receiver turns IQ buffers into magnitude samples, runs the pulse
// decoder over them and hands the result to the gain controller.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rjboer/sdragc/internal/agc"
	"github.com/rjboer/sdragc/internal/dsp"
	"github.com/rjboer/sdragc/internal/logging"
	"github.com/rjboer/sdragc/internal/sdr"
)

// Feeder consumes magnitude spans. decoded is nil for spans that were not
// part of a decoded message.
type Feeder interface {
	Feed(samples []uint16, decoded *agc.Decode)
}

// Stats counts what the pipeline has processed so far.
type Stats struct {
	Buffers   uint64
	Samples   uint64
	Decoded   uint64
	Undecoded uint64
}

// Config controls buffering between capture and processing.
type Config struct {
	// QueueDepth is the number of captured buffers that may wait for
	// processing before capture blocks.
	QueueDepth int
	// Interval throttles capture; 0 captures as fast as the source allows.
	Interval time.Duration
}

// Pipeline captures from a source on one goroutine and processes on
// another. Only the processing goroutine calls into the Feeder.
type Pipeline struct {
	src     sdr.Source
	feeder  Feeder
	decoder *PulseDecoder
	logger  logging.Logger
	cfg     Config

	mags []uint16

	mu    sync.Mutex
	stats Stats
}

func New(src sdr.Source, feeder Feeder, decoder *PulseDecoder, logger logging.Logger, cfg Config) *Pipeline {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 4
	}
	return &Pipeline{
		src:     src,
		feeder:  feeder,
		decoder: decoder,
		logger:  logger.With(logging.Subsystem("receiver")),
		cfg:     cfg,
	}
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Run streams until ctx is cancelled or the source fails. Cancellation is
// not an error.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan []complex64, p.cfg.QueueDepth)
	captureErr := make(chan error, 1)

	go func() {
		defer close(queue)
		captureErr <- p.capture(ctx, queue)
	}()

	for buf := range queue {
		p.Process(buf)
	}

	err := <-captureErr
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (p *Pipeline) capture(ctx context.Context, queue chan<- []complex64) error {
	var ticker *time.Ticker
	if p.cfg.Interval > 0 {
		ticker = time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
	}

	for {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}

		buf, err := p.src.RX(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("receive samples: %w", err)
		}
		if len(buf) == 0 {
			p.logger.Warn("received empty buffer")
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case queue <- buf:
		}
	}
}

// Process converts one IQ buffer and feeds it in order: undecoded gaps with
// no decode, each decoded message with its signal level. Messages that
// failed to decode are fed as plain samples.
func (p *Pipeline) Process(iq []complex64) {
	p.mags = dsp.Magnitude(p.mags, iq)
	mags := p.mags

	msgs := p.decoder.Decode(mags)
	var decoded, undecoded uint64
	pos := 0
	for _, msg := range msgs {
		if !msg.Decoded {
			undecoded++
			continue
		}
		decoded++
		if msg.Start > pos {
			p.feeder.Feed(mags[pos:msg.Start], nil)
		}
		p.feeder.Feed(mags[msg.Start:msg.End], &agc.Decode{SignalLevel: msg.SignalLevel})
		pos = msg.End
	}
	if pos < len(mags) {
		p.feeder.Feed(mags[pos:], nil)
	}

	p.mu.Lock()
	p.stats.Buffers++
	p.stats.Samples += uint64(len(mags))
	p.stats.Decoded += decoded
	p.stats.Undecoded += undecoded
	p.mu.Unlock()

	if undecoded > 0 {
		p.logger.Debug("buffer processed",
			logging.F("decoded", decoded),
			logging.F("undecoded", undecoded))
	}
}
