// Package agc adapts a receiver's front-end gain to keep samples inside a
// usable dynamic range.
//
// Two independent measurements drive the gain. Burst control looks for
// short loud runs that failed to decode, the signature of an overloaded
// front end. Range control estimates the noise floor from a percentile of
// sample magnitudes and probes for the highest gain that still leaves the
// configured headroom. Both are evaluated once per ~1s block and at most one
// gain step is taken per block.
//
// A Controller is not safe for concurrent use; callers must serialize Feed.
package agc

import (
	"time"

	"github.com/rjboer/sdragc/internal/dsp"
	"github.com/rjboer/sdragc/internal/logging"
	"github.com/rjboer/sdragc/internal/telemetry"
)

type cumulative struct {
	gainChanges   uint64
	loudUndecoded uint64
	loudDecoded   uint64
	gainSeconds   [GainBuckets]uint32
}

// Controller owns all adaptive gain state for one receiver.
type Controller struct {
	cfg      Config
	driver   GainDriver
	reporter telemetry.Reporter
	logger   logging.Logger
	enabled  bool

	sched schedule
	burst burstDetector
	noise noiseEstimator
	state controlState
	gain  gainState

	blocks uint64
	stats  cumulative
	last   telemetry.GainReport
}

// NewController builds a controller and constrains the current gain to the
// configured limits. If no control is requested, or the driver has no gain
// control, the controller is inert and Feed does nothing.
func NewController(driver GainDriver, count CountFunc, reporter telemetry.Reporter, logger logging.Logger, cfg Config) *Controller {
	if logger == nil {
		logger = logging.Default()
	}
	cfg = cfg.normalize()
	c := &Controller{
		cfg:      cfg,
		driver:   driver,
		reporter: reporter,
		logger:   logger.With(logging.Subsystem("agc")),
	}

	if !cfg.Enabled() {
		return c
	}
	if driver == nil || driver.MaxGain() < 0 {
		c.logger.Warn("adaptive gain control requested, but SDR gain control not available, ignored")
		c.cfg.BurstControl = false
		c.cfg.RangeControl = false
		return c
	}
	if count == nil {
		count = dsp.CountAbove
	}

	c.enabled = true
	c.sched = newSchedule(cfg.SampleRate, cfg.DutyCycle)
	c.burst = newBurstDetector(cfg.BurstControl, c.sched.samplesPerWindow, cfg.BurstAlpha, count)
	c.noise = newNoiseEstimator(cfg.RangeControl, cfg.RangePercentile, cfg.RangeAlpha)
	c.state = controlState{Scan: ScanUp}
	c.gain.min, c.gain.max = gainLimits(driver, cfg.MinGainDB, cfg.MaxGainDB)

	c.logger.Info("using duty cycle", logging.F("percent", c.sched.dutyPercent()))
	c.logger.Info("enabled adaptive gain control",
		logging.F("min_db", c.gainDB(c.gain.min)),
		logging.F("min_step", c.gain.min),
		logging.F("max_db", c.gainDB(c.gain.max)),
		logging.F("max_step", c.gain.max),
	)
	if cfg.RangeControl {
		c.logger.Info("enabled dynamic range control", logging.F("target_db", cfg.RangeTargetDB))
	}
	if cfg.BurstControl {
		c.logger.Info("enabled burst control")
	}

	c.setGain(driver.Gain(), "constraining gain to adaptive gain limits")
	c.gainChanged()
	c.state.GainLimit = driver.Gain()
	return c
}

// Enabled reports whether the controller is acting on samples.
func (c *Controller) Enabled() bool { return c.enabled }

// ScanState returns the current dynamic range probing state.
func (c *Controller) ScanState() ScanState { return c.state.Scan }

// GainLimit returns the highest step known to meet the range target.
func (c *Controller) GainLimit() int { return c.state.GainLimit }

// Limits returns the configured step range.
func (c *Controller) Limits() (lo, hi int) { return c.gain.min, c.gain.max }

// LastReport returns the report produced at the most recent block boundary.
func (c *Controller) LastReport() telemetry.GainReport { return c.last }

// Feed consumes a run of magnitude samples of any length. decoded is
// non-nil when the whole run is a successfully decoded message.
func (c *Controller) Feed(samples []uint16, decoded *Decode) {
	if !c.enabled {
		return
	}

	s := &c.sched
	for len(samples) >= s.subblockSamplesRemaining {
		n := s.subblockSamplesRemaining
		if s.subblockActive {
			c.updateSubblock(samples[:n], decoded)
		}
		samples = samples[n:]

		active, blockDone := s.nextSubblock()
		if !active {
			// a skipped subblock must not look like a continuing loud run
			c.burst.endOfWindow(0)
		}
		if blockDone {
			c.endOfBlock()
		}
	}

	if len(samples) > 0 {
		if s.subblockActive {
			c.updateSubblock(samples, decoded)
		}
		s.consume(len(samples))
	}
}

// updateSubblock handles active samples that stay within one subblock.
func (c *Controller) updateSubblock(buf []uint16, decoded *Decode) {
	if decoded != nil {
		c.burst.recordDecode(decoded)
		c.burst.skip(len(buf))
		return
	}
	c.burst.update(buf)
	c.noise.update(buf)
}

func (c *Controller) endOfBlock() {
	c.noise.endOfBlock()
	undecoded, decoded := c.burst.endOfBlock(c.sched.scale())
	c.stats.loudUndecoded += uint64(undecoded)
	c.stats.loudDecoded += uint64(decoded)

	c.control()

	c.blocks++
	current := c.driver.Gain()
	c.stats.gainSeconds[min(max(current, 0), GainBuckets-1)]++

	c.last = c.buildReport(current)
	if c.reporter != nil {
		c.reporter.ReportGain(c.last)
	}
}

// control is the imperative half of the decision: it evaluates the block,
// logs what changed and actuates the vote.
func (c *Controller) control() {
	prev := c.state
	in := blockInputs{
		Gain:           c.driver.Gain(),
		MinGain:        c.gain.min,
		MaxGain:        c.gain.max,
		GainDownDB:     c.gain.downDB,
		UndecodedRate:  c.burst.undecodedSmoothed,
		DecodedRate:    c.burst.decodedSmoothed,
		AvailableRange: c.noise.availableRange(),
	}

	next, vote := decide(prev, in, c.cfg)
	c.state = next
	c.logScan(prev.Scan, next.Scan, vote, in)

	switch vote.Action {
	case Lower:
		c.adjust(-1, vote.Reason)
	case Raise:
		c.adjust(+1, vote.Reason)
	}
}

func (c *Controller) logScan(prev, next ScanState, vote Vote, in blockInputs) {
	fields := []logging.Field{
		logging.F("available_db", in.AvailableRange),
		logging.F("target_db", c.cfg.RangeTargetDB),
	}

	if !prev.valid() {
		if next.valid() {
			c.logger.Error("dynamic range scan in an invalid state, resetting", append(fields, logging.F("state", prev))...)
		}
		return
	}
	if prev == next {
		if vote.Reason == reasonProbeUpper || vote.Reason == reasonProbeLower {
			c.logger.Debug("continuing dynamic range scan", append(fields, logging.F("state", next))...)
		}
		return
	}

	var msg string
	switch {
	case prev == ScanUp && next == ScanDown:
		msg = "available dynamic range below target, switching to downward scan"
	case prev == ScanUp && next == ScanIdle:
		msg = "reached upper gain limit, halting dynamic range scan"
	case prev == ScanDown && next == ScanIdle && vote.Reason == reasonLoudBursts:
		msg = "loud bursts while scanning down, abandoning scan"
	case prev == ScanDown && next == ScanIdle && in.AvailableRange >= c.cfg.RangeTargetDB:
		msg = "available dynamic range meets target, stopping downward scan"
	case prev == ScanDown && next == ScanIdle:
		msg = "reached lower gain limit, halting dynamic range scan"
	case prev == ScanIdle && next == ScanDown:
		msg = "available dynamic range plus half a gain step below target, starting downward scan"
		fields = append(fields, logging.F("gain_down_db", in.GainDownDB))
	case prev == ScanIdle && next == ScanUp:
		msg = "starting periodic scan for acceptable dynamic range at increased gain"
	default:
		msg = "dynamic range scan state changed"
	}
	c.logger.Info(msg, append(fields, logging.F("from", prev), logging.F("to", next))...)
}

func (c *Controller) buildReport(current int) telemetry.GainReport {
	r := telemetry.GainReport{
		Timestamp:     time.Now(),
		Block:         c.blocks,
		GainStep:      current,
		GainDB:        c.gainDB(current),
		NoiseDBFS:     c.noise.noiseDBFS(),
		GainChanges:   c.stats.gainChanges,
		LoudUndecoded: c.stats.loudUndecoded,
		LoudDecoded:   c.stats.loudDecoded,
		RangeLimit:    c.state.GainLimit,
		RangeLimitDB:  c.gainDB(c.state.GainLimit),
		ScanState:     c.state.Scan.String(),
	}
	for step, seconds := range c.stats.gainSeconds {
		if seconds == 0 {
			continue
		}
		r.GainSeconds = append(r.GainSeconds, telemetry.GainSeconds{
			Step:    step,
			GainDB:  c.gainDB(step),
			Seconds: seconds,
		})
	}
	return r
}
