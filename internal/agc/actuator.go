package agc

import "github.com/rjboer/sdragc/internal/logging"

// GainDriver is the radio's gain control surface. Steps index the driver's
// gain table; SetGain returns the step the hardware actually settled on,
// which may differ from the request.
type GainDriver interface {
	Gain() int
	SetGain(step int) (int, error)
	GainDB(step int) float64
	// MaxGain is the highest valid step, or negative if gain control is
	// unsupported.
	MaxGain() int
}

// gainState mirrors the driver's current step and the size of one step
// in either direction.
type gainState struct {
	min, max int
	upDB     float64
	downDB   float64
}

// gainLimits picks the step range whose dB values fall inside [minDB, maxDB].
func gainLimits(d GainDriver, minDB, maxDB float64) (lo, hi int) {
	maxGain := d.MaxGain()
	for lo = 0; lo < maxGain; lo++ {
		if d.GainDB(lo) >= minDB {
			break
		}
	}
	for hi = maxGain; hi > lo; hi-- {
		if d.GainDB(hi) <= maxDB {
			break
		}
	}
	return lo, hi
}

// setGain asks the driver for step, clamped to the configured limits, and
// reports whether the gain actually changed.
func (c *Controller) setGain(step int, why string) bool {
	step = min(max(step, c.gain.min), c.gain.max)

	current := c.driver.Gain()
	if current == step {
		return false
	}

	c.logger.Info("changing gain",
		logging.F("from_db", c.gainDB(current)),
		logging.F("from_step", current),
		logging.F("to_db", c.gainDB(step)),
		logging.F("to_step", step),
		logging.F("reason", why),
	)

	actual, err := c.driver.SetGain(step)
	if err != nil {
		c.logger.Error("set gain failed", logging.F("step", step), logging.F("error", err.Error()))
		return false
	}
	if actual == current {
		return false
	}
	c.stats.gainChanges++
	return true
}

// adjust moves the gain by delta steps and resynchronises derived state if
// the driver accepted the change.
func (c *Controller) adjust(delta int, why string) {
	if c.setGain(c.driver.Gain()+delta, why) {
		c.gainChanged()
	}
}

// gainChanged recomputes everything derived from the current gain and
// inhibits both controls so they do not react to their own transient.
func (c *Controller) gainChanged() {
	g := c.driver.Gain()
	c.gain.upDB = c.gainDB(g+1) - c.gainDB(g)
	c.gain.downDB = c.gainDB(g) - c.gainDB(g-1)
	c.burst.setGainStep(c.gain.upDB)
	c.state.afterGainChange(c.cfg)
}

// gainDB looks up a step, clamped to the driver's table.
func (c *Controller) gainDB(step int) float64 {
	step = min(max(step, 0), c.driver.MaxGain())
	return c.driver.GainDB(step)
}
