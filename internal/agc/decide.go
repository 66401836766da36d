package agc

import "fmt"

// ScanState is the dynamic range probing state.
type ScanState int

const (
	ScanIdle ScanState = iota
	ScanUp
	ScanDown
)

func (s ScanState) String() string {
	switch s {
	case ScanIdle:
		return "idle"
	case ScanUp:
		return "scan-up"
	case ScanDown:
		return "scan-down"
	default:
		return fmt.Sprintf("invalid(%d)", int(s))
	}
}

func (s ScanState) valid() bool {
	switch s {
	case ScanIdle, ScanUp, ScanDown:
		return true
	default:
		return false
	}
}

// Action is the gain change voted for a block.
type Action int

const (
	Hold Action = iota
	Raise
	Lower
)

func (a Action) String() string {
	switch a {
	case Raise:
		return "raise"
	case Lower:
		return "lower"
	default:
		return "hold"
	}
}

// Vote is the outcome of one block's evaluation.
type Vote struct {
	Action Action
	Reason string
}

const (
	reasonLoudBursts   = "high rate of loud undecoded messages"
	reasonBelowLimit   = "low loud message rate and gain below dynamic range limit"
	reasonProbeLower   = "probing dynamic range gain lower bound"
	reasonProbeUpper   = "probing dynamic range gain upper bound"
	reasonRangeEroded  = "dynamic range fell below target value"
	reasonPeriodicScan = "periodic re-probing of dynamic range gain upper bound"
)

// controlState is everything the per-block decision carries between blocks.
type controlState struct {
	Scan      ScanState
	GainLimit int // highest step known to meet the range target

	RescanTimer      int
	RangeChangeTimer int
	BurstChangeTimer int

	LoudBlocks  int
	QuietBlocks int
}

// afterGainChange inhibits both controls while the front end settles.
func (s *controlState) afterGainChange(cfg Config) {
	s.RangeChangeTimer = cfg.RangeChangeDelay
	s.BurstChangeTimer = cfg.BurstChangeDelay
	s.LoudBlocks = 0
	s.QuietBlocks = 0
}

// lowerLimit pulls the probed limit below gain if it is not already.
func (s *controlState) lowerLimit(gain int) {
	if s.GainLimit >= gain {
		s.GainLimit = gain - 1
	}
}

func (s *controlState) tick() {
	if s.BurstChangeTimer > 0 {
		s.BurstChangeTimer--
	}
	if s.RangeChangeTimer > 0 {
		s.RangeChangeTimer--
	}
	if s.RescanTimer > 0 {
		s.RescanTimer--
	}
}

// blockInputs are the measurements a decision is made from.
type blockInputs struct {
	Gain    int
	MinGain int
	MaxGain int

	GainDownDB float64

	UndecodedRate float64
	DecodedRate   float64

	AvailableRange float64
}

// decide runs one block of the control loop. Burst and range control vote
// independently; a decrease always wins over an increase, and "not up"
// vetoes any increase.
func decide(st controlState, in blockInputs, cfg Config) (controlState, Vote) {
	st.tick()

	var (
		up, down, notUp bool
		upWhy, downWhy  string
	)

	if cfg.BurstControl && st.BurstChangeTimer == 0 {
		switch {
		case in.UndecodedRate > cfg.BurstLoudRate:
			st.QuietBlocks = 0
			st.LoudBlocks++
		case in.DecodedRate < cfg.BurstQuietRate:
			st.LoudBlocks = 0
			st.QuietBlocks++
		default:
			st.LoudBlocks = 0
			st.QuietBlocks = 0
		}

		switch {
		case st.LoudBlocks >= cfg.BurstLoudRunlength:
			down, notUp = true, true
			downWhy = reasonLoudBursts
			// a downward scan would be confused by a further reduction;
			// abandon it and re-probe once gain is no longer held down
			if st.Scan == ScanDown {
				st.Scan = ScanIdle
				st.RescanTimer = 0
			}
		case st.QuietBlocks < cfg.BurstQuietRunlength:
			notUp = true
		case in.Gain < st.GainLimit:
			up = true
			upWhy = reasonBelowLimit
		}
	}

	if cfg.RangeControl && st.RangeChangeTimer == 0 {
		avail := in.AvailableRange
		target := cfg.RangeTargetDB

		// the limit only rises here; lowering depends on the scan state
		if avail >= target && in.Gain > st.GainLimit {
			st.GainLimit = in.Gain
		}

		switch st.Scan {
		case ScanUp:
			if avail < target {
				down, notUp = true, true
				downWhy = reasonProbeLower
				st.Scan = ScanDown
				st.lowerLimit(in.Gain)
			} else if in.Gain >= in.MaxGain {
				st.Scan = ScanIdle
				st.RescanTimer = cfg.RangeRescanDelay
			} else if !notUp {
				up = true
				upWhy = reasonProbeUpper
			}

		case ScanDown:
			if avail >= target {
				st.Scan = ScanIdle
				st.RescanTimer = cfg.RangeRescanDelay
			} else {
				st.lowerLimit(in.Gain)
				if in.Gain <= in.MinGain {
					st.Scan = ScanIdle
					st.RescanTimer = cfg.RangeRescanDelay
				} else {
					down, notUp = true, true
					downWhy = reasonProbeLower
				}
			}

		case ScanIdle:
			if avail+in.GainDownDB/2 < target && in.Gain > in.MinGain {
				st.lowerLimit(in.Gain)
				st.Scan = ScanDown
				down, notUp = true, true
				downWhy = reasonRangeEroded
			} else if st.RescanTimer == 0 && !notUp {
				if avail >= target && in.Gain < in.MaxGain {
					st.Scan = ScanUp
					up = true
					upWhy = reasonPeriodicScan
				} else {
					st.RescanTimer = cfg.RangeRescanDelay
				}
			}

		default:
			st.Scan = ScanIdle
			st.RescanTimer = cfg.RangeRescanDelay
		}
	}

	switch {
	case down:
		return st, Vote{Action: Lower, Reason: downWhy}
	case up && !notUp:
		return st, Vote{Action: Raise, Reason: upWhy}
	default:
		return st, Vote{Action: Hold}
	}
}
