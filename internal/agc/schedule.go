package agc

// schedule partitions the sample stream into windows, subblocks and blocks.
// Every block boundary is a subblock boundary and every subblock boundary is
// a window boundary.
//
// Within each block exactly dutyN of dutyD subblocks are active. They are
// spread evenly by adding dutyN to a counter per subblock and activating the
// next subblock whenever the counter rolls over dutyD.
type schedule struct {
	samplesPerWindow   int
	samplesPerSubblock int
	subblocksPerBlock  int

	dutyN       int
	dutyD       int
	dutyCounter int

	subblocksRemaining       int
	subblockActive           bool
	subblockSamplesRemaining int
}

func newSchedule(sampleRate float64, dutyCycle float64) schedule {
	window := int(sampleRate / windowsPerSecond)
	if window < 1 {
		window = 1
	}
	return newScheduleSized(window, window*windowsPerSubblock, dutyNumerator(dutyCycle))
}

func newScheduleSized(samplesPerWindow, samplesPerSubblock, dutyN int) schedule {
	return schedule{
		samplesPerWindow:         samplesPerWindow,
		samplesPerSubblock:       samplesPerSubblock,
		subblocksPerBlock:        SubblocksPerBlock,
		dutyN:                    dutyN,
		dutyD:                    SubblocksPerBlock,
		subblocksRemaining:       SubblocksPerBlock,
		subblockSamplesRemaining: samplesPerSubblock,
	}
}

// nextSubblock closes the current subblock. It reports whether the subblock
// that follows is active and whether the closed one completed a block.
func (s *schedule) nextSubblock() (active, blockDone bool) {
	s.subblockSamplesRemaining = s.samplesPerSubblock

	s.dutyCounter += s.dutyN
	if s.dutyCounter >= s.dutyD {
		s.dutyCounter -= s.dutyD
		s.subblockActive = true
	} else {
		s.subblockActive = false
	}

	s.subblocksRemaining--
	if s.subblocksRemaining == 0 {
		s.subblocksRemaining = s.subblocksPerBlock
		blockDone = true
	}
	return s.subblockActive, blockDone
}

// consume accounts for a trailing run that does not complete the subblock.
func (s *schedule) consume(n int) {
	s.subblockSamplesRemaining -= n
}

// scale extrapolates counts from inspected subblocks to all subblocks.
func (s *schedule) scale() float64 {
	return float64(s.dutyD) / float64(s.dutyN)
}

func (s *schedule) dutyPercent() float64 {
	return 100 * float64(s.dutyN) / float64(s.dutyD)
}
