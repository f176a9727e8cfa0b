package indicator

import "math"

// SMMA calculates Smoothed Moving Average (Wilder-style smoothing).
// First value is SMA(period), then SMMA = (prev*(period-1) + v) / period.
type SMMA struct {
	period  int
	count   int
	sum     float64
	current float64
}

// NewSMMA creates a new SMMA with the given period.
func NewSMMA(period int) *SMMA {
	return &SMMA{period: period}
}

// Update feeds the next value.
func (s *SMMA) Update(v float64) {
	s.count++

	if s.count <= s.period {
		s.sum += v
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}

	s.current = (s.current*float64(s.period-1) + v) / float64(s.period)
}

// Value returns the smoothed value, or NaN while seeding.
func (s *SMMA) Value() float64 {
	if !s.Ready() {
		return math.NaN()
	}
	return s.current
}

func (s *SMMA) Ready() bool { return s.count >= s.period }

// Reset clears the SMMA state for reuse.
func (s *SMMA) Reset() {
	s.count = 0
	s.sum = 0
	s.current = 0
}
