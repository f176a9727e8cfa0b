package indicator

import "math"

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	period int
	buf    []float64 // preallocated circular buffer
	idx    int       // current write position
	count  int       // total values received
	sum    float64
}

// NewSMA creates a new SMA with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

// Update feeds the next value.
func (s *SMA) Update(v float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}
	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++
}

// Value returns the current average, or NaN until period values were seen.
func (s *SMA) Value() float64 {
	if !s.Ready() {
		return math.NaN()
	}
	return s.sum / float64(s.period)
}

func (s *SMA) Ready() bool { return s.count >= s.period }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
