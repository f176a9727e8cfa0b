package indicator

import "math"

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
// Update is O(1) per value, no history scans.
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
}

// NewRSI creates a new RSI with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Update feeds the next close.
func (r *RSI) Update(price float64) {
	r.count++

	if r.count == 1 {
		// First close, no delta yet
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		// Accumulation phase: build initial averages
		r.avgGain += gain
		r.avgLoss += loss
		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
		}
		return
	}

	// Wilder's smoothing: avg = (prevAvg * (period-1) + x) / period
	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
}

// Value returns the RSI in [0, 100]. NaN while seeding or when the window
// saw no movement at all.
func (r *RSI) Value() float64 {
	if !r.Ready() {
		return math.NaN()
	}
	return rsiFromAverages(r.avgGain, r.avgLoss)
}

func (r *RSI) Ready() bool { return r.count > r.period }

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return math.NaN()
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
