package marketdata

import (
	"trading-alerts/internal/model"
)

// Resample folds ascending bars into tf buckets (bucket = Bucket(ts)).
// Open comes from the first bar of a bucket, Close from the last, High/Low
// are the extremes and Volume is summed. A bar older than the bucket being
// built is dropped. The last bucket may still be forming.
func Resample(bars []model.Bar, tf Timeframe) []model.Bar {
	out := make([]model.Bar, 0, len(bars)/2+1)
	var cur *model.Bar

	for _, b := range bars {
		bucket := tf.Bucket(b.TS)

		if cur != nil && bucket.Before(cur.TS) {
			continue // stale
		}

		if cur != nil && bucket.After(cur.TS) {
			out = append(out, *cur)
			cur = nil
		}

		if cur == nil {
			nb := b
			nb.TS = bucket
			cur = &nb
			continue
		}

		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}
