package metrics

import "math"

// Welford keeps a running mean and standard deviation in O(1) space using
// Welford's online algorithm.
type Welford struct {
	count int
	mean  float64
	m2    float64 // sum of squared differences from the mean
}

// Observe adds one value
func (w *Welford) Observe(v float64) {
	w.count++
	delta := v - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (v - w.mean)
}

func (w *Welford) Count() int { return w.count }

func (w *Welford) Mean() float64 { return w.mean }

// StdDev is the population standard deviation, 0 below two observations
func (w *Welford) StdDev() float64 {
	if w.count < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.count))
}
