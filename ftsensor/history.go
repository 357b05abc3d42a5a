// Package ftsensor streams a force/torque source into a bounded history and
// resamples that history to a fixed frequency on read.
package ftsensor

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/interp"

	"evalagent/device"
)

// DefaultHistorySize is the number of samples kept when none is configured.
const DefaultHistorySize = 100

// ErrNoSamples is returned when the history is read before anything was streamed.
var ErrNoSamples = errors.New("no force/torque samples")

// Sample is one timestamped wrench.
type Sample struct {
	Time   time.Time
	Wrench device.Wrench
}

// History is a fixed-size ring of samples. It is safe for concurrent use.
type History struct {
	mu   sync.RWMutex
	buf  []Sample
	next int
	full bool
}

// NewHistory returns a ring that keeps the last size samples.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{buf: make([]Sample, size)}
}

// Add appends s, dropping the oldest sample when the ring is full.
func (h *History) Add(s Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.next] = s
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

// Len returns the number of retained samples.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// Cap returns the ring size.
func (h *History) Cap() int {
	return len(h.buf)
}

// Snapshot copies the retained samples, oldest first.
func (h *History) Snapshot() []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.full {
		return append([]Sample(nil), h.buf[:h.next]...)
	}
	out := make([]Sample, 0, len(h.buf))
	out = append(out, h.buf[h.next:]...)
	return append(out, h.buf[:h.next]...)
}

// Resample interpolates samples streamed at rate Hz onto a grid with spacing
// 1/freq that ends at the newest sample. The result has
// floor((n-1)*freq/rate)+1 entries, oldest first, where n counts samples with
// distinct timestamps. Timestamp jitter moves the grid but not its length.
func Resample(samples []Sample, rate, freq float64) ([]device.Wrench, error) {
	if !positive(freq) {
		return nil, errors.Errorf("resample frequency must be positive, got %v", freq)
	}
	if !positive(rate) {
		return nil, errors.Errorf("stream rate must be positive, got %v", rate)
	}
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	// interpolation needs strictly increasing timestamps
	kept := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if len(kept) > 0 && !s.Time.After(kept[len(kept)-1].Time) {
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) == 1 {
		return []device.Wrench{kept[0].Wrench}, nil
	}

	start := kept[0].Time
	xs := make([]float64, len(kept))
	for i, s := range kept {
		xs[i] = s.Time.Sub(start).Seconds()
	}
	span := xs[len(xs)-1]

	var fits [6]interp.PiecewiseLinear
	for axis := range fits {
		ys := make([]float64, len(kept))
		for i, s := range kept {
			ys[i] = s.Wrench[axis]
		}
		if err := fits[axis].Fit(xs, ys); err != nil {
			return nil, errors.Wrapf(err, "fit axis %d", axis)
		}
	}

	count := int(math.Floor(float64(len(kept)-1)*freq/rate+1e-9)) + 1
	out := make([]device.Wrench, count)
	for k := range out {
		x := span - float64(count-1-k)/freq
		if x < 0 {
			x = 0
		}
		for axis := range fits {
			out[k][axis] = fits[axis].Predict(x)
		}
	}
	return out, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
