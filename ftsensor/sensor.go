package ftsensor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"evalagent/device"
)

// DefaultRate is the streaming rate in Hz.
const DefaultRate = 100.0

// Source reads one wrench from the hardware.
type Source interface {
	ReadWrench(ctx context.Context) (device.Wrench, error)
}

// Option configures a Sensor.
type Option func(*Sensor)

// WithRate sets the streaming rate in Hz.
func WithRate(hz float64) Option {
	return func(s *Sensor) {
		if hz > 0 {
			s.rate = hz
		}
	}
}

// WithClock replaces time.Now for sample timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sensor) {
		if now != nil {
			s.now = now
		}
	}
}

// Sensor polls a Source in the background and keeps the last N samples.
type Sensor struct {
	source  Source
	history *History
	rate    float64
	now     func() time.Time
	logger  logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	readErrors atomic.Int64
}

var _ device.ForceTorqueSensing = (*Sensor)(nil)

// New wraps source with a history of historySize samples.
func New(source Source, historySize int, logger logging.Logger, opts ...Option) *Sensor {
	s := &Sensor{
		source:  source,
		history: NewHistory(historySize),
		rate:    DefaultRate,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartStreaming launches the polling loop. The loop outlives ctx and runs
// until StopStreaming.
func (s *Sensor) StartStreaming(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("force/torque sensor is already streaming")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.stream(loopCtx, s.done)

	s.logger.Debugf("force/torque streaming started at %.1f Hz, keeping %d samples", s.rate, s.history.Cap())
	return nil
}

func (s *Sensor) stream(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		w, err := s.source.ReadWrench(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// log the first failure only; the rest are counted
			if s.readErrors.Add(1) == 1 {
				s.logger.Warnf("force/torque read failed: %v", err)
			}
			continue
		}
		s.history.Add(Sample{Time: s.now(), Wrench: w})
	}
}

// StopStreaming stops the polling loop and waits for it to exit.
// Stopping a sensor that is not streaming is a no-op.
func (s *Sensor) StopStreaming(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if n := s.readErrors.Load(); n > 0 {
		s.logger.Infof("force/torque streaming stopped with %d failed reads", n)
	}
	return nil
}

// History returns the retained samples resampled at freq Hz.
func (s *Sensor) History(_ context.Context, freq float64) ([]device.Wrench, error) {
	return Resample(s.history.Snapshot(), s.rate, freq)
}

// Streaming reports whether the polling loop is running.
func (s *Sensor) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// ReadErrors returns how many reads failed since construction.
func (s *Sensor) ReadErrors() int64 {
	return s.readErrors.Load()
}

// Close stops streaming and closes the source if it holds resources.
func (s *Sensor) Close(ctx context.Context) error {
	err := s.StopStreaming(ctx)
	if c, ok := s.source.(device.Closer); ok {
		if cerr := c.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
