// Package servogripper drives a single Feetech STS3215 jaw as a parallel gripper.
package servogripper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.viam.com/rdk/logging"

	"evalagent/device"
)

const (
	DefaultBaudRate = 1_000_000
	DefaultTimeout  = 100 * time.Millisecond
)

// Servo is the part of *feetech.Servo the gripper drives.
type Servo interface {
	Position(ctx context.Context) (int, error)
	SetPosition(ctx context.Context, position int) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
}

// Config selects the bus and calibration.
type Config struct {
	Port            string
	BaudRate        int
	Timeout         time.Duration
	CalibrationFile string
	// Calibration overrides the file when non-zero.
	Calibration Calibration
}

// Gripper maps width commands onto one calibrated servo.
type Gripper struct {
	mu          sync.Mutex
	servo       Servo
	calibration Calibration
	closer      func() error
	logger      logging.Logger
}

var _ device.GripperControl = (*Gripper)(nil)

// Open connects to the bus, locates the gripper servo and enables torque.
func Open(ctx context.Context, cfg Config, logger logging.Logger) (*Gripper, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("must specify port for serial communication")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	cal := cfg.Calibration
	if cal == (Calibration{}) {
		cal, _ = LoadCalibration(cfg.CalibrationFile, logger)
	}
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gripper calibration: %w", err)
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create feetech servo bus: %w", err)
	}

	found, err := bus.Scan(ctx, cal.ID, cal.ID)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to scan for gripper servo %d: %w", cal.ID, err)
	}
	var servo *feetech.Servo
	for _, s := range found {
		if s.ID == cal.ID {
			servo = feetech.NewServo(bus, s.ID, s.Model)
		}
	}
	if servo == nil {
		bus.Close()
		return nil, fmt.Errorf("gripper servo %d not found on %s", cal.ID, cfg.Port)
	}

	g, err := New(ctx, servo, cal, bus.Close, logger)
	if err != nil {
		bus.Close()
		return nil, err
	}
	logger.Infof("Connected to feetech gripper servo %d on %s", cal.ID, cfg.Port)
	return g, nil
}

// Probe pings servo id on port without enabling torque.
func Probe(ctx context.Context, port string, baudRate, id int) error {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  DefaultTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", port, err)
	}
	defer bus.Close()

	servo := feetech.NewServo(bus, id, &feetech.ModelSTS3215)
	if _, err := servo.Ping(ctx); err != nil {
		return fmt.Errorf("servo %d did not answer on %s: %w", id, port, err)
	}
	return nil
}

// New wraps a servo and enables its torque. closer may be nil.
func New(ctx context.Context, servo Servo, cal Calibration, closer func() error, logger logging.Logger) (*Gripper, error) {
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gripper calibration: %w", err)
	}
	if err := servo.Enable(ctx); err != nil {
		return nil, fmt.Errorf("failed to enable gripper torque: %w", err)
	}
	return &Gripper{
		servo:       servo,
		calibration: cal,
		closer:      closer,
		logger:      logger,
	}, nil
}

// SetForce is accepted for interface compatibility. The STS3215 has no
// per-move force register, so the value is only logged.
func (g *Gripper) SetForce(_ context.Context, force float64) error {
	g.logger.Debugf("feetech gripper ignores force %v", force)
	return nil
}

// SetWidth moves the jaw to width permille of its calibrated stroke.
func (g *Gripper) SetWidth(ctx context.Context, width int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	raw, err := g.calibration.Raw(width)
	if err != nil {
		return fmt.Errorf("failed to denormalize position: %w", err)
	}
	if err := g.servo.SetPosition(ctx, raw); err != nil {
		return fmt.Errorf("failed to set position: %w", err)
	}
	return nil
}

// Width reads the current opening in permille.
func (g *Gripper) Width(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	raw, err := g.servo.Position(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read position: %w", err)
	}
	return g.calibration.Permille(raw)
}

// Close disables torque and releases the bus.
func (g *Gripper) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	err := g.servo.Disable(ctx)
	if err != nil {
		g.logger.Warnf("failed to disable gripper torque: %v", err)
	}
	if g.closer != nil {
		if cerr := g.closer(); cerr != nil {
			return cerr
		}
	}
	return err
}
