// Package dhgripper drives a DH-Robotics parallel gripper over Modbus RTU.
package dhgripper

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	"evalagent/device"
)

// Holding registers.
const (
	regInit        = 0x0100
	regForce       = 0x0101
	regPosition    = 0x0103
	regInitState   = 0x0200
	regGripState   = 0x0201
	regPositionFbk = 0x0202
)

const (
	DefaultBaudRate = 115200
	DefaultDeviceID = 1
	DefaultTimeout  = 500 * time.Millisecond
	DefaultInitWait = 10 * time.Second

	MinForce    = 20
	MaxForce    = 100
	MaxPosition = 1000

	readPoll     = 20 * time.Millisecond
	initPollWait = 100 * time.Millisecond
)

// GripState is the value of the grip status register.
type GripState uint16

const (
	GripMoving GripState = iota
	GripArrived
	GripCaught
	GripDropped
)

func (s GripState) String() string {
	switch s {
	case GripMoving:
		return "moving"
	case GripArrived:
		return "arrived"
	case GripCaught:
		return "caught"
	case GripDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Port is the part of a serial port the gripper needs. go.bug.st/serial ports satisfy it.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Config selects the serial line and device.
type Config struct {
	Port     string
	BaudRate int
	DeviceID int
	Timeout  time.Duration
	InitWait time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaudRate <= 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.DeviceID <= 0 {
		c.DeviceID = DefaultDeviceID
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.InitWait <= 0 {
		c.InitWait = DefaultInitWait
	}
}

// Gripper is a connected DH-Robotics gripper.
type Gripper struct {
	mu       sync.Mutex
	port     Port
	id       byte
	timeout  time.Duration
	initWait time.Duration
	logger   logging.Logger
}

var _ device.GripperControl = (*Gripper)(nil)

// Open opens the serial port and initializes the gripper.
func Open(ctx context.Context, cfg Config, logger logging.Logger) (*Gripper, error) {
	cfg.applyDefaults()
	if cfg.Port == "" {
		return nil, errors.New("gripper serial port is required")
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open gripper port %s", cfg.Port)
	}

	g, err := New(port, cfg, logger)
	if err != nil {
		port.Close()
		return nil, err
	}
	if err := g.Initialize(ctx); err != nil {
		port.Close()
		return nil, err
	}
	logger.Infof("Connected to DH gripper %d on %s at %d baud", cfg.DeviceID, cfg.Port, cfg.BaudRate)
	return g, nil
}

// Probe reports whether a gripper answers on cfg.Port. It reads the init
// state register and never moves the jaws.
func Probe(ctx context.Context, cfg Config, logger logging.Logger) error {
	cfg.applyDefaults()
	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to open gripper port %s", cfg.Port)
	}
	defer port.Close()

	g, err := New(port, cfg, logger)
	if err != nil {
		return err
	}
	_, err = g.readRegister(ctx, regInitState)
	return err
}

// New wraps an already open port.
func New(port Port, cfg Config, logger logging.Logger) (*Gripper, error) {
	cfg.applyDefaults()
	if cfg.DeviceID > 247 {
		return nil, errors.Errorf("modbus device id %d out of range", cfg.DeviceID)
	}
	if err := port.SetReadTimeout(readPoll); err != nil {
		return nil, errors.Wrap(err, "failed to set gripper read timeout")
	}
	return &Gripper{
		port:     port,
		id:       byte(cfg.DeviceID),
		timeout:  cfg.Timeout,
		initWait: cfg.InitWait,
		logger:   logger,
	}, nil
}

// Initialize runs the homing sequence unless the gripper reports it already ran.
func (g *Gripper) Initialize(ctx context.Context) error {
	state, err := g.readRegister(ctx, regInitState)
	if err != nil {
		return errors.Wrap(err, "failed to read gripper init state")
	}
	if state == 1 {
		g.logger.Debug("gripper already initialized")
		return nil
	}

	if err := g.writeRegister(ctx, regInit, 1); err != nil {
		return errors.Wrap(err, "failed to start gripper init")
	}

	deadline := time.Now().Add(g.initWait)
	for {
		if !utils.SelectContextOrWait(ctx, initPollWait) {
			return ctx.Err()
		}
		state, err := g.readRegister(ctx, regInitState)
		if err != nil {
			return errors.Wrap(err, "failed to poll gripper init state")
		}
		if state == 1 {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("gripper did not finish init within %s (state %d)", g.initWait, state)
		}
	}
}

// SetForce sets the grip force in percent. Values are clamped to [20, 100].
func (g *Gripper) SetForce(ctx context.Context, force float64) error {
	if math.IsNaN(force) {
		return errors.New("gripper force is NaN")
	}
	v := math.Round(math.Max(MinForce, math.Min(MaxForce, force)))
	if v != force {
		g.logger.Warnf("gripper force %v clamped to %v", force, v)
	}
	return g.writeRegister(ctx, regForce, uint16(v))
}

// SetWidth commands the opening in permille of the full stroke.
func (g *Gripper) SetWidth(ctx context.Context, width int) error {
	if width < 0 || width > MaxPosition {
		return errors.Errorf("gripper width %d outside [0, %d]", width, MaxPosition)
	}
	return g.writeRegister(ctx, regPosition, uint16(width))
}

// Position reads back the current opening in permille.
func (g *Gripper) Position(ctx context.Context) (int, error) {
	v, err := g.readRegister(ctx, regPositionFbk)
	return int(v), err
}

// GripState reads the grip status register.
func (g *Gripper) GripState(ctx context.Context) (GripState, error) {
	v, err := g.readRegister(ctx, regGripState)
	return GripState(v), err
}

// Close releases the serial port.
func (g *Gripper) Close(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.port.Close()
}

func (g *Gripper) writeRegister(ctx context.Context, reg, value uint16) error {
	req := writeRequest(g.id, reg, value)
	resp, err := g.transact(ctx, req, writeFrameLen)
	if err != nil {
		return err
	}
	if err := parseWriteEcho(req, resp); err != nil {
		return errors.Wrapf(err, "write register 0x%04x", reg)
	}
	return nil
}

func (g *Gripper) readRegister(ctx context.Context, reg uint16) (uint16, error) {
	resp, err := g.transact(ctx, readRequest(g.id, reg), readResponseLen)
	if err != nil {
		return 0, err
	}
	v, err := parseReadResponse(g.id, resp)
	if err != nil {
		return 0, errors.Wrapf(err, "read register 0x%04x", reg)
	}
	return v, nil
}

// transact sends req and collects up to want bytes of reply. A shorter
// exception frame ends the read early.
func (g *Gripper) transact(ctx context.Context, req []byte, want int) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.port.ResetInputBuffer(); err != nil {
		return nil, errors.Wrap(err, "failed to flush gripper port")
	}
	if _, err := g.port.Write(req); err != nil {
		return nil, errors.Wrap(err, "failed to write to gripper port")
	}

	deadline := time.Now().Add(g.timeout)
	buf := make([]byte, 0, want)
	chunk := make([]byte, want)
	for len(buf) < want {
		if len(buf) >= exceptionRespLen && buf[1]&exceptionFlag != 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, errors.Errorf("gripper response timed out after %d of %d bytes", len(buf), want)
		}
		n, err := g.port.Read(chunk[:want-len(buf)])
		if err != nil {
			return nil, errors.Wrap(err, "failed to read from gripper port")
		}
		buf = append(buf, chunk[:n]...)
	}
	return buf, nil
}
