// Package evalagent puts a robot arm, a gripper, a force/torque sensor and an
// RGB-D camera behind one object for policy evaluation loops.
package evalagent

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	"evalagent/device"
	"evalagent/ftsensor"
	"evalagent/transform"
)

// Drivers opens each device. Every field is required.
type Drivers struct {
	Robot   func(ctx context.Context, robotAddr, controllerAddr string) (device.RobotControl, error)
	Gripper func(ctx context.Context, port string) (device.GripperControl, error)
	Sensor  func(ctx context.Context, historySize int) (device.ForceTorqueSensing, error)
	Camera  func(ctx context.Context, serial string) (device.RGBDCapture, error)
}

func (d Drivers) validate() error {
	switch {
	case d.Robot == nil:
		return errors.New("no robot driver")
	case d.Gripper == nil:
		return errors.New("no gripper driver")
	case d.Sensor == nil:
		return errors.New("no force/torque sensor driver")
	case d.Camera == nil:
		return errors.New("no camera driver")
	}
	return nil
}

// Option configures an Agent.
type Option func(*Agent)

// WithSleep replaces the wait used for settling and blocking commands. sleep
// returns false if ctx ended first.
func WithSleep(sleep func(ctx context.Context, d time.Duration) bool) Option {
	return func(a *Agent) {
		a.sleep = sleep
	}
}

// WithLogger sets the agent's logger.
func WithLogger(logger logging.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// Agent owns one handle per device. It is not safe for concurrent use.
type Agent struct {
	robot   device.RobotControl
	gripper device.GripperControl
	sensor  device.ForceTorqueSensing
	camera  device.RGBDCapture

	sleep  func(ctx context.Context, d time.Duration) bool
	logger logging.Logger
}

// New opens the robot, gripper, sensor and camera in that order, bringing
// each to its start state. The first failure is returned; devices opened
// before it stay open.
func New(ctx context.Context, cfg *Config, drivers Drivers, opts ...Option) (*Agent, error) {
	if err := drivers.validate(); err != nil {
		return nil, err
	}
	a := &Agent{sleep: utils.SelectContextOrWait}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.NewLogger("evalagent")
	}

	historySize := cfg.NumObsForce
	if historySize <= 0 {
		historySize = ftsensor.DefaultHistorySize
	}

	robot, err := drivers.Robot(ctx, cfg.RobotAddress, cfg.ControllerAddress)
	if err != nil {
		return nil, fmt.Errorf("open robot: %w", err)
	}
	a.robot = robot
	if err := robot.SendTCPPose(ctx, ReadyPose()); err != nil {
		return nil, fmt.Errorf("move robot to ready pose: %w", err)
	}
	if err := a.wait(ctx, robotSettle); err != nil {
		return nil, err
	}
	a.logger.Info("Robot at ready pose")

	gripper, err := drivers.Gripper(ctx, cfg.GripperPort)
	if err != nil {
		return nil, fmt.Errorf("open gripper: %w", err)
	}
	a.gripper = gripper
	if err := gripper.SetForce(ctx, DefaultGripperForce); err != nil {
		return nil, fmt.Errorf("set gripper force: %w", err)
	}
	if err := gripper.SetWidth(ctx, 0); err != nil {
		return nil, fmt.Errorf("close gripper: %w", err)
	}
	if err := a.wait(ctx, gripperSettle); err != nil {
		return nil, err
	}
	a.logger.Info("Gripper ready")

	sensor, err := drivers.Sensor(ctx, historySize)
	if err != nil {
		return nil, fmt.Errorf("open force/torque sensor: %w", err)
	}
	a.sensor = sensor
	if err := sensor.StartStreaming(ctx); err != nil {
		return nil, fmt.Errorf("start force/torque streaming: %w", err)
	}
	if err := a.wait(ctx, sensorSettle); err != nil {
		return nil, err
	}
	a.logger.Infof("Force/torque sensor streaming, keeping %d samples", historySize)

	camera, err := drivers.Camera(ctx, cfg.CameraSerial)
	if err != nil {
		return nil, fmt.Errorf("open camera: %w", err)
	}
	a.camera = camera
	// auto exposure needs a few frames to converge
	for i := 0; i < warmupFrames; i++ {
		if _, err := camera.Frame(ctx); err != nil {
			return nil, fmt.Errorf("camera warm-up frame %d: %w", i, err)
		}
	}
	a.logger.Info("Camera ready")

	return a, nil
}

func (a *Agent) wait(ctx context.Context, d time.Duration) error {
	if !a.sleep(ctx, d) {
		return ctx.Err()
	}
	return nil
}

// Observation returns the latest camera frame.
func (a *Agent) Observation(ctx context.Context) (device.Frame, error) {
	return a.camera.Frame(ctx)
}

// ForceTorqueHistory returns the retained force/torque window resampled at
// freq Hz, oldest first. freq <= 0 selects DefaultHistoryFreq.
func (a *Agent) ForceTorqueHistory(ctx context.Context, freq float64) ([]device.Wrench, error) {
	if freq <= 0 {
		freq = DefaultHistoryFreq
	}
	return a.sensor.History(ctx, freq)
}

// ForceTorque returns the newest sample of the default-rate history.
func (a *Agent) ForceTorque(ctx context.Context) (device.Wrench, error) {
	history, err := a.ForceTorqueHistory(ctx, DefaultHistoryFreq)
	if err != nil {
		return device.Wrench{}, err
	}
	if len(history) == 0 {
		return device.Wrench{}, ftsensor.ErrNoSamples
	}
	return history[len(history)-1], nil
}

// Force returns the newest force sample [fx, fy, fz].
func (a *Agent) Force(ctx context.Context) ([3]float64, error) {
	w, err := a.ForceTorque(ctx)
	if err != nil {
		return [3]float64{}, err
	}
	return [3]float64{w[0], w[1], w[2]}, nil
}

// Torque returns the newest torque sample [tx, ty, tz].
func (a *Agent) Torque(ctx context.Context) ([3]float64, error) {
	w, err := a.ForceTorque(ctx)
	if err != nil {
		return [3]float64{}, err
	}
	return [3]float64{w[3], w[4], w[5]}, nil
}

// ForceTorqueValue returns the magnitudes of the newest force and torque.
func (a *Agent) ForceTorqueValue(ctx context.Context) (force, torque float64, err error) {
	w, err := a.ForceTorque(ctx)
	if err != nil {
		return 0, 0, err
	}
	return w.Force().Norm(), w.Torque().Norm(), nil
}

// ForceValue returns the magnitude of the newest force.
func (a *Agent) ForceValue(ctx context.Context) (float64, error) {
	f, _, err := a.ForceTorqueValue(ctx)
	return f, err
}

// TorqueValue returns the magnitude of the newest torque.
func (a *Agent) TorqueValue(ctx context.Context) (float64, error) {
	_, t, err := a.ForceTorqueValue(ctx)
	return t, err
}

// TCPPose returns the tool pose reported by the robot.
func (a *Agent) TCPPose(ctx context.Context) (device.Pose, error) {
	return a.robot.TCPPose(ctx)
}

// SetTCPPose converts pose from rep to a quaternion pose and sends it. With
// blocking set it waits briefly for the robot to pick the target up.
func (a *Agent) SetTCPPose(ctx context.Context, pose []float64, rep transform.Representation, convention string, blocking bool) error {
	target, err := transform.ToQuaternionPose(pose, rep, convention)
	if err != nil {
		return err
	}
	if err := a.robot.SendTCPPose(ctx, target); err != nil {
		return err
	}
	if blocking {
		return a.wait(ctx, poseBlockingWait)
	}
	return nil
}

// SetGripperWidth opens the jaws to width metres, clamped to the gripper's range.
func (a *Agent) SetGripperWidth(ctx context.Context, width float64, blocking bool) error {
	if err := a.gripper.SetWidth(ctx, WidthCommand(width)); err != nil {
		return err
	}
	if blocking {
		return a.wait(ctx, widthBlockingWait)
	}
	return nil
}

// WidthCommand maps a jaw opening in metres to a gripper command in [0, 1000].
// Fractions of a step are dropped.
func WidthCommand(width float64) int {
	cmd := width / MaxGripperWidth * MaxGripperCommand
	return int(math.Max(0, math.Min(MaxGripperCommand, cmd)))
}

// Stop ends force/torque streaming, then stops the robot. The gripper and
// camera are left as they are.
func (a *Agent) Stop(ctx context.Context) error {
	if err := a.sensor.StopStreaming(ctx); err != nil {
		return fmt.Errorf("stop force/torque streaming: %w", err)
	}
	if err := a.robot.Stop(ctx); err != nil {
		return fmt.Errorf("stop robot: %w", err)
	}
	return nil
}

// Close stops the agent and releases every handle that holds resources.
func (a *Agent) Close(ctx context.Context) error {
	var errs []error
	if err := a.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, h := range []interface{}{a.camera, a.gripper, a.sensor, a.robot} {
		if c, ok := h.(device.Closer); ok {
			if err := c.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return multierr.Combine(errs...)
}

// Intrinsics returns the camera projection matrix.
func (a *Agent) Intrinsics() [3][4]float64 { return intrinsics }

// ReadyPose returns the pose the robot moves to on start.
func ReadyPose() device.Pose { return readyPose }

// ReadyRot6D returns the ready orientation in 6D form.
func ReadyRot6D() [6]float64 { return readyRot6D }

// ReadyPose returns the pose the robot moves to on start.
func (a *Agent) ReadyPose() device.Pose { return ReadyPose() }

// ReadyRot6D returns the ready orientation in 6D form.
func (a *Agent) ReadyRot6D() [6]float64 { return ReadyRot6D() }
