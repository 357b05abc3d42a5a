package viamdev

import (
	"fmt"

	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/components/gripper"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"evalagent/device"
)

func lookup[T any](m Machine, name resource.Name) (T, error) {
	var zero T
	res, err := m.ResourceByName(name)
	if err != nil {
		return zero, fmt.Errorf("resource %s: %w", name, err)
	}
	typed, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("resource %s is %T, not the expected type", name, res)
	}
	return typed, nil
}

// RobotFromMachine wraps the arm called name on m.
func RobotFromMachine(m Machine, name string, closer device.Closer, logger logging.Logger) (*Robot, error) {
	a, err := lookup[PoseArm](m, arm.Named(name))
	if err != nil {
		return nil, err
	}
	return NewRobot(a, closer, logger), nil
}

// GripperFromMachine wraps the gripper called name on m.
func GripperFromMachine(m Machine, name string, closer device.Closer, logger logging.Logger) (*Gripper, error) {
	g, err := lookup[Commander](m, gripper.Named(name))
	if err != nil {
		return nil, err
	}
	return NewGripper(g, closer, logger), nil
}

// ForceSourceFromMachine wraps the sensor called name on m.
func ForceSourceFromMachine(m Machine, name string, closer device.Closer) (*ForceSource, error) {
	s, err := lookup[Reader](m, sensor.Named(name))
	if err != nil {
		return nil, err
	}
	return NewForceSource(s, closer), nil
}

// CameraFromMachine wraps the camera called name on m.
func CameraFromMachine(m Machine, name string, closer device.Closer) (*Camera, error) {
	c, err := lookup[camera.Camera](m, camera.Named(name))
	if err != nil {
		return nil, err
	}
	return NewCamera(CameraImages{Camera: c}, closer), nil
}
