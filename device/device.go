// Package device defines the capabilities the evaluation agent needs from its
// hardware and the value types that flow between them.
package device

import (
	"context"
	"image"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a tool pose [x, y, z, qx, qy, qz, qw] in metres with a unit quaternion.
type Pose [7]float64

// Position returns the Cartesian part of the pose.
func (p Pose) Position() r3.Vector {
	return r3.Vector{X: p[0], Y: p[1], Z: p[2]}
}

// Quaternion returns the orientation part of the pose.
func (p Pose) Quaternion() quat.Number {
	return quat.Number{Real: p[6], Imag: p[3], Jmag: p[4], Kmag: p[5]}
}

// NewPose assembles a Pose from a position and an orientation.
func NewPose(pos r3.Vector, q quat.Number) Pose {
	return Pose{pos.X, pos.Y, pos.Z, q.Imag, q.Jmag, q.Kmag, q.Real}
}

// Wrench is a force/torque sample [fx, fy, fz, tx, ty, tz].
type Wrench [6]float64

// Force returns the first three components.
func (w Wrench) Force() r3.Vector {
	return r3.Vector{X: w[0], Y: w[1], Z: w[2]}
}

// Torque returns the last three components.
func (w Wrench) Torque() r3.Vector {
	return r3.Vector{X: w[3], Y: w[4], Z: w[5]}
}

// Frame is one color/depth capture.
type Frame struct {
	Color image.Image
	Depth image.Image
}

// RobotControl streams Cartesian targets to an arm.
type RobotControl interface {
	SendTCPPose(ctx context.Context, pose Pose) error
	TCPPose(ctx context.Context) (Pose, error)
	Stop(ctx context.Context) error
}

// GripperControl drives a parallel gripper. Width is a command in [0, 1000].
type GripperControl interface {
	SetForce(ctx context.Context, force float64) error
	SetWidth(ctx context.Context, width int) error
}

// ForceTorqueSensing streams a force/torque sensor into a bounded history.
type ForceTorqueSensing interface {
	StartStreaming(ctx context.Context) error
	StopStreaming(ctx context.Context) error
	// History returns the retained samples resampled at freq Hz, oldest first.
	History(ctx context.Context, freq float64) ([]Wrench, error)
}

// RGBDCapture returns the latest color and depth images.
type RGBDCapture interface {
	Frame(ctx context.Context) (Frame, error)
}

// Closer is implemented by handles that hold OS or network resources.
type Closer interface {
	Close(ctx context.Context) error
}
