package viamdev

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"

	"evalagent/device"
)

// Viam poses are in millimetres.
const metresToMM = 1000.0

// PoseArm is the Cartesian part of arm.Arm.
type PoseArm interface {
	EndPosition(ctx context.Context, extra map[string]interface{}) (spatialmath.Pose, error)
	MoveToPosition(ctx context.Context, pose spatialmath.Pose, extra map[string]interface{}) error
	Stop(ctx context.Context, extra map[string]interface{}) error
}

// Robot drives a Viam arm with metre/quaternion poses.
type Robot struct {
	arm    PoseArm
	closer device.Closer
	logger logging.Logger
}

var _ device.RobotControl = (*Robot)(nil)

// NewRobot wraps arm. closer is released by Close and may be nil.
func NewRobot(arm PoseArm, closer device.Closer, logger logging.Logger) *Robot {
	return &Robot{arm: arm, closer: closer, logger: logger}
}

// ToViamPose converts a device pose to a Viam pose.
func ToViamPose(p device.Pose) spatialmath.Pose {
	pos := p.Position().Mul(metresToMM)
	q := spatialmath.Quaternion(p.Quaternion())
	return spatialmath.NewPose(pos, &q)
}

// FromViamPose converts a Viam pose to a device pose.
func FromViamPose(p spatialmath.Pose) device.Pose {
	pt := p.Point()
	pos := r3.Vector{X: pt.X / metresToMM, Y: pt.Y / metresToMM, Z: pt.Z / metresToMM}
	return device.NewPose(pos, p.Orientation().Quaternion())
}

func (r *Robot) SendTCPPose(ctx context.Context, pose device.Pose) error {
	if err := r.arm.MoveToPosition(ctx, ToViamPose(pose), nil); err != nil {
		return errors.Wrap(err, "failed to move arm")
	}
	return nil
}

func (r *Robot) TCPPose(ctx context.Context) (device.Pose, error) {
	p, err := r.arm.EndPosition(ctx, nil)
	if err != nil {
		return device.Pose{}, errors.Wrap(err, "failed to read arm end position")
	}
	return FromViamPose(p), nil
}

func (r *Robot) Stop(ctx context.Context) error {
	return r.arm.Stop(ctx, nil)
}

// Close releases the machine connection, if any.
func (r *Robot) Close(ctx context.Context) error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close(ctx)
}
