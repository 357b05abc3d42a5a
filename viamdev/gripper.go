package viamdev

import (
	"context"
	"fmt"

	"go.viam.com/rdk/logging"

	"evalagent/device"
)

// Commander is any resource that accepts DoCommand.
type Commander interface {
	DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error)
}

// Gripper drives a Viam gripper through its set_position command, which
// takes an opening percentage.
type Gripper struct {
	res    Commander
	closer device.Closer
	logger logging.Logger
	force  float64
}

var _ device.GripperControl = (*Gripper)(nil)

// NewGripper wraps res. closer is released by Close and may be nil.
func NewGripper(res Commander, closer device.Closer, logger logging.Logger) *Gripper {
	return &Gripper{res: res, closer: closer, logger: logger}
}

// SetForce records the requested force. Viam grippers take no force
// parameter, so the value is only reported through Force.
func (g *Gripper) SetForce(_ context.Context, force float64) error {
	g.force = force
	g.logger.Debugf("gripper force %v recorded; the viam gripper API has no force setting", force)
	return nil
}

// Force returns the last force passed to SetForce.
func (g *Gripper) Force() float64 { return g.force }

func (g *Gripper) SetWidth(ctx context.Context, width int) error {
	if width < 0 || width > 1000 {
		return fmt.Errorf("gripper width %d outside [0, 1000]", width)
	}
	resp, err := g.res.DoCommand(ctx, map[string]interface{}{
		"command":    "set_position",
		"percentage": float64(width) / 10,
	})
	if err != nil {
		return fmt.Errorf("set_position: %w", err)
	}
	if ok, present := resp["success"].(bool); present && !ok {
		return fmt.Errorf("set_position reported failure")
	}
	return nil
}

// Close releases the machine connection, if any.
func (g *Gripper) Close(ctx context.Context) error {
	if g.closer == nil {
		return nil
	}
	return g.closer.Close(ctx)
}
