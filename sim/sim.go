// Package sim provides in-memory devices for running the agent without hardware.
package sim

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"evalagent/device"
)

// ErrStopped is returned by a robot after Stop until it is sent a new pose.
var ErrStopped = errors.New("simulated robot is stopped")

// Robot jumps straight to every commanded pose.
type Robot struct {
	mu      sync.Mutex
	pose    device.Pose
	sent    []device.Pose
	stopped bool
}

var _ device.RobotControl = (*Robot)(nil)

// NewRobot starts at the identity orientation at the origin.
func NewRobot() *Robot {
	return &Robot{pose: device.Pose{0, 0, 0, 0, 0, 0, 1}}
}

func (r *Robot) SendTCPPose(ctx context.Context, pose device.Pose) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pose = pose
	r.sent = append(r.sent, pose)
	r.stopped = false
	return nil
}

func (r *Robot) TCPPose(ctx context.Context) (device.Pose, error) {
	if err := ctx.Err(); err != nil {
		return device.Pose{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pose, nil
}

func (r *Robot) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	return nil
}

// Sent returns every pose commanded so far.
func (r *Robot) Sent() []device.Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]device.Pose(nil), r.sent...)
}

// Stopped reports whether Stop was the last command.
func (r *Robot) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Gripper records force and width commands.
type Gripper struct {
	mu     sync.Mutex
	force  float64
	width  int
	widths []int
	closed bool
}

var _ device.GripperControl = (*Gripper)(nil)

func NewGripper() *Gripper { return &Gripper{} }

func (g *Gripper) SetForce(_ context.Context, force float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.force = force
	return nil
}

func (g *Gripper) SetWidth(_ context.Context, width int) error {
	if width < 0 || width > 1000 {
		return errors.Errorf("width %d outside [0, 1000]", width)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.width = width
	g.widths = append(g.widths, width)
	return nil
}

func (g *Gripper) Close(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

// State returns the last force, the last width and every width command.
func (g *Gripper) State() (float64, int, []int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.force, g.width, append([]int(nil), g.widths...)
}

// Closed reports whether Close was called.
func (g *Gripper) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// ForceSource produces a constant wrench with a slow ripple on fz.
type ForceSource struct {
	Bias   device.Wrench
	Ripple float64
	start  time.Time
}

// NewForceSource returns a source around bias.
func NewForceSource(bias device.Wrench, ripple float64) *ForceSource {
	return &ForceSource{Bias: bias, Ripple: ripple, start: time.Now()}
}

func (f *ForceSource) ReadWrench(ctx context.Context) (device.Wrench, error) {
	if err := ctx.Err(); err != nil {
		return device.Wrench{}, err
	}
	w := f.Bias
	w[2] += f.Ripple * math.Sin(2*math.Pi*time.Since(f.start).Seconds())
	return w, nil
}

// Camera renders a gradient color image and a depth ramp.
type Camera struct {
	mu     sync.Mutex
	width  int
	height int
	frames int
	closed bool
}

var _ device.RGBDCapture = (*Camera)(nil)

// NewCamera returns a camera with the given resolution.
func NewCamera(width, height int) *Camera {
	if width <= 0 {
		width = 64
	}
	if height <= 0 {
		height = 48
	}
	return &Camera{width: width, height: height}
}

func (c *Camera) Frame(ctx context.Context) (device.Frame, error) {
	if err := ctx.Err(); err != nil {
		return device.Frame{}, err
	}
	c.mu.Lock()
	c.frames++
	n := c.frames
	c.mu.Unlock()

	bounds := image.Rect(0, 0, c.width, c.height)
	rgb := image.NewRGBA(bounds)
	depth := image.NewGray16(bounds)
	for y := range c.height {
		for x := range c.width {
			rgb.Set(x, y, color.RGBA{R: uint8(x * 255 / c.width), G: uint8(y * 255 / c.height), B: uint8(n), A: 255})
			// millimetres, 0.5 m at the top row to 1.5 m at the bottom
			depth.SetGray16(x, y, color.Gray16{Y: uint16(500 + 1000*y/c.height)})
		}
	}
	return device.Frame{Color: rgb, Depth: depth}, nil
}

// Frames returns how many frames were captured.
func (c *Camera) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

func (c *Camera) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
