package viamdev

import (
	"context"
	"image"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/components/gripper"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"

	"evalagent/device"
)

type fakeArm struct {
	resource.Named
	resource.TriviallyReconfigurable
	resource.TriviallyCloseable

	pose    spatialmath.Pose
	stopped bool
	moveErr error
}

func (a *fakeArm) EndPosition(context.Context, map[string]interface{}) (spatialmath.Pose, error) {
	return a.pose, nil
}

func (a *fakeArm) MoveToPosition(_ context.Context, p spatialmath.Pose, _ map[string]interface{}) error {
	if a.moveErr != nil {
		return a.moveErr
	}
	a.pose = p
	return nil
}

func (a *fakeArm) Stop(context.Context, map[string]interface{}) error {
	a.stopped = true
	return nil
}

type fakeCommander struct {
	resource.Named
	resource.TriviallyReconfigurable
	resource.TriviallyCloseable

	cmds []map[string]interface{}
	resp map[string]interface{}
}

func (c *fakeCommander) DoCommand(_ context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	c.cmds = append(c.cmds, cmd)
	return c.resp, nil
}

type fakeReader struct {
	resource.Named
	resource.TriviallyReconfigurable
	resource.TriviallyCloseable

	readings map[string]interface{}
}

func (r *fakeReader) Readings(context.Context, map[string]interface{}) (map[string]interface{}, error) {
	return r.readings, nil
}

type closeCounter struct{ n int }

func (c *closeCounter) Close(context.Context) error {
	c.n++
	return nil
}

func TestRobotAdapter(t *testing.T) {
	ctx := context.Background()
	fa := &fakeArm{Named: arm.Named("arm").AsNamed()}
	closer := &closeCounter{}
	r := NewRobot(fa, closer, logging.NewTestLogger(t))

	ready := device.Pose{0.5, 0, 0.17, 0, 1, 0, 0}
	require.NoError(t, r.SendTCPPose(ctx, ready))
	assert.InDelta(t, 500, fa.pose.Point().X, 1e-9)
	assert.InDelta(t, 170, fa.pose.Point().Z, 1e-9)

	got, err := r.TCPPose(ctx)
	require.NoError(t, err)
	assert.InDeltaSlice(t, ready[:3], got[:3], 1e-9)
	// q and -q are the same rotation
	assert.InDelta(t, 1, abs(got[4]), 1e-9)

	require.NoError(t, r.Stop(ctx))
	assert.True(t, fa.stopped)

	fa.moveErr = errors.New("out of reach")
	assert.ErrorContains(t, r.SendTCPPose(ctx, ready), "out of reach")

	require.NoError(t, r.Close(ctx))
	assert.Equal(t, 1, closer.n)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestGripperAdapter(t *testing.T) {
	ctx := context.Background()
	fc := &fakeCommander{Named: gripper.Named("gripper").AsNamed(), resp: map[string]interface{}{"success": true}}
	g := NewGripper(fc, nil, logging.NewTestLogger(t))

	require.NoError(t, g.SetForce(ctx, 30))
	assert.Equal(t, 30.0, g.Force())
	assert.Empty(t, fc.cmds)

	require.NoError(t, g.SetWidth(ctx, 500))
	require.Len(t, fc.cmds, 1)
	assert.Equal(t, "set_position", fc.cmds[0]["command"])
	assert.Equal(t, 50.0, fc.cmds[0]["percentage"])

	assert.Error(t, g.SetWidth(ctx, 1200))

	fc.resp = map[string]interface{}{"success": false}
	assert.Error(t, g.SetWidth(ctx, 100))
	require.NoError(t, g.Close(ctx))
}

func TestWrenchFromReadings(t *testing.T) {
	tests := []struct {
		name     string
		readings map[string]interface{}
		want     device.Wrench
		wantErr  bool
	}{
		{
			name:     "flat keys",
			readings: map[string]interface{}{"fx": 1.0, "fy": 2.0, "fz": 3.0, "tx": 0.1, "ty": 0.2, "tz": int64(3)},
			want:     device.Wrench{1, 2, 3, 0.1, 0.2, 3},
		},
		{
			name:     "vectors",
			readings: map[string]interface{}{"force": r3.Vector{X: 1, Y: 2, Z: 3}, "torque": []interface{}{0.1, 0.2, 0.3}},
			want:     device.Wrench{1, 2, 3, 0.1, 0.2, 0.3},
		},
		{
			name:     "vector maps",
			readings: map[string]interface{}{"force": map[string]interface{}{"x": 1.0, "y": 2.0, "z": 3.0}, "torque": []float64{0, 0, 1}},
			want:     device.Wrench{1, 2, 3, 0, 0, 1},
		},
		{
			name:     "missing component",
			readings: map[string]interface{}{"fx": 1.0, "fy": 2.0},
			wantErr:  true,
		},
		{
			name:     "wrong type",
			readings: map[string]interface{}{"force": "heavy", "torque": r3.Vector{}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WrenchFromReadings(tt.readings)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeImages struct {
	frames []NamedFrame
	err    error
}

func (f fakeImages) NamedFrames(context.Context) ([]NamedFrame, error) { return f.frames, f.err }

func TestCameraAdapter(t *testing.T) {
	ctx := context.Background()
	color := image.NewRGBA(image.Rect(0, 0, 4, 4))
	depth := image.NewGray16(image.Rect(0, 0, 4, 4))

	t.Run("by source name", func(t *testing.T) {
		c := NewCamera(fakeImages{frames: []NamedFrame{
			{Source: "depth", Image: depth},
			{Source: "color", Image: color},
		}}, nil)
		f, err := c.Frame(ctx)
		require.NoError(t, err)
		assert.Same(t, color, f.Color)
		assert.Same(t, depth, f.Depth)
	})

	t.Run("by mime type", func(t *testing.T) {
		d := image.NewRGBA(image.Rect(0, 0, 1, 1))
		c := NewCamera(fakeImages{frames: []NamedFrame{
			{Source: "a", Image: color},
			{Source: "b", MimeType: mimeTypeDepth, Image: d},
		}}, nil)
		f, err := c.Frame(ctx)
		require.NoError(t, err)
		assert.Same(t, d, f.Depth)
	})

	t.Run("missing depth", func(t *testing.T) {
		c := NewCamera(fakeImages{frames: []NamedFrame{{Source: "color", Image: color}}}, nil)
		_, err := c.Frame(ctx)
		assert.ErrorContains(t, err, "depth")
	})

	t.Run("source error", func(t *testing.T) {
		c := NewCamera(fakeImages{err: errors.New("usb reset")}, nil)
		_, err := c.Frame(ctx)
		assert.ErrorContains(t, err, "usb reset")
	})
}

func TestResolveFromMachine(t *testing.T) {
	logger := logging.NewTestLogger(t)
	fa := &fakeArm{Named: arm.Named("arm").AsNamed(), pose: spatialmath.NewZeroPose()}
	fc := &fakeCommander{Named: gripper.Named("gripper").AsNamed()}
	fr := &fakeReader{
		Named:    sensor.Named("ft").AsNamed(),
		readings: map[string]interface{}{"fx": 1.0, "fy": 0.0, "fz": 0.0, "tx": 0.0, "ty": 0.0, "tz": 0.0},
	}
	m := &fakeMachine{resources: map[resource.Name]resource.Resource{
		arm.Named("arm"):         fa,
		gripper.Named("gripper"): fc,
		sensor.Named("ft"):       fr,
	}}

	r, err := RobotFromMachine(m, "arm", nil, logger)
	require.NoError(t, err)
	p, err := r.TCPPose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, device.Pose{0, 0, 0, 0, 0, 0, 1}, p)

	_, err = GripperFromMachine(m, "gripper", nil, logger)
	require.NoError(t, err)

	src, err := ForceSourceFromMachine(m, "ft", nil)
	require.NoError(t, err)
	w, err := src.ReadWrench(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, w.Force().X)

	_, err = RobotFromMachine(m, "missing", nil, logger)
	assert.Error(t, err)

	// a sensor is not an arm
	m.resources[arm.Named("ft")] = fr
	_, err = RobotFromMachine(m, "ft", nil, logger)
	assert.ErrorContains(t, err, "not the expected type")
}
