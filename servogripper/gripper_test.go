package servogripper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

type fakeServo struct {
	pos      int
	enabled  bool
	failMove bool
}

func (s *fakeServo) Position(context.Context) (int, error) { return s.pos, nil }

func (s *fakeServo) SetPosition(_ context.Context, p int) error {
	if s.failMove {
		return errors.New("overload")
	}
	s.pos = p
	return nil
}

func (s *fakeServo) Enable(context.Context) error  { s.enabled = true; return nil }
func (s *fakeServo) Disable(context.Context) error { s.enabled = false; return nil }

func TestCalibrationMapping(t *testing.T) {
	tests := []struct {
		name     string
		cal      Calibration
		permille int
		raw      int
	}{
		{"closed", Calibration{ID: 6, RangeMin: 1000, RangeMax: 3000}, 0, 1000},
		{"open", Calibration{ID: 6, RangeMin: 1000, RangeMax: 3000}, 1000, 3000},
		{"half", Calibration{ID: 6, RangeMin: 1000, RangeMax: 3000}, 500, 2000},
		{"clamped high", Calibration{ID: 6, RangeMin: 1000, RangeMax: 3000}, 1500, 3000},
		{"inverted closed", Calibration{ID: 6, DriveMode: 1, RangeMin: 1000, RangeMax: 3000}, 0, 3000},
		{"inverted quarter", Calibration{ID: 6, DriveMode: 1, RangeMin: 1000, RangeMax: 3000}, 250, 2500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := tt.cal.Raw(tt.permille)
			require.NoError(t, err)
			assert.Equal(t, tt.raw, raw)

			back, err := tt.cal.Permille(raw)
			require.NoError(t, err)
			assert.Equal(t, min(max(tt.permille, 0), 1000), back)
		})
	}
}

func TestCalibrationValidate(t *testing.T) {
	assert.NoError(t, DefaultCalibration.Validate())
	assert.Error(t, Calibration{ID: 6, RangeMin: 3000, RangeMax: 1000}.Validate())
	assert.Error(t, Calibration{ID: 6, RangeMin: 0, RangeMax: 5000}.Validate())
	assert.Error(t, Calibration{ID: 300, RangeMin: 0, RangeMax: 100}.Validate())

	_, err := Calibration{}.Raw(10)
	assert.Error(t, err)
}

func TestLoadCalibration(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("returns fromFile=true when file exists", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "calibration.json")
		want := Calibration{ID: 6, DriveMode: 1, RangeMin: 1500, RangeMax: 3100}
		require.NoError(t, SaveCalibration(path, want))

		cal, fromFile := LoadCalibration(path, logger)
		assert.True(t, fromFile)
		assert.Equal(t, want, cal)
	})

	t.Run("returns default when no file configured", func(t *testing.T) {
		cal, fromFile := LoadCalibration("", logger)
		assert.False(t, fromFile)
		assert.Equal(t, DefaultCalibration, cal)
	})

	t.Run("returns default when the gripper entry is missing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "calibration.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"shoulder_pan": {"id": 1}}`), 0o644))

		cal, fromFile := LoadCalibration(path, logger)
		assert.False(t, fromFile)
		assert.Equal(t, DefaultCalibration, cal)
	})

	t.Run("resolves relative paths against VIAM_MODULE_DATA", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("VIAM_MODULE_DATA", dir)
		want := Calibration{ID: 6, RangeMin: 100, RangeMax: 200}
		require.NoError(t, SaveCalibration(filepath.Join(dir, "gripper.json"), want))

		cal, fromFile := LoadCalibration("gripper.json", logger)
		assert.True(t, fromFile)
		assert.Equal(t, want, cal)
	})
}

func TestGripper(t *testing.T) {
	ctx := context.Background()
	servo := &fakeServo{}
	closed := false
	g, err := New(ctx, servo, Calibration{ID: 6, RangeMin: 1000, RangeMax: 3000}, func() error {
		closed = true
		return nil
	}, logging.NewTestLogger(t))
	require.NoError(t, err)
	assert.True(t, servo.enabled)

	require.NoError(t, g.SetForce(ctx, 30))
	require.NoError(t, g.SetWidth(ctx, 750))
	assert.Equal(t, 2500, servo.pos)

	w, err := g.Width(ctx)
	require.NoError(t, err)
	assert.Equal(t, 750, w)

	servo.failMove = true
	assert.ErrorContains(t, g.SetWidth(ctx, 0), "overload")

	require.NoError(t, g.Close(ctx))
	assert.False(t, servo.enabled)
	assert.True(t, closed)
}
