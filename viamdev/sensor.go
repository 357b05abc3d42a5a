package viamdev

import (
	"context"
	"fmt"

	"github.com/golang/geo/r3"

	"evalagent/device"
)

// Reader is the Readings method shared by Viam sensors.
type Reader interface {
	Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error)
}

var wrenchKeys = [6]string{"fx", "fy", "fz", "tx", "ty", "tz"}

// ForceSource reads a wrench from a sensor that reports fx..tz, or force and
// torque vectors.
type ForceSource struct {
	sensor Reader
	closer device.Closer
}

// NewForceSource wraps sensor. closer is released by Close and may be nil.
func NewForceSource(sensor Reader, closer device.Closer) *ForceSource {
	return &ForceSource{sensor: sensor, closer: closer}
}

func (s *ForceSource) ReadWrench(ctx context.Context) (device.Wrench, error) {
	readings, err := s.sensor.Readings(ctx, nil)
	if err != nil {
		return device.Wrench{}, err
	}
	return WrenchFromReadings(readings)
}

// Close releases the machine connection, if any.
func (s *ForceSource) Close(ctx context.Context) error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close(ctx)
}

// WrenchFromReadings extracts a wrench from sensor readings.
func WrenchFromReadings(readings map[string]interface{}) (device.Wrench, error) {
	var w device.Wrench
	if _, ok := readings["fx"]; ok {
		for i, key := range wrenchKeys {
			v, err := toFloat(readings[key])
			if err != nil {
				return device.Wrench{}, fmt.Errorf("reading %q: %w", key, err)
			}
			w[i] = v
		}
		return w, nil
	}

	force, err := toVector(readings["force"])
	if err != nil {
		return device.Wrench{}, fmt.Errorf("reading \"force\": %w", err)
	}
	torque, err := toVector(readings["torque"])
	if err != nil {
		return device.Wrench{}, fmt.Errorf("reading \"torque\": %w", err)
	}
	return device.Wrench{force.X, force.Y, force.Z, torque.X, torque.Y, torque.Z}, nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case nil:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func toVector(v interface{}) (r3.Vector, error) {
	switch vec := v.(type) {
	case r3.Vector:
		return vec, nil
	case *r3.Vector:
		if vec == nil {
			return r3.Vector{}, fmt.Errorf("missing")
		}
		return *vec, nil
	case []float64:
		if len(vec) != 3 {
			return r3.Vector{}, fmt.Errorf("want 3 components, got %d", len(vec))
		}
		return r3.Vector{X: vec[0], Y: vec[1], Z: vec[2]}, nil
	case []interface{}:
		if len(vec) != 3 {
			return r3.Vector{}, fmt.Errorf("want 3 components, got %d", len(vec))
		}
		var out [3]float64
		for i, c := range vec {
			f, err := toFloat(c)
			if err != nil {
				return r3.Vector{}, err
			}
			out[i] = f
		}
		return r3.Vector{X: out[0], Y: out[1], Z: out[2]}, nil
	case map[string]interface{}:
		var out [3]float64
		for i, key := range []string{"x", "y", "z"} {
			f, err := toFloat(vec[key])
			if err != nil {
				return r3.Vector{}, fmt.Errorf("component %s: %w", key, err)
			}
			out[i] = f
		}
		return r3.Vector{X: out[0], Y: out[1], Z: out[2]}, nil
	case nil:
		return r3.Vector{}, fmt.Errorf("missing")
	default:
		return r3.Vector{}, fmt.Errorf("unexpected type %T", v)
	}
}
