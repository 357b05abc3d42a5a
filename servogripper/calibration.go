package servogripper

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.viam.com/rdk/logging"
)

// Raw position limits of an STS3215.
const (
	rawMin = 0
	rawMax = 4095
)

// Calibration maps gripper opening in permille onto raw servo positions.
// RangeMin is the raw position at the closed end unless DriveMode inverts it.
type Calibration struct {
	ID        int `json:"id" yaml:"id"`
	DriveMode int `json:"drive_mode" yaml:"drive_mode"`
	RangeMin  int `json:"range_min" yaml:"range_min"`
	RangeMax  int `json:"range_max" yaml:"range_max"`
}

// DefaultCalibration matches the SO-101 gripper jaw on servo 6.
var DefaultCalibration = Calibration{
	ID:       6,
	RangeMin: 2030,
	RangeMax: 3474,
}

// Validate checks if the calibration parameters are valid
func (c Calibration) Validate() error {
	if c.ID < 0 || c.ID > 253 {
		return fmt.Errorf("invalid servo ID: %d", c.ID)
	}
	if c.RangeMin >= c.RangeMax {
		return fmt.Errorf("invalid range: min (%d) must be less than max (%d)", c.RangeMin, c.RangeMax)
	}
	if c.RangeMin < rawMin || c.RangeMax > rawMax {
		return fmt.Errorf("range values must be between %d-%d, got min=%d max=%d", rawMin, rawMax, c.RangeMin, c.RangeMax)
	}
	return nil
}

// Permille converts a raw servo position to an opening in [0, 1000].
func (c Calibration) Permille(raw int) (int, error) {
	if c.RangeMax == c.RangeMin {
		return 0, fmt.Errorf("invalid calibration: min and max are equal")
	}
	v := float64(raw-c.RangeMin) / float64(c.RangeMax-c.RangeMin) * 1000
	v = math.Max(0, math.Min(1000, v))

	// Apply drive mode inversion to the normalized value
	if c.DriveMode != 0 {
		v = 1000 - v
	}
	return int(math.Round(v)), nil
}

// Raw converts an opening in permille back to a raw servo position, clamped to the calibrated range.
func (c Calibration) Raw(permille int) (int, error) {
	if c.RangeMax == c.RangeMin {
		return 0, fmt.Errorf("invalid calibration: min and max are equal")
	}
	v := math.Max(0, math.Min(1000, float64(permille)))
	if c.DriveMode != 0 {
		v = 1000 - v
	}

	raw := int(math.Round(v/1000*float64(c.RangeMax-c.RangeMin) + float64(c.RangeMin)))
	if raw < c.RangeMin {
		raw = c.RangeMin
	}
	if raw > c.RangeMax {
		raw = c.RangeMax
	}
	return raw, nil
}

// calibrationFile is the SO-101 arm calibration layout; only the gripper entry is read.
type calibrationFile struct {
	Gripper *Calibration `json:"gripper"`
}

// LoadCalibration reads the gripper entry of a calibration file. Relative
// paths resolve against VIAM_MODULE_DATA. It returns the default
// calibration and false when no usable file is given.
func LoadCalibration(path string, logger logging.Logger) (Calibration, bool) {
	if path == "" {
		logger.Debug("No calibration file specified, using default calibration")
		return DefaultCalibration, false
	}

	if !filepath.IsAbs(path) {
		moduleDataDir := os.Getenv("VIAM_MODULE_DATA")
		if moduleDataDir == "" {
			moduleDataDir = os.TempDir()
		}
		path = filepath.Join(moduleDataDir, path)
	}

	cal, err := readCalibrationFile(path)
	if err != nil {
		logger.Warnf("Failed to load calibration from %s: %v, using default calibration", path, err)
		return DefaultCalibration, false
	}
	logger.Infof("Loaded gripper calibration from %s", path)
	return cal, true
}

func readCalibrationFile(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Calibration{}, fmt.Errorf("failed to read calibration file: %w", err)
	}

	var file calibrationFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Calibration{}, fmt.Errorf("failed to parse calibration JSON: %w", err)
	}
	if file.Gripper == nil {
		return Calibration{}, fmt.Errorf("calibration file has no gripper entry")
	}
	if err := file.Gripper.Validate(); err != nil {
		return Calibration{}, fmt.Errorf("calibration validation failed: %w", err)
	}
	return *file.Gripper, nil
}

// SaveCalibration writes cal as the gripper entry of a calibration file.
func SaveCalibration(path string, cal Calibration) error {
	data, err := json.MarshalIndent(calibrationFile{Gripper: &cal}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal calibration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	return nil
}
