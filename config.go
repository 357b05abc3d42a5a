package evalagent

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.viam.com/rdk/resource"
	"gopkg.in/yaml.v3"

	"evalagent/ftsensor"
)

// DefaultBackend serves any device whose driver is not named.
const DefaultBackend = "viam"

// DriverConfig names the backend serving each device.
type DriverConfig struct {
	Robot   string `json:"robot,omitempty" yaml:"robot,omitempty"`
	Gripper string `json:"gripper,omitempty" yaml:"gripper,omitempty"`
	Sensor  string `json:"sensor,omitempty" yaml:"sensor,omitempty"`
	Camera  string `json:"camera,omitempty" yaml:"camera,omitempty"`
}

// Config describes the evaluation cell.
type Config struct {
	RobotAddress      string `json:"robot_address,omitempty" yaml:"robot_address,omitempty"`
	ControllerAddress string `json:"controller_address,omitempty" yaml:"controller_address,omitempty"`
	GripperPort       string `json:"gripper_port,omitempty" yaml:"gripper_port,omitempty"`
	CameraSerial      string `json:"camera_serial,omitempty" yaml:"camera_serial,omitempty"`

	// NumObsForce is the number of force/torque samples retained.
	NumObsForce int `json:"num_obs_force,omitempty" yaml:"num_obs_force,omitempty"`

	Drivers DriverConfig `json:"drivers,omitempty" yaml:"drivers,omitempty"`

	// Extra holds backend options, see the extra* helpers.
	Extra map[string]interface{} `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Validate fills defaults and checks that every device can be addressed.
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.NumObsForce == 0 {
		cfg.NumObsForce = ftsensor.DefaultHistorySize
	}
	if cfg.NumObsForce < 0 {
		return nil, nil, fmt.Errorf("num_obs_force must be positive, got %d", cfg.NumObsForce)
	}

	for _, d := range []*string{&cfg.Drivers.Robot, &cfg.Drivers.Gripper, &cfg.Drivers.Sensor, &cfg.Drivers.Camera} {
		if *d == "" {
			*d = DefaultBackend
		}
	}

	if cfg.Drivers.Robot != "sim" && cfg.RobotAddress == "" {
		return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "robot_address")
	}
	if (cfg.Drivers.Gripper == "dahuan" || cfg.Drivers.Gripper == "feetech") && cfg.GripperPort == "" {
		return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "gripper_port")
	}

	if rate, ok := cfg.extraFloat("sensor_rate_hz"); ok && rate <= 0 {
		return nil, nil, fmt.Errorf("sensor_rate_hz must be positive, got %v", rate)
	}
	return nil, nil, nil
}

// LoadConfig reads a JSON or YAML config file, chosen by extension, and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}

	if _, _, err := cfg.Validate(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) extraString(key, def string) string {
	if s, ok := cfg.Extra[key].(string); ok && s != "" {
		return s
	}
	return def
}

// extraFloat accepts any numeric value; JSON and YAML decode numbers differently.
func (cfg *Config) extraFloat(key string) (float64, bool) {
	switch v := cfg.Extra[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

func (cfg *Config) extraInt(key string, def int) int {
	if f, ok := cfg.extraFloat(key); ok {
		return int(math.Round(f))
	}
	return def
}
