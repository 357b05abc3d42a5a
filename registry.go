package evalagent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// ErrUnknownDriver is returned when a device names a backend that is not
// registered or that cannot serve the device.
var ErrUnknownDriver = errors.New("unknown driver")

// DriverFactory builds a backend's openers for cfg. Openers for devices the
// backend cannot serve are left nil.
type DriverFactory func(cfg *Config, logger logging.Logger) Drivers

var (
	backendsMu sync.RWMutex
	backends   = map[string]DriverFactory{}
)

// RegisterBackend makes factory available under name, replacing any earlier
// registration.
func RegisterBackend(name string, factory DriverFactory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = factory
}

// Backends lists the registered backend names in order.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupBackend(name string) (DriverFactory, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	f, ok := backends[name]
	return f, ok
}

// ResolveDrivers picks each device's opener from the backend cfg names for
// it. Each backend's factory runs once, so devices served by the same
// backend share its state.
func ResolveDrivers(cfg *Config, logger logging.Logger) (Drivers, error) {
	built := map[string]Drivers{}
	backend := func(device, name string) (Drivers, error) {
		if d, ok := built[name]; ok {
			return d, nil
		}
		factory, ok := lookupBackend(name)
		if !ok {
			return Drivers{}, fmt.Errorf("%s driver %q: %w", device, name, ErrUnknownDriver)
		}
		d := factory(cfg, logger.Sublogger(name))
		built[name] = d
		return d, nil
	}
	unsupported := func(device, name string) error {
		return fmt.Errorf("%s driver %q does not support a %s: %w", device, name, device, ErrUnknownDriver)
	}

	var out Drivers
	d, err := backend("robot", cfg.Drivers.Robot)
	if err != nil {
		return Drivers{}, err
	}
	if out.Robot = d.Robot; out.Robot == nil {
		return Drivers{}, unsupported("robot", cfg.Drivers.Robot)
	}

	if d, err = backend("gripper", cfg.Drivers.Gripper); err != nil {
		return Drivers{}, err
	}
	if out.Gripper = d.Gripper; out.Gripper == nil {
		return Drivers{}, unsupported("gripper", cfg.Drivers.Gripper)
	}

	if d, err = backend("sensor", cfg.Drivers.Sensor); err != nil {
		return Drivers{}, err
	}
	if out.Sensor = d.Sensor; out.Sensor == nil {
		return Drivers{}, unsupported("sensor", cfg.Drivers.Sensor)
	}

	if d, err = backend("camera", cfg.Drivers.Camera); err != nil {
		return Drivers{}, err
	}
	if out.Camera = d.Camera; out.Camera == nil {
		return Drivers{}, unsupported("camera", cfg.Drivers.Camera)
	}
	return out, nil
}

// Open validates cfg, resolves its backends and builds the Agent.
func Open(ctx context.Context, cfg *Config, logger logging.Logger, opts ...Option) (*Agent, error) {
	if _, _, err := cfg.Validate(""); err != nil {
		return nil, err
	}
	drivers, err := ResolveDrivers(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Infof("Opening agent with robot=%s gripper=%s sensor=%s camera=%s",
		cfg.Drivers.Robot, cfg.Drivers.Gripper, cfg.Drivers.Sensor, cfg.Drivers.Camera)
	return New(ctx, cfg, drivers, append([]Option{WithLogger(logger)}, opts...)...)
}
