package evalagent

import (
	"context"

	"go.viam.com/rdk/logging"

	"evalagent/device"
	"evalagent/dhgripper"
	"evalagent/ftsensor"
	"evalagent/servogripper"
	"evalagent/sim"
	"evalagent/viamdev"
)

func init() {
	RegisterBackend("viam", viamBackend)
	RegisterBackend("sim", simBackend)
	RegisterBackend("dahuan", dahuanBackend)
	RegisterBackend("feetech", feetechBackend)
}

func sensorOptions(cfg *Config) []ftsensor.Option {
	if rate, ok := cfg.extraFloat("sensor_rate_hz"); ok {
		return []ftsensor.Option{ftsensor.WithRate(rate)}
	}
	return nil
}

// viamBackend reaches every device through viam-server. Devices on the same
// machine share one connection.
func viamBackend(cfg *Config, logger logging.Logger) Drivers {
	return viamDrivers(cfg, viamdev.NewMachineRegistry(nil, logger), logger)
}

func viamDrivers(cfg *Config, machines *viamdev.MachineRegistry, logger logging.Logger) Drivers {
	creds := viamdev.Credentials{
		APIKeyID: cfg.extraString("viam_api_key_id", ""),
		APIKey:   cfg.extraString("viam_api_key", ""),
	}
	lease := func(ctx context.Context, addressKey string) (*viamdev.Lease, error) {
		return machines.Lease(ctx, cfg.extraString(addressKey, cfg.RobotAddress), creds)
	}

	return Drivers{
		Robot: func(ctx context.Context, robotAddr, controllerAddr string) (device.RobotControl, error) {
			if controllerAddr != "" {
				logger.Debugf("Controller %s is reached through %s", controllerAddr, robotAddr)
			}
			l, err := machines.Lease(ctx, robotAddr, creds)
			if err != nil {
				return nil, err
			}
			r, err := viamdev.RobotFromMachine(l.Machine, cfg.extraString("arm_name", "arm"), l, logger)
			if err != nil {
				_ = l.Close(ctx)
				return nil, err
			}
			return r, nil
		},
		Gripper: func(ctx context.Context, _ string) (device.GripperControl, error) {
			l, err := lease(ctx, "gripper_address")
			if err != nil {
				return nil, err
			}
			g, err := viamdev.GripperFromMachine(l.Machine, cfg.extraString("gripper_name", "gripper"), l, logger)
			if err != nil {
				_ = l.Close(ctx)
				return nil, err
			}
			return g, nil
		},
		Sensor: func(ctx context.Context, historySize int) (device.ForceTorqueSensing, error) {
			l, err := lease(ctx, "ft_sensor_address")
			if err != nil {
				return nil, err
			}
			src, err := viamdev.ForceSourceFromMachine(l.Machine, cfg.extraString("ft_sensor_name", "ft_sensor"), l)
			if err != nil {
				_ = l.Close(ctx)
				return nil, err
			}
			return ftsensor.New(src, historySize, logger, sensorOptions(cfg)...), nil
		},
		Camera: func(ctx context.Context, serial string) (device.RGBDCapture, error) {
			name := serial
			if name == "" {
				name = "camera"
			}
			l, err := lease(ctx, "camera_address")
			if err != nil {
				return nil, err
			}
			c, err := viamdev.CameraFromMachine(l.Machine, cfg.extraString("camera_name", name), l)
			if err != nil {
				_ = l.Close(ctx)
				return nil, err
			}
			return c, nil
		},
	}
}

// simBackend serves in-memory devices.
func simBackend(cfg *Config, logger logging.Logger) Drivers {
	return Drivers{
		Robot: func(context.Context, string, string) (device.RobotControl, error) {
			return sim.NewRobot(), nil
		},
		Gripper: func(context.Context, string) (device.GripperControl, error) {
			return sim.NewGripper(), nil
		},
		Sensor: func(_ context.Context, historySize int) (device.ForceTorqueSensing, error) {
			bias := device.Wrench{0, 0, -2.5, 0, 0, 0}
			if fz, ok := cfg.extraFloat("sim_force_z"); ok {
				bias[2] = fz
			}
			src := sim.NewForceSource(bias, 0.2)
			return ftsensor.New(src, historySize, logger, sensorOptions(cfg)...), nil
		},
		Camera: func(context.Context, string) (device.RGBDCapture, error) {
			return sim.NewCamera(cfg.extraInt("sim_camera_width", 0), cfg.extraInt("sim_camera_height", 0)), nil
		},
	}
}

// dahuanBackend serves a DH-Robotics gripper on a serial port.
func dahuanBackend(cfg *Config, logger logging.Logger) Drivers {
	return Drivers{
		Gripper: func(ctx context.Context, port string) (device.GripperControl, error) {
			dhCfg := dhgripper.Config{
				BaudRate: cfg.extraInt("gripper_baudrate", 0),
				DeviceID: cfg.extraInt("gripper_device_id", 0),
			}
			probe := func(ctx context.Context, p string) error {
				c := dhCfg
				c.Port = p
				return dhgripper.Probe(ctx, c, logger)
			}
			port, err := resolvePort(ctx, port, probe, logger)
			if err != nil {
				return nil, err
			}
			dhCfg.Port = port

			g, err := dhgripper.Open(ctx, dhCfg, logger)
			if err != nil {
				return nil, err
			}
			return g, nil
		},
	}
}

// feetechBackend serves a single-servo Feetech gripper.
func feetechBackend(cfg *Config, logger logging.Logger) Drivers {
	return Drivers{
		Gripper: func(ctx context.Context, port string) (device.GripperControl, error) {
			baud := cfg.extraInt("gripper_baudrate", 0)
			override := servoCalibration(cfg)
			id := cfg.extraInt("gripper_servo_id", servogripper.DefaultCalibration.ID)

			probe := func(ctx context.Context, p string) error {
				return servogripper.Probe(ctx, p, baud, id)
			}
			port, err := resolvePort(ctx, port, probe, logger)
			if err != nil {
				return nil, err
			}

			calFile := cfg.extraString("gripper_calibration_file", "")
			if calFile == "" && override == (servogripper.Calibration{}) {
				calFile = findCalibrationFile(moduleDataDir(), extractPortSuffix(port), logger)
			}

			g, err := servogripper.Open(ctx, servogripper.Config{
				Port:            port,
				BaudRate:        baud,
				CalibrationFile: calFile,
				Calibration:     override,
			}, logger)
			if err != nil {
				return nil, err
			}
			return g, nil
		},
	}
}

// servoCalibration builds a calibration from extra when both range ends are
// given, and is zero otherwise.
func servoCalibration(cfg *Config) servogripper.Calibration {
	lo, okLo := cfg.extraFloat("gripper_range_min")
	hi, okHi := cfg.extraFloat("gripper_range_max")
	if !okLo || !okHi {
		return servogripper.Calibration{}
	}
	return servogripper.Calibration{
		ID:        cfg.extraInt("gripper_servo_id", servogripper.DefaultCalibration.ID),
		DriveMode: cfg.extraInt("gripper_drive_mode", 0),
		RangeMin:  int(lo),
		RangeMax:  int(hi),
	}
}
