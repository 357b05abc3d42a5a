package evalagent

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"

	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/components/gripper"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/rimage"
	"go.viam.com/rdk/services/generic"
	rdkutils "go.viam.com/rdk/utils"

	"evalagent/device"
	"evalagent/ftsensor"
	"evalagent/transform"
	"evalagent/viamdev"
)

// AgentModel is the generic service model serving an Agent.
var AgentModel = resource.NewModel("devrel", "eval", "agent")

func init() {
	resource.RegisterService(
		generic.API,
		AgentModel,
		resource.Registration[resource.Resource, *ServiceConfig]{
			Constructor: newAgentService,
		})
}

// ServiceConfig names the components the agent drives.
type ServiceConfig struct {
	Arm      string `json:"arm"`
	Gripper  string `json:"gripper"`
	FTSensor string `json:"ft_sensor"`
	Camera   string `json:"camera"`

	NumObsForce  int     `json:"num_obs_force,omitempty"`
	SensorRateHz float64 `json:"sensor_rate_hz,omitempty"`
}

// Validate ensures all parts of the config are valid
func (cfg *ServiceConfig) Validate(path string) ([]string, []string, error) {
	required := []struct{ field, value string }{
		{"arm", cfg.Arm},
		{"gripper", cfg.Gripper},
		{"ft_sensor", cfg.FTSensor},
		{"camera", cfg.Camera},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, nil, resource.NewConfigValidationFieldRequiredError(path, r.field)
		}
	}
	if cfg.NumObsForce < 0 {
		return nil, nil, fmt.Errorf("num_obs_force must be positive, got %d", cfg.NumObsForce)
	}
	if cfg.SensorRateHz < 0 {
		return nil, nil, fmt.Errorf("sensor_rate_hz must be positive, got %v", cfg.SensorRateHz)
	}
	return []string{cfg.Arm, cfg.Gripper, cfg.FTSensor, cfg.Camera}, nil, nil
}

type agentService struct {
	resource.Named
	resource.AlwaysRebuild

	agent  *Agent
	logger logging.Logger
}

func newAgentService(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (resource.Resource, error) {
	c, err := resource.NativeConfig[*ServiceConfig](conf)
	if err != nil {
		return nil, err
	}
	drivers, err := driversFromDependencies(deps, c, logger)
	if err != nil {
		return nil, err
	}
	return newAgentServiceWithDrivers(ctx, conf.ResourceName(), c, drivers, logger)
}

func newAgentServiceWithDrivers(
	ctx context.Context,
	name resource.Name,
	c *ServiceConfig,
	drivers Drivers,
	logger logging.Logger,
	opts ...Option,
) (*agentService, error) {
	cfg := &Config{
		RobotAddress: c.Arm,
		GripperPort:  c.Gripper,
		CameraSerial: c.Camera,
		NumObsForce:  c.NumObsForce,
	}
	agent, err := New(ctx, cfg, drivers, append([]Option{WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &agentService{
		Named:  name.AsNamed(),
		agent:  agent,
		logger: logger,
	}, nil
}

// driversFromDependencies serves every device from a component the machine
// already configured.
func driversFromDependencies(deps resource.Dependencies, c *ServiceConfig, logger logging.Logger) (Drivers, error) {
	a, err := resource.FromDependencies[arm.Arm](deps, arm.Named(c.Arm))
	if err != nil {
		return Drivers{}, err
	}
	g, err := resource.FromDependencies[gripper.Gripper](deps, gripper.Named(c.Gripper))
	if err != nil {
		return Drivers{}, err
	}
	s, err := resource.FromDependencies[sensor.Sensor](deps, sensor.Named(c.FTSensor))
	if err != nil {
		return Drivers{}, err
	}
	cam, err := resource.FromDependencies[camera.Camera](deps, camera.Named(c.Camera))
	if err != nil {
		return Drivers{}, err
	}

	var sensorOpts []ftsensor.Option
	if c.SensorRateHz > 0 {
		sensorOpts = append(sensorOpts, ftsensor.WithRate(c.SensorRateHz))
	}
	return Drivers{
		Robot: func(context.Context, string, string) (device.RobotControl, error) {
			return viamdev.NewRobot(a, nil, logger), nil
		},
		Gripper: func(context.Context, string) (device.GripperControl, error) {
			return viamdev.NewGripper(g, nil, logger), nil
		},
		Sensor: func(_ context.Context, historySize int) (device.ForceTorqueSensing, error) {
			return ftsensor.New(viamdev.NewForceSource(s, nil), historySize, logger, sensorOpts...), nil
		},
		Camera: func(context.Context, string) (device.RGBDCapture, error) {
			return viamdev.NewCamera(viamdev.CameraImages{Camera: cam}, nil), nil
		},
	}, nil
}

func (s *agentService) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "get_observation":
		frame, err := s.agent.Observation(ctx)
		if err != nil {
			return nil, err
		}
		resp := map[string]interface{}{
			"color_size": imageSize(frame.Color),
			"depth_size": imageSize(frame.Depth),
		}
		if include, _ := cmd["include_images"].(bool); include {
			color, err := encodePNG(ctx, frame.Color)
			if err != nil {
				return nil, fmt.Errorf("encode color image: %w", err)
			}
			depth, err := encodePNG(ctx, frame.Depth)
			if err != nil {
				return nil, fmt.Errorf("encode depth image: %w", err)
			}
			resp["color_png"] = color
			resp["depth_png"] = depth
		}
		return resp, nil

	case "get_tcp_pose":
		pose, err := s.agent.TCPPose(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"pose": floatsToAny(pose[:])}, nil

	case "set_tcp_pose":
		pose, err := floatsFromAny(cmd["pose"])
		if err != nil {
			return nil, fmt.Errorf("set_tcp_pose requires 'pose' list: %w", err)
		}
		rep := transform.Quaternion
		if r, ok := cmd["rotation_rep"].(string); ok && r != "" {
			if rep, err = transform.ParseRepresentation(r); err != nil {
				return nil, err
			}
		}
		convention, _ := cmd["convention"].(string)
		blocking, _ := cmd["blocking"].(bool)
		err = s.agent.SetTCPPose(ctx, pose, rep, convention, blocking)
		return map[string]interface{}{"success": err == nil}, err

	case "set_gripper_width":
		width, ok := cmd["width"].(float64)
		if !ok {
			return nil, fmt.Errorf("set_gripper_width requires 'width' number parameter")
		}
		blocking, _ := cmd["blocking"].(bool)
		err := s.agent.SetGripperWidth(ctx, width, blocking)
		return map[string]interface{}{"success": err == nil, "command": WidthCommand(width)}, err

	case "get_force_torque":
		w, err := s.agent.ForceTorque(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"force_torque": floatsToAny(w[:])}, nil

	case "get_force_torque_history":
		freq, _ := cmd["freq"].(float64)
		history, err := s.agent.ForceTorqueHistory(ctx, freq)
		if err != nil {
			return nil, err
		}
		rows := make([]interface{}, len(history))
		for i, w := range history {
			rows[i] = floatsToAny(w[:])
		}
		return map[string]interface{}{"history": rows}, nil

	case "get_force_torque_value":
		force, torque, err := s.agent.ForceTorqueValue(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"force": force, "torque": torque}, nil

	case "get_intrinsics":
		k := s.agent.Intrinsics()
		rows := make([]interface{}, len(k))
		for i := range k {
			rows[i] = floatsToAny(k[i][:])
		}
		return map[string]interface{}{"intrinsics": rows}, nil

	case "get_ready_pose":
		pose, rot := s.agent.ReadyPose(), s.agent.ReadyRot6D()
		return map[string]interface{}{
			"ready_pose":   floatsToAny(pose[:]),
			"ready_rot_6d": floatsToAny(rot[:]),
		}, nil

	case "stop":
		err := s.agent.Stop(ctx)
		return map[string]interface{}{"success": err == nil}, err

	default:
		return nil, fmt.Errorf("unknown command: %v", cmd["command"])
	}
}

func (s *agentService) Close(ctx context.Context) error {
	return s.agent.Close(ctx)
}

func imageSize(img image.Image) []interface{} {
	b := img.Bounds()
	return []interface{}{float64(b.Dx()), float64(b.Dy())}
}

func encodePNG(ctx context.Context, img image.Image) (string, error) {
	data, err := rimage.EncodeImage(ctx, img, rdkutils.MimeTypePNG)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func floatsToAny(vs []float64) []interface{} {
	out := make([]interface{}, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func floatsFromAny(v interface{}) ([]float64, error) {
	switch vs := v.(type) {
	case []float64:
		return vs, nil
	case []interface{}:
		out := make([]float64, len(vs))
		for i, e := range vs {
			f, ok := e.(float64)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, not a number", i, e)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("got %T", v)
	}
}
