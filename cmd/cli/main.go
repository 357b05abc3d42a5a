package main

import (
	"os"

	"github.com/jessevdk/go-flags"
	"go.viam.com/rdk/logging"

	"evalagent"
)

type Options struct {
	Config       string `short:"c" long:"config" description:"Cell config file (JSON or YAML)"`
	Driver       string `long:"driver" description:"Backend for every device (viam, sim, ...)"`
	RobotAddress string `long:"robot-address" description:"Override robot_address"`
	GripperPort  string `long:"gripper-port" description:"Override gripper_port, 'auto' to discover"`
	Verbose      bool   `short:"v" long:"verbose" description:"Debug logging"`

	Observe  ObserveCommand  `command:"observe" description:"Print observations from every sensor"`
	Home     HomeCommand     `command:"home" description:"Move the robot to the ready pose"`
	Move     MoveCommand     `command:"move" description:"Move the tool to a pose"`
	Grip     GripCommand     `command:"grip" description:"Set the gripper opening"`
	History  HistoryCommand  `command:"history" description:"Dump the force/torque history"`
	Discover DiscoverCommand `command:"discover" description:"List serial ports with a gripper attached"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func newLogger() logging.Logger {
	logger := logging.NewLogger("evalagent-cli")
	if opts.Verbose {
		logger.SetLevel(logging.DEBUG)
	}
	return logger
}

// loadConfig reads --config and applies the flag overrides.
func loadConfig() (*evalagent.Config, error) {
	cfg := &evalagent.Config{}
	if opts.Config != "" {
		var err error
		if cfg, err = evalagent.LoadConfig(opts.Config); err != nil {
			return nil, err
		}
	}
	if opts.Driver != "" {
		cfg.Drivers = evalagent.DriverConfig{Robot: opts.Driver, Gripper: opts.Driver, Sensor: opts.Driver, Camera: opts.Driver}
	}
	if opts.RobotAddress != "" {
		cfg.RobotAddress = opts.RobotAddress
	}
	if opts.GripperPort != "" {
		cfg.GripperPort = opts.GripperPort
	}
	return cfg, nil
}

func main() {
	parser.LongDescription = "Drive the evaluation cell: robot arm, gripper, force/torque sensor and RGB-D camera"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
