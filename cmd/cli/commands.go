package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"evalagent"
	"evalagent/dhgripper"
	"evalagent/servogripper"
	"evalagent/transform"
)

// withAgent opens the cell, runs fn and shuts the cell down again.
func withAgent(fn func(ctx context.Context, a *evalagent.Agent, logger logging.Logger) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := evalagent.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warnf("Shutdown: %v", err)
		}
	}()
	return fn(ctx, a, logger)
}

type ObserveCommand struct {
	Count int `short:"n" long:"count" default:"1" description:"Number of observations"`
}

func (c *ObserveCommand) Execute([]string) error {
	return withAgent(func(ctx context.Context, a *evalagent.Agent, _ logging.Logger) error {
		for i := 0; i < c.Count; i++ {
			frame, err := a.Observation(ctx)
			if err != nil {
				return err
			}
			pose, err := a.TCPPose(ctx)
			if err != nil {
				return err
			}
			ft, err := a.ForceTorque(ctx)
			if err != nil {
				return err
			}
			force, torque, err := a.ForceTorqueValue(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("color %v depth %v\n", frame.Color.Bounds().Size(), frame.Depth.Bounds().Size())
			fmt.Printf("tcp   %.4f\n", pose[:])
			fmt.Printf("ft    %.3f  |f|=%.3f |t|=%.3f\n", ft[:], force, torque)
		}
		fmt.Printf("intrinsics %v\n", a.Intrinsics())
		return nil
	})
}

type HomeCommand struct{}

func (c *HomeCommand) Execute([]string) error {
	// opening the cell already moves to the ready pose
	return withAgent(func(ctx context.Context, a *evalagent.Agent, logger logging.Logger) error {
		pose, err := a.TCPPose(ctx)
		if err != nil {
			return err
		}
		logger.Infof("At %.4f", pose[:])
		return nil
	})
}

type MoveCommand struct {
	Rep        string `short:"r" long:"rep" default:"quaternion" description:"Rotation representation of the pose"`
	Convention string `long:"convention" default:"XYZ" description:"Euler axis order, upper case intrinsic"`
	Args       struct {
		Values []string `positional-arg-name:"value" description:"x y z followed by the rotation"`
	} `positional-args:"yes" required:"yes"`
}

func (c *MoveCommand) Execute([]string) error {
	rep, err := transform.ParseRepresentation(c.Rep)
	if err != nil {
		return err
	}
	pose, err := parseFloats(c.Args.Values)
	if err != nil {
		return err
	}
	return withAgent(func(ctx context.Context, a *evalagent.Agent, _ logging.Logger) error {
		if err := a.SetTCPPose(ctx, pose, rep, c.Convention, true); err != nil {
			return err
		}
		got, err := a.TCPPose(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("tcp %.4f\n", got[:])
		return nil
	})
}

type GripCommand struct {
	Width float64 `short:"w" long:"width" required:"yes" description:"Jaw opening in metres"`
}

func (c *GripCommand) Execute([]string) error {
	return withAgent(func(ctx context.Context, a *evalagent.Agent, logger logging.Logger) error {
		logger.Infof("Width %.4f m is command %d", c.Width, evalagent.WidthCommand(c.Width))
		return a.SetGripperWidth(ctx, c.Width, true)
	})
}

type HistoryCommand struct {
	Freq float64 `short:"f" long:"freq" default:"100" description:"Resampling frequency in Hz"`
}

func (c *HistoryCommand) Execute([]string) error {
	return withAgent(func(ctx context.Context, a *evalagent.Agent, _ logging.Logger) error {
		history, err := a.ForceTorqueHistory(ctx, c.Freq)
		if err != nil {
			return err
		}
		for i, w := range history {
			fmt.Printf("%3d %.3f\n", i, w[:])
		}
		return nil
	})
}

type DiscoverCommand struct {
	Probe    string `long:"probe" default:"none" choice:"none" choice:"dahuan" choice:"feetech" description:"Gripper to look for on each port"`
	BaudRate int    `long:"baudrate" description:"Serial baud rate, default per gripper"`
	ServoID  int    `long:"servo-id" default:"6" description:"Feetech gripper servo id"`
}

func (c *DiscoverCommand) Execute([]string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	logger := newLogger()

	var probe evalagent.PortProbe
	switch c.Probe {
	case "dahuan":
		probe = func(ctx context.Context, port string) error {
			return dhgripper.Probe(ctx, dhgripper.Config{Port: port, BaudRate: c.BaudRate}, logger)
		}
	case "feetech":
		probe = func(ctx context.Context, port string) error {
			return servogripper.Probe(ctx, port, c.BaudRate, c.ServoID)
		}
	}

	ports, err := evalagent.DiscoverGripperPorts(ctx, probe, logger)
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		return evalagent.ErrNoGripperPort
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, s := range args {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "value %d", i)
		}
		out[i] = v
	}
	return out, nil
}
