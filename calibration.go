package evalagent

import (
	"time"

	"evalagent/device"
)

// Fixed calibration of the evaluation cell.
var (
	// readyPose points the tool straight down above the workspace:
	// 180 degrees about y, quaternion in x, y, z, w order.
	readyPose = device.Pose{0.5, 0.0, 0.17, 0, 1, 0, 0}

	// readyRot6D is the first two rows of the ready orientation's matrix.
	readyRot6D = [6]float64{-1, 0, 0, 0, 1, 0}

	// intrinsics is the color camera projection matrix.
	intrinsics = [3][4]float64{
		{922.37457275, 0, 637.55419922, 0},
		{0, 922.46069336, 368.37557983, 0},
		{0, 0, 1, 0},
	}
)

const (
	// DefaultGripperForce is the grip force set during construction, in percent.
	DefaultGripperForce = 30.0
	// MaxGripperWidth is the jaw opening in metres that maps to command 1000.
	MaxGripperWidth = 0.095
	// MaxGripperCommand is the gripper's full-open command.
	MaxGripperCommand = 1000

	// DefaultHistoryFreq is the resampling rate used when none is given.
	DefaultHistoryFreq = 100.0

	robotSettle   = 1500 * time.Millisecond
	gripperSettle = 500 * time.Millisecond
	sensorSettle  = time.Second
	warmupFrames  = 30

	poseBlockingWait  = 100 * time.Millisecond
	widthBlockingWait = 500 * time.Millisecond
)
