// discovery.go
package evalagent

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.bug.st/serial/enumerator"
	"go.viam.com/rdk/logging"
)

// AutoPort as a gripper port asks the backend to discover one.
const AutoPort = "auto"

// PortProbe reports whether a gripper answers on port.
type PortProbe func(ctx context.Context, port string) error

// ErrNoGripperPort is returned when discovery finds no usable port.
var ErrNoGripperPort = errors.New("no gripper serial port found")

// portLister is swapped in tests.
var portLister = enumerateSerialPorts

// DiscoverGripperPorts lists USB serial ports, keeping those on which probe
// succeeds. A nil probe keeps every candidate.
func DiscoverGripperPorts(ctx context.Context, probe PortProbe, logger logging.Logger) ([]string, error) {
	allPorts := portLister()
	logger.Debugf("Found %d total serial ports", len(allPorts))

	candidates := filterCandidatePorts(allPorts)
	logger.Debugf("Filtered to %d candidate ports", len(candidates))
	if probe == nil {
		return candidates, nil
	}

	found := []string{}
	for _, port := range candidates {
		select {
		case <-ctx.Done():
			logger.Info("Discovery cancelled")
			return found, ctx.Err()
		default:
		}

		if err := probe(ctx, port); err != nil {
			logger.Debugf("No gripper on %s: %v", port, err)
			continue
		}
		logger.Infof("Discovered gripper on %s", port)
		found = append(found, port)
	}
	return found, nil
}

// resolvePort returns port unless it is AutoPort, in which case the first
// discovered port is used.
func resolvePort(ctx context.Context, port string, probe PortProbe, logger logging.Logger) (string, error) {
	if port != AutoPort {
		return port, nil
	}
	ports, err := DiscoverGripperPorts(ctx, probe, logger)
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", ErrNoGripperPort
	}
	if len(ports) > 1 {
		logger.Warnf("Found %d gripper ports, using %s", len(ports), ports[0])
	}
	return ports[0], nil
}

// filterCandidatePorts filters serial ports by platform-specific naming patterns
func filterCandidatePorts(ports []string) []string {
	candidates := []string{}
	for _, port := range ports {
		if isCandidatePort(port) {
			candidates = append(candidates, port)
		}
	}
	return candidates
}

// isCandidatePort checks if a port looks like a USB serial adapter
func isCandidatePort(port string) bool {
	// Linux: /dev/ttyUSB*, /dev/ttyACM*
	if strings.HasPrefix(port, "/dev/ttyUSB") || strings.HasPrefix(port, "/dev/ttyACM") {
		return true
	}
	// macOS: /dev/tty.usbmodem*, /dev/tty.usbserial*, /dev/cu.usbmodem*, /dev/cu.usbserial*
	for _, prefix := range []string{"/dev/tty.usbmodem", "/dev/tty.usbserial", "/dev/cu.usbmodem", "/dev/cu.usbserial"} {
		if strings.HasPrefix(port, prefix) {
			return true
		}
	}
	// Windows: COM*
	return strings.HasPrefix(port, "COM")
}

// extractPortSuffix extracts a friendly suffix from port path for naming
// /dev/ttyUSB0 -> "ttyUSB0"
// /dev/tty.usbmodem123 -> "usbmodem123"
func extractPortSuffix(portPath string) string {
	base := filepath.Base(portPath)
	if strings.HasPrefix(base, "tty.usb") {
		return strings.TrimPrefix(base, "tty.")
	}
	if strings.HasPrefix(base, "cu.usb") {
		return strings.TrimPrefix(base, "cu.")
	}
	return base
}

// findCalibrationFile looks for a port-specific gripper calibration in
// moduleDataDir, then the shared one. It returns the file name or "".
func findCalibrationFile(moduleDataDir, portSuffix string, logger logging.Logger) string {
	portSpecific := portSuffix + "_gripper_calibration.json"
	if _, err := os.Stat(filepath.Join(moduleDataDir, portSpecific)); err == nil {
		logger.Debugf("Found port-specific calibration file: %s", portSpecific)
		return portSpecific
	}

	const shared = "gripper_calibration.json"
	if _, err := os.Stat(filepath.Join(moduleDataDir, shared)); err == nil {
		logger.Debugf("Found default calibration file: %s", shared)
		return shared
	}

	logger.Debug("No calibration file found")
	return ""
}

func moduleDataDir() string {
	if dir := os.Getenv("VIAM_MODULE_DATA"); dir != "" {
		return dir
	}
	return os.TempDir()
}

// enumerateSerialPorts returns a list of all serial ports on the system
func enumerateSerialPorts() []string {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return []string{}
	}

	var portPaths []string
	for _, port := range ports {
		portPaths = append(portPaths, port.Name)
	}
	return portPaths
}
