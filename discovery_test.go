// discovery_test.go
package evalagent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

func TestFilterCandidatePorts(t *testing.T) {
	tests := []struct {
		name     string
		ports    []string
		expected []string
	}{
		{
			name:     "Linux USB ports",
			ports:    []string{"/dev/ttyUSB0", "/dev/ttyS0", "/dev/ttyACM0", "/dev/null"},
			expected: []string{"/dev/ttyUSB0", "/dev/ttyACM0"},
		},
		{
			name:     "macOS USB ports",
			ports:    []string{"/dev/tty.usbmodem123", "/dev/tty.Bluetooth", "/dev/cu.usbserial-AB"},
			expected: []string{"/dev/tty.usbmodem123", "/dev/cu.usbserial-AB"},
		},
		{
			name:     "Windows COM ports",
			ports:    []string{"COM3", "COM10", "LPT1", "PRN"},
			expected: []string{"COM3", "COM10"},
		},
		{
			name:     "Empty list",
			ports:    []string{},
			expected: []string{},
		},
		{
			name:     "No matching ports",
			ports:    []string{"/dev/null", "/dev/zero"},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := filterCandidatePorts(tt.ports)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestExtractPortSuffix(t *testing.T) {
	assert.Equal(t, "ttyUSB0", extractPortSuffix("/dev/ttyUSB0"))
	assert.Equal(t, "usbmodem123", extractPortSuffix("/dev/tty.usbmodem123"))
	assert.Equal(t, "usbserial-AB", extractPortSuffix("/dev/cu.usbserial-AB"))
	assert.Equal(t, "COM3", extractPortSuffix("COM3"))
}

func withPorts(t *testing.T, ports ...string) {
	t.Helper()
	old := portLister
	portLister = func() []string { return ports }
	t.Cleanup(func() { portLister = old })
}

func TestDiscoverGripperPorts(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx := context.Background()
	withPorts(t, "/dev/ttyS0", "/dev/ttyUSB0", "/dev/ttyUSB1")

	all, err := DiscoverGripperPorts(ctx, nil, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, all)

	var probed []string
	probe := func(_ context.Context, port string) error {
		probed = append(probed, port)
		if port == "/dev/ttyUSB0" {
			return errors.New("no answer")
		}
		return nil
	}
	found, err := DiscoverGripperPorts(ctx, probe, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/ttyUSB1"}, found)
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, probed)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = DiscoverGripperPorts(canceled, probe, logger)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolvePort(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx := context.Background()

	port, err := resolvePort(ctx, "/dev/ttyUSB3", nil, logger)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB3", port)

	withPorts(t, "/dev/ttyACM0", "/dev/ttyACM1")
	port, err = resolvePort(ctx, AutoPort, nil, logger)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", port)

	withPorts(t, "/dev/ttyS0")
	_, err = resolvePort(ctx, AutoPort, nil, logger)
	assert.ErrorIs(t, err, ErrNoGripperPort)
}

func TestFindCalibrationFile(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()

	assert.Equal(t, "", findCalibrationFile(dir, "ttyUSB0", logger))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "gripper_calibration.json"), []byte("{}"), 0o644))
	assert.Equal(t, "gripper_calibration.json", findCalibrationFile(dir, "ttyUSB0", logger))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ttyUSB0_gripper_calibration.json"), []byte("{}"), 0o644))
	assert.Equal(t, "ttyUSB0_gripper_calibration.json", findCalibrationFile(dir, "ttyUSB0", logger))
}
