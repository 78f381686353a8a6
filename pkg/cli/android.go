package cli

import (
	"fmt"
	"io"

	"github.com/devicelab-dev/rerouter/pkg/device"
	"github.com/devicelab-dev/rerouter/pkg/logger"
)

// connectAndroid opens serial, or the first ready device when serial is
// empty, and reports the connection on w.
func connectAndroid(w io.Writer, serial string) (*device.AndroidDevice, error) {
	target := serial
	if target == "" {
		target = "first ready device"
	}
	printSetupStep(w, "Connecting to "+target+"...")
	logger.Info("[Device] connecting to %s", target)

	dev, err := device.New(serial)
	if err != nil {
		logger.Error("[Device] connect %s: %v", target, err)
		return nil, fmt.Errorf("connect to device: %w", err)
	}
	info, err := dev.Info()
	if err != nil {
		return nil, fmt.Errorf("read device info: %w", err)
	}
	logger.Info("[Device] %s: %s %s sdk=%s emulator=%v",
		info.Serial, info.Brand, info.Model, info.SDK, info.IsEmulator)
	printSetupSuccess(w, fmt.Sprintf("Connected to %s %s (SDK %s)", info.Brand, info.Model, info.SDK))
	return dev, nil
}
