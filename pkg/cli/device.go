package cli

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/rerouter/pkg/device"
)

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "List devices adb can see",
	Description: `List attached devices and their adb state. Only devices in the
"device" state can be driven.

Examples:
  rerouter devices`,
	Action: runDevices,
}

func runDevices(c *cli.Context) error {
	devices, err := device.ListDevices()
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	printDevices(c.App.Writer, devices)
	return nil
}

func printDevices(w io.Writer, devices []device.DeviceInfo) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices attached")
		return
	}
	for _, d := range devices {
		state := paint(ansiYellow, d.State)
		if d.State == "device" {
			state = paint(ansiGreen, d.State)
		}
		fmt.Fprintf(w, "  %-24s %s\n", d.Serial, state)
	}
}
