package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shubham/filerecovery/internal/hostdevices"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List storage devices visible to the host OS",
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

func runDevices(cmd *cobra.Command, args []string) error {
	devices, err := hostdevices.List()
	if err != nil {
		return fail("list devices: %w", err)
	}
	if len(devices) == 0 {
		fmt.Println("no devices found")
		return nil
	}

	fmt.Printf("%-20s %-10s %-10s %-10s %s\n", "PATH", "SIZE", "FS", "REMOVABLE", "MOUNTPOINT")
	for _, d := range devices {
		removable := ""
		if d.Removable {
			removable = "yes"
		}
		fmt.Printf("%-20s %-10s %-10s %-10s %s\n", d.Path, d.SizeHuman, d.Filesystem, removable, d.Mountpoint)
	}
	return nil
}
