// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"bivo/internal/source"
	"bivo/internal/transport"

	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List serial ports and audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			ports, err := transport.SerialPorts()
			if err != nil {
				fmt.Fprintln(out, failStyle.Render(err.Error()))
			} else {
				fmt.Fprintln(out, renderPorts(ports))
			}

			if err := source.Initialize(); err != nil {
				fmt.Fprintln(out, failStyle.Render(err.Error()))
				return nil
			}
			defer source.Terminate()

			devices, err := source.InputDevices()
			if err != nil {
				return err
			}
			fmt.Fprint(out, renderDevices(devices))
			return nil
		},
	}
}
