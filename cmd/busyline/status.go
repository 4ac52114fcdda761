package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/busyline/httpapi"
)

func newStatusCmd() *cobra.Command {
	var cfgPath string
	var ansi bool
	var plain bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the rendered status line",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ansi && plain {
				return errors.New("--ansi and --plain are mutually exclusive")
			}
			client, err := clientFromConfig(cfgPath)
			if err != nil {
				return err
			}
			path := "/api/status"
			switch {
			case ansi:
				path += "?markup=ansi"
			case plain:
				path += "?markup=plain"
			}
			var snap httpapi.SnapshotPayload
			if err := client.getJSON(cmd.Context(), path, &snap); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), snap.Line)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&ansi, "ansi", false, "render with ANSI truecolor escapes")
	cmd.Flags().BoolVar(&plain, "plain", false, "render without color tokens")
	return cmd
}
