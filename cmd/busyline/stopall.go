package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/busyline/schema"
)

func newStopAllCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "stopall",
		Short: "Force every connection to idle",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromConfig(cfgPath)
			if err != nil {
				return err
			}
			var resp schema.StopAllResponse
			if err := client.postJSON(cmd.Context(), "/api/stopall", nil, &resp); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "stopped %d\n", resp.Stopped)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}
