package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/busyline/schema"
)

func newAttachCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Install the request interceptor",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromConfig(cfgPath)
			if err != nil {
				return err
			}
			var resp schema.AttachResponse
			if err := client.postJSON(cmd.Context(), "/api/attach", nil, &resp); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), interceptionState(resp.Attached, resp.Changed))
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func newDetachCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "detach",
		Short: "Remove the request interceptor",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromConfig(cfgPath)
			if err != nil {
				return err
			}
			var resp schema.DetachResponse
			if err := client.postJSON(cmd.Context(), "/api/detach", nil, &resp); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), interceptionState(resp.Attached, resp.Changed))
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func interceptionState(attached, changed bool) string {
	state := "detached"
	if attached {
		state = "attached"
	}
	if !changed {
		return state + " (unchanged)"
	}
	return state
}
