package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newFocusCmd() *cobra.Command {
	var cfgPath string
	var clear bool
	cmd := &cobra.Command{
		Use:   "focus [conn]",
		Short: "Set or clear the focused connection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn := ""
			if len(args) == 1 {
				conn = args[0]
			}
			if clear && conn != "" {
				return errors.New("--clear does not take a conn argument")
			}
			if !clear && conn == "" {
				return errors.New("conn argument or --clear is required")
			}
			client, err := clientFromConfig(cfgPath)
			if err != nil {
				return err
			}
			var resp struct {
				Conn string `json:"conn"`
			}
			if err := client.postJSON(cmd.Context(), "/api/focus", map[string]any{"conn": conn}, &resp); err != nil {
				return err
			}
			if resp.Conn == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "focus cleared")
			} else {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "focus %s\n", resp.Conn)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the focused connection")
	return cmd
}
