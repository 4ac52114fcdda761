package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/busyline/schema"
)

func newSendCmd() *cobra.Command {
	var cfgPath string
	var conn string
	var method string
	var payload string
	var id string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Issue a request on a connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromConfig(cfgPath)
			if err != nil {
				return err
			}
			body := map[string]any{"conn": conn}
			if method != "" {
				body["method"] = method
			}
			if id != "" {
				body["id"] = id
			}
			if strings.TrimSpace(payload) != "" {
				if !json.Valid([]byte(payload)) {
					return fmt.Errorf("payload is not valid JSON")
				}
				body["payload"] = json.RawMessage(payload)
			}
			var resp schema.SendResponse
			if err := client.postJSON(cmd.Context(), "/api/send", body, &resp); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.RequestID)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&conn, "conn", "", "connection id")
	cmd.Flags().StringVar(&method, "method", "", "request method")
	cmd.Flags().StringVar(&payload, "payload", "", "request payload as raw JSON")
	cmd.Flags().StringVar(&id, "id", "", "request id (generated when empty)")
	_ = cmd.MarkFlagRequired("conn")
	return cmd
}
