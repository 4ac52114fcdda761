package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/busyline/httpapi"
)

func newWatchCmd() *cobra.Command {
	var cfgPath string
	var raw bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow daemon events",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromConfig(cfgPath)
			if err != nil {
				return err
			}
			body, err := client.openStream(cmd.Context(), "/api/stream")
			if err != nil {
				return err
			}
			defer func() { _ = body.Close() }()

			out := cmd.OutOrStdout()
			scanner := bufio.NewScanner(body)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Text()
				if !strings.HasPrefix(line, "data: ") {
					continue
				}
				data := strings.TrimPrefix(line, "data: ")
				if raw {
					fmt.Fprintln(out, data)
					continue
				}
				var event httpapi.StreamEvent
				if err := json.Unmarshal([]byte(data), &event); err != nil {
					continue
				}
				printEvent(out, event)
			}
			if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&raw, "raw", false, "print raw event JSON")
	return cmd
}

func printEvent(out io.Writer, event httpapi.StreamEvent) {
	stamp := event.Timestamp.Format("15:04:05")
	switch event.Type {
	case "snapshot":
		if event.Snapshot != nil {
			fmt.Fprintf(out, "%s snapshot conns=%d line=%q\n", stamp, len(event.Snapshot.Conns), event.Snapshot.Line)
		}
	case "status":
		if event.Status != nil {
			fmt.Fprintf(out, "%s status reason=%s conn=%s line=%q\n", stamp, event.Status.Reason, event.Status.Conn, event.Status.Line)
		}
	case "conn":
		if event.Conn != nil {
			fmt.Fprintf(out, "%s conn %s %s\n", stamp, event.Conn.Conn.ID, event.Conn.Type)
		}
	default:
		fmt.Fprintf(out, "%s %s\n", stamp, event.Type)
	}
}
