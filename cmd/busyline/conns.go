package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/busyline/schema"
)

func newConnsCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "conns",
		Short: "List connections and their busy state",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromConfig(cfgPath)
			if err != nil {
				return err
			}
			var resp schema.ListConnsResponse
			if err := client.getJSON(cmd.Context(), "/api/conns", &resp); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 2, 2, ' ', 0)
			fmt.Fprintln(w, "CONN\tNAME\tSTATE\tLINK\tREQS\tREPS\tBUSY")
			for _, conn := range resp.Conns {
				id := string(conn.ID)
				if conn.Current {
					id = "*" + id
				}
				link := "down"
				if conn.Linked {
					link = "up"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					id, conn.Name, conn.State, link,
					conn.Stats.Requests, conn.Stats.Replies,
					conn.Stats.BusyFor.Round(time.Second))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if !resp.Attached {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "interception: detached")
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}
