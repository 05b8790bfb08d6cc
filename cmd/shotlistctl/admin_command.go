package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

func newReapCommand(client *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Run one stale-task sweep on the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := client.post(cmd.Context(), "/api/admin/tasks/reap")
			if err != nil {
				return err
			}

			fmt.Printf("updated: %d\n", gjson.Get(body, "updated").Int())
			counts := gjson.Get(body, "status_counts")
			counts.ForEach(func(status, count gjson.Result) bool {
				fmt.Printf("  %-12s %d\n", status.String(), count.Int())
				return true
			})
			return nil
		},
	}
}

func newInvalidateCommand(client *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <model-id>",
		Short: "Evict the daemon's cached adapter for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := client.post(cmd.Context(), "/api/admin/models/"+args[0]+"/invalidate")
			if err != nil {
				return err
			}
			fmt.Printf("invalidated: %s\n", gjson.Get(body, "invalidated").String())
			return nil
		},
	}
}
