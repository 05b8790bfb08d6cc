// Command shotlistctl is the operator CLI for a running shotlistd daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	client := &apiClient{}

	root := &cobra.Command{
		Use:           "shotlistctl",
		Short:         "Inspect and administer a shotlistd daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&client.addr, "addr", "http://localhost:8000", "daemon base URL")
	root.PersistentFlags().StringVar(&client.userID, "user", "", "user id sent as the authenticated principal")

	root.AddCommand(
		newTasksCommand(client),
		newReapCommand(client),
		newInvalidateCommand(client),
	)
	return root
}
