package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

func newTasksCommand(client *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect analysis tasks",
	}
	cmd.AddCommand(newTasksListCommand(client), newTasksShowCommand(client))
	return cmd
}

func newTasksListCommand(client *apiClient) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your analysis tasks, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := client.get(cmd.Context(), fmt.Sprintf("/api/analysis/tasks?limit=%d&offset=%d", limit, offset))
			if err != nil {
				return err
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"ID", "STATUS", "MODEL", "VIDEO", "CREDITS", "CREATED"})

			for _, task := range gjson.Get(body, "tasks").Array() {
				tw.AppendRow(table.Row{
					task.Get("id").String(),
					colorStatus(task.Get("status").String()),
					task.Get("model_id").String(),
					truncate(task.Get("video_url").String(), 40),
					task.Get("credits_charged").Int(),
					task.Get("created_at").String(),
				})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum tasks to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "tasks to skip")
	return cmd
}

func newTasksShowCommand(client *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task, rendering its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := client.get(cmd.Context(), "/api/analysis/tasks/"+args[0])
			if err != nil {
				return err
			}

			fmt.Printf("ID:      %s\n", gjson.Get(body, "id").String())
			fmt.Printf("Status:  %s\n", colorStatus(gjson.Get(body, "status").String()))
			fmt.Printf("Model:   %s\n", gjson.Get(body, "model_id").String())
			fmt.Printf("Video:   %s\n", gjson.Get(body, "video_url").String())
			if msg := gjson.Get(body, "error_message"); msg.Exists() {
				fmt.Printf("Error:   %s\n", color.RedString(msg.String()))
			}

			result := gjson.Get(body, "result")
			if !result.Exists() {
				return nil
			}

			// Free-text results are stored wrapped in {"content": ...}; render
			// those as markdown. Structured shot lists print as-is.
			if content := result.Get("content"); content.Exists() && len(result.Map()) == 1 {
				rendered, err := glamour.Render(content.String(), "auto")
				if err != nil {
					fmt.Println(content.String())
					return nil
				}
				fmt.Print(rendered)
				return nil
			}
			fmt.Println(result.Get("@pretty").String())
			return nil
		},
	}
}

func colorStatus(status string) string {
	switch status {
	case "completed":
		return color.GreenString(status)
	case "failed":
		return color.RedString(status)
	case "processing":
		return color.YellowString(status)
	default:
		return status
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
