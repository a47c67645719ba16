package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List recent tasks",
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		status, _ := flags.GetString("status")
		agentID, _ := flags.GetString("agent")
		limit, _ := flags.GetInt("limit")

		client := NewHubClient(viper.GetString("url"))
		result, err := client.ListTasks(status, agentID, limit)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("List failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("List failed: %v\n", err)
			}
			return
		}

		cmd.Printf("%-6s %-12s %-10s %s\n", "ID", "STATUS", "AGENT", "TITLE")
		for _, t := range result.Tasks {
			cmd.Printf("%-6d %-12s %-10s %s\n", t.ID, t.Status, t.AgentID, t.Title)
		}
		cmd.Printf("(%d of %d)\n", len(result.Tasks), result.Total)
	},
}

func init() {
	flags := tasksCmd.Flags()
	flags.StringP("status", "s", "", "Filter by status")
	flags.StringP("agent", "a", "", "Filter by agent id")
	flags.IntP("limit", "n", 20, "Maximum number of tasks")

	rootCmd.AddCommand(tasksCmd)
}
