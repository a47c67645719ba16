package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show a task with its progress and artifacts",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		taskID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			cmd.Printf("Invalid task id: %s\n", args[0])
			return
		}

		client := NewHubClient(viper.GetString("url"))
		result, err := client.GetTask(taskID)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Status failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Status failed: %v\n", err)
			}
			return
		}

		t := result.Task
		cmd.Printf("Task %d [%s]\n", t.ID, t.Status)
		cmd.Printf("  Agent:   %s\n", t.AgentID)
		cmd.Printf("  Title:   %s\n", t.Title)
		if t.Response != "" {
			cmd.Printf("  Response:\n%s\n", t.Response)
		}

		if len(result.Progress) > 0 {
			cmd.Println("Progress:")
			for _, p := range result.Progress {
				percent := "-"
				if p.ProgressPercent != nil {
					percent = strconv.FormatFloat(*p.ProgressPercent, 'f', 0, 64) + "%"
				}
				cmd.Printf("  %s  %-4s %s\n", p.Timestamp.Format("15:04:05"), percent, p.Message)
			}
		}

		if len(result.Artifacts) > 0 {
			cmd.Println("Artifacts:")
			for _, a := range result.Artifacts {
				cmd.Printf("  [%d] %s/%s (%d bytes)\n", a.ID, a.Bucket, a.ObjectPath, a.SizeBytes)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
