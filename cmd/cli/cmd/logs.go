package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent hub and agent log entries",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		client := NewHubClient(viper.GetString("url"))
		result, err := client.GetLogs(limit)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Logs failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Logs failed: %v\n", err)
			}
			return
		}

		for _, e := range result.Logs {
			taskRef := ""
			if e.TaskID != nil {
				taskRef = " task=" + strconv.FormatInt(*e.TaskID, 10)
			}
			cmd.Printf("%s [%s] %s%s: %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Level, e.AgentID, taskRef, e.Message)
		}
	},
}

func init() {
	logsCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries")
	rootCmd.AddCommand(logsCmd)
}
