package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Show the per-agent live feed",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		client := NewHubClient(viper.GetString("url"))
		result, err := client.AgentsLive(limit)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Live feed failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Live feed failed: %v\n", err)
			}
			return
		}

		for _, agent := range result.Agents {
			cmd.Printf("== %s\n", agent.AgentID)
			if agent.LatestProgress == nil {
				cmd.Println("  (no activity)")
				continue
			}
			for _, p := range agent.Progress {
				cmd.Printf("  task %d: %s\n", p.TaskID, p.Message)
			}
			for _, a := range agent.Artifacts {
				cmd.Printf("  artifact: %s (%d bytes)\n", a.ObjectPath, a.SizeBytes)
			}
		}
	},
}

func init() {
	liveCmd.Flags().IntP("limit", "n", 5, "Entries per agent")
	rootCmd.AddCommand(liveCmd)
}
