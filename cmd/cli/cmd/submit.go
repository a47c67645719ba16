package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var submitCmd = &cobra.Command{
	Use:   "submit [task text]",
	Short: "Submit a new task to the hub",
	Long: `Submit a natural-language task. The hub records it and assigns it to one
worker agent round-robin.

Example:
  hubctl submit "open the browser and search for weather in Berlin"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		text := strings.Join(args, " ")
		if strings.TrimSpace(text) == "" {
			cmd.Println("Error: task text is required")
			return
		}

		client := NewHubClient(viper.GetString("url"))
		result, err := client.SubmitTask(text)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Submit failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Submit failed: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Task submitted!\nTask ID: %d\n", result.TaskID)
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)
}
