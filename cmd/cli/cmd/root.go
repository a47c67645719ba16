package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "hubctl",
	Short: "Hubctl is a command line tool for interacting with the agenthub task hub",
	Long: `hubctl is the command-line interface for the agenthub multi-agent task hub.

The hub records user-submitted tasks, dispatches each one to exactly one
worker agent and collects progress updates, screenshots and the final
response.

Common workflows:

  Submit a task:
    hubctl submit "open the calculator and add 2 and 2"

  Check a task:
    hubctl status 42

  List recent tasks:
    hubctl tasks --status pending

  Cancel a running task:
    hubctl cancel 42

  Watch the per-agent live feed:
    hubctl live

Configuration:
  Set the API endpoint via environment variables or a config file:
    AGENTHUB_URL    Hub endpoint (default: http://localhost:8000)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".hubctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".hubctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "AGENTHUB_VARNAME"
	viper.SetEnvPrefix("AGENTHUB")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hubctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8000", "Agenthub hub URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}
