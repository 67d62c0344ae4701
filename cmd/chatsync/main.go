package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "chatsync",
	Short:         "Conversation sync client",
	Long:          "Keeps a live conversation list, message stream and presence view in sync with the chat backend.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config/config.yaml", "path to the config file")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(sendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
