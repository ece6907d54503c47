package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=v1.2.3".
var version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "bosstimer",
	Short: "Boss respawn timer",
	Long: `bosstimer tracks recurring boss respawns, warns three minutes ahead
and rings an alarm when a boss is up. Alerts go to the terminal and,
when configured, to a Telegram chat.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(runCmd, listCmd, addCmd, removeCmd, historyCmd, checkUpdateCmd, testSoundCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
}
