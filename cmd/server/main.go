package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "favorites-app",
	Short: "Favorites and activity timeline web application",
	Long: `Session-based web application with per-user favorites, an activity
timeline and an admin user-management panel.

Configuration is read from the environment (see internal/config).`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
