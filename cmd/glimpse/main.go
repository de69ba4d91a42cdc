package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/glimmerhq/glimpse/internal/config"
)

var version = "0.3.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "glimpse",
	Short: "Weekly task planner with guest mode and live sync",
	Long: `Glimpse is a weekly task planner.

Tasks live in a local store until you log in; after login they are synced
to the server and kept live across connected clients. Run 'glimpse serve'
to host the server side, or use 'glimpse task' to manage tasks from the
terminal.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default glimpse.yaml in . or ~/.glimpse)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Task Commands:"},
		&cobra.Group{ID: "session", Title: "Session Commands:"},
		&cobra.Group{ID: "server", Title: "Server Commands:"},
	)
}

// loadConfig loads configuration honoring the --config flag.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
