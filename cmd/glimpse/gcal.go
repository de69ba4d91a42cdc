package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/glimmerhq/glimpse/internal/gcal"
	"github.com/glimmerhq/glimpse/internal/ui"
)

var gcalCmd = &cobra.Command{
	Use:     "gcal",
	GroupID: "tasks",
	Short:   "Google Calendar integration",
}

var gcalImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import calendar events as tasks",
	Long: `Import upcoming Google Calendar events as tasks.

Requires google.client_id, google.client_secret, and a cached OAuth token
(google.token_file) in the configuration. Events already present as tasks
(same title and start time) are skipped.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		if cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "" {
			fmt.Fprintf(os.Stderr, "Error: google.client_id and google.client_secret are not configured\n")
			os.Exit(1)
		}

		days, _ := cmd.Flags().GetInt("days")
		calendarID, _ := cmd.Flags().GetString("calendar")
		if calendarID == "" {
			calendarID = cfg.Google.CalendarID
		}

		ctx := context.Background()
		srv, err := gcal.NewService(ctx, cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.TokenFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		facade, cleanup, err := openBackend(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		importer := gcal.NewImporter(srv, facade, log.New(os.Stderr, "[gcal] ", 0))

		since := time.Now()
		if days > 0 {
			since = since.AddDate(0, 0, -days)
		}

		imported, err := importer.Import(ctx, calendarID, since)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error importing events: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Imported %d event(s) from %s\n", ui.RenderPass("✓"), imported, ui.RenderAccent(calendarID))
	},
}

func init() {
	gcalImportCmd.Flags().Int("days", 0, "Also import events up to this many days in the past")
	gcalImportCmd.Flags().String("calendar", "", "Calendar to import from (default from config)")

	gcalCmd.AddCommand(gcalImportCmd)
	rootCmd.AddCommand(gcalCmd)
}
