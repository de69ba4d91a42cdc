package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/glimmerhq/glimpse/internal/auth"
	"github.com/glimmerhq/glimpse/internal/config"
	"github.com/glimmerhq/glimpse/internal/localstore"
	"github.com/glimmerhq/glimpse/internal/remote"
	"github.com/glimmerhq/glimpse/internal/syncer"
	"github.com/glimmerhq/glimpse/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "session",
	Short:   "Log in and sync local tasks to your account",
	Long: `Log in to a glimpse server.

After a successful login any tasks created while logged out are pushed to
your account. Tasks that already exist there (same title and due date) are
merged rather than duplicated.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		username, _ := cmd.Flags().GetString("user")
		password := os.Getenv("GLIMPSE_PASSWORD")

		if username == "" || password == "" {
			if err := runLoginForm(&username, &password); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		ctx := context.Background()
		client := remote.NewClient(cfg.Auth.APIBase, "")
		session, err := client.Login(ctx, username, password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
			os.Exit(1)
		}

		if err := auth.SaveSession(cfg.Auth.SessionFile, &auth.Session{
			UserID: session.UserID,
			Token:  session.Token,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving session: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Logged in as %s\n", ui.RenderPass("✓"), ui.RenderBold(session.UserID))

		synced, err := syncGuestTasks(ctx, cfg, session.Token)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s Sync failed: %v\n", ui.RenderWarn("⚠"), err)
			fmt.Fprintf(os.Stderr, "   Local tasks are untouched; they will sync on the next login.\n")
			os.Exit(1)
		}
		if synced > 0 {
			fmt.Printf("%s Synced %d local task(s) to your account\n", ui.RenderPass("✓"), synced)
		}
	},
}

// syncGuestTasks pushes guest-mode tasks to the account and reports how
// many were synced.
func syncGuestTasks(ctx context.Context, cfg *config.Config, token string) (int, error) {
	store, err := localstore.Open(config.LocalDBPath())
	if err != nil {
		return 0, fmt.Errorf("failed to open local store: %w", err)
	}
	defer store.Close()

	client := remote.NewClient(cfg.Auth.APIBase, token)
	engine := syncer.New(store, client, log.New(os.Stderr, "[sync] ", 0))
	return engine.SyncOnLogin(ctx)
}

func runLoginForm(username, password *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Value(username),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(password),
		),
	)
	return form.Run()
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "session",
	Short:   "Log out and return to guest mode",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		session, err := auth.LoadSession(cfg.Auth.SessionFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !session.Valid() {
			fmt.Printf("%s Not logged in\n", ui.RenderDim("∅"))
			return
		}

		// Advisory; tokens are stateless server-side.
		client := remote.NewClient(cfg.Auth.APIBase, session.Token)
		_ = client.Logout(context.Background())

		if err := auth.ClearSession(cfg.Auth.SessionFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Logged out\n", ui.RenderPass("✓"))
	},
}

func init() {
	loginCmd.Flags().StringP("user", "u", "", "Username")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
