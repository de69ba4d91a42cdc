package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/glimmerhq/glimpse/internal/auth"
	"github.com/glimmerhq/glimpse/internal/config"
	"github.com/glimmerhq/glimpse/internal/events"
	"github.com/glimmerhq/glimpse/internal/notify"
	"github.com/glimmerhq/glimpse/internal/realtime"
	"github.com/glimmerhq/glimpse/internal/server"
	"github.com/glimmerhq/glimpse/internal/storage"
	"github.com/glimmerhq/glimpse/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Run the glimpse server",
	Long: `Run the glimpse server: the task API, the real-time socket, and the
reminder scheduler.

Requires a Postgres database (database.url in glimpse.yaml or
GLIMPSE_DATABASE_URL). If kafka.brokers is set, task mutations are also
published to the configured topic.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Socket.Port = port
		}

		if cfg.Database.URL == "" {
			fmt.Fprintf(os.Stderr, "Error: database.url is not configured\n")
			os.Exit(1)
		}
		if cfg.Auth.Secret == "" {
			fmt.Fprintf(os.Stderr, "Error: auth.secret is not configured\n")
			os.Exit(1)
		}

		logger := newServerLogger(cfg)

		ctx := context.Background()
		repo, err := storage.OpenPostgres(ctx, cfg.Database.URL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
			os.Exit(1)
		}
		defer repo.Close()

		issuer := auth.NewIssuer([]byte(cfg.Auth.Secret), cfg.Auth.TokenTTL)

		var pub realtime.Publisher
		var kafkaClient *kgo.Client
		if len(cfg.Kafka.Brokers) > 0 {
			kafkaClient, err = kgo.NewClient(
				kgo.SeedBrokers(cfg.Kafka.Brokers...),
				kgo.DefaultProduceTopic(cfg.Kafka.Topic),
			)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error connecting to kafka: %v\n", err)
				os.Exit(1)
			}
			defer kafkaClient.Close()
			pub = events.NewPublisher(kafkaClient, cfg.Kafka.Topic, logger)
			logger.Printf("Publishing task mutations to %s", cfg.Kafka.Topic)
		}

		hub := realtime.NewHub(repo, issuer, pub, logger)

		scheduler := notify.NewScheduler(repo, &notify.LogNotifier{Logger: logger}, time.Minute, logger)
		if err := scheduler.ScheduleUpcoming(ctx); err != nil {
			logger.Printf("Failed to preload reminders: %v", err)
		}

		srv := server.New(server.Config{
			Port:        cfg.Socket.Port,
			SocketPath:  cfg.Socket.Path,
			Credentials: cfg.Auth.Credentials,
			Logger:      logger,
		}, repo, issuer, hub, scheduler)

		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Glimpse server listening on %s\n", ui.RenderPass("✓"), srv.Addr())

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		fmt.Printf("\n%s Shutting down...\n", ui.RenderAccent("⏻"))
		if err := srv.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
	},
}

// newServerLogger builds the server logger, rotating through lumberjack when
// a log file is configured.
func newServerLogger(cfg *config.Config) *log.Logger {
	var w io.Writer = os.Stderr
	if cfg.Log.File != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		}
	}
	return log.New(w, "[glimpse] ", log.LstdFlags)
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
