package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"openclaw/internal/admins"
	"openclaw/internal/auth"
	"openclaw/internal/bots"
	"openclaw/internal/config"
	"openclaw/internal/httpapi"
	"openclaw/internal/notify"
	"openclaw/internal/policy"
	"openclaw/internal/sentry"
	"openclaw/internal/server"
	"openclaw/internal/storage"
)

func main() {
	var (
		configPath string
		dbPath     string
	)

	root := &cobra.Command{
		Use:   "openclaw-server",
		Short: "OpenClaw instant-messaging broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, dbPath)
		},
		SilenceUsage: true,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "openclaw.yaml", "path to the YAML config file")
	root.Flags().StringVar(&dbPath, "db", "openclaw.db", "path to the sqlite database")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath, dbPath string) error {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return err
	}

	sentry.Init(server.Version)
	defer sentry.Flush()

	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		sentry.CaptureError(err, "Failed to initialize database")
		return err
	}
	defer store.Close()

	adminSet, err := admins.Load(cfg.Server.AdminFile)
	if err != nil {
		sentry.CaptureError(err, "Failed to load admin file")
		return err
	}

	engine, err := policy.NewEngine(store, adminSet)
	if err != nil {
		sentry.CaptureError(err, "Failed to initialize policy engine")
		return err
	}

	notifier := notify.NewComposite(
		notify.NewMailer(cfg.SMTP),
		notify.NewSMSClient(cfg.FlexPBX),
	)

	authSvc := auth.NewService(store, notifier, notifier.Enabled())
	orchestrator := bots.NewOrchestrator(cfg.Bots, store)

	broker := server.New(&cfg, server.Deps{
		Store:    store,
		Auth:     authSvc,
		Admins:   adminSet,
		Policy:   engine,
		Bots:     orchestrator,
		Notifier: notifier,
	})

	serverErrors := make(chan error, 2)

	go func() {
		if err := broker.Start(); err != nil {
			serverErrors <- err
		}
	}()

	if addr := cfg.Server.HTTPStatusAddr; addr != "" {
		api := httpapi.New(cfg.Server.ServerName, server.Version, broker)
		go func() {
			log.Printf("Status API listening on %s", addr)
			if err := api.Start(addr); err != nil {
				serverErrors <- err
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErrors:
		sentry.CaptureError(err, "Server error, initiating shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDelay())
	defer cancel()

	if err := broker.Shutdown(shutdownCtx); err != nil {
		log.Printf("Broker shutdown error: %v", err)
	}
	log.Println("Server shutdown complete")
	return nil
}
