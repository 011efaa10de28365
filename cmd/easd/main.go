// Command easd is the EAS background sync daemon: it loads configuration,
// opens the local SQLite store, and runs the orchestrator's scheduling loop
// until told to stop.
//
// Grounded on the teacher's main.go, which parses flags, builds its
// platform singletons, and wires everything into a long-running process —
// generalized here from "launch a desktop window" to "launch a scheduling
// loop and a status server," with os/signal replacing the desktop toolkit's
// own shutdown hook.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hkdb/aerion-eas/internal/config"
	"github.com/hkdb/aerion-eas/internal/control"
	"github.com/hkdb/aerion-eas/internal/credentials"
	"github.com/hkdb/aerion-eas/internal/database"
	"github.com/hkdb/aerion-eas/internal/logging"
	"github.com/hkdb/aerion-eas/internal/orchestrator"
	"github.com/hkdb/aerion-eas/internal/platform"
	"github.com/hkdb/aerion-eas/internal/store"
	"github.com/hkdb/aerion-eas/internal/transport"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "easd:", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("easd", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to config file")
	flags.String("data-dir", "", "directory for the database, logs, and attachments")
	flags.String("log-level", "", "debug, info, warn, or error")
	flags.String("log-format", "", "console or json")
	flags.String("status-addr", "", "address the status HTTP endpoint listens on")
	flags.Bool("ping.enabled", true, "parsed into config.PingEnabled; not consulted, the Ping loop runs regardless")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logging.Configure(cfg.LogLevel, cfg.LogFormat)
	log := logging.WithComponent("main")

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	attachDir := filepath.Join(cfg.DataDir, "attachments")
	if err := os.MkdirAll(attachDir, 0700); err != nil {
		return fmt.Errorf("creating attachment dir: %w", err)
	}

	db, err := database.Open(filepath.Join(cfg.DataDir, "easd.db"))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	credStore, err := credentials.NewStore(db.DB, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}

	if cfg.DeviceIDFile != "" {
		legacyPath := filepath.Join(cfg.DataDir, cfg.DeviceIDFile)
		if err := credStore.ImportLegacyDeviceID(legacyPath); err != nil {
			log.Warn().Err(err).Str("path", legacyPath).Msg("failed to import legacy device id")
		}
	}

	deviceID, err := credStore.GetDeviceID()
	if err != nil || deviceID == "" {
		deviceID = "androidc" + randomSuffix()
		if err := credStore.SetDeviceID(deviceID); err != nil {
			log.Warn().Err(err).Msg("failed to persist device id")
		}
	}

	accounts := store.NewAccountStore(db.DB)
	mailboxes := store.NewMailboxStore(db.DB)

	existingAccounts, err := accounts.List()
	if err != nil {
		log.Warn().Err(err).Msg("failed to list accounts for pool sizing")
	}
	db.UpdateIdleConns(len(existingAccounts))

	transportMgr := transport.New(transport.Config{
		MaxConnsTotal:    cfg.HTTPMaxConnsTotal,
		MaxConnsPerHost:  cfg.HTTPMaxConnsPerHost,
		AllowInsecureTLS: cfg.HTTPAllowInsecureTLS,
	})

	notifier := control.New()
	statusServer := control.NewStatusServer(accounts, mailboxes, notifier)

	orch := orchestrator.New(orchestrator.Options{
		Accounts:         accounts,
		Mailboxes:        mailboxes,
		Transport:        transportMgr,
		Credentials:      credStore,
		Network:          platform.NewNetworkMonitor(),
		SleepWake:        platform.NewSleepWakeMonitor(),
		Power:            platform.NewPowerMonitor(),
		Notifier:         notifier,
		AttachDir:        attachDir,
		AllowInsecureTLS: cfg.HTTPAllowInsecureTLS,
		AutoSyncContacts: true,
		AutoSyncCalendar: true,
		BackgroundData:   true,
		CheckInterval:    cfg.CheckInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db.StartCheckpointRoutine(ctx)
	orch.Start(ctx)

	httpServer := &http.Server{Addr: cfg.StatusAddr, Handler: statusServer.Handler()}
	go func() {
		log.Info().Str("addr", cfg.StatusAddr).Msg("status endpoint listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("status server stopped unexpectedly")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	orch.Stop()
	cancel()

	return nil
}

func randomSuffix() string {
	return time.Now().Format("150405")
}
