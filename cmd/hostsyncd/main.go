package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hostsync/hostsyncd/internal/activation"
	"github.com/hostsync/hostsyncd/internal/config"
	"github.com/hostsync/hostsyncd/internal/deploy"
	"github.com/hostsync/hostsyncd/internal/gitrepo"
	"github.com/hostsync/hostsyncd/internal/kvstore"
	"github.com/hostsync/hostsyncd/internal/pkgmgr"
	"github.com/hostsync/hostsyncd/internal/supervisor"
	"github.com/hostsync/hostsyncd/internal/webhook"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Apply flags
	dryRun       bool
	allowUpgrade bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hostsyncd",
	Short: "Keep a host's components and configuration at a pinned, reproducible state",
	Long: `hostsyncd pins a set of git-managed components to exact revisions, deploys
configuration artifacts with point-in-time backups, and replaces bulk asset
directories on a single host.

Every reversible action taken during a run is recorded; if a mutating step
fails partway through, the run is rolled back and the host is left in its
prior state.`,
	SilenceUsage: true,
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Bring the host to the configured desired state",
	Long: `Apply pins every managed component to its configured revision, deploys each
configuration artifact (backing up destinations it replaces), and replaces
bulk asset directories.

If any step fails after the first mutation, every recorded action is undone
in reverse order and the command exits non-zero. After a completed or
rolled-back run, the configured dependent services are asked to resync.`,
	RunE: runApply,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report what apply would change, without mutating anything",
	Long: `Check computes every decision an apply run would make and reports the
intended mutations, but touches neither the filesystem nor any component's
work tree.`,
	RunE: runCheck,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server that triggers apply runs on push events",
	Long: `Serve starts a long-running HTTP server that listens for signed push
webhook events and triggers apply runs when the watched repository is
updated. Prometheus metrics are exposed at /metrics.

The listener comes from systemd socket activation when present, otherwise
the configured listen address is bound.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hostsyncd %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/hostsyncd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Apply command flags
	applyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report intended mutations without applying them")
	applyCmd.Flags().BoolVar(&allowUpgrade, "allow-upgrade", false, "run the system package upgrade after a successful apply (never rolled back)")

	// Add commands
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	return runOnce(dryRun, allowUpgrade)
}

func runCheck(cmd *cobra.Command, args []string) error {
	return runOnce(true, false)
}

func runOnce(dry, upgrade bool) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger().With("run_id", uuid.NewString())

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// A missing git binary is a fatal precondition; nothing has been
	// touched yet, so there is nothing to roll back.
	if err := gitrepo.EnsureInstalled(); err != nil {
		return err
	}

	engine := deploy.NewEngine(cfg,
		gitrepo.NewShellClient(),
		supervisor.NewClient(),
		newKVClient(cfg, logger),
		pkgmgr.NewAptManager(),
		logger, dry, upgrade)

	if err := engine.Run(ctx); err != nil {
		logger.Error("run failed", "error", err)
		return err
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Serve.Enabled {
		return fmt.Errorf("serve is not enabled in the configuration")
	}

	if err := gitrepo.EnsureInstalled(); err != nil {
		return err
	}

	run := func(runCtx context.Context) error {
		runLogger := logger.With("run_id", uuid.NewString())
		engine := deploy.NewEngine(cfg,
			gitrepo.NewShellClient(),
			supervisor.NewClient(),
			newKVClient(cfg, runLogger),
			pkgmgr.NewAptManager(),
			runLogger, false, false)
		return engine.Run(runCtx)
	}

	server, err := webhook.NewServer(cfg, run, logger)
	if err != nil {
		return fmt.Errorf("failed to create webhook server: %w", err)
	}

	listener, err := activation.Listener()
	if err != nil {
		return fmt.Errorf("socket activation failed: %w", err)
	}
	if listener != nil {
		logger.Info("using systemd-activated socket", "addr", listener.Addr().String())
	}

	return server.Start(ctx, listener)
}

// newKVClient builds the key-value service client, or nil when no service
// is configured
func newKVClient(cfg *config.Config, logger *slog.Logger) kvstore.Client {
	if cfg.KV.URL == "" {
		return nil
	}
	return kvstore.NewHTTPClient(cfg.KV.URL, logger)
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/hostsyncd/config.yaml", home)
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"components", len(cfg.Components),
		"artifacts", len(cfg.Artifacts),
		"assets", len(cfg.Assets),
		"services", len(cfg.Services.Restart))

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
