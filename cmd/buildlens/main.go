package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buildlens/buildlens/internal/buildinfo"
	"github.com/buildlens/buildlens/pkg/config"
	"github.com/buildlens/buildlens/pkg/intercept"
	"github.com/buildlens/buildlens/pkg/output"
	"github.com/buildlens/buildlens/pkg/pipeline"
	"github.com/buildlens/buildlens/pkg/semantic"
)

var (
	configPath string
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "buildlens [flags] -- command [args...]",
	Short: "Compilation database generator for unmodified builds",
	Long: "Buildlens observes a build process, captures every program it executes,\n" +
		"and derives a compile_commands.json from the compiler invocations it finds.\n" +
		"Without a subcommand it intercepts the given build command and immediately\n" +
		"runs the semantic pass over the captured events.",
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runAll,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "buildlens.yaml", "configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringVar(&outputPath, "output", "compile_commands.json", "compilation database path")

	rootCmd.AddCommand(interceptCmd)
	rootCmd.AddCommand(semanticCmd)
	rootCmd.AddCommand(versionCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig loads and validates the configuration. Invalid
// configuration is fatal before any event is processed.
func loadConfig(logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("configuration", "err", e)
		}
		return nil, fmt.Errorf("invalid configuration in %s", configPath)
	}
	return cfg, nil
}

func buildTool(cfg *config.Config) semantic.Tool {
	return semantic.NewBuilder().
		CompilersToRecognize(cfg.Recognition.CompilersToRecognize...).
		CompilersToExclude(cfg.Recognition.CompilersToExclude...).
		CompilersToExcludeByArguments(cfg.Recognition.CompilersToExcludeByArguments...).
		Build()
}

// signalContext cancels when the user interrupts the run.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// --- All (root): intercept + semantic over a session-scoped log ---

var outputPath string

func runAll(_ *cobra.Command, args []string) error {
	logger := newLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	code, err := buildAndDerive(ctx, cfg, "", args, outputPath, logger)
	if err != nil {
		return err
	}
	if code != 0 {
		// os.Exit skips deferred cleanup; everything session-scoped is
		// already released by buildAndDerive.
		cancel()
		os.Exit(code)
	}
	return nil
}

// buildAndDerive runs one capture session, derives the database from
// the captured events, and removes the event log before returning. The
// database is written even when the build itself failed.
func buildAndDerive(ctx context.Context, cfg *config.Config, logPath string, argv []string, outputPath string, logger *slog.Logger) (int, error) {
	code, logPath, err := interceptBuild(ctx, cfg, logPath, argv, logger)
	if logPath != "" {
		defer os.Remove(logPath)
	}
	if err != nil {
		return code, err
	}
	if code != 0 {
		logger.Warn("build failed, deriving database from captured events anyway", "exit", code)
	}
	return code, runSemantic(cfg, logPath, outputPath, logger)
}

// interceptBuild runs one capture session and returns the build's exit
// code and the event log location.
func interceptBuild(ctx context.Context, cfg *config.Config, logPath string, argv []string, logger *slog.Logger) (int, string, error) {
	if len(argv) == 0 {
		return 1, "", fmt.Errorf("no build command given; use: buildlens -- make")
	}
	readTimeout, err := cfg.ReadTimeout()
	if err != nil {
		return 1, "", err
	}
	drain, err := cfg.ShutdownTimeout()
	if err != nil {
		return 1, "", err
	}

	session, err := intercept.StartSession(logPath, readTimeout, drain, logger)
	if err != nil {
		return 1, "", err
	}

	code, runErr := session.RunBuild(ctx, argv)
	if closeErr := session.Close(); closeErr != nil {
		logger.Warn("event log close failed", "err", closeErr)
	}
	if runErr != nil {
		return 1, session.LogPath(), runErr
	}
	return code, session.LogPath(), nil
}

// runSemantic derives the compilation database from a finished log.
func runSemantic(cfg *config.Config, eventsPath, outputPath string, logger *slog.Logger) error {
	source, err := intercept.OpenSource(eventsPath, logger)
	if err != nil {
		return err
	}
	defer source.Close()

	tool := buildTool(cfg)
	rewrite := semantic.NewFlagRewrite(cfg.Transform.ArgumentsToAdd, cfg.Transform.ArgumentsToRemove)
	sink := output.NewWriter(outputPath)

	stats, err := pipeline.Run(source, tool, rewrite, sink, logger)
	if err != nil {
		return err
	}
	logger.Info("compilation database written",
		"path", outputPath,
		"events", stats.Events,
		"recognized", stats.Recognized,
		"failed", stats.Failed,
		"dropped", stats.Dropped)
	return nil
}

// --- Intercept ---

var eventsPath string

var interceptCmd = &cobra.Command{
	Use:   "intercept [flags] -- command [args...]",
	Short: "Run a build and capture its executions into an event log",
	Args:  cobra.ArbitraryArgs,
	RunE: func(_ *cobra.Command, args []string) error {
		logger := newLogger()
		cfg, err := loadConfig(logger)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		code, _, err := interceptBuild(ctx, cfg, eventsPath, args, logger)
		if err != nil {
			return err
		}
		if code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

// --- Semantic ---

var semanticCmd = &cobra.Command{
	Use:   "semantic",
	Short: "Derive a compilation database from a captured event log",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		logger := newLogger()
		cfg, err := loadConfig(logger)
		if err != nil {
			return err
		}
		return runSemantic(cfg, eventsPath, outputPath, logger)
	},
}

func init() {
	interceptCmd.Flags().StringVar(&eventsPath, "events", "events.db", "event log path")
	semanticCmd.Flags().StringVar(&eventsPath, "events", "events.db", "event log path")
	semanticCmd.Flags().StringVar(&outputPath, "output", "compile_commands.json", "compilation database path")
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("buildlens %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}
