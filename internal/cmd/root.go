// Package cmd implements the gotrawl command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/gotrawl/internal/config"
	"github.com/3leaps/gotrawl/internal/observability"
)

// AppIdentity names the binary for config and data-dir resolution.
type AppIdentity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

var appIdentity *AppIdentity

// GetAppIdentity returns the identity established by the root command, or
// nil before any command has run.
func GetAppIdentity() *AppIdentity {
	return appIdentity
}

// versionInfo holds build metadata injected via ldflags.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command and the
// serve façade.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile  string
	logLevel string
	logFile  string
)

var rootCmd = &cobra.Command{
	Use:   "gotrawl",
	Short: "Crawl directory trees into a searchable text index",
	Long: `gotrawl walks a rooted directory tree (typically a mounted SMB/NFS share
or a mirrored website), extracts plain text from every regular file it can
read, and appends one CSV record per file. Completed CSVs can be imported
into an embedded full-text index and served over a small read-only HTTP API.

Interrupted crawls resume where they left off: a hidden session database
next to the output records every claimed path.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initRuntime(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (searched in ., $XDG_CONFIG_HOME/gotrawl, /etc/gotrawl when unset)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Rotating JSON log file in addition to stderr")
}

// initRuntime loads layered configuration and builds the process loggers.
// Every command passes through here via PersistentPreRunE.
func initRuntime(cmd *cobra.Command) error {
	appIdentity = &AppIdentity{
		BinaryName: "gotrawl",
		EnvPrefix:  config.EnvPrefix,
		ConfigName: config.ConfigName,
	}

	if cfgFile != "" {
		config.SetConfigFile(cfgFile)
	}

	overrides := map[string]any{}
	if logLevel != "" {
		overrides["log-level"] = logLevel
	}
	if logFile != "" {
		overrides["log-file"] = logFile
	}

	cfg, err := config.Load(cmd.Context(), overrides)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	profile := observability.ProfileCLI
	if cmd.Name() == "serve" {
		profile = observability.ProfileStructured
	}
	return observability.Init(observability.Options{
		Level:   cfg.LogLevel,
		Profile: profile,
		File:    cfg.LogFile,
	})
}

// exitCodeError carries a process exit code from a RunE implementation up
// to Execute.
type exitCodeError struct {
	code    int
	message string
	err     error
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.message, e.err, e.code)
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

// Execute runs the root command under a signal-cancelled context and maps
// coded errors to the process exit status.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		observability.Sync()
		return
	}

	observability.CLILogger.Error(err.Error())
	observability.Sync()
	stop()

	var coded *exitCodeError
	if errors.As(err, &coded) {
		os.Exit(coded.code)
	}
	os.Exit(1)
}
