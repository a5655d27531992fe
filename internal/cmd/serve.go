package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gotrawl/internal/config"
	"github.com/3leaps/gotrawl/internal/observability"
	"github.com/3leaps/gotrawl/internal/server"
	"github.com/3leaps/gotrawl/internal/server/handlers"
	"github.com/3leaps/gotrawl/pkg/indexstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search index over HTTP",
	Long: `Run the read-only HTTP façade over the local search index.

Endpoints:
  GET /health              aggregated health report
  GET /health/live         liveness
  GET /health/ready        readiness (runs registered health checks)
  GET /health/startup      startup probe
  GET /version             build information
  GET /api/search          ranked full-text search (q, site, class, limit, offset)
  GET /api/suggest         title autocomplete (q, limit)
  GET /api/docs/{id}       cached document by id

When the index database does not exist yet the server still starts; the
API endpoints answer 503 until an index is imported and the server is
restarted. Basic auth credentials come from the secrets file when
configured.

Examples:
  gotrawl serve
  gotrawl serve --host 0.0.0.0 --port 9090`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Bind host (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Bind port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.GetConfig()
	log := observability.ServerLogger

	host := cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port = servePort
	}

	handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	hm := handlers.InitHealthManager(versionInfo.Version)
	hm.RegisterChecker("signal", signalHealthChecker{})

	identity := GetAppIdentity()
	if identity != nil {
		hm.RegisterChecker("identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
			configName: identity.ConfigName,
		})
	}

	opts := []server.Option{
		server.WithLogger(log),
		server.WithTimeouts(
			cfg.Server.ReadTimeout,
			cfg.Server.WriteTimeout,
			cfg.Server.IdleTimeout,
			cfg.Server.ShutdownTimeout,
		),
	}

	if cfg.SecretsFile != "" {
		secrets, err := config.LoadSecrets(cfg.SecretsFile)
		if err != nil {
			log.Error("failed to load secrets", zap.String("path", cfg.SecretsFile), zap.Error(err))
			return exitError(foundry.ExitFileReadError, "Failed to load secrets", err)
		}
		if secrets.HTTPBasicUser != "" {
			opts = append(opts, server.WithBasicAuth(secrets.HTTPBasicUser, secrets.HTTPBasicPassword))
			log.Info("basic auth enabled", zap.String("user", secrets.HTTPBasicUser))
		}
	}

	dbPath, err := resolveIndexDBPath()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot resolve index database path", err)
	}
	if _, statErr := os.Stat(dbPath); statErr == nil {
		store, err := indexstore.Open(ctx, dbPath)
		if err != nil {
			log.Error("failed to open index database", zap.String("path", dbPath), zap.Error(err))
			return exitError(foundry.ExitFileReadError, "Failed to open index database", err)
		}
		defer func() { _ = store.Close() }()
		opts = append(opts, server.WithStore(store))
		hm.RegisterChecker("index", indexHealthChecker{store: store})
		log.Info("index attached", zap.String("path", dbPath))
	} else {
		log.Warn("index database not found; search endpoints disabled",
			zap.String("path", dbPath))
	}

	srv := server.New(host, port, opts...)
	if err := srv.Start(ctx); err != nil {
		log.Error("server failed", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	log.Info("server stopped")
	return nil
}

// signalHealthChecker reports process liveness. Reaching it at all means
// the serve loop is up, so it never fails.
type signalHealthChecker struct{}

func (signalHealthChecker) CheckHealth(ctx context.Context) error {
	return nil
}

// identityHealthChecker verifies the app identity resolved during startup.
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(ctx context.Context) error {
	if c.binaryName == "" {
		return errors.New("app identity missing binary name")
	}
	if c.envPrefix == "" {
		return errors.New("app identity missing env prefix")
	}
	if c.configName == "" {
		return errors.New("app identity missing config name")
	}
	return nil
}

// indexHealthChecker verifies the attached index database still answers.
type indexHealthChecker struct {
	store *indexstore.Store
}

func (c indexHealthChecker) CheckHealth(ctx context.Context) error {
	if c.store == nil {
		return errors.New("index store not attached")
	}
	if _, err := c.store.SizeBytes(ctx); err != nil {
		return fmt.Errorf("index store unavailable: %w", err)
	}
	return nil
}
