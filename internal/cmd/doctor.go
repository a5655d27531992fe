package cmd

import (
	"fmt"
	"os"
	"runtime"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gotrawl/internal/config"
	"github.com/3leaps/gotrawl/internal/observability"
	"github.com/3leaps/gotrawl/pkg/execx"
	"github.com/3leaps/gotrawl/pkg/extract"
	"github.com/3leaps/gotrawl/pkg/indexstore"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment and report which document
classes will run degraded.

Checks the configuration, scratch and data directories, the SQLite FTS5
module, and every external tool the extractors shell out to. Missing
tools are warnings: gotrawl still runs, but the classes backed by a
missing tool fall back to weaker extraction.

Examples:
  gotrawl doctor`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) {
	identity := GetAppIdentity()
	bannerName := "doctor"
	if identity != nil && identity.BinaryName != "" {
		bannerName = identity.BinaryName + " doctor"
	}
	observability.CLILogger.Info("=== " + bannerName + " ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	tools := extract.ExternalTools()
	allChecks := true
	checkNum := 1
	totalChecks := 6 + len(tools)

	// Check 1: Go version
	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Go version... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		allChecks = false
	}
	checkNum++

	// Check 2: Schema toolkit (manifest validation depends on it)
	version := crucible.GetVersion()
	if version.Gofulmen != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking schema toolkit... ✅ v%s", checkNum, totalChecks, version.Gofulmen),
			zap.String("gofulmen_version", version.Gofulmen))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking schema toolkit... ❌ Cannot resolve gofulmen version", checkNum, totalChecks))
		allChecks = false
	}
	checkNum++

	// Check 3: Configuration
	cfg := config.GetConfig()
	if cfg != nil {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking configuration... ✅ workers=%d session=%s", checkNum, totalChecks, cfg.Workers, cfg.SessionBackend),
			zap.Int("workers", cfg.Workers),
			zap.String("session_backend", cfg.SessionBackend))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking configuration... ❌ Configuration not loaded", checkNum, totalChecks))
		allChecks = false
	}
	checkNum++

	// Check 4: Scratch directory
	tempDir := os.TempDir()
	if cfg != nil && cfg.TempDir != "" {
		tempDir = cfg.TempDir
	}
	if err := probeDirWritable(tempDir); err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking scratch directory... ❌ %s not writable", checkNum, totalChecks, tempDir),
			zap.Error(err))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking scratch directory... ✅ %s", checkNum, totalChecks, tempDir),
			zap.String("temp_dir", tempDir))
	}
	checkNum++

	// Check 5: Data directory (index databases live here)
	configName := "gotrawl"
	if identity != nil && identity.ConfigName != "" {
		configName = identity.ConfigName
	}
	dataDir := gfconfig.GetAppDataDir(configName)
	if err := probeDirWritable(dataDir); err != nil {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking data directory... ⚠️  %s not writable", checkNum, totalChecks, dataDir),
			zap.Error(err))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking data directory... ✅ %s", checkNum, totalChecks, dataDir),
			zap.String("data_dir", dataDir))
	}
	checkNum++

	// Check 6: SQLite FTS5 module
	if err := indexstore.CheckFTS5(cmd.Context()); err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking SQLite FTS5... ❌ unavailable", checkNum, totalChecks),
			zap.Error(err))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking SQLite FTS5... ✅ available", checkNum, totalChecks))
	}
	checkNum++

	// Checks 7..N: external extraction tools
	missing := 0
	for _, tool := range tools {
		path, err := execx.LookPath(tool)
		if err != nil {
			observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking %s... ⚠️  not found (degraded extraction)", checkNum, totalChecks, tool),
				zap.String("tool", tool))
			missing++
			allChecks = false
		} else {
			observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking %s... ✅ %s", checkNum, totalChecks, tool, path),
				zap.String("tool", tool),
				zap.String("path", path))
		}
		checkNum++
	}

	observability.CLILogger.Info("")
	if allChecks {
		observability.CLILogger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", bannerName))
	} else {
		if missing > 0 {
			observability.CLILogger.Warn(fmt.Sprintf("⚠️  %d external tool(s) missing; the affected classes run degraded.", missing))
		}
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")
}

// probeDirWritable verifies dir exists (creating it if needed) and accepts
// a new file.
func probeDirWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, ".doctor-probe-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
