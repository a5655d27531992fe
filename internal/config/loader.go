package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var (
	configMu  sync.RWMutex
	appConfig *Config

	// cfgFile is an explicit config file path set by the CLI (--config).
	cfgFile string
)

// SetConfigFile pins the loader to an explicit config file path. An empty
// path restores the default search behavior.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	cfgFile = path
}

// Load resolves the configuration: defaults < config file < environment <
// runtime overrides. Later override maps win over earlier ones. The result
// is cached for GetConfig.
func Load(_ context.Context, overrides ...map[string]any) (*Config, error) {
	configMu.Lock()
	defer configMu.Unlock()

	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		for _, dir := range searchPaths() {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for _, key := range allKeys() {
		// AutomaticEnv alone does not surface env-only keys through Unmarshal.
		_ = v.BindEnv(key)
	}

	for _, m := range overrides {
		for key, val := range flatten("", m) {
			v.Set(key, val)
		}
	}

	cfg := &Config{}
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	appConfig = cfg
	return cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil when Load
// has not run.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("default-thread-count", DefaultWorkers)
	v.SetDefault("command-timeout-seconds", DefaultCommandTimeoutSeconds)
	v.SetDefault("max-recursion-depth", DefaultMaxRecursionDepth)
	v.SetDefault("temp-dir", os.TempDir())
	v.SetDefault("ocr-languages", []string{"eng"})
	v.SetDefault("ocr-min-text", DefaultOCRMinText)
	v.SetDefault("ocr-max-images", DefaultOCRMaxImages)
	v.SetDefault("ocr-disabled", false)
	v.SetDefault("audio-disabled", false)
	v.SetDefault("images-dir", "")
	v.SetDefault("exclude-dirs", []string{})
	v.SetDefault("dedupe-enabled", false)
	v.SetDefault("dedupe-hash", DefaultDedupeHash)
	v.SetDefault("csv-buffer-bytes", DefaultCSVBufferBytes)
	v.SetDefault("session-backend", SessionBackendSQLite)
	v.SetDefault("rate-limit", 0.0)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-file", "")
	v.SetDefault("secrets-file", "")

	v.SetDefault("index.db", "")
	v.SetDefault("index.batch-size", DefaultIndexBatchSize)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
}

// allKeys lists every recognized key for explicit env binding.
func allKeys() []string {
	return []string{
		"default-thread-count", "command-timeout-seconds", "max-recursion-depth",
		"temp-dir", "ocr-languages", "ocr-min-text", "ocr-max-images",
		"ocr-disabled", "audio-disabled", "images-dir", "exclude-dirs",
		"dedupe-enabled", "dedupe-hash", "csv-buffer-bytes", "session-backend",
		"rate-limit", "log-level", "log-file", "secrets-file",
		"index.db", "index.batch-size",
		"server.host", "server.port", "server.read_timeout",
		"server.write_timeout", "server.idle_timeout", "server.shutdown_timeout",
	}
}

// searchPaths returns the documented config file locations in search order:
// working directory, per-user config dir, then /etc.
func searchPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, ConfigName))
	}
	paths = append(paths, filepath.Join("/etc", ConfigName))
	return paths
}

// flatten converts nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			for sk, sv := range flatten(key, sub) {
				out[sk] = sv
			}
			continue
		}
		out[key] = v
	}
	return out
}
