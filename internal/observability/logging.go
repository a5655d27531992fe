// Package observability wires the process-wide zap loggers.
//
// Two profiles exist: a human-oriented console logger for CLI commands and a
// structured JSON logger for the serve process. Both honor the configured
// level and an optional rotating file sink.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// CLILogger is the console logger used by CLI commands. It defaults to a
// no-op logger so package-level code may log before Init runs.
var CLILogger = zap.NewNop()

// ServerLogger is the structured logger used by long-running processes.
var ServerLogger = zap.NewNop()

// Profile names accepted by Init.
const (
	ProfileCLI        = "cli"
	ProfileStructured = "structured"
)

// Options control logger construction.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values fall back to info.
	Level string

	// Profile selects the stderr encoding: ProfileCLI or ProfileStructured.
	Profile string

	// File, when non-empty, adds a rotating JSON file sink alongside stderr.
	File string
}

// Init builds CLILogger and ServerLogger from opts. Safe to call more than
// once; later calls replace the loggers.
func Init(opts Options) error {
	level := ParseLevel(opts.Level)
	stderr := zapcore.Lock(os.Stderr)

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	jsonCfg := zap.NewProductionEncoderConfig()
	jsonCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cliCore zapcore.Core
	if strings.EqualFold(opts.Profile, ProfileStructured) {
		cliCore = zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), stderr, level)
	} else {
		cliCore = zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), stderr, level)
	}
	serverCore := zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), stderr, level)

	if opts.File != "" {
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // megabytes per segment
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), fileSink, level)
		cliCore = zapcore.NewTee(cliCore, fileCore)
		serverCore = zapcore.NewTee(serverCore, fileCore)
	}

	CLILogger = zap.New(cliCore)
	ServerLogger = zap.New(serverCore, zap.AddCaller())
	return nil
}

// Sync flushes buffered log entries. Errors are ignored: stderr sinks
// commonly return EINVAL on sync and there is nothing actionable.
func Sync() {
	_ = CLILogger.Sync()
	_ = ServerLogger.Sync()
}

// ParseLevel maps a config string to a zap level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
