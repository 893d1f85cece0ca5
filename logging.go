package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// logConfig is the "log" section of the configuration.
type logConfig struct {
	Level      string `mapstructure:"level"`        // debug, info, warn or error
	Format     string `mapstructure:"format"`       // "console" or "json"
	File       string `mapstructure:"file"`         // also log to this file, rotated
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // rotate after this many megabytes
	MaxBackups int    `mapstructure:"max_backups"`  // rotated files kept
	MaxAgeDays int    `mapstructure:"max_age_days"` // days rotated files are kept
}

// newLogger builds a logger writing to stderr and, if c.File is set,
// to a rotating JSON log file.
func newLogger(c logConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch c.Format {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "", "console":
		consCfg := encCfg
		consCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(consCfg)
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Format)
	}
	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)}
	if c.File != "" {
		w := &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
