package app

import (
	"time"

	"countdown/internal/config"
	"countdown/internal/runtime/supervisor"
	"countdown/pkg/logx"
)

// ---- Config ----

type Config = config.Config

type ConfigManager = config.ConfigManager

var NewConfigManager = config.NewConfigManager

var SummarizeConfigChange = config.SummarizeConfigChange

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	return config.ParseDurationOrDefault(path, raw, def)
}

// ---- Runtime ----

type Supervisor = supervisor.Supervisor

var NewSupervisor = supervisor.New

var WithLogger = supervisor.WithLogger

var WithCancelOnError = supervisor.WithCancelOnError

// ---- Logging ----

func mapLoggingConfig(cfg *Config) logx.Config {
	if cfg == nil {
		return logx.Config{Level: "INFO", Console: true}
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}
