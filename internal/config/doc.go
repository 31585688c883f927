// Package config provides centralized configuration for the fabric's
// processes (broker, gateway, agents) through environment variables, with
// an optional YAML file layered underneath them.
//
// # Overview
//
// Load() reads environment variables with sensible defaults; if
// CONFIG_FILE points at a readable YAML file, its values seed the
// defaults before the environment is applied, so environment variables
// always win (12-factor precedence: file < env).
//
//	cfg := config.Load()
//	fmt.Println(cfg.GetBusAddress())
//
// Estimator and router tuning knobs are carried as [EstimatorConfig] and
// [RouterConfig] values inside AppConfig, and are the ones swapped via
// [Snapshot] when auto-tuning produces a new Cfg (see internal/estimator
// and internal/router).
package config
