package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arbiterhub/fabric/internal/agentrt"
	"github.com/arbiterhub/fabric/internal/bus"
	"github.com/arbiterhub/fabric/internal/config"
	"github.com/arbiterhub/fabric/internal/observability"
)

// loadConfig applies CONFIG_FILE/env, then overlays the --log-level flag
// when set, matching the precedence config.Load documents for every
// other knob.
func loadConfig(cmd *cobra.Command) *config.AppConfig {
	cfg := config.Load()
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg
}

func newLogger(cfg *config.AppConfig, component string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("component", component)
}

func connectBus(cfg *config.AppConfig, logger *slog.Logger) (bus.Bus, error) {
	b, err := bus.NewRedisBus(bus.Options{
		URL:      cfg.BusURL,
		Password: cfg.BusPassword,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect bus: %w", err)
	}
	return b, nil
}

// setupObservability wires tracing and metrics per §C10/C11, scoped to
// this process's instanceID (e.g. "broker", "gateway", or an agent
// name). When b is non-nil, warn/error log entries are also republished
// onto the bus's dead-letter channel (§7), giving operators one place to
// watch for every process's diagnostics rather than grepping N log
// streams. Failures are logged and swallowed so a missing collector
// never blocks startup.
func setupObservability(cfg *config.AppConfig, instanceID string, b bus.Bus, logger *slog.Logger) *observability.Observability {
	obs, err := observability.NewObservability(observability.ConfigFromApp(cfg, instanceID))
	if err != nil {
		logger.Warn("observability setup failed, continuing without it", "error", err)
		return nil
	}
	if b != nil && obs.Handler != nil {
		obs.Handler.SetEventPoster(deadLetterPoster(b))
	}
	return obs
}

// deadLetterPoster publishes an observability.EventData onto the agent
// runtime's dead-letter channel, turning a warn/error log entry into a
// diagnostic any subscriber (e.g. a future alerting agent) can consume.
func deadLetterPoster(b bus.Bus) func(event observability.EventData) error {
	return func(event observability.EventData) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		return b.Publish(context.Background(), agentrt.DeadLetterChannel, payload)
	}
}

// newMetricsManager builds a MetricsManager bound to obs's meter, or nil
// when observability setup failed — every caller treats a nil manager as
// "metrics disabled" rather than erroring.
func newMetricsManager(obs *observability.Observability, logger *slog.Logger) *observability.MetricsManager {
	if obs == nil {
		return nil
	}
	mm, err := observability.NewMetricsManager(obs.Meter)
	if err != nil {
		logger.Warn("metrics manager setup failed, continuing without it", "error", err)
		return nil
	}
	return mm
}

// observabilityTracer returns a TraceManager bound to the global tracer
// provider NewObservability registered, or nil when observability is
// disabled.
func observabilityTracer(obs *observability.Observability) *observability.TraceManager {
	if obs == nil {
		return nil
	}
	return observability.NewTraceManager(obs.Config.ServiceName)
}
