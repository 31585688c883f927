package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arbiterhub/fabric/internal/agentrt"
	"github.com/arbiterhub/fabric/internal/agents"
)

// debatePersonas maps the debate-pipeline agent names (§4.4's moderator,
// arbitrator, refiner, workflow_generator variants) to the persona string
// handed to their Responder. All four share the same DebateWorker
// implementation; only the persona and registered name differ.
var debatePersonas = map[string]string{
	"moderator":         "moderator",
	"arbitrator":        "arbitrator",
	"refiner":           "refiner",
	"workflow_generator": "workflow_generator",
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run an individual agent runtime instance",
}

var agentRunCmd = &cobra.Command{
	Use:   "run <moderator|arbitrator|refiner|tool_executor|coordinator|workflow_generator>",
	Short: "Run one agent variant's runtime loop (§4.4)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfg := loadConfig(cmd)
		logger := newLogger(cfg, "agent."+name)

		b, err := connectBus(cfg, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		obs := setupObservability(cfg, name, b, logger)
		mm := newMetricsManager(obs, logger)

		var impl any
		switch {
		case name == "tool_executor":
			impl = agents.NewToolExecutor(name, b, []agents.Tool{agents.EchoTool{}}, logger)
		case name == "coordinator":
			return fmt.Errorf("agent run coordinator: run \"fabricctl broker\" instead — the coordinator shares the orchestrator and hub in-process state that a standalone agent runtime does not have")
		default:
			persona, ok := debatePersonas[name]
			if !ok {
				return fmt.Errorf("unknown agent variant %q", name)
			}
			impl = agents.NewDebateWorker(name, persona, b, nil, logger)
		}

		rt, err := agentrt.New(agentrt.Config{
			AgentName:         name,
			HeartbeatInterval: time.Duration(cfg.HeartbeatIntervalSec) * time.Second,
			HeartbeatTTL:      time.Duration(cfg.HeartbeatTTLSec) * time.Second,
			DedupeCacheSize:   cfg.DedupeCacheSize,
			HistorySize:       cfg.HistorySize,
			CallTimeout:       time.Duration(cfg.CallTimeoutSec) * time.Second,
		}, b, impl, logger, observabilityTracer(obs), mm)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		logger.Info("agent started", "name", name, "bus_url", cfg.BusURL)
		return rt.Run(ctx)
	},
}

func init() {
	agentCmd.AddCommand(agentRunCmd)
}
