package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/arbiterhub/fabric/internal/agentrt"
	"github.com/arbiterhub/fabric/internal/agents"
	"github.com/arbiterhub/fabric/internal/heartbeat"
	"github.com/arbiterhub/fabric/internal/hub"
	"github.com/arbiterhub/fabric/internal/orchestrator"
)

// defaultCandidates is the debate pipeline rotation the coordinator and
// hub router pick from when the deployment hasn't overridden it with
// --candidates.
var defaultCandidates = []string{"moderator", "arbitrator", "refiner"}

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Run the control plane: coordinator, heartbeat monitor, intelligence hub",
	Long: `broker is shorthand for running the orchestrator-role agent (the
"coordinator") together with the heartbeat monitor and the intelligence
hub's background loops in one process — the typical single-node control
plane deployment. The coordinator runs only under this command:
"fabricctl agent run coordinator" refuses and points here, because the
coordinator shares the hub and orchestrator state held in this process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		logger := newLogger(cfg, "broker")

		candidates, _ := cmd.Flags().GetStringSlice("candidates")
		if len(candidates) == 0 {
			candidates = defaultCandidates
		}

		b, err := connectBus(cfg, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		obs := setupObservability(cfg, "broker", b, logger)
		mm := newMetricsManager(obs, logger)

		orch := orchestrator.New(orchestrator.Config{
			MaxRounds:          cfg.MaxRounds,
			TaskTimeout:        time.Duration(cfg.TaskTimeoutSec) * time.Second,
			PlateauDelta:       cfg.PlateauDelta,
			ConsensusThreshold: cfg.ConsensusThreshold,
		})

		h := hub.New(b, candidates, cfg, orch, logger, mm)

		monitor := heartbeat.NewMonitor(b, candidates, time.Duration(cfg.HeartbeatIntervalSec)*time.Second, logger)

		coordinator := agents.NewCoordinator("coordinator", b, h, orch, candidates, logger)

		rt, err := agentrt.New(agentrt.Config{
			AgentName:       "coordinator",
			HeartbeatInterval: time.Duration(cfg.HeartbeatIntervalSec) * time.Second,
			HeartbeatTTL:      time.Duration(cfg.HeartbeatTTLSec) * time.Second,
			DedupeCacheSize: cfg.DedupeCacheSize,
			HistorySize:     cfg.HistorySize,
			CallTimeout:     time.Duration(cfg.CallTimeoutSec) * time.Second,
		}, b, coordinator, logger, observabilityTracer(obs), mm)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		go monitor.Run(ctx)
		go coordinator.RunKillSwitchLoop(ctx, 5*time.Second)
		go h.RunClusterRebuildLoop(ctx, time.Duration(cfg.Router.RebuildInterval)*time.Second, 100)

		logger.Info("broker started", "candidates", candidates, "bus_url", cfg.BusURL)
		return rt.Run(ctx)
	},
}

func init() {
	brokerCmd.Flags().StringSlice("candidates", nil, "override the debate worker candidate pool (default moderator,arbitrator,refiner)")
}
