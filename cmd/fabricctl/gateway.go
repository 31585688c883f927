package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arbiterhub/fabric/internal/gateway"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the WebSocket gateway clients connect to",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		logger := newLogger(cfg, "gateway")

		b, err := connectBus(cfg, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		obs := setupObservability(cfg, "gateway", b, logger)
		mm := newMetricsManager(obs, logger)

		gw, err := gateway.New(gateway.Config{
			SendQueueSize: cfg.GatewaySendQueue,
			PingInterval:  time.Duration(cfg.GatewayPingSec) * time.Second,
		}, b, logger, mm)
		if err != nil {
			return err
		}

		if err := gw.Start(); err != nil {
			return err
		}

		mux := http.NewServeMux()
		mux.Handle("/connection/websocket", gw.Handler())
		server := &http.Server{Addr: cfg.GatewayAddr, Handler: mux}

		base := cmd.Context()
		if base == nil {
			base = context.Background()
		}
		ctx, cancel := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		go func() {
			if err := gw.Run(ctx); err != nil {
				logger.Error("gateway fan-out loop stopped", "error", err)
			}
		}()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("gateway listening", "addr", cfg.GatewayAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			return err
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
		return gw.Shutdown(shutdownCtx)
	},
}
