package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/RMahshie/voltsense/internal/config"
	"github.com/RMahshie/voltsense/internal/telemetry"
	"github.com/RMahshie/voltsense/internal/transport"
	"github.com/RMahshie/voltsense/pkg/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newTailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Print normalized samples as JSON lines",
		Args:  cobra.NoArgs,
		RunE:  runTail,
	}
}

func runTail(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	manager, err := telemetry.NewManager(telemetry.Options{
		Opener:      transport.NewSerial(),
		HistorySize: cfg.Serial.HistorySize,
		ErrorHold:   cfg.Serial.ErrorHold,
		Calibration: startupCalibration(cfg.Serial),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, unsubscribe := manager.Subscribe()
	defer unsubscribe()

	if err := manager.Connect(ctx, cfg.Serial.Port); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Serial session did not close cleanly")
		}
	}()

	enc := json.NewEncoder(cmd.OutOrStdout())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case models.EventSample:
				if err := enc.Encode(ev.Sample); err != nil {
					return err
				}
			case models.EventStatus:
				log.Info().Str("status", string(ev.Status)).Msg("Connection status changed")
				if ev.Status == models.StatusDisconnected {
					return nil
				}
			}
		}
	}
}
