// cmd/dashboard/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/NoahEritier/Smart-Home-IoT/internal/alerting"
	"github.com/NoahEritier/Smart-Home-IoT/internal/api"
	"github.com/NoahEritier/Smart-Home-IoT/internal/broker"
	"github.com/NoahEritier/Smart-Home-IoT/internal/config"
	"github.com/NoahEritier/Smart-Home-IoT/internal/data"
	"github.com/NoahEritier/Smart-Home-IoT/internal/logging"
	"github.com/NoahEritier/Smart-Home-IoT/internal/metrics"
	"github.com/NoahEritier/Smart-Home-IoT/internal/reducer"
	"github.com/NoahEritier/Smart-Home-IoT/internal/transport"
	"github.com/NoahEritier/Smart-Home-IoT/internal/websocket"
)

func main() {
	// --- Configuration ---
	configPath := flag.String("config", ".", "Path to the configuration file directory")
	webDir := flag.String("webdir", "", "Path to the dashboard's static files (overrides dashboard.web_dir)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *webDir != "" {
		cfg.Dashboard.WebDir = *webDir
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Outputs)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("dashboard stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Broker.Enabled {
		srv, err := broker.Start(cfg.Broker.Address, cfg.Broker.WSAddr, logger.Named("broker"))
		if err != nil {
			return err
		}
		defer srv.Close()
	}

	// --- Initialize Components ---
	reg := metrics.NewRegistry()
	m := metrics.New(reg, metrics.WithRooms(cfg.Dashboard.Rooms...))

	hub := websocket.NewHub(logger.Named("hub"))
	go hub.Run(ctx)

	alerter := alerting.NewAlerter(hub,
		alerting.WithTTL(cfg.Dashboard.AlertTTL),
		alerting.WithLogger(logger.Named("alerts")),
		alerting.WithMetrics(m),
	)

	// The transport delivers into the reducer and the reducer publishes through the transport.
	var r *reducer.Reducer
	mqtt := transport.New(transport.ConfigFrom(cfg.MQTT, data.DashboardFilters), func(topic string, payload []byte) {
		r.HandleMessage(topic, payload)
	}, logger.Named("mqtt"))

	r = reducer.New(cfg, mqtt, logger.Named("reducer"), m)
	apiHandler := api.NewAPIHandler(r, alerter, hub, cfg.Dashboard, reg, logger.Named("api"))

	if err := mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.MQTT.BrokerURL, err)
	}
	defer mqtt.Disconnect()

	// --- Setup HTTP Server ---
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Dashboard.Port),
		Handler:           api.SetupDashboardRouter(apiHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting dashboard server", zap.Int("port", cfg.Dashboard.Port), zap.String("broker", cfg.MQTT.BrokerURL))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- Graceful Shutdown ---
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("dashboard server: %w", err)
	}
	logger.Info("shutting down dashboard")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
