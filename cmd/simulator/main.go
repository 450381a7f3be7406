// cmd/simulator/main.go
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

	"github.com/NoahEritier/Smart-Home-IoT/internal/api"
	"github.com/NoahEritier/Smart-Home-IoT/internal/config"
	"github.com/NoahEritier/Smart-Home-IoT/internal/data"
	"github.com/NoahEritier/Smart-Home-IoT/internal/history"
	"github.com/NoahEritier/Smart-Home-IoT/internal/logging"
	"github.com/NoahEritier/Smart-Home-IoT/internal/metrics"
	"github.com/NoahEritier/Smart-Home-IoT/internal/overrides"
	"github.com/NoahEritier/Smart-Home-IoT/internal/simulator"
	"github.com/NoahEritier/Smart-Home-IoT/internal/transport"
)

const serviceName = "smart-home-iot-simulator"

func main() {
	configPath := flag.String("config", ".", "Path to the configuration file directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Outputs)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("simulator stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	store := history.NewFileStore(cfg.History.Dir, logger.Named("history"))
	sink := history.MultiSink{store}
	if cfg.History.Influx.Enabled() {
		influx := history.NewInfluxSink(cfg.History.Influx)
		defer influx.Close()
		sink = append(sink, influx)
		logger.Info("mirroring history to influxdb", zap.String("url", cfg.History.Influx.URL), zap.String("bucket", cfg.History.Influx.Bucket))
	}

	overrideStore := overrides.NewFileStore(cfg.Simulator.OverrideFile, logger.Named("overrides"))

	var sim *simulator.Simulator
	mqtt := transport.New(transport.ConfigFrom(cfg.MQTT, data.CommandFilters), func(topic string, payload []byte) {
		sim.HandleCommand(topic, payload)
	}, logger.Named("mqtt"))
	sim = simulator.New(cfg.Simulator, mqtt, overrideStore, sink, logger.Named("simulator"), simulator.WithMetrics(m))

	if err := mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.MQTT.BrokerURL, err)
	}
	defer mqtt.Disconnect()

	if err := sim.Start(ctx); err != nil {
		logger.Warn("publishing initial state", zap.Error(err))
	}
	err := overrideStore.Watch(ctx, func(state overrides.State) {
		logger.Info("override file changed, applying")
		if err := sim.ApplyState(ctx, state); err != nil {
			logger.Warn("applying overrides", zap.Error(err))
		}
	})
	if err != nil {
		logger.Warn("override file will not be watched", zap.Error(err))
	}

	go sim.Run(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.History.Port),
		Handler:           api.SetupHistoryRouter(api.NewHistoryHandler(store, serviceName, cfg.MQTT.BrokerURL, logger.Named("api")), reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting history server", zap.Int("port", cfg.History.Port), zap.Duration("interval", cfg.Simulator.Interval))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("history server: %w", err)
	}
	logger.Info("shutting down simulator")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
