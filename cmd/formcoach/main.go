// formcoach - live form-feedback server
// Sensor bridges publish over MQTT; tracking payloads go back out over MQTT
// and to websocket clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/teslashibe/go-formcoach/internal/config"
	"github.com/teslashibe/go-formcoach/internal/log"
	"github.com/teslashibe/go-formcoach/pkg/debug"
	"github.com/teslashibe/go-formcoach/pkg/ingest"
	"github.com/teslashibe/go-formcoach/pkg/replay"
	"github.com/teslashibe/go-formcoach/pkg/web"
	"github.com/teslashibe/go-formcoach/pkg/workout"
)

// inboundQueue is the shared queue between transports and the router.
const inboundQueue = 1024

func main() {
	debugFlag := flag.Bool("debug", false, "Enable verbose debug logging")
	debugFusion := flag.Bool("debug-fusion", false, "Log every fused frame (very verbose)")
	envFile := flag.String("env", config.DefaultEnvFile, "dotenv file with server settings")
	port := flag.String("port", "", "HTTP port (overrides FORMCOACH_PORT)")
	flag.Parse()

	debug.Enabled, debug.Fusion = *debugFlag, *debugFusion

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}
	log.Init(debug.Level(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Error("formcoach stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := log.L()

	fusionCfg, err := cfg.Fusion()
	if err != nil {
		return err
	}

	registry := workout.NewRegistry()
	if err := registry.LoadBuiltIn(); err != nil {
		return fmt.Errorf("load built-in workouts: %w", err)
	}
	if _, err := registry.Get(cfg.DefaultWorkout); err != nil {
		return fmt.Errorf("default workout: %w", err)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	if cfg.WorkoutDir != "" {
		ids, err := registry.LoadDir(cfg.WorkoutDir)
		if err != nil {
			return fmt.Errorf("load workouts from %s: %w", cfg.WorkoutDir, err)
		}
		logger.Info("custom workouts loaded", "dir", cfg.WorkoutDir, "workouts", ids)

		watcher := workout.NewWatcher(cfg.WorkoutDir, registry, workout.WithWatcherLogger(logger))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Run(ctx); err != nil {
				logger.Warn("workout watcher stopped", "error", err)
			}
		}()
	}

	inbound := make(chan ingest.Inbound, inboundQueue)
	enqueue := func(in ingest.Inbound) {
		select {
		case inbound <- in:
		default:
			logger.Warn("inbound queue full, dropping control", "device", in.DeviceID)
		}
	}

	// MQTT transport
	mqttClient, err := ingest.NewClient(ingest.ClientConfig{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	}, ingest.WithLogger(logger))
	if err != nil {
		return err
	}
	defer mqttClient.Close()

	topics := ingest.NewTopics(cfg.TopicPrefix)
	subscriber := ingest.NewSubscriber(mqttClient.Native(), topics, inbound, ingest.WithLogger(logger))
	if err := subscriber.SubscribeAll(); err != nil {
		return err
	}
	publisher := ingest.NewPublisher(mqttClient.Native(), topics, 0, ingest.WithLogger(logger))
	wg.Add(1)
	go func() {
		defer wg.Done()
		publisher.Start(ctx)
	}()

	routerOpts := []ingest.RouterOption{
		ingest.WithRouterLogger(logger),
		ingest.WithDefaultWorkout(cfg.DefaultWorkout),
	}

	if cfg.RecordDir != "" {
		recorder, err := replay.NewRecorder(cfg.RecordDir)
		if err != nil {
			return err
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Warn("recording not finalized", "error", err)
			}
			logger.Info("recording saved", "path", recorder.Path(), "entries", recorder.Count())
		}()
		routerOpts = append(routerOpts, ingest.WithTap(func(in ingest.Inbound) {
			if err := recorder.Record(in); err != nil {
				logger.Warn("record failed", "error", err)
			}
		}))
		logger.Info("recording", "path", recorder.Path())
	}

	routerOpts = append(routerOpts, ingest.WithSinks(publisher))
	router := ingest.NewRouter(registry, fusionCfg, routerOpts...)
	server := web.NewServer(cfg.Port, router, registry, web.WithLogger(logger), web.WithControl(enqueue))
	router.AddSink(server)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			logger.Error("web server stopped", "error", err)
		}
	}()

	logger.Info("formcoach running",
		"broker", cfg.MQTTBroker,
		"sensors", topics.SensorFilter(),
		"workout", cfg.DefaultWorkout,
		"preset", cfg.Preset)

	router.Run(ctx, inbound)
	return nil
}
