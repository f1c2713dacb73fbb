// Command chorus runs the consensus transcription orchestrator: a
// health-gated dispatcher over multiple ASR backends followed by an
// LLM-backed analysis pipeline with deterministic fallbacks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skillsenselab/chorus/config"
	"github.com/skillsenselab/chorus/generation"
	"github.com/skillsenselab/chorus/logger"
	"github.com/skillsenselab/chorus/observability"
	"github.com/skillsenselab/chorus/pipeline"
	"github.com/skillsenselab/chorus/server"
	"github.com/skillsenselab/chorus/transcription"
	"github.com/skillsenselab/chorus/websearch"
)

const serviceName = "chorus"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chorus: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config.Config
	if err := config.Load(serviceName, &cfg); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	logger.Init(cfg.Logging)
	log := logger.GetGlobalLogger()

	ctx := context.Background()

	var metrics *observability.Metrics
	if cfg.Observability.Enabled {
		tp, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName:    cfg.Name,
			ServiceVersion: cfg.Version,
			Environment:    cfg.Environment,
			Endpoint:       cfg.Observability.Endpoint,
			Insecure:       cfg.Observability.Insecure,
			SampleRate:     cfg.Observability.SampleRate,
		})
		if err != nil {
			return fmt.Errorf("initializing tracer: %w", err)
		}
		defer shutdownProvider(tp.Shutdown, "tracer", log)

		mp, err := observability.InitMeter(ctx, &observability.MeterConfig{
			ServiceName:    cfg.Name,
			ServiceVersion: cfg.Version,
			Environment:    cfg.Environment,
			Endpoint:       cfg.Observability.Endpoint,
			Insecure:       cfg.Observability.Insecure,
			Interval:       cfg.Observability.MetricsInterval,
		})
		if err != nil {
			return fmt.Errorf("initializing meter: %w", err)
		}
		defer shutdownProvider(mp.Shutdown, "meter", log)

		metrics, err = observability.NewMetrics(observability.Meter(cfg.Name))
		if err != nil {
			return fmt.Errorf("creating metric instruments: %w", err)
		}
	}

	descriptors := make([]transcription.ServiceDescriptor, 0, len(cfg.Transcription.Backends))
	for _, b := range cfg.Transcription.Backends {
		descriptors = append(descriptors, transcription.ServiceDescriptor{
			Name:         b.Name,
			BaseURL:      b.BaseURL,
			EndpointPath: b.Endpoint,
			Timeout:      b.Timeout,
		})
	}
	registry, err := transcription.NewRegistry(descriptors)
	if err != nil {
		return fmt.Errorf("building backend registry: %w", err)
	}
	gate, err := transcription.NewHealthGate(registry, cfg.Transcription.HealthTimeout)
	if err != nil {
		return fmt.Errorf("building health gate: %w", err)
	}
	dispatcher, err := transcription.NewDispatcher(registry, gate)
	if err != nil {
		return fmt.Errorf("building dispatcher: %w", err)
	}

	gen, err := generation.New(generation.Config{
		Dialect:     cfg.Generation.Dialect,
		APIKey:      cfg.Generation.APIKey,
		Model:       cfg.Generation.Model,
		BaseURL:     cfg.Generation.BaseURL,
		Timeout:     cfg.Generation.Timeout,
		Temperature: cfg.Generation.Temperature,
	})
	if err != nil {
		return fmt.Errorf("building generation client: %w", err)
	}
	if !gen.Configured() {
		log.Warn("generation API key not set; analysis stages will use deterministic fallbacks")
	}

	search, err := websearch.New(websearch.Config{
		APIKey:     cfg.Search.APIKey,
		BaseURL:    cfg.Search.BaseURL,
		Timeout:    cfg.Search.Timeout,
		MaxResults: cfg.Search.MaxResults,
	})
	if err != nil {
		return fmt.Errorf("building search client: %w", err)
	}

	p := pipeline.New(gen, search, pipeline.Options{
		SpeechContext:   cfg.Pipeline.Context,
		PhonemeBackend:  cfg.Pipeline.PhonemeBackend,
		GapThreshold:    cfg.Pipeline.GapThreshold,
		ConfidenceFloor: cfg.Pipeline.ConfidenceFloor,
		MaxQueries:      cfg.Pipeline.MaxQueries,
	})

	if metrics != nil {
		dispatcher.SetMetrics(metrics)
		p.SetMetrics(metrics)
	}

	srv := server.New(cfg.Server, log)
	srv.ApplyMiddleware()
	server.NewAPI(cfg.Name, registry, gate, dispatcher, p).Register(srv.GinEngine())

	if err := srv.Start(ctx); err != nil {
		return err
	}
	log.Info("orchestrator ready", map[string]interface{}{
		"backends": registry.Names(),
		"addr":     srv.Addr(),
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("Shutdown signal received", map[string]interface{}{
		"signal": sig.String(),
	})

	return srv.Stop(ctx)
}

func shutdownProvider(shutdown func(context.Context) error, name string, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Error("Provider shutdown error", map[string]interface{}{
			"provider": name,
			"error":    err.Error(),
		})
	}
}
