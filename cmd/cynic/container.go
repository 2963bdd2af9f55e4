package main

import (
	"fmt"

	"cynic/internal/analyzer"
	"cynic/internal/analyzer/builtin"
	"cynic/internal/config"
	"cynic/internal/consensus"
	"cynic/internal/health"
	"cynic/internal/logging"
	"cynic/internal/observability"
	"cynic/internal/orchestrator"
	"cynic/internal/policy"
)

// core bundles the wired judging pipeline shared by judge and serve.
type core struct {
	registry *analyzer.Registry
	engine   *consensus.Engine
	monitor  *health.Monitor
	table    *policy.QTable
	orch     *orchestrator.Orchestrator
	metrics  *observability.MetricsCollector
	tracer   *observability.TracerProvider
}

// buildCore assembles the pipeline from configuration. Metrics and
// tracing are only attached when enabled; the caller owns shutdown.
func buildCore(cfg config.Config, log logging.Logger) (*core, error) {
	registry := analyzer.NewRegistry(log)
	monitor := health.NewMonitor(log)
	table := policy.NewQTable(log)

	weights := func(id string) float64 {
		w, ok := registry.Weights()[id]
		if !ok {
			return 1
		}
		return w
	}
	engine := consensus.NewEngine(weights, log)

	builtins := []analyzer.Analyzer{
		builtin.NewGuardian(),
		builtin.NewAnalyst(),
		builtin.NewCoherence(builtin.SystemStats{
			ActiveAnalyzers: registry.Len,
			ConsensusRate:   engine.SuccessRate,
		}),
	}
	for _, a := range builtins {
		if err := registry.Register(a); err != nil {
			return nil, fmt.Errorf("register analyzer: %w", err)
		}
	}

	metrics, err := observability.NewMetricsCollector(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	tracer, err := observability.NewTracerProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		AnalyzerTimeout: cfg.Orchestrator.AnalyzerTimeout,
		MaxConcurrent:   cfg.Orchestrator.MaxConcurrent,
		Planning:        cfg.Orchestrator.Planning,
	}, orchestrator.Deps{
		Registry: registry,
		Engine:   engine,
		Monitor:  monitor,
		Table:    table,
		Metrics:  metrics,
		Tracer:   tracer,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	return &core{
		registry: registry,
		engine:   engine,
		monitor:  monitor,
		table:    table,
		orch:     orch,
		metrics:  metrics,
		tracer:   tracer,
	}, nil
}
