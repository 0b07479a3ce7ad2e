package engine

import (
	"context"
	"time"

	"campaign-optimizer/internal/cache"
	"campaign-optimizer/internal/observability"
)

// Deps are the collaborators the engine drives.
type Deps struct {
	Rules     RuleRepository
	Campaigns CampaignStore
	Metrics   MetricSource
	Notifier  Notifier
}

// OptimizationEngine exposes sweeps and savings reports, and keeps the last
// sweep summary in a lock-free snapshot for readers.
type OptimizationEngine struct {
	scheduler  *Scheduler
	aggregator *Aggregator
	last       cache.Snapshot[Summary]
}

func NewEngine(d Deps, cfg SchedulerConfig, opts ...CoordinatorOption) *OptimizationEngine {
	exec := NewExecutor(d.Campaigns, d.Notifier)
	coord := NewCoordinator(d.Rules, d.Campaigns, d.Metrics, exec, opts...)
	return &OptimizationEngine{
		scheduler:  NewScheduler(d.Rules, coord, cfg),
		aggregator: NewAggregator(d.Rules, d.Campaigns, d.Metrics),
	}
}

// Sweep runs one sweep and remembers its summary.
func (e *OptimizationEngine) Sweep(ctx context.Context) Summary {
	sum := e.scheduler.Sweep(ctx)
	e.last.Store(sum)
	return sum
}

// LastSweep returns the most recent summary, if any sweep ran in this process.
func (e *OptimizationEngine) LastSweep() (Summary, bool) {
	return e.last.Load()
}

func (e *OptimizationEngine) SavingsReport(ctx context.Context, userID string) (SavingsReport, error) {
	return e.aggregator.Report(ctx, userID)
}

// RunEvery sweeps on a fixed cadence until ctx is done.
func (e *OptimizationEngine) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			observability.SweepTriggers.WithLabelValues("interval").Inc()
			e.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}
