package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Summary is the result of one sweep over all enabled rules.
type Summary struct {
	Success         bool      `json:"success"`
	RulesEvaluated  int       `json:"rulesEvaluated"`
	RulesTriggered  int       `json:"rulesTriggered"`
	ActionsExecuted int       `json:"actionsExecuted"`
	Errors          []string  `json:"errors"`
	Partial         bool      `json:"partial"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
}

// RuleCoordinator evaluates and possibly fires a single rule.
type RuleCoordinator interface {
	Coordinate(ctx context.Context, rule Rule) (Outcome, error)
}

type SchedulerConfig struct {
	Workers     int
	PageSize    int
	SweepBudget time.Duration
	RuleTimeout time.Duration
}

func (c *SchedulerConfig) withDefaults() {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.PageSize <= 0 {
		c.PageSize = 500
	}
	if c.SweepBudget <= 0 {
		c.SweepBudget = 4 * time.Minute
	}
	if c.RuleTimeout <= 0 {
		c.RuleTimeout = 10 * time.Second
	}
}

// Scheduler fans rule coordination out over a fixed-size worker pool.
type Scheduler struct {
	rules RuleRepository
	coord RuleCoordinator
	cfg   SchedulerConfig
}

func NewScheduler(rules RuleRepository, coord RuleCoordinator, cfg SchedulerConfig) *Scheduler {
	cfg.withDefaults()
	return &Scheduler{rules: rules, coord: coord, cfg: cfg}
}

type ruleResult struct {
	ruleID  string
	outcome Outcome
	err     error
	counted bool
}

// Sweep evaluates every enabled rule once. It never panics and only reports
// Success=false when the enabled rules could not be enumerated at all.
func (s *Scheduler) Sweep(ctx context.Context) (sum Summary) {
	ctx, span := tracer.Start(ctx, "optimizer.Sweep")
	defer span.End()

	start := time.Now()
	sum = Summary{Success: true, Errors: []string{}, StartedAt: start}
	defer func() {
		sum.FinishedAt = time.Now()
		SweepDuration.Observe(sum.FinishedAt.Sub(start).Seconds())
		span.SetAttributes(
			attribute.Int("sweep.rules_evaluated", sum.RulesEvaluated),
			attribute.Int("sweep.rules_triggered", sum.RulesTriggered),
			attribute.Bool("sweep.partial", sum.Partial),
		)
	}()

	sweepCtx, cancel := context.WithTimeout(ctx, s.cfg.SweepBudget)
	defer cancel()

	page, err := s.rules.FindEnabledRules(sweepCtx, Page{Size: s.cfg.PageSize})
	if err != nil {
		SweepErrors.WithLabelValues("fatal").Inc()
		log.Error().Err(err).Msg("sweep aborted: cannot load enabled rules")
		sum.Success = false
		sum.Errors = append(sum.Errors, fmt.Sprintf("load enabled rules: %v", err))
		return sum
	}

	results := make(chan ruleResult, s.cfg.Workers)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for r := range results {
			sum.add(r)
		}
	}()

	// slots bounds the pool; acquiring one also watches the sweep deadline so
	// no rule is dispatched after it passes.
	slots := make(chan struct{}, s.cfg.Workers)
	var g errgroup.Group

	dispatched := 0
	stopped := false
dispatch:
	for {
		for _, rule := range page {
			select {
			case slots <- struct{}{}:
			case <-sweepCtx.Done():
				stopped = true
				break dispatch
			}
			if sweepCtx.Err() != nil {
				<-slots
				stopped = true
				break dispatch
			}
			dispatched++
			g.Go(func() error {
				defer func() { <-slots }()
				results <- s.evaluate(sweepCtx, rule)
				return nil
			})
		}
		if len(page) < s.cfg.PageSize {
			break
		}
		page, err = s.rules.FindEnabledRules(sweepCtx, Page{AfterID: page[len(page)-1].ID, Size: s.cfg.PageSize})
		if err != nil {
			if sweepCtx.Err() != nil {
				stopped = true
				break
			}
			SweepErrors.WithLabelValues("page").Inc()
			results <- ruleResult{err: fmt.Errorf("load enabled rules page: %w", err)}
			break
		}
	}

	_ = g.Wait()
	if stopped {
		results <- ruleResult{err: s.stopReason(ctx, dispatched)}
	}
	close(results)
	<-collected

	sum.Partial = stopped
	log.Info().
		Int("evaluated", sum.RulesEvaluated).
		Int("triggered", sum.RulesTriggered).
		Int("actions", sum.ActionsExecuted).
		Int("errors", len(sum.Errors)).
		Bool("partial", sum.Partial).
		Dur("took", time.Since(start)).
		Msg("sweep finished")
	return sum
}

// stopReason tells a caller cancellation apart from the sweep's own budget.
func (s *Scheduler) stopReason(parent context.Context, dispatched int) error {
	if err := parent.Err(); err != nil {
		return fmt.Errorf("sweep interrupted after dispatching %d rules: %w", dispatched, err)
	}
	return fmt.Errorf("sweep budget of %s exhausted after dispatching %d rules", s.cfg.SweepBudget, dispatched)
}

// evaluate runs one rule in isolation. In-flight rules outlive the sweep
// deadline up to their own timeout so a firing is never cut mid-write.
func (s *Scheduler) evaluate(sweepCtx context.Context, rule Rule) (res ruleResult) {
	res = ruleResult{ruleID: rule.ID, counted: true}
	defer func() {
		if r := recover(); r != nil {
			SweepErrors.WithLabelValues("panic").Inc()
			res.err = fmt.Errorf("panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(sweepCtx), s.cfg.RuleTimeout)
	defer cancel()

	res.outcome, res.err = s.coord.Coordinate(ctx, rule)
	if res.err != nil {
		kind := "rule"
		if errors.Is(res.err, context.DeadlineExceeded) {
			kind = "timeout"
		}
		SweepErrors.WithLabelValues(kind).Inc()
		log.Error().Err(res.err).Str("rule_id", rule.ID).Msg("rule evaluation failed")
	}
	if res.outcome.Status != "" {
		RuleOutcomes.WithLabelValues(string(res.outcome.Status)).Inc()
	}
	return res
}

func (s *Summary) add(r ruleResult) {
	if r.counted {
		s.RulesEvaluated++
		if r.outcome.Status == StatusFired {
			s.RulesTriggered++
			s.ActionsExecuted += r.outcome.Succeeded()
		}
	}
	if r.err != nil {
		if r.ruleID != "" {
			s.Errors = append(s.Errors, fmt.Sprintf("rule %s: %v", r.ruleID, r.err))
		} else {
			s.Errors = append(s.Errors, r.err.Error())
		}
	}
}
