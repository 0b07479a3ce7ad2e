package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("campaign-optimizer/engine")

type Status string

const (
	StatusSkipped     Status = "skipped"
	StatusNotEligible Status = "not_eligible"
	StatusFired       Status = "fired"
)

// Outcome describes what happened to one rule during a sweep.
type Outcome struct {
	RuleID  string
	Status  Status
	Reason  string
	Actions []ActionResult
}

// Succeeded counts the actions that completed without error.
func (o Outcome) Succeeded() int {
	n := 0
	for _, a := range o.Actions {
		if a.OK() {
			n++
		}
	}
	return n
}

// Coordinator runs the per-rule firing state machine.
type Coordinator struct {
	rules     RuleRepository
	campaigns CampaignStore
	metrics   MetricSource
	executor  *Executor
	now       func() time.Time
}

type CoordinatorOption func(*Coordinator)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(rules RuleRepository, campaigns CampaignStore, metrics MetricSource, executor *Executor, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		rules:     rules,
		campaigns: campaigns,
		metrics:   metrics,
		executor:  executor,
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Coordinate evaluates one rule and fires it when its conditions hold and the
// cooldown has elapsed. A returned error is a transient infrastructure failure;
// the outcome is still meaningful when the rule already fired.
func (c *Coordinator) Coordinate(ctx context.Context, rule Rule) (out Outcome, err error) {
	ctx, span := tracer.Start(ctx, "optimizer.Coordinate")
	span.SetAttributes(
		attribute.String("rule.id", rule.ID),
		attribute.String("campaign.id", rule.CampaignID),
	)
	defer func() {
		span.SetAttributes(attribute.String("rule.outcome", string(out.Status)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	out = Outcome{RuleID: rule.ID}
	skip := func(reason string) (Outcome, error) {
		out.Status, out.Reason = StatusSkipped, reason
		return out, nil
	}

	if !rule.IsEnabled {
		return skip("disabled")
	}

	campaign, err := c.campaigns.FindByID(ctx, rule.CampaignID)
	if err != nil {
		return out, fmt.Errorf("load campaign %s: %w", rule.CampaignID, err)
	}
	if campaign == nil || campaign.Status == CampaignDeleted {
		return skip("campaign missing")
	}

	snap, err := c.metrics.LatestSnapshot(ctx, rule.CampaignID)
	if err != nil {
		return out, fmt.Errorf("load metrics %s: %w", rule.CampaignID, err)
	}
	if snap == nil {
		return skip("no metrics")
	}

	if !Evaluate(rule.Conditions, *snap) {
		out.Status, out.Reason = StatusNotEligible, "conditions unmet"
		return out, nil
	}

	now := c.now()
	if !rule.CooldownElapsed(now) {
		out.Status, out.Reason = StatusNotEligible, "cooldown"
		return out, nil
	}

	// The claim is the only write that decides whether this sweep fires the rule;
	// a concurrent sweep that already fired it makes this return false.
	claimed, err := c.rules.RecordFiring(ctx, rule.ID, now)
	if err != nil {
		return out, fmt.Errorf("record firing: %w", err)
	}
	if !claimed {
		out.Status, out.Reason = StatusNotEligible, "cooldown"
		return out, nil
	}

	out.Status = StatusFired
	out.Actions = c.executor.ExecuteAll(ctx, rule, *campaign, *snap, now)

	if err := c.appendLogs(ctx, rule, *snap, out.Actions, now); err != nil {
		return out, err
	}

	log.Info().
		Str("rule_id", rule.ID).
		Str("campaign_id", rule.CampaignID).
		Int("actions", len(out.Actions)).
		Int("succeeded", out.Succeeded()).
		Msg("rule fired")
	return out, nil
}

func (c *Coordinator) appendLogs(ctx context.Context, rule Rule, snap MetricSnapshot, results []ActionResult, now time.Time) error {
	savings := projectFirst(snap, rule.Actions)

	var errs []error
	for _, r := range results {
		entry := OptimizationLog{
			ID:               uuid.NewString(),
			RuleID:           rule.ID,
			CampaignID:       rule.CampaignID,
			ActionType:       actionType(r.Action),
			EstimatedSavings: &savings,
			Success:          r.OK(),
			ExecutedAt:       now,
		}
		if raw, err := EncodeAction(r.Action); err == nil {
			entry.ActionParams = raw.Params
		}
		if r.Err != nil {
			entry.Error = r.Err.Error()
			log.Warn().Err(r.Err).
				Str("rule_id", rule.ID).
				Str("action", string(entry.ActionType)).
				Msg("action failed")
		}
		if err := c.rules.AppendLog(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("append log for %s: %w", entry.ActionType, err))
		}
	}
	return errors.Join(errs...)
}
