package engine

import (
	"context"
	"fmt"
	"time"
)

// ActionResult is the outcome of one action within a firing.
type ActionResult struct {
	Action Action
	Err    error
}

func (r ActionResult) OK() bool { return r.Err == nil }

// Executor applies actions through the campaign and notification collaborators.
type Executor struct {
	campaigns CampaignStore
	notifier  Notifier
}

func NewExecutor(campaigns CampaignStore, notifier Notifier) *Executor {
	return &Executor{campaigns: campaigns, notifier: notifier}
}

// Execute applies a single action to the rule's campaign.
func (e *Executor) Execute(ctx context.Context, rule Rule, c Campaign, snap MetricSnapshot, action Action, now time.Time) error {
	switch a := action.(type) {
	case AdjustBudget:
		if err := e.campaigns.AdjustDailyBudget(ctx, c.ID, a.Percentage); err != nil {
			return fmt.Errorf("adjust budget %+.2f%%: %w", a.Percentage, err)
		}
		return nil
	case PauseCampaign:
		if err := e.campaigns.Pause(ctx, c.ID); err != nil {
			return fmt.Errorf("pause campaign: %w", err)
		}
		return nil
	case Notify:
		if e.notifier == nil {
			return fmt.Errorf("notify %s: no notifier configured", a.Channel)
		}
		n := Notification{
			RuleID:       rule.ID,
			RuleName:     rule.Name,
			UserID:       rule.UserID,
			CampaignID:   c.ID,
			CampaignName: c.Name,
			Message:      fmt.Sprintf("Rule %q triggered for campaign %q", rule.Name, c.Name),
			Metrics:      snap.Metrics,
			TriggeredAt:  now,
		}
		if err := e.notifier.Notify(ctx, a.Channel, n); err != nil {
			return fmt.Errorf("notify %s: %w", a.Channel, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnknownAction, action)
	}
}

// ExecuteAll runs actions strictly in order. A failing action never stops the next one.
func (e *Executor) ExecuteAll(ctx context.Context, rule Rule, c Campaign, snap MetricSnapshot, now time.Time) []ActionResult {
	results := make([]ActionResult, 0, len(rule.Actions))
	for _, a := range rule.Actions {
		err := e.executeSafely(ctx, rule, c, snap, a, now)
		result := "success"
		if err != nil {
			result = "failure"
		}
		ActionResults.WithLabelValues(string(actionType(a)), result).Inc()
		results = append(results, ActionResult{Action: a, Err: err})
	}
	return results
}

func (e *Executor) executeSafely(ctx context.Context, rule Rule, c Campaign, snap MetricSnapshot, a Action, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return e.Execute(ctx, rule, c, snap, a, now)
}

func actionType(a Action) ActionType {
	if a == nil {
		return ""
	}
	return a.Type()
}
