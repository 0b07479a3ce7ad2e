package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OptimizationLog is the append-only record written for every action of a firing.
type OptimizationLog struct {
	ID               string           `json:"id"`
	RuleID           string           `json:"ruleId"`
	CampaignID       string           `json:"campaignId"`
	ActionType       ActionType       `json:"actionType"`
	ActionParams     json.RawMessage  `json:"actionParams,omitempty"`
	EstimatedSavings *decimal.Decimal `json:"estimatedSavings"`
	Success          bool             `json:"success"`
	Error            string           `json:"error,omitempty"`
	ExecutedAt       time.Time        `json:"executedAt"`
}

// Page selects a slice of enabled rules ordered by ID (keyset pagination).
type Page struct {
	AfterID string
	Size    int
}

// Notification is the payload handed to a Notifier for a NOTIFY action.
type Notification struct {
	RuleID       string             `json:"ruleId"`
	RuleName     string             `json:"ruleName"`
	UserID       string             `json:"userId"`
	CampaignID   string             `json:"campaignId"`
	CampaignName string             `json:"campaignName"`
	Message      string             `json:"message"`
	Metrics      map[Metric]float64 `json:"metrics"`
	TriggeredAt  time.Time          `json:"triggeredAt"`
}

// RuleRepository stores rule definitions, their trigger state and the optimization log.
type RuleRepository interface {
	FindEnabledRules(ctx context.Context, page Page) ([]Rule, error)
	FindRulesByUserID(ctx context.Context, userID string) ([]Rule, error)
	// RecordFiring atomically sets LastTriggeredAt=now and increments TriggerCount,
	// but only if the rule is enabled and its cooldown has elapsed at write time.
	RecordFiring(ctx context.Context, ruleID string, now time.Time) (bool, error)
	AppendLog(ctx context.Context, entry OptimizationLog) error
}

// CampaignStore reads and mutates campaigns. FindByID returns nil, nil when missing.
type CampaignStore interface {
	FindByID(ctx context.Context, campaignID string) (*Campaign, error)
	AdjustDailyBudget(ctx context.Context, campaignID string, percentage float64) error
	Pause(ctx context.Context, campaignID string) error
}

// MetricSource returns nil, nil when no snapshot exists for the campaign.
type MetricSource interface {
	LatestSnapshot(ctx context.Context, campaignID string) (*MetricSnapshot, error)
}

type Notifier interface {
	Notify(ctx context.Context, channel string, n Notification) error
}
