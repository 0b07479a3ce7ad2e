package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Metric names a field of a MetricSnapshot a condition can test.
type Metric string

const (
	MetricROAS        Metric = "ROAS"
	MetricCPA         Metric = "CPA"
	MetricCTR         Metric = "CTR"
	MetricSpend       Metric = "SPEND"
	MetricImpressions Metric = "IMPRESSIONS"
	MetricClicks      Metric = "CLICKS"
	MetricConversions Metric = "CONVERSIONS"
)

// Operator compares a metric value against a threshold.
type Operator string

const (
	OpLT  Operator = "LT"
	OpLTE Operator = "LTE"
	OpGT  Operator = "GT"
	OpGTE Operator = "GTE"
	OpEQ  Operator = "EQ"
)

type Condition struct {
	Metric    Metric   `json:"metric" validate:"required,oneof=ROAS CPA CTR SPEND IMPRESSIONS CLICKS CONVERSIONS"`
	Operator  Operator `json:"operator" validate:"required,oneof=LT LTE GT GTE EQ"`
	Threshold float64  `json:"threshold"`
}

type ActionType string

const (
	ActionAdjustBudget  ActionType = "ADJUST_BUDGET"
	ActionPauseCampaign ActionType = "PAUSE_CAMPAIGN"
	ActionNotify        ActionType = "NOTIFY"
)

var ErrUnknownAction = errors.New("unknown action type")

// Action is one of AdjustBudget, PauseCampaign or Notify.
type Action interface {
	Type() ActionType
	isAction()
}

// AdjustBudget changes the daily budget by a signed percentage (-20 cuts it by a fifth).
type AdjustBudget struct {
	Percentage float64 `json:"percentage"`
}

type PauseCampaign struct{}

// Notify sends an alert over a named channel (slack, email, kafka, log...).
type Notify struct {
	Channel string `json:"channel" validate:"required"`
}

func (AdjustBudget) Type() ActionType  { return ActionAdjustBudget }
func (PauseCampaign) Type() ActionType { return ActionPauseCampaign }
func (Notify) Type() ActionType        { return ActionNotify }

func (AdjustBudget) isAction()  {}
func (PauseCampaign) isAction() {}
func (Notify) isAction()        {}

// RawAction is the stored/wire form of an Action.
type RawAction struct {
	Type   ActionType      `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// DecodeAction turns the stored form into its typed variant.
func DecodeAction(raw RawAction) (Action, error) {
	switch raw.Type {
	case ActionAdjustBudget:
		var a AdjustBudget
		if err := unmarshalParams(raw.Params, &a); err != nil {
			return nil, fmt.Errorf("decode %s params: %w", raw.Type, err)
		}
		return a, nil
	case ActionPauseCampaign:
		return PauseCampaign{}, nil
	case ActionNotify:
		var a Notify
		if err := unmarshalParams(raw.Params, &a); err != nil {
			return nil, fmt.Errorf("decode %s params: %w", raw.Type, err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, raw.Type)
	}
}

func unmarshalParams(params json.RawMessage, v any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	return json.Unmarshal(params, v)
}

// EncodeAction is the inverse of DecodeAction.
func EncodeAction(a Action) (RawAction, error) {
	switch a.(type) {
	case PauseCampaign:
		return RawAction{Type: a.Type()}, nil
	case AdjustBudget, Notify:
		b, err := json.Marshal(a)
		if err != nil {
			return RawAction{}, err
		}
		return RawAction{Type: a.Type(), Params: b}, nil
	default:
		return RawAction{}, fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}
}

// DecodeActions decodes a JSON array of {type, params} objects.
func DecodeActions(data []byte) ([]Action, error) {
	var raws []RawAction
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	out := make([]Action, 0, len(raws))
	for _, r := range raws {
		a, err := DecodeAction(r)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// EncodeActions produces the JSON array DecodeActions reads.
func EncodeActions(actions []Action) ([]byte, error) {
	raws := make([]RawAction, 0, len(actions))
	for _, a := range actions {
		r, err := EncodeAction(a)
		if err != nil {
			return nil, err
		}
		raws = append(raws, r)
	}
	return json.Marshal(raws)
}

// Rule is a user-defined optimization rule together with its trigger state.
type Rule struct {
	ID              string      `json:"id"`
	CampaignID      string      `json:"campaignId" validate:"required"`
	UserID          string      `json:"userId" validate:"required"`
	Name            string      `json:"name"`
	RuleType        string      `json:"ruleType"`
	Conditions      []Condition `json:"conditions" validate:"required,min=1,dive"`
	Actions         []Action    `json:"-"`
	IsEnabled       bool        `json:"isEnabled"`
	CooldownMinutes int         `json:"cooldownMinutes" validate:"gte=0"`
	LastTriggeredAt *time.Time  `json:"lastTriggeredAt"`
	TriggerCount    int64       `json:"triggerCount"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Cooldown returns the minimum interval between two firings.
func (r Rule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// CooldownElapsed reports whether the rule may fire at now.
func (r Rule) CooldownElapsed(now time.Time) bool {
	if r.LastTriggeredAt == nil {
		return true
	}
	return !now.Before(r.LastTriggeredAt.Add(r.Cooldown()))
}

// Campaign is the slice of campaign state the engine needs.
type Campaign struct {
	ID          string  `json:"id"`
	UserID      string  `json:"userId"`
	Name        string  `json:"name"`
	Status      string  `json:"status"` // "ACTIVE" | "PAUSED" | "DELETED"
	DailyBudget float64 `json:"dailyBudget"`
}

const (
	CampaignActive  = "ACTIVE"
	CampaignPaused  = "PAUSED"
	CampaignDeleted = "DELETED"
)

// Totals are the raw aggregates a snapshot is derived from.
type Totals struct {
	Impressions int64
	Clicks      int64
	Conversions int64
	Spend       float64
	Revenue     float64
}

// MetricSnapshot is the latest aggregated performance record for a campaign.
// The engine never mutates it.
type MetricSnapshot struct {
	CampaignID string             `json:"campaignId"`
	Date       time.Time          `json:"date"`
	Metrics    map[Metric]float64 `json:"metrics"`
}

// NewSnapshot derives ROAS, CPA and CTR from raw totals. A derived metric
// whose denominator is zero is left out.
func NewSnapshot(campaignID string, date time.Time, t Totals) MetricSnapshot {
	m := map[Metric]float64{
		MetricImpressions: float64(t.Impressions),
		MetricClicks:      float64(t.Clicks),
		MetricConversions: float64(t.Conversions),
		MetricSpend:       t.Spend,
	}
	if t.Spend > 0 {
		m[MetricROAS] = t.Revenue / t.Spend
	}
	if t.Conversions > 0 {
		m[MetricCPA] = t.Spend / float64(t.Conversions)
	}
	if t.Impressions > 0 {
		m[MetricCTR] = float64(t.Clicks) / float64(t.Impressions) * 100
	}
	return MetricSnapshot{CampaignID: campaignID, Date: date, Metrics: m}
}

// Value returns the metric and whether it is present and finite.
func (s MetricSnapshot) Value(m Metric) (float64, bool) {
	v, ok := s.Metrics[m]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
