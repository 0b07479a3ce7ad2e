package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const recentOptimizationsLimit = 10

// SavingsReport is the cumulative projected savings of a user's rules.
// Amounts are whole currency units.
type SavingsReport struct {
	UserID              string               `json:"userId"`
	TotalSavings        int64                `json:"totalSavings"`
	TopSavingEvent      *SavingEvent         `json:"topSavingEvent"`
	RecentOptimizations []RecentOptimization `json:"recentOptimizations"`
}

type SavingEvent struct {
	RuleID       string `json:"ruleId"`
	RuleName     string `json:"ruleName"`
	CampaignID   string `json:"campaignId"`
	CampaignName string `json:"campaignName"`
	TriggerCount int64  `json:"triggerCount"`
	Savings      int64  `json:"savings"`
}

type RecentOptimization struct {
	RuleID          string     `json:"ruleId"`
	RuleName        string     `json:"ruleName"`
	CampaignName    string     `json:"campaignName"`
	ActionType      ActionType `json:"actionType"`
	Savings         int64      `json:"savings"`
	LastTriggeredAt time.Time  `json:"lastTriggeredAt"`
}

// Aggregator replays triggered rules through the savings projection.
type Aggregator struct {
	rules     RuleRepository
	campaigns CampaignStore
	metrics   MetricSource
}

func NewAggregator(rules RuleRepository, campaigns CampaignStore, metrics MetricSource) *Aggregator {
	return &Aggregator{rules: rules, campaigns: campaigns, metrics: metrics}
}

type ruleSavings struct {
	rule       Rule
	campaign   Campaign
	perTrigger decimal.Decimal
	total      decimal.Decimal
}

// Report builds the savings report for userID. Rules whose campaign or
// metrics are gone are left out silently.
func (a *Aggregator) Report(ctx context.Context, userID string) (SavingsReport, error) {
	rules, err := a.rules.FindRulesByUserID(ctx, userID)
	if err != nil {
		return SavingsReport{}, fmt.Errorf("load rules for user %s: %w", userID, err)
	}

	var entries []ruleSavings
	for _, r := range rules {
		if r.TriggerCount <= 0 || len(r.Actions) == 0 {
			continue
		}
		c, err := a.campaigns.FindByID(ctx, r.CampaignID)
		if err != nil {
			return SavingsReport{}, fmt.Errorf("load campaign %s: %w", r.CampaignID, err)
		}
		if c == nil || c.Status == CampaignDeleted {
			continue
		}
		snap, err := a.metrics.LatestSnapshot(ctx, r.CampaignID)
		if err != nil {
			return SavingsReport{}, fmt.Errorf("load metrics %s: %w", r.CampaignID, err)
		}
		if snap == nil {
			continue
		}
		per := Project(*snap, r.Actions[0])
		entries = append(entries, ruleSavings{
			rule:       r,
			campaign:   *c,
			perTrigger: per,
			total:      per.Mul(decimal.NewFromInt(r.TriggerCount)),
		})
	}

	return buildReport(userID, entries), nil
}

func buildReport(userID string, entries []ruleSavings) SavingsReport {
	report := SavingsReport{UserID: userID, RecentOptimizations: []RecentOptimization{}}

	// Sum exact amounts and round once; rounding per rule would drift.
	total := decimal.Zero
	var top *ruleSavings
	for i := range entries {
		e := &entries[i]
		total = total.Add(e.total)
		if top == nil || e.total.GreaterThan(top.total) {
			top = e
		}
	}
	report.TotalSavings = roundCurrency(total)

	if top != nil {
		report.TopSavingEvent = &SavingEvent{
			RuleID:       top.rule.ID,
			RuleName:     top.rule.Name,
			CampaignID:   top.campaign.ID,
			CampaignName: top.campaign.Name,
			TriggerCount: top.rule.TriggerCount,
			Savings:      roundCurrency(top.total),
		}
	}

	recent := make([]RecentOptimization, 0, len(entries))
	for _, e := range entries {
		var at time.Time
		if e.rule.LastTriggeredAt != nil {
			at = *e.rule.LastTriggeredAt
		}
		recent = append(recent, RecentOptimization{
			RuleID:          e.rule.ID,
			RuleName:        e.rule.Name,
			CampaignName:    e.campaign.Name,
			ActionType:      e.rule.Actions[0].Type(),
			Savings:         roundCurrency(e.perTrigger),
			LastTriggeredAt: at,
		})
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].LastTriggeredAt.After(recent[j].LastTriggeredAt)
	})
	if len(recent) > recentOptimizationsLimit {
		recent = recent[:recentOptimizationsLimit]
	}
	report.RecentOptimizations = recent
	return report
}
