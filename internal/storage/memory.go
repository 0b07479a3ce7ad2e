package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"campaign-optimizer/internal/engine"
)

// Memory is an in-process implementation of the engine collaborators. The
// firing claim is checked and applied under one lock, matching the
// conditional update the Postgres store performs.
type Memory struct {
	mu        sync.RWMutex
	rules     map[string]engine.Rule
	campaigns map[string]engine.Campaign
	snapshots map[string]engine.MetricSnapshot
	logs      []engine.OptimizationLog

	snapshotReads map[string]int
}

var (
	_ engine.RuleRepository = (*Memory)(nil)
	_ engine.CampaignStore  = (*Memory)(nil)
	_ engine.MetricSource   = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		rules:         map[string]engine.Rule{},
		campaigns:     map[string]engine.Campaign{},
		snapshots:     map[string]engine.MetricSnapshot{},
		snapshotReads: map[string]int{},
	}
}

// CreateRule validates the rule and stores it with fresh trigger state.
func (m *Memory) CreateRule(_ context.Context, r *engine.Rule) error {
	if err := engine.ValidateRule(*r); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	r.LastTriggeredAt, r.TriggerCount = nil, 0

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.ID] = cloneRule(*r)
	return nil
}

// PutRule stores r as-is, trigger state included. Used to seed fixtures.
func (m *Memory) PutRule(r engine.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.ID] = cloneRule(r)
}

func (m *Memory) Rule(id string) (engine.Rule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	return cloneRule(r), ok
}

func (m *Memory) PutCampaign(c engine.Campaign) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[c.ID] = c
}

func (m *Memory) DeleteCampaign(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.campaigns, id)
}

func (m *Memory) PutSnapshot(s engine.MetricSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.CampaignID] = s
}

// Logs returns a copy of the optimization log.
func (m *Memory) Logs() []engine.OptimizationLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.OptimizationLog(nil), m.logs...)
}

// SnapshotReads counts LatestSnapshot calls for a campaign.
func (m *Memory) SnapshotReads(campaignID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotReads[campaignID]
}

func (m *Memory) FindEnabledRules(_ context.Context, page engine.Page) ([]engine.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.rules))
	for id, r := range m.rules {
		if r.IsEnabled && id > page.AfterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if page.Size > 0 && len(ids) > page.Size {
		ids = ids[:page.Size]
	}
	out := make([]engine.Rule, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneRule(m.rules[id]))
	}
	return out, nil
}

func (m *Memory) FindRulesByUserID(_ context.Context, userID string) ([]engine.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Rule
	for _, r := range m.rules {
		if r.UserID == userID {
			out = append(out, cloneRule(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) RecordFiring(_ context.Context, ruleID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[ruleID]
	if !ok || !r.IsEnabled || !r.CooldownElapsed(now) {
		return false, nil
	}
	at := now
	r.LastTriggeredAt = &at
	r.TriggerCount++
	r.UpdatedAt = now
	m.rules[ruleID] = r
	return true, nil
}

func (m *Memory) AppendLog(_ context.Context, e engine.OptimizationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, e)
	return nil
}

func (m *Memory) FindByID(_ context.Context, campaignID string) (*engine.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) AdjustDailyBudget(_ context.Context, campaignID string, percentage float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok || c.Status == engine.CampaignDeleted {
		return fmt.Errorf("campaign %s not found", campaignID)
	}
	c.DailyBudget = max(0, c.DailyBudget*(1+percentage/100))
	m.campaigns[campaignID] = c
	return nil
}

func (m *Memory) Pause(_ context.Context, campaignID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok || c.Status == engine.CampaignDeleted {
		return fmt.Errorf("campaign %s not found", campaignID)
	}
	c.Status = engine.CampaignPaused
	m.campaigns[campaignID] = c
	return nil
}

func (m *Memory) LatestSnapshot(_ context.Context, campaignID string) (*engine.MetricSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshotReads[campaignID]++
	s, ok := m.snapshots[campaignID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func cloneRule(r engine.Rule) engine.Rule {
	if r.LastTriggeredAt != nil {
		t := *r.LastTriggeredAt
		r.LastTriggeredAt = &t
	}
	r.Conditions = append([]engine.Condition(nil), r.Conditions...)
	r.Actions = append([]engine.Action(nil), r.Actions...)
	return r
}
