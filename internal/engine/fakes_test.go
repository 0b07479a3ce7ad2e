package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type fakeRepo struct {
	mu        sync.Mutex
	rules     map[string]Rule
	logs      []OptimizationLog
	pageErr   map[string]error // keyed by Page.AfterID
	firingErr error
	appendErr error
	firings   int
}

func newFakeRepo(rules ...Rule) *fakeRepo {
	r := &fakeRepo{rules: map[string]Rule{}, pageErr: map[string]error{}}
	for _, rule := range rules {
		r.rules[rule.ID] = rule
	}
	return r
}

func (f *fakeRepo) FindEnabledRules(_ context.Context, page Page) ([]Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.pageErr[page.AfterID]; err != nil {
		return nil, err
	}
	var out []Rule
	for _, id := range sortedKeys(f.rules) {
		r := f.rules[id]
		if r.IsEnabled && id > page.AfterID {
			out = append(out, r)
		}
		if len(out) == page.Size {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) FindRulesByUserID(_ context.Context, userID string) ([]Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Rule
	for _, id := range sortedKeys(f.rules) {
		if f.rules[id].UserID == userID {
			out = append(out, f.rules[id])
		}
	}
	return out, nil
}

func (f *fakeRepo) RecordFiring(_ context.Context, ruleID string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.firingErr != nil {
		return false, f.firingErr
	}
	r, ok := f.rules[ruleID]
	if !ok || !r.IsEnabled || !r.CooldownElapsed(now) {
		return false, nil
	}
	at := now
	r.LastTriggeredAt = &at
	r.TriggerCount++
	f.rules[ruleID] = r
	f.firings++
	return true, nil
}

func (f *fakeRepo) AppendLog(_ context.Context, e OptimizationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.logs = append(f.logs, e)
	return nil
}

func (f *fakeRepo) rule(id string) Rule {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rules[id]
}

type fakeCampaigns struct {
	mu        sync.Mutex
	campaigns map[string]Campaign
	findErr   error
	adjustErr error
	pauseErr  error
	adjusted  []float64
	paused    []string
	calls     []string
}

func newFakeCampaigns(cs ...Campaign) *fakeCampaigns {
	f := &fakeCampaigns{campaigns: map[string]Campaign{}}
	for _, c := range cs {
		f.campaigns[c.ID] = c
	}
	return f
}

func (f *fakeCampaigns) FindByID(_ context.Context, id string) (*Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	c, ok := f.campaigns[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeCampaigns) AdjustDailyBudget(_ context.Context, id string, pct float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "adjust")
	if f.adjustErr != nil {
		return f.adjustErr
	}
	f.adjusted = append(f.adjusted, pct)
	return nil
}

func (f *fakeCampaigns) Pause(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "pause")
	if f.pauseErr != nil {
		return f.pauseErr
	}
	f.paused = append(f.paused, id)
	return nil
}

type fakeMetrics struct {
	mu    sync.Mutex
	snaps map[string]MetricSnapshot
	err   error
	reads int
}

func newFakeMetrics(snaps ...MetricSnapshot) *fakeMetrics {
	f := &fakeMetrics{snaps: map[string]MetricSnapshot{}}
	for _, s := range snaps {
		f.snaps[s.CampaignID] = s
	}
	return f
}

func (f *fakeMetrics) LatestSnapshot(_ context.Context, id string) (*MetricSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.snaps[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, channel string, _ Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, channel)
	return nil
}

var errBoom = errors.New("boom")

func sortedKeys(m map[string]Rule) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func snapshot(campaignID string, metrics map[Metric]float64) MetricSnapshot {
	return MetricSnapshot{CampaignID: campaignID, Metrics: metrics}
}

func lowROASRule(id string) Rule {
	return Rule{
		ID:              id,
		CampaignID:      "c-" + id,
		UserID:          "u1",
		Name:            "protect " + id,
		Conditions:      []Condition{{Metric: MetricROAS, Operator: OpLT, Threshold: 1.5}},
		Actions:         []Action{AdjustBudget{Percentage: -20}},
		IsEnabled:       true,
		CooldownMinutes: 60,
	}
}
