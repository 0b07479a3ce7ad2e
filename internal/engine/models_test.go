package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var benchDate = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func TestDecodeAction(t *testing.T) {
	tests := []struct {
		name    string
		raw     RawAction
		want    Action
		wantErr error
	}{
		{"adjust budget", RawAction{Type: ActionAdjustBudget, Params: json.RawMessage(`{"percentage":-20}`)}, AdjustBudget{Percentage: -20}, nil},
		{"pause without params", RawAction{Type: ActionPauseCampaign}, PauseCampaign{}, nil},
		{"pause ignores params", RawAction{Type: ActionPauseCampaign, Params: json.RawMessage(`{"x":1}`)}, PauseCampaign{}, nil},
		{"notify", RawAction{Type: ActionNotify, Params: json.RawMessage(`{"channel":"slack"}`)}, Notify{Channel: "slack"}, nil},
		{"null params", RawAction{Type: ActionNotify, Params: json.RawMessage(`null`)}, Notify{}, nil},
		{"unknown type", RawAction{Type: "SCALE_BID"}, nil, ErrUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAction(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeAction_BadParams(t *testing.T) {
	_, err := DecodeAction(RawAction{Type: ActionAdjustBudget, Params: json.RawMessage(`{"percentage":"lots"}`)})
	assert.Error(t, err)
}

func TestDecodeActions_StoredForm(t *testing.T) {
	stored := []byte(`[
		{"type":"ADJUST_BUDGET","params":{"percentage":-15}},
		{"type":"NOTIFY","params":{"channel":"email"}},
		{"type":"PAUSE_CAMPAIGN"}
	]`)

	actions, err := DecodeActions(stored)
	require.NoError(t, err)
	assert.Equal(t, []Action{AdjustBudget{Percentage: -15}, Notify{Channel: "email"}, PauseCampaign{}}, actions)

	encoded, err := EncodeActions(actions)
	require.NoError(t, err)
	again, err := DecodeActions(encoded)
	require.NoError(t, err)
	assert.Equal(t, actions, again)
}

func TestDecodeActions_RejectsUnknown(t *testing.T) {
	_, err := DecodeActions([]byte(`[{"type":"PAUSE_CAMPAIGN"},{"type":"DELETE"}]`))
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestEncodeAction_PauseHasNoParams(t *testing.T) {
	raw, err := EncodeAction(PauseCampaign{})
	require.NoError(t, err)
	assert.Equal(t, ActionPauseCampaign, raw.Type)
	assert.Empty(t, raw.Params)
}

func TestNewSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		totals  Totals
		want    map[Metric]float64
		missing []Metric
	}{
		{
			name:   "all derived",
			totals: Totals{Impressions: 1000, Clicks: 50, Conversions: 5, Spend: 100, Revenue: 250},
			want: map[Metric]float64{
				MetricROAS:        2.5,
				MetricCPA:         20,
				MetricCTR:         5,
				MetricSpend:       100,
				MetricImpressions: 1000,
				MetricClicks:      50,
				MetricConversions: 5,
			},
		},
		{
			name:    "no spend",
			totals:  Totals{Impressions: 10, Clicks: 1, Revenue: 30},
			missing: []Metric{MetricROAS, MetricCPA},
		},
		{
			name:    "no impressions",
			totals:  Totals{Spend: 40, Conversions: 2, Revenue: 10},
			missing: []Metric{MetricCTR},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := NewSnapshot("c1", benchDate, tt.totals)
			assert.Equal(t, "c1", snap.CampaignID)
			for m, v := range tt.want {
				got, ok := snap.Value(m)
				require.True(t, ok, m)
				assert.InDelta(t, v, got, 1e-9, m)
			}
			for _, m := range tt.missing {
				_, ok := snap.Value(m)
				assert.False(t, ok, m)
			}
		})
	}
}

func TestRule_CooldownElapsed(t *testing.T) {
	last := benchDate
	r := Rule{CooldownMinutes: 60, LastTriggeredAt: &last}

	assert.False(t, r.CooldownElapsed(last.Add(59*time.Minute)))
	assert.True(t, r.CooldownElapsed(last.Add(60*time.Minute)), "boundary is inclusive")
	assert.True(t, r.CooldownElapsed(last.Add(2*time.Hour)))

	never := Rule{CooldownMinutes: 60}
	assert.True(t, never.CooldownElapsed(last))

	zero := Rule{CooldownMinutes: 0, LastTriggeredAt: &last}
	assert.True(t, zero.CooldownElapsed(last))
}
