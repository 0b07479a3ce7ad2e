package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestProject(t *testing.T) {
	spend := snapshot("c1", map[Metric]float64{MetricSpend: 100})
	noSpend := snapshot("c1", map[Metric]float64{MetricROAS: 1})

	tests := []struct {
		name   string
		snap   MetricSnapshot
		action Action
		want   decimal.Decimal
	}{
		{"budget cut saves", spend, AdjustBudget{Percentage: -20}, decimal.NewFromInt(20)},
		{"budget increase costs", spend, AdjustBudget{Percentage: 10}, decimal.NewFromInt(-10)},
		{"pause saves full spend", spend, PauseCampaign{}, decimal.NewFromInt(100)},
		{"notify saves nothing", spend, Notify{Channel: "slack"}, decimal.Zero},
		{"missing spend", noSpend, PauseCampaign{}, decimal.Zero},
		{"fractional", snapshot("c1", map[Metric]float64{MetricSpend: 33.33}), AdjustBudget{Percentage: -10}, decimal.RequireFromString("3.333")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Project(tt.snap, tt.action)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestProject_Deterministic(t *testing.T) {
	snap := snapshot("c1", map[Metric]float64{MetricSpend: 1234.56})
	first := Project(snap, AdjustBudget{Percentage: -17.5})
	for i := 0; i < 50; i++ {
		assert.True(t, first.Equal(Project(snap, AdjustBudget{Percentage: -17.5})))
	}
}

func TestProjectFirst(t *testing.T) {
	snap := snapshot("c1", map[Metric]float64{MetricSpend: 80})

	got := projectFirst(snap, []Action{Notify{Channel: "slack"}, PauseCampaign{}})
	assert.True(t, got.IsZero(), "only the first action counts")

	got = projectFirst(snap, []Action{PauseCampaign{}, Notify{Channel: "slack"}})
	assert.True(t, decimal.NewFromInt(80).Equal(got))

	assert.True(t, projectFirst(snap, nil).IsZero())
}

func TestRoundCurrency(t *testing.T) {
	assert.Equal(t, int64(1), roundCurrency(decimal.RequireFromString("1.2")))
	assert.Equal(t, int64(2), roundCurrency(decimal.RequireFromString("1.5")))
	assert.Equal(t, int64(-2), roundCurrency(decimal.RequireFromString("-1.5")))
	assert.Equal(t, int64(0), roundCurrency(decimal.RequireFromString("0.4")))
}
