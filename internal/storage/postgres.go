package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campaign-optimizer/internal/config"
	"campaign-optimizer/internal/engine"
)

const queryTimeout = 5 * time.Second

// Store is the Postgres implementation of the rule repository, campaign
// store and metric source.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ engine.RuleRepository = (*Store)(nil)
	_ engine.CampaignStore  = (*Store)(nil)
	_ engine.MetricSource   = (*Store)(nil)
)

func New(ctx context.Context, cfg config.Config) (*Store, error) {
	dsn := cfg.DSN()
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Postgres.MaxIdleConns)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const ruleColumns = `id, campaign_id, user_id, name, rule_type, conditions, actions,
	is_enabled, cooldown_minutes, last_triggered_at, trigger_count, created_at, updated_at`

// FindEnabledRules returns one page of enabled rules ordered by id.
func (s *Store) FindEnabledRules(ctx context.Context, page engine.Page) ([]engine.Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM optimization_rules
		WHERE is_enabled AND id > $1
		ORDER BY id
		LIMIT $2
	`, page.AfterID, page.Size)
	if err != nil {
		return nil, fmt.Errorf("query enabled rules: %w", err)
	}
	return collectRules(rows)
}

func (s *Store) FindRulesByUserID(ctx context.Context, userID string) ([]engine.Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM optimization_rules
		WHERE user_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query rules for user: %w", err)
	}
	return collectRules(rows)
}

func collectRules(rows pgx.Rows) ([]engine.Rule, error) {
	defer rows.Close()

	var out []engine.Rule
	for rows.Next() {
		var (
			r                   engine.Rule
			conditions, actions []byte
		)
		if err := rows.Scan(
			&r.ID, &r.CampaignID, &r.UserID, &r.Name, &r.RuleType, &conditions, &actions,
			&r.IsEnabled, &r.CooldownMinutes, &r.LastTriggeredAt, &r.TriggerCount, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions of rule %s: %w", r.ID, err)
		}
		acts, err := engine.DecodeActions(actions)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		r.Actions = acts
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// RecordFiring is a conditional update: the cooldown is re-checked by the
// database at write time, so only one of several racing sweeps succeeds.
func (s *Store) RecordFiring(ctx context.Context, ruleID string, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE optimization_rules
		SET last_triggered_at = $2,
		    trigger_count = trigger_count + 1,
		    updated_at = $2
		WHERE id = $1
		  AND is_enabled
		  AND (last_triggered_at IS NULL
		       OR last_triggered_at + make_interval(mins => cooldown_minutes) <= $2)
	`, ruleID, now)
	if err != nil {
		return false, fmt.Errorf("record firing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendLog(ctx context.Context, e engine.OptimizationLog) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var savings *string
	if e.EstimatedSavings != nil {
		v := e.EstimatedSavings.String()
		savings = &v
	}
	var errMsg *string
	if e.Error != "" {
		errMsg = &e.Error
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO optimization_logs
		  (id, rule_id, campaign_id, action_type, action_params, estimated_savings, success, error, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)
	`, e.ID, e.RuleID, e.CampaignID, string(e.ActionType), []byte(e.ActionParams), savings, e.Success, errMsg, e.ExecutedAt)
	if err != nil {
		return fmt.Errorf("insert optimization log: %w", err)
	}
	return nil
}

// CreateRule validates and inserts a new rule with fresh trigger state.
func (s *Store) CreateRule(ctx context.Context, r *engine.Rule) error {
	if err := engine.ValidateRule(*r); err != nil {
		return err
	}
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	actions, err := engine.EncodeActions(r.Actions)
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	r.LastTriggeredAt, r.TriggerCount = nil, 0

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO optimization_rules
		  (id, campaign_id, user_id, name, rule_type, conditions, actions, is_enabled,
		   cooldown_minutes, last_triggered_at, trigger_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, 0, $10, $10)
	`, r.ID, r.CampaignID, r.UserID, r.Name, r.RuleType, conditions, actions, r.IsEnabled, r.CooldownMinutes, now)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// FindByID returns nil, nil when the campaign does not exist.
func (s *Store) FindByID(ctx context.Context, campaignID string) (*engine.Campaign, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	c := &engine.Campaign{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, status, daily_budget::float8
		FROM campaigns WHERE id = $1
	`, campaignID).Scan(&c.ID, &c.UserID, &c.Name, &c.Status, &c.DailyBudget)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query campaign: %w", err)
	}
	return c, nil
}

// AdjustDailyBudget scales the budget by percentage, never below zero.
func (s *Store) AdjustDailyBudget(ctx context.Context, campaignID string, percentage float64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE campaigns
		SET daily_budget = GREATEST(0, daily_budget * (1 + $2::numeric / 100)),
		    updated_at = now()
		WHERE id = $1 AND status <> 'DELETED'
	`, campaignID, percentage)
	if err != nil {
		return fmt.Errorf("adjust daily budget: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("campaign %s not found", campaignID)
	}
	return nil
}

func (s *Store) Pause(ctx context.Context, campaignID string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE campaigns SET status = 'PAUSED', updated_at = now()
		WHERE id = $1 AND status <> 'DELETED'
	`, campaignID)
	if err != nil {
		return fmt.Errorf("pause campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("campaign %s not found", campaignID)
	}
	return nil
}

// LatestSnapshot returns the most recent daily aggregate, or nil, nil.
func (s *Store) LatestSnapshot(ctx context.Context, campaignID string) (*engine.MetricSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		date time.Time
		t    engine.Totals
	)
	err := s.pool.QueryRow(ctx, `
		SELECT date, impressions, clicks, conversions, spend::float8, revenue::float8
		FROM campaign_metrics
		WHERE campaign_id = $1
		ORDER BY date DESC
		LIMIT 1
	`, campaignID).Scan(&date, &t.Impressions, &t.Clicks, &t.Conversions, &t.Spend, &t.Revenue)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest metrics: %w", err)
	}
	snap := engine.NewSnapshot(campaignID, date, t)
	return &snap, nil
}

func (s *Store) PgxPool() *pgxpool.Pool {
	if s.pool == nil {
		panic(errors.New("pgx pool is nil"))
	}
	return s.pool
}
