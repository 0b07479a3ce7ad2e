package listener

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"campaign-optimizer/internal/engine"
	"campaign-optimizer/internal/observability"
)

// Sweeper runs one sweep.
type Sweeper interface {
	Sweep(ctx context.Context) engine.Summary
}

// minGap drops notifications that arrive while a burst is still settling.
const minGap = 2 * time.Second

// ListenAndSweep runs a sweep whenever a NOTIFY arrives on channel, e.g. from
// pg_cron. Notifications received while a sweep runs are coalesced.
func ListenAndSweep(ctx context.Context, pool *pgxpool.Pool, sw Sweeper, channel string, baseBackoff time.Duration) {
	for {
		err := listen(ctx, pool, sw, channel)
		if ctx.Err() != nil {
			log.Info().Msg("listener stopped")
			return
		}
		backoff := jitter(baseBackoff)
		log.Error().Err(err).Dur("retry_in", backoff).Msg("listener connection lost")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}
}

func listen(ctx context.Context, pool *pgxpool.Pool, sw Sweeper, channel string) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err = conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return err
	}
	log.Info().Str("channel", channel).Msg("listening for sweep triggers")

	var lastSweep time.Time
	for {
		ntf, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if !shouldSweep(lastSweep, time.Now()) {
			continue
		}
		log.Info().Str("channel", ntf.Channel).Str("payload", ntf.Payload).Msg("sweep triggered by notification")
		observability.SweepTriggers.WithLabelValues("notify").Inc()
		sw.Sweep(ctx)
		lastSweep = time.Now()
	}
}

func shouldSweep(last, now time.Time) bool {
	return last.IsZero() || now.Sub(last) >= minGap
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	factor := 0.5 + rand.Float64() // 0.5x to 1.5x
	return time.Duration(float64(base) * factor)
}
