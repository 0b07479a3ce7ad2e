package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"campaign-optimizer/internal/engine"
)

var ErrUnknownChannel = errors.New("unknown notification channel")

// Sink delivers a notification over one transport.
type Sink interface {
	Send(ctx context.Context, n engine.Notification) error
}

// Dispatcher routes NOTIFY actions to the sink registered for their channel.
type Dispatcher struct {
	sinks map[string]Sink
}

var _ engine.Notifier = (*Dispatcher)(nil)

func NewDispatcher() *Dispatcher {
	return &Dispatcher{sinks: map[string]Sink{}}
}

// Register binds a channel name (case-insensitive) to a sink.
func (d *Dispatcher) Register(channel string, s Sink) {
	d.sinks[strings.ToLower(channel)] = s
}

func (d *Dispatcher) Channels() []string {
	out := make([]string, 0, len(d.sinks))
	for c := range d.sinks {
		out = append(out, c)
	}
	return out
}

func (d *Dispatcher) Notify(ctx context.Context, channel string, n engine.Notification) error {
	s, ok := d.sinks[strings.ToLower(channel)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	return s.Send(ctx, n)
}

// LogSink writes the notification to the service log.
type LogSink struct{}

func (LogSink) Send(_ context.Context, n engine.Notification) error {
	log.Info().
		Str("rule_id", n.RuleID).
		Str("campaign_id", n.CampaignID).
		Str("user_id", n.UserID).
		Msg(n.Message)
	return nil
}
