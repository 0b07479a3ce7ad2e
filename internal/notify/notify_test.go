package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-optimizer/internal/engine"
)

var sample = engine.Notification{
	RuleID:       "r1",
	RuleName:     "Protect ROAS",
	UserID:       "u1",
	CampaignID:   "c1",
	CampaignName: "Spring Sale",
	Message:      `Rule "Protect ROAS" triggered for campaign "Spring Sale"`,
	Metrics:      map[engine.Metric]float64{engine.MetricROAS: 1.2},
	TriggeredAt:  time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
}

type recordingSink struct {
	got []engine.Notification
	err error
}

func (s *recordingSink) Send(_ context.Context, n engine.Notification) error {
	s.got = append(s.got, n)
	return s.err
}

func TestDispatcher_Routes(t *testing.T) {
	slack, email := &recordingSink{}, &recordingSink{err: errors.New("smtp down")}
	d := NewDispatcher()
	d.Register("Slack", slack)
	d.Register("email", email)

	tests := []struct {
		name    string
		channel string
		wantErr string
	}{
		{"registered", "slack", ""},
		{"case insensitive", "SLACK", ""},
		{"sink error", "email", "smtp down"},
		{"unknown", "pager", "unknown notification channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.Notify(context.Background(), tt.channel, sample)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	assert.Len(t, slack.got, 2)
	assert.Len(t, email.got, 1)
	assert.ElementsMatch(t, []string{"slack", "email"}, d.Channels())
	assert.ErrorIs(t, d.Notify(context.Background(), "sms", sample), ErrUnknownChannel)
}

func TestLogSink(t *testing.T) {
	assert.NoError(t, LogSink{}.Send(context.Background(), sample))
}

func TestWebhookSink_PostsJSON(t *testing.T) {
	var (
		gotBody   engine.Notification
		gotMethod string
		gotType   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhookSink(srv.URL, time.Second).Send(context.Background(), sample)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, sample, gotBody)
}

func TestWebhookSink_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
		wantErr string
	}{
		{
			name: "non 2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = io.WriteString(w, " upstream unavailable \n")
			},
			timeout: time.Second,
			wantErr: "webhook returned status 502: upstream unavailable",
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(time.Second):
				case <-r.Context().Done():
				}
			},
			timeout: 50 * time.Millisecond,
			wantErr: "Client.Timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			err := NewWebhookSink(srv.URL, tt.timeout).Send(context.Background(), sample)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaSink_Publishes(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewKafkaSink(w).Send(context.Background(), sample))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "u1", string(msg.Key))
	assert.Equal(t, []kafka.Header{
		{Key: "rule-id", Value: []byte("r1")},
		{Key: "campaign-id", Value: []byte("c1")},
	}, msg.Headers)

	var got engine.Notification
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, sample, got)
}

func TestKafkaSink_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	err := NewKafkaSink(w).Send(context.Background(), sample)
	assert.ErrorContains(t, err, "publish notification: leader not available")
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter([]string{"localhost:9092"}, "optimizer.notifications")
	defer w.Close()
	assert.Equal(t, "optimizer.notifications", w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}
