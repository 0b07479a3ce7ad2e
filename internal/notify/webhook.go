package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"campaign-optimizer/internal/engine"
)

var tracer = otel.Tracer("campaign-optimizer/notify")

// WebhookSink POSTs the notification as JSON to a fixed URL.
type WebhookSink struct {
	url    string
	client *http.Client
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{url: url, client: &http.Client{Timeout: timeout}}
}

func (w *WebhookSink) Send(ctx context.Context, n engine.Notification) error {
	ctx, span := tracer.Start(ctx, "notify.Webhook", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal json payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	span.SetAttributes(attribute.String("http.url", w.url))

	res, err := w.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	err = fmt.Errorf("webhook returned status %d: %s", res.StatusCode, bytes.TrimSpace(snippet))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
