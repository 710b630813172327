// Package relay posts normalized events to the downstream webhook.
//
// Delivery is at most once: each event gets a single POST, and failures are
// logged and dropped. There is no queue and no retry, so many deliveries may
// be in flight at once against a slow endpoint.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/guildrelay/guildrelay/common/logging"
	"github.com/guildrelay/guildrelay/common/messaging"
	"github.com/guildrelay/guildrelay/common/middleware"
	"github.com/guildrelay/guildrelay/common/signing"
	"github.com/guildrelay/guildrelay/internal/metrics"
)

// TimestampLayout is ISO-8601 UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

const (
	DefaultUserAgent = "guildrelay/1.0"
	// HeaderEventType repeats the envelope's event_type for routing without
	// parsing the body.
	HeaderEventType = "X-Relay-Event"

	maxDrainBytes = 64 << 10
)

// ErrNotConfigured is logged when no destination URL is set.
var ErrNotConfigured = errors.New("relay destination URL is not configured")

// Outcome is the result of one delivery attempt.
type Outcome string

const (
	OutcomeDelivered     Outcome = "delivered"
	OutcomeFailed        Outcome = "failed"
	OutcomeNotConfigured Outcome = "not_configured"
)

// Envelope is the JSON document posted for every forwarded event.
type Envelope struct {
	EventType string `json:"event_type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// NewEnvelope wraps data with the event type and a timestamp taken from at.
func NewEnvelope(eventType string, data any, at time.Time) Envelope {
	return Envelope{
		EventType: eventType,
		Data:      data,
		Timestamp: at.UTC().Format(TimestampLayout),
	}
}

// Deliverer is what the pipeline hands forwarded events to.
type Deliverer interface {
	Deliver(ctx context.Context, eventType string, data any) Outcome
}

// Config holds destination settings.
type Config struct {
	URL string
	// Timeout bounds one POST. Zero leaves it to the transport.
	Timeout       time.Duration
	UserAgent     string
	SigningSecret string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the HTTP client. The client's own Timeout is used
// as is.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		d.client = c
	}
}

// WithMirror also publishes every envelope to the message bus under
// subjectPrefix + "." + eventType. Publish failures never affect the
// webhook outcome.
func WithMirror(p messaging.Publisher, subjectPrefix string) Option {
	return func(d *Dispatcher) {
		d.mirror = p
		d.subjectPrefix = subjectPrefix
	}
}

// WithClock overrides the time source for envelope timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithLogger sets the delivery logger.
func WithLogger(logger *logging.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// Dispatcher delivers envelopes to one webhook. Safe for concurrent use.
type Dispatcher struct {
	url           string
	userAgent     string
	client        *http.Client
	signer        *signing.EnvelopeSigner
	mirror        messaging.Publisher
	subjectPrefix string
	now           func() time.Time
	logger        *logging.Logger
}

// NewDispatcher returns a Dispatcher for cfg.
func NewDispatcher(cfg Config, opts ...Option) *Dispatcher {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	d := &Dispatcher{
		url:       cfg.URL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
		signer:    signing.NewEnvelopeSigner(cfg.SigningSecret),
		now:       time.Now,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Configured reports whether a destination URL is set.
func (d *Dispatcher) Configured() bool {
	return d.url != ""
}

// Deliver posts one envelope for data and reports the outcome. It never
// panics on delivery errors and never retries. A correlation ID is taken
// from ctx or generated, sent as X-Request-ID and logged as delivery_id.
func (d *Dispatcher) Deliver(ctx context.Context, eventType string, data any) Outcome {
	deliveryID := middleware.GetRequestID(ctx)
	if deliveryID == "" {
		deliveryID = middleware.NewID()
		ctx = middleware.WithID(ctx, deliveryID)
	}

	if !d.Configured() {
		d.logger.ErrorContext(ctx, "event not forwarded",
			logging.EventType(eventType),
			logging.Outcome(string(OutcomeNotConfigured)),
			logging.Error(ErrNotConfigured),
		)
		metrics.Deliveries.WithLabelValues(eventType, string(OutcomeNotConfigured)).Inc()
		return OutcomeNotConfigured
	}

	env := NewEnvelope(eventType, data, d.now())
	body, err := json.Marshal(env)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to encode envelope",
			logging.EventType(eventType),
			logging.Error(err),
		)
		metrics.Deliveries.WithLabelValues(eventType, string(OutcomeFailed)).Inc()
		return OutcomeFailed
	}

	d.publishMirror(ctx, eventType, deliveryID, body)

	d.logger.DebugContext(ctx, "sending event",
		logging.EventType(eventType),
		logging.DeliveryID(deliveryID),
	)

	metrics.DeliveriesInFlight.Inc()
	start := time.Now()
	status, err := d.post(ctx, eventType, deliveryID, env.Timestamp, body)
	elapsed := time.Since(start)
	metrics.DeliveriesInFlight.Dec()
	metrics.DeliveryDuration.WithLabelValues(eventType).Observe(elapsed.Seconds())

	if err != nil {
		d.logger.ErrorContext(ctx, "event delivery failed",
			logging.EventType(eventType),
			logging.DeliveryID(deliveryID),
			logging.Outcome(string(OutcomeFailed)),
			logging.Status(status),
			logging.Duration(elapsed),
			logging.Error(err),
		)
		metrics.Deliveries.WithLabelValues(eventType, string(OutcomeFailed)).Inc()
		return OutcomeFailed
	}

	d.logger.InfoContext(ctx, "event delivered",
		logging.EventType(eventType),
		logging.DeliveryID(deliveryID),
		logging.Outcome(string(OutcomeDelivered)),
		logging.Status(status),
		logging.Duration(elapsed),
	)
	metrics.Deliveries.WithLabelValues(eventType, string(OutcomeDelivered)).Inc()
	return OutcomeDelivered
}

// post performs the single HTTP attempt. status is 0 on transport errors.
func (d *Dispatcher) post(ctx context.Context, eventType, deliveryID, timestamp string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set(middleware.HeaderRequestID, deliveryID)
	req.Header.Set(HeaderEventType, eventType)
	if d.signer.Enabled() {
		req.Header.Set(signing.HeaderTimestamp, timestamp)
		req.Header.Set(signing.HeaderSignature, d.signer.Sign(timestamp, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (d *Dispatcher) publishMirror(ctx context.Context, eventType, deliveryID string, body []byte) {
	if d.mirror == nil {
		return
	}
	subject := messaging.EventSubject(d.subjectPrefix, eventType)
	err := d.mirror.PublishMsg(ctx, &messaging.Message{
		Subject: subject,
		Data:    body,
		Metadata: map[string]string{
			messaging.HeaderEventType:  eventType,
			messaging.HeaderDeliveryID: deliveryID,
		},
	})
	if err != nil {
		metrics.MirrorErrors.Inc()
		d.logger.WarnContext(ctx, "failed to mirror envelope",
			logging.EventType(eventType),
			"subject", subject,
			logging.Error(err),
		)
	}
}
