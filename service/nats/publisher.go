package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/chutulu/service/metrics"
	"github.com/nats-io/nats.go"
)

// Publisher defines the interface for publishing fire events to NATS.
type Publisher interface {
	// PublishFire publishes a fire event to "actions.fire.{player}".
	PublishFire(ctx context.Context, event *FireEvent) error

	// Close closes the connection to NATS.
	Close() error
}

const flushTimeout = 2 * time.Second

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	FlushWithContext(ctx context.Context) error
	Close()
}

// CorePublisher publishes and subscribes to fire events with core NATS.
// Events are fire and forget: nothing is persisted for subscribers that are
// offline.
type CorePublisher struct {
	nc      conn
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPublisher connects to NATS and returns a publisher.
// If metrics is nil, no metrics will be recorded.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*CorePublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("chutulu-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("NATS publisher initialized", "url", natsURL)

	return newPublisher(nc, m, logger), nil
}

func newPublisher(nc conn, m *metrics.Metrics, logger *slog.Logger) *CorePublisher {
	return &CorePublisher{
		nc:      nc,
		metrics: m,
		logger:  logger,
	}
}

// PublishFire publishes a single fire event and flushes the connection so
// that a dead server surfaces as an error.
func (p *CorePublisher) PublishFire(ctx context.Context, event *FireEvent) error {
	start := time.Now()
	err := p.publish(ctx, event)

	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		// subject prefix only, the player suffix is unbounded
		p.metrics.RecordNATSPublish(SubjectPrefix, status, time.Since(start).Seconds())
	}
	return err
}

func (p *CorePublisher) publish(ctx context.Context, event *FireEvent) error {
	event.PublishedAt = time.Now().UTC()
	subject := event.Subject()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal fire event: %w", err)
	}

	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish fire event: %w", err)
	}
	// FlushWithContext requires a deadline
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := p.nc.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("failed to flush fire event: %w", err)
	}

	p.logger.DebugContext(ctx, "published fire event",
		"subject", subject,
		"event_id", event.EventID,
		"player", event.Player,
	)

	return nil
}

// SubscribeFire delivers fire events for player, or for every player when
// player is empty, to fn until the returned unsubscribe func is called.
// Messages that do not decode as a FireEvent are dropped.
func (p *CorePublisher) SubscribeFire(player string, fn func(*FireEvent)) (func() error, error) {
	subject := SubjectPrefix + ".*"
	if player != "" {
		subject = SubjectPrefix + "." + player
	}

	sub, err := p.nc.Subscribe(subject, func(msg *nats.Msg) {
		var event FireEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			p.logger.Warn("failed to unmarshal fire event",
				"subject", msg.Subject,
				"error", err,
			)
			return
		}
		fn(&event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	p.logger.Debug("subscribed to fire events", "subject", subject)

	return func() error {
		if sub == nil {
			return nil
		}
		return sub.Unsubscribe()
	}, nil
}

// Close closes the connection to NATS.
func (p *CorePublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
