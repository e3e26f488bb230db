package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"roadrisk/internal/errors"
	"roadrisk/pkg/contracts/events"
)

const dialTimeout = 10 * time.Second

// Notifier announces finished GWR inputs on a durable queue
type Notifier struct {
	url    string
	queue  string
	logger *slog.Logger
}

// NewNotifier creates a notifier. The broker is contacted per message.
func NewNotifier(url, queue string, logger *slog.Logger) (*Notifier, error) {
	if url == "" || queue == "" {
		return nil, errors.NewConfigError("publish.amqp_url and publish.queue are required", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		url:    url,
		queue:  queue,
		logger: logger.With(slog.String("component", "notifier"), slog.String("queue", queue)),
	}, nil
}

// Notify publishes the event as a persistent JSON message
func (n *Notifier) Notify(ctx context.Context, event events.GWRInputReady) error {
	msg, err := Message(event)
	if err != nil {
		return errors.NewSinkError("amqp", err)
	}

	conn, err := amqp.DialConfig(n.url, amqp.Config{Locale: "en_US", Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return errors.NewSinkError("amqp", fmt.Errorf("dial: %w", err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return errors.NewSinkError("amqp", fmt.Errorf("channel: %w", err))
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
		return errors.NewSinkError("amqp", fmt.Errorf("declare %s: %w", n.queue, err))
	}

	if err := ch.PublishWithContext(ctx, "", n.queue, false, false, msg); err != nil {
		return errors.NewSinkError("amqp", fmt.Errorf("publish: %w", err))
	}

	n.logger.InfoContext(ctx, "GWR input announced",
		slog.String("message_id", event.ID),
		slog.Int("artifacts", len(event.Artifacts)))
	return nil
}

// Message encodes an event as an AMQP publishing
func Message(event events.GWRInputReady) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event: %w", err)
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     event.ID,
		CorrelationId: event.RunID,
		Type:          string(event.Type),
		Timestamp:     event.Timestamp,
		Body:          body,
	}, nil
}
