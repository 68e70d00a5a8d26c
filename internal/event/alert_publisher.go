package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AlertPublisher publishes alert events to RabbitMQ.
type AlertPublisher struct {
	conn              *RabbitMQConnection
	messagesPublished int64
	messagesFailed    int64
	lastPublishTime   time.Time
}

func NewAlertPublisher(conn *RabbitMQConnection) *AlertPublisher {
	return &AlertPublisher{
		conn:            conn,
		lastPublishTime: time.Now(),
	}
}

// PublishAlertEvent publishes one alert event to the gap_alert_events queue.
func (p *AlertPublisher) PublishAlertEvent(ctx context.Context, event AlertEventMessage) error {
	_, err := p.conn.Channel.QueueDeclare(
		GapAlertQueue, // queue name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		p.messagesFailed++
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.messagesFailed++
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}

	err = p.conn.Channel.PublishWithContext(
		ctx,
		"",            // exchange
		GapAlertQueue, // routing key (queue name)
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		p.messagesFailed++
		return fmt.Errorf("failed to publish alert event: %w", err)
	}

	p.messagesPublished++
	p.lastPublishTime = time.Now()

	slog.Info("Alert event published",
		"queue", GapAlertQueue,
		"kind", event.Kind,
		"alert_id", event.AlertID,
		"severity", event.Severity,
	)

	return nil
}
