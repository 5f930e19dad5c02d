package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/reekob/mendmyinewshop/internal/events"
)

type Publisher struct {
	client *RabbitMQClient
}

func NewPublisher(client *RabbitMQClient) *Publisher {
	return &Publisher{client: client}
}

// PublishDomainEvent routes the event by its type on the topic exchange,
// e.g. "order.created".
func (p *Publisher) PublishDomainEvent(event events.DomainEvent) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("no connection to RabbitMQ")
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("event serialization error: %w", err)
	}

	channel := p.client.Channel()
	err = channel.Publish(
		p.client.config.Exchange,
		string(event.Type),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID.String(),
			Timestamp:    event.CreatedAt,
			Headers: amqp.Table{
				"event_type": string(event.Type),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("event publish error: %w", err)
	}

	log.Printf("Event published: %s (%s)", event.Type, event.ID)
	return nil
}

// PublishWithRetry retries transient publish failures with a growing delay.
func (p *Publisher) PublishWithRetry(event events.DomainEvent, maxRetries int) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if err := p.PublishDomainEvent(event); err != nil {
			lastErr = err
			log.Printf("Publish error (retry %d/%d): %v", i+1, maxRetries, err)

			if i < maxRetries-1 {
				time.Sleep(time.Second * time.Duration(i+1))
			}
			continue
		}
		return nil
	}

	return fmt.Errorf("event publish failed after %d attempts: %w", maxRetries, lastErr)
}
