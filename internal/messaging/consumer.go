package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/streadway/amqp"

	"github.com/reekob/mendmyinewshop/internal/events"
)

type EventHandler func(event events.DomainEvent) error

type Consumer struct {
	client       *RabbitMQClient
	queueName    string
	consumerName string
}

func NewConsumer(client *RabbitMQClient, queueName, consumerName string) *Consumer {
	return &Consumer{
		client:       client,
		queueName:    queueName,
		consumerName: consumerName,
	}
}

// ConsumeEvents binds a durable queue to the given routing keys and feeds
// each decoded event to handler on a background goroutine.
func (c *Consumer) ConsumeEvents(routingKeys []string, handler EventHandler) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("no connection to RabbitMQ")
	}

	channel := c.client.Channel()

	queue, err := channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("queue declare error: %w", err)
	}

	for _, routingKey := range routingKeys {
		err = channel.QueueBind(
			queue.Name,
			routingKey,
			c.client.config.Exchange,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("queue bind error (%s): %w", routingKey, err)
		}
		log.Printf("Queue %s bound to routing key: %s", queue.Name, routingKey)
	}

	messages, err := channel.Consume(
		queue.Name,
		c.consumerName,
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume start error: %w", err)
	}

	log.Printf("Consuming events on queue: %s", queue.Name)

	go func() {
		for {
			select {
			case msg := <-messages:
				c.handleMessage(msg, handler)
			case <-c.client.ctx.Done():
				log.Printf("Consumer stopped: %s", c.consumerName)
				return
			}
		}
	}()

	return nil
}

func (c *Consumer) handleMessage(msg amqp.Delivery, handler EventHandler) {
	var event events.DomainEvent

	if err := json.Unmarshal(msg.Body, &event); err != nil {
		log.Printf("Event deserialize error: %v", err)
		msg.Nack(false, false)
		return
	}

	if err := handler(event); err != nil {
		log.Printf("Event process error: %v", err)

		if c.shouldRetry(msg) {
			c.republish(msg, event)
		} else {
			log.Printf("Max requeue reached, dropping event: %s", event.Type)
			msg.Nack(false, false)
		}
		return
	}

	msg.Ack(false)
}

// Requeue accounting rides in a custom header: a direct republish to the
// same exchange never accumulates x-death entries (only a dead-letter
// exchange writes those), so the counter must be carried explicitly.
const (
	retryCountHeader = "x-retry-count"
	maxRequeues      = 3
)

func retryCount(msg amqp.Delivery) int64 {
	switch count := msg.Headers[retryCountHeader].(type) {
	case int64:
		return count
	case int32:
		return int64(count)
	case int:
		return int64(count)
	}
	return 0
}

func (c *Consumer) shouldRetry(msg amqp.Delivery) bool {
	return retryCount(msg) < maxRequeues
}

func (c *Consumer) republish(msg amqp.Delivery, event events.DomainEvent) {
	channel := c.client.Channel()

	time.Sleep(2 * time.Second)

	headers := amqp.Table{}
	for key, value := range msg.Headers {
		headers[key] = value
	}
	headers[retryCountHeader] = retryCount(msg) + 1

	err := channel.Publish(
		msg.Exchange,
		msg.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			DeliveryMode: msg.DeliveryMode,
			Headers:      headers,
		},
	)
	if err != nil {
		log.Printf("Requeue publish error: %v", err)
		msg.Nack(false, false)
		return
	}

	msg.Ack(false)
	log.Printf("Event requeued: %s", event.Type)
}
