package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SubscriberStatus string

const (
	SubscriberStatusActive   SubscriberStatus = "active"
	SubscriberStatusDisabled SubscriberStatus = "disabled"
)

// Subscriber is a registered outbound webhook target. The registry itself
// is owned by the CRUD layer; the dispatcher only reads it.
type Subscriber struct {
	ID           uuid.UUID        `json:"id"`
	URL          string           `json:"url"`
	Secret       string           `json:"secret"`
	EventFilters []string         `json:"event_filters"`
	Status       SubscriberStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Matches reports whether any filter entry covers the event type. Filters
// may be exact names, a trailing-wildcard prefix such as "order.*", or the
// universal "*".
func (s *Subscriber) Matches(eventType string) bool {
	for _, filter := range s.EventFilters {
		if filter == "*" || filter == eventType {
			return true
		}
		if prefix, ok := strings.CutSuffix(filter, ".*"); ok {
			if strings.HasPrefix(eventType, prefix+".") {
				return true
			}
		}
	}
	return false
}

type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSuccess DeliveryStatus = "success"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

// Delivery is created pending before the first network attempt so delivery
// state survives process restarts. Success and failed are terminal.
type Delivery struct {
	ID           uuid.UUID       `json:"id"`
	SubscriberID uuid.UUID       `json:"subscriber_id"`
	EventID      uuid.UUID       `json:"event_id"`
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	Status       DeliveryStatus  `json:"status"`
	Attempts     int             `json:"attempts"`
	LastError    string          `json:"last_error"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func NewDelivery(subscriberID, eventID uuid.UUID, eventType string, payload json.RawMessage) *Delivery {
	return &Delivery{
		ID:           uuid.New(),
		SubscriberID: subscriberID,
		EventID:      eventID,
		EventType:    eventType,
		Payload:      payload,
		Status:       DeliveryStatusPending,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

func (d *Delivery) MarkSuccess() {
	d.Status = DeliveryStatusSuccess
	d.UpdatedAt = time.Now()
}

func (d *Delivery) MarkFailed(reason string) {
	d.Status = DeliveryStatusFailed
	d.LastError = reason
	d.UpdatedAt = time.Now()
}
