package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/reekob/mendmyinewshop/internal/domain"
	"github.com/reekob/mendmyinewshop/internal/events"
	"github.com/reekob/mendmyinewshop/internal/gateway"
)

const (
	headerSignature  = "X-Webhook-Signature"
	headerDeliveryID = "X-Webhook-Delivery"
	headerTimestamp  = "X-Webhook-Timestamp"
)

type DispatcherConfig struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	RequestTimeout time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxAttempts:    3,
		BaseBackoff:    time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// DispatcherService fans domain events out to registered subscribers with
// at-least-once semantics: one pending delivery row per matching
// subscriber before any network I/O, bounded retries with doubling
// backoff, and per-subscriber isolation.
type DispatcherService struct {
	webhooks WebhookStore
	client   *http.Client
	config   DispatcherConfig
}

func NewDispatcherService(webhooks WebhookStore, client *http.Client, config DispatcherConfig) *DispatcherService {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = time.Second
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: config.RequestTimeout}
	}
	return &DispatcherService{
		webhooks: webhooks,
		client:   client,
		config:   config,
	}
}

// HandleEvent is the bus consumer entry point.
func (s *DispatcherService) HandleEvent(ctx context.Context, event events.DomainEvent) error {
	subscribers, err := s.webhooks.ListActiveSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("subscriber list error: %w", err)
	}

	payload, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("event payload serialization error: %w", err)
	}

	var wg sync.WaitGroup
	for _, sub := range subscribers {
		if !sub.Matches(string(event.Type)) {
			continue
		}

		delivery := domain.NewDelivery(sub.ID, event.ID, string(event.Type), payload)
		if err := s.webhooks.CreateDelivery(ctx, delivery); err != nil {
			log.Printf("Delivery record error for subscriber %s: %v", sub.ID, err)
			continue
		}

		wg.Add(1)
		go func(sub *domain.Subscriber, delivery *domain.Delivery) {
			defer wg.Done()
			s.deliver(ctx, sub, delivery)
		}(sub, delivery)
	}
	wg.Wait()

	return nil
}

// RequeueFailed re-enqueues terminally failed deliveries under a fresh
// attempt budget. Operator-triggered.
func (s *DispatcherService) RequeueFailed(ctx context.Context, limit int) (int, error) {
	deliveries, err := s.webhooks.ListFailed(ctx, limit)
	if err != nil {
		return 0, err
	}

	subscribers, err := s.webhooks.ListActiveSubscribers(ctx)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]*domain.Subscriber, len(subscribers))
	for _, sub := range subscribers {
		byID[sub.ID.String()] = sub
	}

	requeued := 0
	for _, delivery := range deliveries {
		sub, ok := byID[delivery.SubscriberID.String()]
		if !ok {
			continue
		}
		delivery.Status = domain.DeliveryStatusPending
		delivery.Attempts = 0
		delivery.LastError = ""
		if err := s.webhooks.UpdateDelivery(ctx, delivery); err != nil {
			log.Printf("Delivery requeue error for %s: %v", delivery.ID, err)
			continue
		}
		requeued++
		go s.deliver(ctx, sub, delivery)
	}
	return requeued, nil
}

type attemptOutcome int

const (
	outcomeSuccess attemptOutcome = iota
	outcomeRetryable
	outcomeTerminal
)

// deliver drives one delivery to a terminal state. Backoff doubles after
// each failed attempt.
func (s *DispatcherService) deliver(ctx context.Context, sub *domain.Subscriber, delivery *domain.Delivery) {
	backoff := s.config.BaseBackoff

	for delivery.Attempts < s.config.MaxAttempts {
		outcome, detail := s.attempt(ctx, sub, delivery)
		delivery.Attempts++

		switch outcome {
		case outcomeSuccess:
			delivery.MarkSuccess()
			if err := s.webhooks.UpdateDelivery(ctx, delivery); err != nil {
				log.Printf("Delivery state update error for %s: %v", delivery.ID, err)
			}
			return

		case outcomeTerminal:
			delivery.MarkFailed(detail)
			if err := s.webhooks.UpdateDelivery(ctx, delivery); err != nil {
				log.Printf("Delivery state update error for %s: %v", delivery.ID, err)
			}
			log.Printf("Delivery %s rejected by subscriber %s: %s", delivery.ID, sub.ID, detail)
			return
		}

		delivery.LastError = detail
		if err := s.webhooks.UpdateDelivery(ctx, delivery); err != nil {
			log.Printf("Delivery state update error for %s: %v", delivery.ID, err)
		}

		if delivery.Attempts < s.config.MaxAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
		}
	}

	delivery.MarkFailed(delivery.LastError)
	if err := s.webhooks.UpdateDelivery(ctx, delivery); err != nil {
		log.Printf("Delivery state update error for %s: %v", delivery.ID, err)
	}
	log.Printf("Delivery %s failed after %d attempts", delivery.ID, delivery.Attempts)
}

func (s *DispatcherService) attempt(ctx context.Context, sub *domain.Subscriber, delivery *domain.Delivery) (attemptOutcome, string) {
	reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return outcomeTerminal, fmt.Sprintf("request build error: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerSignature, gateway.Sign(sub.Secret, delivery.Payload))
	req.Header.Set(headerDeliveryID, delivery.ID.String())
	req.Header.Set(headerTimestamp, strconv.FormatInt(time.Now().Unix(), 10))

	resp, err := s.client.Do(req)
	if err != nil {
		return outcomeRetryable, fmt.Sprintf("request error: %v", err)
	}
	defer resp.Body.Close()

	return classifyStatus(resp.StatusCode)
}

// classifyStatus maps a subscriber response to an outcome: 2xx succeeds,
// 4xx other than 429 is a terminal rejection, everything else is worth
// retrying.
func classifyStatus(status int) (attemptOutcome, string) {
	switch {
	case status >= 200 && status < 300:
		return outcomeSuccess, ""
	case status == http.StatusTooManyRequests:
		return outcomeRetryable, fmt.Sprintf("subscriber rate limited (%d)", status)
	case status >= 400 && status < 500:
		return outcomeTerminal, fmt.Sprintf("subscriber rejected request (%d)", status)
	default:
		return outcomeRetryable, fmt.Sprintf("subscriber returned %d", status)
	}
}
