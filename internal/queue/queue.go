package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relayworks/outreach-backend/internal/logger"
)

// TopicRunCommands carries campaign-run start/cancel commands from the HTTP
// server to the worker.
const TopicRunCommands = "campaign_runs"

// Run command actions.
const (
	ActionStart  = "start"
	ActionCancel = "cancel"
)

// RunCommand instructs the worker to start or cancel a campaign run. The run
// row already exists when the command is published; the worker only performs
// enumeration and queue transitions.
type RunCommand struct {
	Action     string    `json:"action"`
	RunID      uuid.UUID `json:"run_id"`
	CampaignID uuid.UUID `json:"campaign_id,omitempty"`

	// LeadIDs restricts the run to a subset of the campaign's eligible leads;
	// empty means all of them.
	LeadIDs []uuid.UUID `json:"lead_ids,omitempty"`
}

// Queue is the bus contract. Payloads are raw JSON so implementations stay
// wire-compatible.
type Queue interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(payload []byte) error) error
}

// PublishJSON marshals and publishes a command.
func PublishJSON(q Queue, topic string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	return q.Publish(topic, body)
}

// InMemoryQueue is the single-process bus used when no broker is configured,
// and by tests. Failed handlers retry with linear backoff up to maxRetries,
// mirroring broker redelivery.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload []byte) error
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload []byte) error),
	}
}

const inMemoryMaxRetries = 3

// Publish delivers the payload to all subscribers asynchronously.
func (q *InMemoryQueue) Publish(topic string, payload []byte) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		go q.processJob(topic, handler, payload)
	}
	return nil
}

func (q *InMemoryQueue) processJob(topic string, handler func(payload []byte) error, payload []byte) {
	log := logger.WithComponent("queue")
	for attempt := 0; attempt <= inMemoryMaxRetries; attempt++ {
		err := handler(payload)
		if err == nil {
			return
		}
		log.Warn().Err(err).Str("topic", topic).Int("attempt", attempt+1).Msg("handler failed")
		if attempt == inMemoryMaxRetries {
			log.Error().Str("topic", topic).Msg("dropping message after max retries")
			return
		}
		time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic.
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}
