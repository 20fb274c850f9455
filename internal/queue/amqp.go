package queue

import (
	"fmt"

	"github.com/streadway/amqp"

	"github.com/relayworks/outreach-backend/internal/logger"
)

// AMQPQueue is the RabbitMQ-backed bus. Topics map to durable queues;
// consumers ack manually. Failed deliveries are republished with an advanced
// retry counter in a message header; a plain nack-requeue would redeliver the
// original headers unchanged and the counter would never move.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

const amqpMaxRetries = 3

func DialAMQP(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch}, nil
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		return err
	}
	return q.conn.Close()
}

func (q *AMQPQueue) declare(topic string) (amqp.Queue, error) {
	return q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
}

func (q *AMQPQueue) Publish(topic string, payload []byte) error {
	if _, err := q.declare(topic); err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	return q.ch.Publish(
		"",    // default exchange
		topic, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
			Headers:      amqp.Table{"x-retry-count": int32(0)},
		},
	)
}

func (q *AMQPQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	if _, err := q.declare(topic); err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // manual ack for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer on %s: %w", topic, err)
	}

	log := logger.WithComponent("queue").With().Str("topic", topic).Logger()
	go func() {
		for d := range msgs {
			err := handler(d.Body)
			if err == nil {
				d.Ack(false)
				continue
			}
			next, retry := nextRetryCount(d.Headers)
			if !retry {
				log.Error().Err(err).Int32("retries", next-1).Msg("handler failed permanently, dropping")
				d.Ack(false)
				continue
			}
			log.Warn().Err(err).Int32("retry", next).Msg("handler failed, requeueing")
			if pubErr := q.republish(topic, d.Body, next); pubErr != nil {
				// Could not hand the retry back to the broker; redeliver the
				// original instead of losing the command.
				log.Error().Err(pubErr).Msg("retry republish failed, nacking")
				d.Nack(false, true)
				continue
			}
			d.Ack(false)
		}
	}()
	return nil
}

// nextRetryCount advances the delivery's retry counter and reports whether
// the retry budget allows another attempt.
func nextRetryCount(headers amqp.Table) (int32, bool) {
	n := int32(0)
	if v, ok := headers["x-retry-count"].(int32); ok {
		n = v
	}
	return n + 1, n < amqpMaxRetries
}

func (q *AMQPQueue) republish(topic string, payload []byte, retryCount int32) error {
	return q.ch.Publish(
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
			Headers:      amqp.Table{"x-retry-count": retryCount},
		},
	)
}
