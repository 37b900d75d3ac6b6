package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/streadway/amqp"

	"github.com/stagepass/audioscan/internal/domain/scans"
)

// RoutingKeyReleaseStatus is used for every release status transition.
const RoutingKeyReleaseStatus = "release.audio_scan_status.changed"

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements scans.EventPublisher on a topic exchange.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  channel
	exchange string
}

// NewPublisher dials RabbitMQ and declares a durable topic exchange.
func NewPublisher(amqpURL, exchangeName string) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{conn: conn, channel: ch, exchange: exchangeName}, nil
}

type releaseStatusMessage struct {
	ReleaseID string `json:"release_id"`
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	ScanID    string `json:"scan_id,omitempty"`
	At        string `json:"at"`
}

// PublishReleaseStatus sends ev as a persistent JSON message.
func (p *Publisher) PublishReleaseStatus(ctx context.Context, ev scans.ReleaseStatusChanged) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(releaseStatusMessage{
		ReleaseID: ev.ReleaseID,
		From:      string(ev.From),
		To:        string(ev.To),
		ScanID:    string(ev.ScanID),
		At:        ev.At.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message to JSON: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.At,
		Type:         RoutingKeyReleaseStatus,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Publish(p.exchange, RoutingKeyReleaseStatus, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close closes the publisher connection and channel
func (p *Publisher) Close() error {
	var err error
	if p.channel != nil {
		if chErr := p.channel.Close(); chErr != nil {
			log.WithError(chErr).Warn("failed to close channel")
			err = chErr
		}
	}
	if p.conn != nil {
		if connErr := p.conn.Close(); connErr != nil {
			log.WithError(connErr).Warn("failed to close connection")
			if err == nil {
				err = connErr
			}
		}
	}
	return err
}

// Noop drops events; used when no broker is configured.
type Noop struct{}

func (Noop) PublishReleaseStatus(context.Context, scans.ReleaseStatusChanged) error { return nil }
