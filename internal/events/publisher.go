package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Event types, also used as routing keys.
const (
	ListingCreated          = "listing.created"
	ListingUpdated          = "listing.updated"
	ListingDeleted          = "listing.deleted"
	ListingActivated        = "listing.activated"
	ListingRenewalRequested = "listing.renewal_requested"
	ImagesUploaded          = "listing.images_uploaded"
	ImageDeleted            = "listing.image_deleted"
)

// ListingEvent is the message body published for every lifecycle change.
type ListingEvent struct {
	Type      string    `json:"type"`
	ListingID uint      `json:"place_id"`
	Status    string    `json:"subscription_status,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	At        time.Time `json:"at"`
}

// Config holds RabbitMQ publisher settings
type Config struct {
	URL          string
	ExchangeName string
	ExchangeType string
}

// Validate checks the publisher configuration
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("RabbitMQ URL configuration is required")
	}
	if c.ExchangeName == "" {
		return fmt.Errorf("RabbitMQ exchange name is required")
	}
	return nil
}

// Publisher publishes listing events to a RabbitMQ exchange
type Publisher struct {
	config     Config
	connection *amqp.Connection
	channel    *amqp.Channel
}

// NewPublisher dials RabbitMQ and declares the exchange
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = amqp.ExchangeTopic
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid publisher config: %w", err)
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("events: failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.ExchangeName,
		cfg.ExchangeType,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("events: failed to declare exchange '%s': %w", cfg.ExchangeName, err)
	}

	log.Printf("Events: Publishing to exchange '%s' (%s)", cfg.ExchangeName, cfg.ExchangeType)
	return &Publisher{config: cfg, connection: conn, channel: ch}, nil
}

// Publish sends evt with its type as the routing key
func (p *Publisher) Publish(ctx context.Context, evt ListingEvent) error {
	if p.channel == nil || p.connection == nil || p.connection.IsClosed() {
		return fmt.Errorf("events: not connected or channel/connection is closed")
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: failed to encode event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.config.ExchangeName,
		evt.Type,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    evt.At,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("events: failed to publish %s: %w", evt.Type, err)
	}
	return nil
}

// Close closes the channel and the connection
func (p *Publisher) Close() error {
	var firstErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Printf("Events: Error closing channel: %v", err)
			firstErr = err
		}
		p.channel = nil
	}
	if p.connection != nil {
		if err := p.connection.Close(); err != nil {
			log.Printf("Events: Error closing connection: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		p.connection = nil
	}
	return firstErr
}

// Noop discards events. Used when RabbitMQ is not configured.
type Noop struct{}

func (Noop) Publish(context.Context, ListingEvent) error { return nil }
