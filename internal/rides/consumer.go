package rides

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"fleetfi-backend/internal/config"
	"fleetfi-backend/internal/domain"
	"fleetfi-backend/internal/revenue"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	reconnectDelay       = 5 * time.Second
	maxReconnectAttempts = 10
	processTimeout       = 30 * time.Second
)

// RideCompletedMessage is the payload published by the fleet operations
// system when a ride or rental finishes. EventID is the dedupe key; a
// redelivery with the same id records nothing twice.
type RideCompletedMessage struct {
	EventID     string    `json:"event_id"`
	AssetID     string    `json:"asset_id"`
	GrossAmount float64   `json:"gross_amount"`
	SourceType  string    `json:"source_type"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Consumer drains ride.completed messages from RabbitMQ into the revenue
// ledger. Malformed messages are rejected without requeue; transient
// failures are requeued for redelivery.
type Consumer struct {
	cfg     config.Config
	revenue *revenue.Service

	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer(cfg config.Config, revenueService *revenue.Service) (*Consumer, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:     cfg,
		revenue: revenueService,
		ctx:     ctx,
		cancel:  cancel,
	}
	if err := c.connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("rides consumer: %w", err)
	}
	return c, nil
}

func (c *Consumer) connect() error {
	conn, err := amqp.Dial(c.cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		c.cfg.RideQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	log.Info().Str("queue", c.cfg.RideQueue).Msg("connected to RabbitMQ")

	go c.monitorConnection()
	return nil
}

func (c *Consumer) monitorConnection() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return
	}

	notifyClose := conn.NotifyClose(make(chan *amqp.Error))
	select {
	case err := <-notifyClose:
		if err != nil {
			log.Error().Err(err).Msg("RabbitMQ connection closed unexpectedly")
			c.reconnect()
		}
	case <-c.ctx.Done():
	}
}

func (c *Consumer) reconnect() {
	c.mu.Lock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		log.Info().Int("attempt", attempt).Msg("reconnecting to RabbitMQ")
		if err := c.connect(); err == nil {
			go func() {
				if err := c.Start(c.ctx); err != nil && c.ctx.Err() == nil {
					log.Error().Err(err).Msg("failed to restart rides consumer after reconnect")
				}
			}()
			return
		}

		delay := reconnectDelay * time.Duration(attempt)
		select {
		case <-time.After(delay):
		case <-c.ctx.Done():
			return
		}
	}
	log.Error().Msg("max RabbitMQ reconnection attempts reached, giving up")
}

// Start consumes until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	channel := c.channel
	c.mu.RUnlock()
	if channel == nil {
		return errors.New("channel is not initialized")
	}

	msgs, err := channel.Consume(
		c.cfg.RideQueue,
		c.cfg.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.wg.Add(1)
	go c.consumeLoop(ctx, msgs)

	select {
	case <-ctx.Done():
	case <-c.ctx.Done():
	}
	c.wg.Wait()
	return nil
}

// consumeLoop drains deliveries until the caller's context or the consumer's
// own lifetime context is cancelled. Close cancels the latter, so shutdown
// does not depend on the caller cancelling first.
func (c *Consumer) consumeLoop(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				log.Warn().Msg("rides message channel closed")
				return
			}
			c.handleDelivery(ctx, msg)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	ctx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	if err := c.process(ctx, msg.Body); err != nil {
		if errors.Is(err, errMalformed) || errors.Is(err, revenue.ErrAssetNotFound) || errors.Is(err, revenue.ErrInvalidAmount) {
			log.Error().Err(err).Str("body", string(msg.Body)).Msg("rejecting ride message")
			_ = msg.Nack(false, false)
			return
		}
		log.Error().Err(err).Msg("ride message failed, requeueing")
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

var errMalformed = errors.New("malformed ride message")

// process records one ride message into the revenue ledger. Kept separate
// from delivery handling so it can be driven without a broker.
func (c *Consumer) process(ctx context.Context, body []byte) error {
	var payload RideCompletedMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	assetID, err := uuid.Parse(payload.AssetID)
	if err != nil {
		return fmt.Errorf("%w: invalid asset_id %q", errMalformed, payload.AssetID)
	}
	if payload.GrossAmount <= 0 {
		return fmt.Errorf("%w: gross_amount %v", errMalformed, payload.GrossAmount)
	}
	if payload.EventID == "" {
		return fmt.Errorf("%w: missing event_id", errMalformed)
	}
	sourceType := payload.SourceType
	if sourceType == "" {
		sourceType = domain.RevenueSourceRide
	}

	event, err := c.revenue.RecordRide(ctx, assetID, payload.GrossAmount, sourceType, payload.EventID, payload.OccurredAt)
	if err != nil {
		return err
	}
	log.Info().Str("event_id", event.EventID.String()).
		Str("asset_id", assetID.String()).
		Float64("gross", payload.GrossAmount).
		Msg("ride revenue recorded")
	return nil
}

// Close stops consuming and tears down the connection.
func (c *Consumer) Close() {
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	log.Info().Msg("rides consumer closed")
}
