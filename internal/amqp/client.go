// Package amqp carries post-commit ledger events and reconcile requests
// between the API server and the worker. Delivery is best-effort for
// events and at-least-once for reconcile requests; the reconciler is
// idempotent, so redelivery is harmless.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"

	applog "hisab/internal/log"
)

const publishAttempts = 3

type Client struct {
	conn           *amqp091.Connection
	channel        *amqp091.Channel
	exchangeName   string
	eventsQueue    string
	reconcileQueue string
}

func NewClient(url, exchangeName, eventsQueue, reconcileQueue string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:           conn,
		channel:        channel,
		exchangeName:   exchangeName,
		eventsQueue:    eventsQueue,
		reconcileQueue: reconcileQueue,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}
	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{c.eventsQueue, c.reconcileQueue} {
		if _, err := c.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		// routing key matches the queue name on a direct exchange
		if err := c.channel.QueueBind(queue, queue, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}
	return nil
}

// PublishLedgerEvent implements ledger.Events.
func (c *Client) PublishLedgerEvent(ctx context.Context, action, ownerID string, transactionID int64, accounts []int64) error {
	msg := NewLedgerEventMessage(action, ownerID, transactionID, accounts)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := c.publish(ctx, c.eventsQueue, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published ledger event",
		"action", action,
		applog.FieldTransactionID, transactionID,
		"accounts", accounts,
		applog.FieldQueue, c.eventsQueue)
	return nil
}

// PublishReconcileRequest enqueues a reconciliation pass for one account.
func (c *Client) PublishReconcileRequest(ctx context.Context, ownerID string, accountID int64, reason string) error {
	msg := NewReconcileRequestMessage(ownerID, accountID, reason)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal reconcile request: %w", err)
	}
	if err := c.publish(ctx, c.reconcileQueue, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published reconcile request",
		applog.FieldAccountID, accountID,
		"reason", reason,
		applog.FieldQueue, c.reconcileQueue)
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < publishAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(exponentialBackoff(attempt - 1)):
			}
		}

		lastErr = c.channel.PublishWithContext(
			ctx,
			c.exchangeName,
			routingKey,
			false, // mandatory
			false, // immediate
			amqp091.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp091.Persistent,
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
		if lastErr == nil {
			return nil
		}
		if !isConnectionError(lastErr) {
			break
		}
		slog.WarnContext(ctx, "Publish failed on connection error, retrying",
			"routing_key", routingKey, "attempt", attempt+1, applog.FieldError, lastErr)
	}
	return fmt.Errorf("publish message: %w", lastErr)
}

// ConsumeLedgerEvents delivers committed-write notifications to handler
// until ctx is cancelled. Handler errors requeue the delivery.
func (c *Client) ConsumeLedgerEvents(ctx context.Context, handler func(context.Context, *LedgerEventMessage) error) error {
	return c.consume(ctx, c.eventsQueue, func(ctx context.Context, body []byte) error {
		msg, err := LedgerEventMessageFromJSON(body)
		if err != nil {
			return errUnmarshal(err)
		}
		return handler(ctx, msg)
	})
}

// ConsumeReconcileRequests delivers reconcile requests to handler until ctx
// is cancelled.
func (c *Client) ConsumeReconcileRequests(ctx context.Context, handler func(context.Context, *ReconcileRequestMessage) error) error {
	return c.consume(ctx, c.reconcileQueue, func(ctx context.Context, body []byte) error {
		msg, err := ReconcileRequestMessageFromJSON(body)
		if err != nil {
			return errUnmarshal(err)
		}
		return handler(ctx, msg)
	})
}

type unmarshalError struct{ err error }

func (e unmarshalError) Error() string { return "unmarshal message: " + e.err.Error() }

func errUnmarshal(err error) error { return unmarshalError{err: err} }

func (c *Client) consume(ctx context.Context, queue string, handle func(context.Context, []byte) error) error {
	msgs, err := c.channel.Consume(
		queue,
		"",    // consumer
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", queue, err)
	}

	slog.InfoContext(ctx, "Started consuming", applog.FieldQueue, queue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping consumption", applog.FieldQueue, queue, "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed for %s", queue)
			}

			err := handle(ctx, delivery.Body)
			if err == nil {
				delivery.Ack(false)
				continue
			}

			if _, bad := err.(unmarshalError); bad {
				// poison message, drop it
				slog.ErrorContext(ctx, "Failed to unmarshal message", applog.FieldQueue, queue, applog.FieldError, err)
				delivery.Nack(false, false)
				continue
			}

			slog.ErrorContext(ctx, "Failed to handle message", applog.FieldQueue, queue, applog.FieldError, err)
			delivery.Nack(false, true) // requeue for another attempt
		}
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// exponentialBackoff returns 1s, 2s, 4s, ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	d := time.Second << uint(attempt)
	if d > 30*time.Second || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection closed") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "channel/connection is not open") ||
		strings.Contains(s, "EOF")
}
