// Package amqp carries the expense change feed over a RabbitMQ fanout
// exchange, as an alternative to the Postgres LISTEN/NOTIFY feed. Producers
// publish one message per change; every subscriber gets its own exclusive
// queue bound to the exchange.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"spendlog/internal/store"
)

type Feed struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
}

func NewFeed(url, exchangeName string) (*Feed, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	feed := &Feed{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
	}

	if err := feed.setup(); err != nil {
		feed.Close()
		return nil, fmt.Errorf("setup exchange: %w", err)
	}

	return feed, nil
}

func (f *Feed) setup() error {
	err := f.channel.ExchangeDeclare(
		f.exchangeName, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}

// PublishChange publishes a single change event to every subscriber.
func (f *Feed) PublishChange(ctx context.Context, ev store.ChangeEvent) error {
	body, err := NewChangeMessage(ev).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = f.channel.PublishWithContext(
		ctx,
		f.exchangeName, // exchange
		"",             // routing key (ignored by fanout)
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	slog.InfoContext(ctx, "Published expense change event",
		"type", ev.Type,
		"exchange", f.exchangeName)

	return nil
}

// Subscribe binds a fresh exclusive queue to the exchange and adapts
// deliveries into a change-event subscription. The consumer owns the handle;
// Unsubscribe releases the queue. Broken consume channels are reopened with
// exponential backoff until the subscription is cancelled.
func (f *Feed) Subscribe(ctx context.Context) (*store.Subscription, error) {
	subCtx, cancelSub := context.WithCancel(ctx)

	deliveries, queueName, err := f.openConsume(subCtx)
	if err != nil {
		cancelSub()
		return nil, err
	}

	events := make(chan store.ChangeEvent, 64)
	go func() {
		defer close(events)
		attempt := 0
		for {
			if deliveries == nil {
				select {
				case <-subCtx.Done():
					return
				case <-time.After(exponentialBackoff(attempt)):
				}
				attempt++
				var reopenErr error
				deliveries, queueName, reopenErr = f.openConsume(subCtx)
				if reopenErr != nil {
					if isConnectionError(reopenErr) {
						slog.Warn("Change feed broker unreachable, will retry",
							"error", reopenErr, "attempt", attempt, "exchange", f.exchangeName)
					} else {
						slog.Error("Change feed reconnect failed",
							"error", reopenErr, "attempt", attempt, "exchange", f.exchangeName)
					}
					deliveries = nil
					continue
				}
				attempt = 0
				slog.Info("Change feed reconnected", "queue", queueName)
			}

			select {
			case <-subCtx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					if subCtx.Err() != nil {
						return
					}
					deliveries = nil
					continue
				}
				msg, err := ChangeMessageFromJSON(delivery.Body)
				if err != nil {
					slog.Error("Failed to unmarshal change message", "error", err)
					continue
				}
				select {
				case events <- msg.Event():
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(cancelSub)
	}
	return store.NewSubscription(events, cancel), nil
}

// openConsume declares an exclusive server-named queue bound to the fanout
// exchange and starts consuming from it on a dedicated channel.
func (f *Feed) openConsume(ctx context.Context) (<-chan amqp091.Delivery, string, error) {
	channel, err := f.conn.Channel()
	if err != nil {
		return nil, "", fmt.Errorf("open consume channel: %w", err)
	}

	queue, err := channel.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		return nil, "", fmt.Errorf("declare subscriber queue: %w", err)
	}

	if err := channel.QueueBind(queue.Name, "", f.exchangeName, false, nil); err != nil {
		channel.Close()
		return nil, "", fmt.Errorf("bind subscriber queue: %w", err)
	}

	deliveries, err := channel.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack (feed events are fire-and-forget)
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		channel.Close()
		return nil, "", fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		<-ctx.Done()
		channel.Close()
	}()

	slog.Info("Subscribed to change feed", "queue", queue.Name, "exchange", f.exchangeName)
	return deliveries, queue.Name, nil
}

func (f *Feed) Close() error {
	if f.channel != nil {
		f.channel.Close()
	}
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

// exponentialBackoff returns the wait before reconnect attempt n, capped at
// 30 seconds.
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
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"connection refused",
		"connection reset",
		"channel/connection is not open",
		"broken pipe",
		"i/o timeout",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
