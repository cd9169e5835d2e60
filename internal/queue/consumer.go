package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

const requestIDHeader = "X-Request-ID"

// Handler processes one message body. A returned error hands the message back
// to the broker.
type Handler func(ctx context.Context, body []byte) error

// Consumer reads one durable queue bound to a topic exchange.
type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	prefetch int
}

// NewConsumer declares exchange and queue and binds them with key.
func NewConsumer(url, exchange, queue, key string) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbit: %w", err)
	}
	c := &Consumer{conn: conn, prefetch: 50}
	if err := c.setup(exchange, queue, key); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Consumer) setup(exchange, queue, key string) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	c.ch = ch
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(q.Name, key, exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s to %s: %w", q.Name, key, err)
	}
	c.queue = q.Name
	return nil
}

func (c *Consumer) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Consume runs workers until ctx is done or the broker closes the delivery
// channel. It returns ctx.Err() on shutdown.
func (c *Consumer) Consume(ctx context.Context, workers int, handle Handler) error {
	if c == nil || c.ch == nil {
		return errors.New("consumer is not initialized")
	}
	if workers <= 0 {
		workers = 1
	}
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case d, ok := <-msgs:
					if !ok {
						return
					}
					_ = dispatch(ctx, d, handle)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("delivery channel closed by broker")
}

// dispatch runs handle for one delivery with the publisher's request id in
// ctx. Success acks. A first failure requeues; a failure on a redelivered
// message drops it.
func dispatch(ctx context.Context, d amqp.Delivery, handle Handler) error {
	if id, ok := d.Headers[requestIDHeader].(string); ok && id != "" {
		ctx = WithRequestID(ctx, id)
	}
	if err := handle(ctx, d.Body); err != nil {
		if nerr := d.Nack(false, !d.Redelivered); nerr != nil {
			return errors.Join(err, nerr)
		}
		return err
	}
	return d.Ack(false)
}
