package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 3 * time.Second

// RabbitPublisher publishes persistent JSON messages to topic exchanges over
// a single channel.
type RabbitPublisher struct {
	conn *amqp.Connection

	mu sync.Mutex // guards ch
	ch *amqp.Channel

	declared map[string]bool
}

// NewRabbit dials url and declares the default exchange. Other exchanges are
// declared on first publish.
func NewRabbit(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbit: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p := &RabbitPublisher{conn: conn, ch: ch, declared: map[string]bool{}}
	if err := p.declare(exchange); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// declare must be called with mu held or before p is shared.
func (p *RabbitPublisher) declare(exchange string) error {
	if p.declared[exchange] {
		return nil
	}
	if err := p.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	p.declared[exchange] = true
	return nil
}

func (p *RabbitPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.ch != nil {
		err = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
		p.conn = nil
	}
	return err
}

// Publish marshals event and sends it with routing key key. The key is also
// carried in the message type so consumers bound with wildcards can switch
// on it.
func (p *RabbitPublisher) Publish(ctx context.Context, exchange, key string, event any, reqID string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, publishTimeout)
		defer cancel()
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         key,
		Body:         body,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
	}
	if reqID != "" {
		msg.Headers = amqp.Table{requestIDHeader: reqID}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return fmt.Errorf("publish %s: publisher closed", key)
	}
	if err := p.declare(exchange); err != nil {
		return err
	}
	if err := p.ch.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}
