package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher owns one AMQP channel in confirm mode. Publish calls are serialized so
// each waits for its own broker ack.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	acks     <-chan amqp.Confirmation
	exchange string
	mu       sync.Mutex
}

// DialPublisher connects and declares a durable fanout exchange.
func DialPublisher(url, exchange string) (*Publisher, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	if strings.HasPrefix(url, "amqps://") {
		conn, err = amqp.DialTLS(url, &tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		conn, err = amqp.Dial(url)
	}
	if err != nil {
		return nil, fmt.Errorf("notify.DialPublisher: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify.DialPublisher: channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("notify.DialPublisher: declare %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("notify.DialPublisher: confirm mode: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return &Publisher{conn: conn, ch: ch, acks: acks, exchange: exchange}, nil
}

// Ping is a cheap liveness check.
func (p *Publisher) Ping() error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("amqp connection is closed")
	}
	return nil
}

// Publish sends body and waits for the broker to confirm it.
func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte, headers amqp.Table) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return err
	}
	select {
	case conf, ok := <-p.acks:
		if !ok {
			return errors.New("amqp channel closed before confirm")
		}
		if !conf.Ack {
			return errors.New("publish NACK from broker")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// Message is the JSON document published for downstream push/SMS workers.
type Message struct {
	CustomerID string    `json:"customer_id"`
	Kind       Kind      `json:"kind"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Payload    Payload   `json:"payload"`
	SentAt     time.Time `json:"sent_at"`
}

// NewMessage builds the published document.
func NewMessage(customerID string, kind Kind, payload Payload, now time.Time) Message {
	return Message{
		CustomerID: customerID,
		Kind:       kind,
		Subject:    Subject(kind, payload),
		Body:       Body(kind, payload),
		Payload:    payload,
		SentAt:     now.UTC(),
	}
}

// publisher is satisfied by *Publisher.
type publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, headers amqp.Table) error
}

// AMQPSender hands notifications to a broker for delivery workers.
type AMQPSender struct {
	pub publisher
	now func() time.Time
}

func NewAMQPSender(pub *Publisher) *AMQPSender {
	return &AMQPSender{pub: pub, now: time.Now}
}

func (s *AMQPSender) Send(ctx context.Context, customerID string, kind Kind, payload Payload) error {
	body, err := json.Marshal(NewMessage(customerID, kind, payload, s.now()))
	if err != nil {
		return fmt.Errorf("notify.AMQPSender: marshal: %w", err)
	}
	key := "preorder." + string(kind)
	if err := s.pub.Publish(ctx, key, body, amqp.Table{"x-source": "preorder-pipeline"}); err != nil {
		return fmt.Errorf("notify.AMQPSender: publish %s: %w", payload.OrderID, err)
	}
	return nil
}
