package report

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/model"
)

// DefaultExchange and DefaultRoutingKey address run reports when none are configured.
const (
	DefaultExchange   = "tripclean.runs"
	DefaultRoutingKey = "run.finished"
)

// publishChannel is the part of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes each run report as a persistent JSON message and waits for the
// broker to confirm it.
type AMQPPublisher struct {
	exchange   string
	routingKey string
	timeout    time.Duration
	log        *slog.Logger

	conn     *amqp.Connection
	ch       publishChannel
	confirms <-chan amqp.Confirmation
}

// DialAMQP connects to url, declares a durable topic exchange, and puts the channel in
// confirm mode.
func DialAMQP(ctx context.Context, url, exchange, routingKey string, log *slog.Logger) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}
	if log == nil {
		log = logger.Discard()
	}

	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(5 * time.Second),
	})
	if err != nil {
		return nil, errors.Wrap(err, "rabbitmq dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "rabbitmq channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "declaring exchange %s", exchange)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "rabbitmq confirm mode")
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	logger.Info(ctx, log, "rabbitmq_connected", "connected to rabbitmq", "exchange", exchange, "routing_key", routingKey)
	return &AMQPPublisher{
		exchange:   exchange,
		routingKey: routingKey,
		timeout:    5 * time.Second,
		log:        log,
		conn:       conn,
		ch:         ch,
		confirms:   confirms,
	}, nil
}

// Publish sends run and blocks until the broker acks it or the timeout passes.
func (p *AMQPPublisher) Publish(ctx context.Context, run model.RunReport) error {
	body, err := json.Marshal(run)
	if err != nil {
		return errors.Wrap(err, "encoding run report")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    run.RunID,
		Timestamp:    time.Now().UTC(),
		Type:         string(run.Status),
		Body:         body,
	})
	if err != nil {
		return errors.Wrap(err, "rabbitmq publish")
	}

	select {
	case c, ok := <-p.confirms:
		if !ok {
			return errors.New("rabbitmq: confirm channel closed")
		}
		if !c.Ack {
			return errors.New("rabbitmq: publish not acknowledged")
		}
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for rabbitmq confirm")
	}

	logger.Info(ctx, p.log, "report_published", "run report published",
		"exchange", p.exchange, "routing_key", p.routingKey, "status", string(run.Status))
	return nil
}

func (p *AMQPPublisher) Close() error {
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
