package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultExchange 事件转发的 topic exchange
const DefaultExchange = "ngobridge.events"

// maxDialDelay 重连退避上限
const maxDialDelay = time.Minute

// AMQPSinkConfig configures forwarding of bridge events to RabbitMQ.
type AMQPSinkConfig struct {
	URL           string
	Exchange      string
	RetryAttempts int           // 默认 5
	Delay         time.Duration // 首次重试间隔, 默认 1s
	Timeout       time.Duration // 单条发布超时, 默认 5s
}

// amqpChannel is the part of *amqp.Channel the sink uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes every bus event to a topic exchange, routed by event
// type (e.g. "relay.failed"). Events are published from the bus dispatcher
// one at a time, so the single channel is never shared.
type AMQPSink struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	timeout  time.Duration
	logger   *zap.Logger
}

// DialAMQPSink connects with exponential backoff and declares the exchange.
func DialAMQPSink(ctx context.Context, cfg AMQPSinkConfig, logger *zap.Logger) (*AMQPSink, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 5
	}
	if cfg.Delay <= 0 {
		cfg.Delay = time.Second
	}

	conn, err := dialWithRetry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	s := newAMQPSink(ch, cfg.Exchange, cfg.Timeout, logger)
	s.conn = conn
	return s, nil
}

func newAMQPSink(ch amqpChannel, exchange string, timeout time.Duration, logger *zap.Logger) *AMQPSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AMQPSink{
		ch:       ch,
		exchange: exchange,
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "event-amqp")),
	}
}

func dialWithRetry(ctx context.Context, cfg AMQPSinkConfig, logger *zap.Logger) (*amqp.Connection, error) {
	var lastErr error
	for i := 1; i <= cfg.RetryAttempts; i++ {
		conn, err := amqp.Dial(cfg.URL)
		if err == nil {
			if i > 1 {
				logger.Info("AMQP connected", zap.Int("attempt", i))
			}
			return conn, nil
		}
		lastErr = err

		sleep := cfg.Delay << (i - 1)
		if sleep > maxDialDelay {
			sleep = maxDialDelay
		}
		logger.Warn("AMQP dial failed",
			zap.Int("attempt", i),
			zap.Duration("sleep", sleep),
			zap.Error(err),
		)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("failed to connect to AMQP after %d attempts: %w", cfg.RetryAttempts, lastErr)
}

// Attach subscribes the sink to every event on bus.
func (s *AMQPSink) Attach(bus Bus) {
	bus.Subscribe("*", s.handle)
}

func (s *AMQPSink) handle(ctx context.Context, event Event) {
	body, err := json.Marshal(Record{Type: event.Type(), Timestamp: event.Timestamp(), Payload: event.Payload()})
	if err != nil {
		s.logger.Error("Failed to marshal event", zap.String("type", event.Type()), zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.ch.PublishWithContext(pubCtx, s.exchange, event.Type(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    event.Timestamp(),
		Body:         body,
	})
	if err != nil {
		s.logger.Warn("Event publish failed", zap.String("type", event.Type()), zap.Error(err))
	}
}

// Close 关闭通道与连接
func (s *AMQPSink) Close() error {
	err := s.ch.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
