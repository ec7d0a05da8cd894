package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"sfex/internal/config"
	"sfex/internal/constants"
	"sfex/internal/logger"
	"sfex/pkg/errors"
	"sfex/pkg/logging"
	"sfex/pkg/metrics"
	"sfex/pkg/retry"
	"sfex/pkg/tracing"
)

// connectionManager owns the AMQP connection and channel. Connecting is
// lazy and serialized under the mutex; a broker outage invalidates the
// pair so the next operation redials.
type connectionManager struct {
	cfg    config.RabbitMQConfig
	logger logger.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

func newConnectionManager(cfg config.RabbitMQConfig, log logger.Logger) *connectionManager {
	return &connectionManager{
		cfg:      cfg,
		logger:   log,
		declared: make(map[string]bool),
	}
}

func (m *connectionManager) url() string {
	scheme := "amqp"
	if m.cfg.UseTLS {
		scheme = "amqps"
	}
	uri := amqp.URI{
		Scheme:   scheme,
		Host:     m.cfg.Host,
		Port:     m.cfg.Port,
		Username: m.cfg.User,
		Password: m.cfg.Password,
		Vhost:    m.cfg.VHost,
	}
	return uri.String()
}

// channel returns a live channel with the queue and its dead-letter
// companion declared, dialing the broker first when necessary.
func (m *connectionManager) channel(queue string) (*amqp.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.conn.IsClosed() || m.ch == nil || m.ch.IsClosed() {
		if err := m.connectLocked(); err != nil {
			return nil, err
		}
	}

	if err := m.declareLocked(queue); err != nil {
		return nil, err
	}

	return m.ch, nil
}

func (m *connectionManager) connectLocked() error {
	conn, err := amqp.Dial(m.url())
	if err != nil {
		return errors.Wrap(err, errors.ErrBrokerUnavailable)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, errors.ErrBrokerUnavailable)
	}

	prefetch := m.cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return errors.Wrap(err, errors.ErrBrokerUnavailable)
	}

	m.conn = conn
	m.ch = ch
	m.declared = make(map[string]bool)

	m.logger.Infow("Connected to RabbitMQ",
		"host", m.cfg.Host,
		"vhost", m.cfg.VHost,
		"prefetch", prefetch,
	)
	return nil
}

func (m *connectionManager) declareLocked(queue string) error {
	for _, name := range []string{queue, queue + constants.DeadLetterSuffix} {
		if m.declared[name] {
			continue
		}
		if _, err := m.ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return errors.Wrap(err, errors.ErrBrokerUnavailable)
		}
		m.declared[name] = true
	}
	return nil
}

// ping verifies the broker is reachable, dialing if necessary.
func (m *connectionManager) ping() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.conn.IsClosed() || m.ch == nil || m.ch.IsClosed() {
		return m.connectLocked()
	}
	return nil
}

// invalidate drops the cached connection after an operation failed on
// it; the next call to channel redials.
func (m *connectionManager) invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ch != nil {
		_ = m.ch.Close()
		m.ch = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.declared = make(map[string]bool)
}

func (m *connectionManager) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.ch != nil {
		err = m.ch.Close()
		m.ch = nil
	}
	if m.conn != nil {
		if closeErr := m.conn.Close(); err == nil {
			err = closeErr
		}
		m.conn = nil
	}
	m.declared = make(map[string]bool)
	return err
}

func publishPolicy(cfg config.RetryConfig) retry.Policy {
	policy := retry.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		policy.Multiplier = cfg.Multiplier
	}
	if cfg.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = cfg.MaxElapsedTime
	}
	return policy
}

type RabbitProducer struct {
	manager *connectionManager
	policy  retry.Policy
	logger  logger.Logger
}

func NewRabbitProducer(cfg config.RabbitMQConfig, log logger.Logger) *RabbitProducer {
	return &RabbitProducer{
		manager: newConnectionManager(cfg, log),
		policy:  publishPolicy(cfg.Retry),
		logger:  log,
	}
}

// Publish writes one persistent message to a durable queue, retrying
// with backoff across reconnects.
func (p *RabbitProducer) Publish(ctx context.Context, queue string, body []byte, correlationID string) error {
	err := retry.Retry(ctx, p.policy, func() error {
		if err := p.publishOnce(ctx, queue, body, correlationID, nil); err != nil {
			p.manager.invalidate()
			return err
		}
		return nil
	})

	if err != nil {
		metrics.IncBrokerPublish(queue, "error")
		return err
	}

	metrics.IncBrokerPublish(queue, "success")
	return nil
}

func (p *RabbitProducer) publishOnce(ctx context.Context, queue string, body []byte, correlationID string, headers amqp.Table) error {
	ch, err := p.manager.channel(queue)
	if err != nil {
		return err
	}

	headers = tracing.InjectAMQPHeaders(ctx, headers)

	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:   constants.ContentTypeJSON,
		CorrelationId: correlationID,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now(),
		Headers:       headers,
		Body:          body,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrBrokerUnavailable)
	}
	return nil
}

// Ping reports broker reachability for health checks.
func (p *RabbitProducer) Ping(ctx context.Context) error {
	return p.manager.ping()
}

func (p *RabbitProducer) Close() error {
	return p.manager.close()
}

type RabbitConsumer struct {
	cfg         config.RabbitMQConfig
	manager     *connectionManager
	logger      logger.Logger
	serviceName string
}

func NewRabbitConsumer(cfg config.RabbitMQConfig, log logger.Logger) *RabbitConsumer {
	return &RabbitConsumer{
		cfg:         cfg,
		manager:     newConnectionManager(cfg, log),
		logger:      log,
		serviceName: "unknown",
	}
}

func (c *RabbitConsumer) SetServiceName(name string) {
	c.serviceName = name
}

func (c *RabbitConsumer) maxDeliveryAttempts() int {
	if c.cfg.MaxDeliveryAttempts > 0 {
		return c.cfg.MaxDeliveryAttempts
	}
	return constants.DefaultMaxDeliveryAttempts
}

// Consume runs the delivery loop until the context is canceled. The
// broker connection is re-established with backoff after any failure,
// so a broker restart never kills the consumer.
func (c *RabbitConsumer) Consume(ctx context.Context, queue string, handler HandlerFunc) error {
	consumeCtx := logging.WithServiceName(ctx, c.serviceName)
	c.logger.InfowCtx(consumeCtx, "Started consuming",
		"queue", queue,
	)

	for {
		if err := ctx.Err(); err != nil {
			c.logger.InfowCtx(consumeCtx, "Stopped consuming",
				"queue", queue,
				"reason", "context canceled",
			)
			return err
		}

		if err := c.consumeSession(consumeCtx, queue, handler); err != nil && ctx.Err() == nil {
			c.logger.ErrorwCtx(consumeCtx, "Consumer session ended, reconnecting",
				"error", err,
				"queue", queue,
			)
			c.manager.invalidate()

			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// consumeSession serves deliveries from one channel until it dies.
func (c *RabbitConsumer) consumeSession(ctx context.Context, queue string, handler HandlerFunc) error {
	ch, err := c.manager.channel(queue)
	if err != nil {
		return err
	}

	deliveries, err := ch.Consume(queue, c.serviceName, false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrBrokerUnavailable)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed for queue %s", queue)
			}
			c.handleDelivery(ctx, queue, d, handler)
		}
	}
}

func (c *RabbitConsumer) handleDelivery(ctx context.Context, queue string, d amqp.Delivery, handler HandlerFunc) {
	msgCtx, span := tracing.StartSpanFromAMQPDelivery(ctx, "broker.consume", d.Headers)
	defer span.End()

	if d.CorrelationId != "" {
		msgCtx = logging.WithCorrelationID(msgCtx, d.CorrelationId)
	}

	attempts := attemptsFromHeaders(d.Headers)
	delivery := Delivery{
		Queue:         queue,
		Body:          d.Body,
		CorrelationID: d.CorrelationId,
		Attempts:      attempts,
		Headers:       d.Headers,
	}

	disposition := c.invokeHandler(msgCtx, delivery, handler)

	switch disposition {
	case Ack:
		if err := d.Ack(false); err != nil {
			c.logger.ErrorwCtx(msgCtx, "Failed to ack message",
				"error", err,
				"queue", queue,
			)
		}

	case Requeue:
		c.requeue(msgCtx, queue, d, attempts)

	case DeadLetter:
		c.deadLetter(msgCtx, queue, d, "handler")
	}
}

func (c *RabbitConsumer) invokeHandler(ctx context.Context, delivery Delivery, handler HandlerFunc) (disposition Disposition) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.RecoverPanic(r)
			c.logger.ErrorwCtx(ctx, "Panic recovered during message processing",
				"error", err,
				"queue", delivery.Queue,
			)
			disposition = DeadLetter
		}
	}()
	return handler(ctx, delivery)
}

// requeue republishes the message with a bumped attempt counter and
// acknowledges the original; rejecting with requeue=true would loop
// without ever counting deliveries. Once the ceiling is reached the
// message is dead-lettered instead.
func (c *RabbitConsumer) requeue(ctx context.Context, queue string, d amqp.Delivery, attempts int) {
	if attempts >= c.maxDeliveryAttempts() {
		c.logger.WarnwCtx(ctx, "Delivery attempts exhausted, dead-lettering",
			"queue", queue,
			"attempts", attempts,
		)
		c.deadLetter(ctx, queue, d, "max_attempts_exceeded")
		return
	}

	headers := cloneHeaders(d.Headers)
	headers[constants.HeaderAttempts] = int32(attempts + 1)

	err := c.republish(ctx, queue, d, headers)
	if err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to republish for retry, rejecting back to queue",
			"error", err,
			"queue", queue,
		)
		_ = d.Nack(false, true)
		return
	}

	metrics.BrokerRedeliveriesTotal.WithLabelValues(queue).Inc()
	metrics.RetryAttemptsTotal.WithLabelValues(c.serviceName, queue).Inc()
	_ = d.Ack(false)
}

func (c *RabbitConsumer) deadLetter(ctx context.Context, queue string, d amqp.Delivery, reason string) {
	dlq := queue + constants.DeadLetterSuffix
	headers := cloneHeaders(d.Headers)
	headers["x-dlq-reason"] = reason
	headers["x-dlq-source-queue"] = queue

	err := c.republish(ctx, dlq, d, headers)
	if err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to publish to DLQ, rejecting back to queue",
			"error", err,
			"queue", queue,
			"dlq", dlq,
		)
		_ = d.Nack(false, true)
		return
	}

	metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, queue, reason).Inc()
	c.logger.InfowCtx(ctx, "Message sent to DLQ",
		"queue", queue,
		"dlq", dlq,
		"reason", reason,
	)
	_ = d.Ack(false)
}

func (c *RabbitConsumer) republish(ctx context.Context, queue string, d amqp.Delivery, headers amqp.Table) error {
	ch, err := c.manager.channel(queue)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:   d.ContentType,
		CorrelationId: d.CorrelationId,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now(),
		Headers:       headers,
		Body:          d.Body,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrBrokerUnavailable)
	}
	return nil
}

func (c *RabbitConsumer) Close() error {
	return c.manager.close()
}

// attemptsFromHeaders reads the delivery counter, tolerating the
// integer widths the AMQP client may hand back. A message without the
// header is on its first delivery.
func attemptsFromHeaders(headers amqp.Table) int {
	if headers == nil {
		return 1
	}
	switch v := headers[constants.HeaderAttempts].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 1
	}
}

func cloneHeaders(headers amqp.Table) amqp.Table {
	clone := amqp.Table{}
	for k, v := range headers {
		clone[k] = v
	}
	return clone
}
