package broker

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"sfex/internal/config"
	"sfex/internal/constants"
	"sfex/internal/logger"
	"sfex/pkg/errors"
	"sfex/pkg/logging"
	"sfex/pkg/metrics"
	"sfex/pkg/tracing"
)

const correlationIDHeader = "correlation_id"

type KafkaProducer struct {
	writer  *kafka.Writer
	brokers []string
	logger  logger.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}
	return &KafkaProducer{writer: w, brokers: cfg.Brokers, logger: log}
}

func (p *KafkaProducer) Publish(ctx context.Context, queue string, body []byte, correlationID string) error {
	headers := []kafka.Header{
		{Key: correlationIDHeader, Value: []byte(correlationID)},
	}
	headers = tracing.InjectKafkaHeaders(ctx, headers)

	err := p.writer.WriteMessages(ctx,
		kafka.Message{
			Topic:   queue,
			Key:     []byte(correlationID),
			Value:   body,
			Headers: headers,
			Time:    time.Now(),
		},
	)
	if err != nil {
		metrics.IncBrokerPublish(queue, "error")
		return errors.Wrap(err, errors.ErrBrokerUnavailable)
	}

	metrics.IncBrokerPublish(queue, "success")
	return nil
}

// Ping reports broker reachability for health checks.
func (p *KafkaProducer) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.ErrBrokerUnavailable
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return errors.Wrap(err, errors.ErrBrokerUnavailable)
	}
	return conn.Close()
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// KafkaConsumer adapts the disposition model to a log-based broker:
// Kafka has no per-message requeue, so Requeue is served by in-process
// redelivery with backoff, and DeadLetter by producing to the DLQ topic
// before committing the offset.
type KafkaConsumer struct {
	cfg         config.KafkaConfig
	wg          sync.WaitGroup
	reader      *kafka.Reader
	logger      logger.Logger
	dlqProducer Producer
	serviceName string
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		cfg:         cfg,
		logger:      log,
		dlqProducer: NewKafkaProducer(cfg, log),
		serviceName: "unknown",
	}
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
}

func (c *KafkaConsumer) dlqTopic(queue string) string {
	if c.cfg.DLQTopic != "" {
		return c.cfg.DLQTopic
	}
	return queue + constants.DeadLetterSuffix
}

func (c *KafkaConsumer) Consume(ctx context.Context, queue string, handler HandlerFunc) error {
	c.logger.Infow("Creating Kafka reader",
		"topic", queue,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
		"service_name", c.serviceName,
	)

	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		GroupID:  c.cfg.GroupID,
		Topic:    queue,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		consumeCtx := logging.WithServiceName(ctx, c.serviceName)
		c.logger.InfowCtx(consumeCtx, "Started consuming",
			"topic", queue,
		)

		for {
			m, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.logger.InfowCtx(consumeCtx, "Stopped consuming",
						"topic", queue,
						"reason", "context canceled",
					)
					return
				}
				c.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
					"error", err,
					"topic", queue,
				)
				time.Sleep(time.Second)
				continue
			}

			c.processMessage(consumeCtx, queue, m, handler)

			if err := c.reader.CommitMessages(ctx, m); err != nil {
				c.logger.ErrorwCtx(consumeCtx, "Failed to commit message",
					"error", err,
					"topic", queue,
				)
			}
		}
	}()

	<-ctx.Done()
	return ctx.Err()
}

func (c *KafkaConsumer) processMessage(ctx context.Context, queue string, m kafka.Message, handler HandlerFunc) {
	msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "broker.consume", m.Headers)
	defer span.End()

	correlationID := headerValue(m.Headers, correlationIDHeader)
	if correlationID != "" {
		msgCtx = logging.WithCorrelationID(msgCtx, correlationID)
	}

	maxAttempts := constants.DefaultMaxDeliveryAttempts
	if c.cfg.Retry.MaxAttempts > 0 {
		maxAttempts = c.cfg.Retry.MaxAttempts
	}

	for attempt := 1; ; attempt++ {
		delivery := Delivery{
			Queue:         queue,
			Body:          m.Value,
			CorrelationID: correlationID,
			Attempts:      attempt,
			Headers:       headersToMap(m.Headers),
		}

		disposition := c.invokeHandler(msgCtx, delivery, handler)

		switch disposition {
		case Ack:
			return

		case Requeue:
			if attempt >= maxAttempts {
				c.logger.WarnwCtx(msgCtx, "Delivery attempts exhausted, dead-lettering",
					"topic", queue,
					"attempts", attempt,
				)
				c.sendToDLQ(msgCtx, queue, m, correlationID, "max_attempts_exceeded")
				return
			}

			delay := redeliveryDelay(c.cfg.Retry, attempt)
			metrics.BrokerRedeliveriesTotal.WithLabelValues(queue).Inc()
			metrics.RetryAttemptsTotal.WithLabelValues(c.serviceName, queue).Inc()
			c.logger.WarnwCtx(msgCtx, "Retrying message processing",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"next_delay", delay,
				"topic", queue,
			)

			select {
			case <-msgCtx.Done():
				return
			case <-time.After(delay):
			}

		case DeadLetter:
			c.sendToDLQ(msgCtx, queue, m, correlationID, "handler")
			return
		}
	}
}

func (c *KafkaConsumer) invokeHandler(ctx context.Context, delivery Delivery, handler HandlerFunc) (disposition Disposition) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.RecoverPanic(r)
			c.logger.ErrorwCtx(ctx, "Panic recovered during message processing",
				"error", err,
				"topic", delivery.Queue,
			)
			disposition = DeadLetter
		}
	}()
	return handler(ctx, delivery)
}

func (c *KafkaConsumer) sendToDLQ(ctx context.Context, queue string, m kafka.Message, correlationID, reason string) {
	dlq := c.dlqTopic(queue)
	if err := c.dlqProducer.Publish(ctx, dlq, m.Value, correlationID); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to send message to DLQ",
			"error", err,
			"topic", queue,
			"dlq", dlq,
		)
		return
	}

	metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, queue, reason).Inc()
	c.logger.InfowCtx(ctx, "Message sent to DLQ",
		"topic", queue,
		"dlq", dlq,
		"reason", reason,
	)
}

func (c *KafkaConsumer) Close() error {
	var err error
	if c.reader != nil {
		err = c.reader.Close()
	}
	if c.dlqProducer != nil {
		if closeErr := c.dlqProducer.Close(); err == nil {
			err = closeErr
		}
	}
	c.wg.Wait()
	return err
}

func redeliveryDelay(cfg config.RetryConfig, attempt int) time.Duration {
	initial := cfg.InitialInterval
	if initial <= 0 {
		initial = time.Second
	}
	max := cfg.MaxInterval
	if max <= 0 {
		max = 30 * time.Second
	}
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * multiplier)
		if delay >= max {
			return max
		}
	}
	return delay
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func headersToMap(headers []kafka.Header) map[string]interface{} {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}
