package config

import (
	"fmt"
	"strings"
)

// ValidateStatic rejects configurations that can never work at runtime.
// Anything that depends on reachable infrastructure is left for the
// health checks.
func ValidateStatic(cfg *Config) error {
	var problems []string

	switch cfg.Broker.Type {
	case "rabbitmq":
		if cfg.Broker.RabbitMQ.Host == "" {
			problems = append(problems, "broker.rabbitmq.host is required")
		}
	case "kafka":
		if len(cfg.Broker.Kafka.Brokers) == 0 {
			problems = append(problems, "broker.kafka.brokers is required")
		}
		if cfg.Broker.Kafka.GroupID == "" {
			problems = append(problems, "broker.kafka.group_id is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("broker.type %q is not supported", cfg.Broker.Type))
	}

	if cfg.Broker.RabbitMQ.MaxDeliveryAttempts < 0 {
		problems = append(problems, "broker.rabbitmq.max_delivery_attempts must not be negative")
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not a known level", cfg.Logging.Level))
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", cfg.Server.Port))
	}

	if cfg.CircuitBreaker.Enabled {
		if cfg.CircuitBreaker.FailureRatio < 0 || cfg.CircuitBreaker.FailureRatio > 1 {
			problems = append(problems, "circuit_breaker.failure_ratio must be within [0,1]")
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.OTLP.Endpoint == "" {
		problems = append(problems, "tracing.otlp.endpoint is required when tracing is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}
