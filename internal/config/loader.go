package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func bindEnvVariables() {
	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.rabbitmq.host", "BROKER_RABBITMQ_HOST")
	viper.BindEnv("broker.rabbitmq.port", "BROKER_RABBITMQ_PORT")
	viper.BindEnv("broker.rabbitmq.user", "BROKER_RABBITMQ_USER")
	viper.BindEnv("broker.rabbitmq.password", "BROKER_RABBITMQ_PASSWORD")
	viper.BindEnv("broker.rabbitmq.vhost", "BROKER_RABBITMQ_VHOST")
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("vault.address", "VAULT_ADDRESS")
	viper.BindEnv("vault.token", "VAULT_TOKEN")

	viper.BindEnv("mail.smtp_host", "MAIL_SMTP_HOST")
	viper.BindEnv("mail.smtp_port", "MAIL_SMTP_PORT")
	viper.BindEnv("mail.username", "MAIL_USERNAME")
	viper.BindEnv("mail.password", "MAIL_PASSWORD")
	viper.BindEnv("mail.imap_host", "MAIL_IMAP_HOST")
	viper.BindEnv("mail.imap_port", "MAIL_IMAP_PORT")
	viper.BindEnv("mail.imap_username", "MAIL_IMAP_USERNAME")
	viper.BindEnv("mail.imap_password", "MAIL_IMAP_PASSWORD")

	viper.BindEnv("vendors.file", "VENDORS_FILE")

	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyDefaults(cfg *Config) {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if cfg.Broker.Type == "" {
		cfg.Broker.Type = "rabbitmq"
	}
	if cfg.Broker.RabbitMQ.Port == 0 {
		cfg.Broker.RabbitMQ.Port = 5672
	}
	if cfg.Broker.RabbitMQ.VHost == "" {
		cfg.Broker.RabbitMQ.VHost = "/"
	}
	if cfg.Broker.RabbitMQ.PrefetchCount == 0 {
		cfg.Broker.RabbitMQ.PrefetchCount = 1
	}

	if cfg.Database.MigrationsPath == "" {
		cfg.Database.MigrationsPath = "migrations/postgres"
	}
}
