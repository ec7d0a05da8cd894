package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

// StatusChecker lets a checker report degraded instead of the binary
// healthy/unhealthy of Checker.
type StatusChecker interface {
	Checker
	CheckStatus(ctx context.Context) (Status, string)
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type CheckerRegistry struct {
	checkers []Checker
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{
		checkers: make([]Checker, 0),
	}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, checker)
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make(map[string]CheckResult)
	allHealthy := true
	anyDegraded := false

	for _, checker := range r.checkers {
		result := CheckResult{
			Timestamp: time.Now(),
		}

		if sc, ok := checker.(StatusChecker); ok {
			status, message := sc.CheckStatus(ctx)
			result.Status = status
			result.Message = message
			switch status {
			case StatusUnhealthy:
				allHealthy = false
			case StatusDegraded:
				anyDegraded = true
			}
		} else if err := checker.Check(ctx); err != nil {
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			allHealthy = false
		} else {
			result.Status = StatusHealthy
		}

		results[checker.Name()] = result
	}

	overallStatus := StatusHealthy
	if !allHealthy {
		overallStatus = StatusUnhealthy
	} else if anyDegraded {
		overallStatus = StatusDegraded
	}

	return Health{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

type PostgreSQLChecker struct {
	db *sql.DB
}

func NewPostgreSQLChecker(db *sql.DB) *PostgreSQLChecker {
	return &PostgreSQLChecker{db: db}
}

func (c *PostgreSQLChecker) Name() string {
	return "postgresql"
}

func (c *PostgreSQLChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgresql ping failed: %w", err)
	}
	return nil
}

type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string {
	return "redis"
}

func (c *RedisChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

type MongoDBChecker struct {
	client *mongo.Client
}

func NewMongoDBChecker(client *mongo.Client) *MongoDBChecker {
	return &MongoDBChecker{client: client}
}

func (c *MongoDBChecker) Name() string {
	return "mongodb"
}

func (c *MongoDBChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	return nil
}

// FuncChecker wraps a bare probe function, for dependencies without a
// client type of their own (the broker, the secret store).
type FuncChecker struct {
	name  string
	check func(ctx context.Context) error
}

func NewFuncChecker(name string, check func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, check: check}
}

func (c *FuncChecker) Name() string {
	return c.name
}

func (c *FuncChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.check(ctx)
}

// CertExpiryChecker degrades the service while the TLS certificate is
// inside the renewal margin and flags it unhealthy once expired.
type CertExpiryChecker struct {
	expiry func(ctx context.Context) (time.Time, error)
	margin time.Duration
}

func NewCertExpiryChecker(expiry func(ctx context.Context) (time.Time, error), margin time.Duration) *CertExpiryChecker {
	return &CertExpiryChecker{expiry: expiry, margin: margin}
}

func (c *CertExpiryChecker) Name() string {
	return "tls_certificate"
}

func (c *CertExpiryChecker) Check(ctx context.Context) error {
	status, message := c.CheckStatus(ctx)
	if status == StatusUnhealthy {
		return fmt.Errorf("%s", message)
	}
	return nil
}

func (c *CertExpiryChecker) CheckStatus(ctx context.Context) (Status, string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	notAfter, err := c.expiry(ctx)
	if err != nil {
		return StatusUnhealthy, fmt.Sprintf("certificate expiry unavailable: %v", err)
	}

	remaining := time.Until(notAfter)
	if remaining <= 0 {
		return StatusUnhealthy, fmt.Sprintf("certificate expired at %s", notAfter.Format(time.RFC3339))
	}
	if remaining <= c.margin {
		return StatusDegraded, fmt.Sprintf("certificate expires in %s", remaining.Round(time.Hour))
	}
	return StatusHealthy, ""
}
