package archive

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"

	"sfex/internal/config"
	"sfex/pkg/circuitbreaker"
)

// CircuitBreakerRepository shields the pipeline from a struggling
// archive store: once the breaker opens, saves fail fast and the
// message is requeued instead of piling up on a dead database.
type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerRepository(repo Repository, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	if !cfg.Enabled {
		return &CircuitBreakerRepository{
			repo: repo,
			cb:   nil,
		}
	}

	cbConfig := circuitbreaker.DefaultConfig("mongo-archive")
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.MinRequests) {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}

	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.NewWrapper(cbConfig),
	}
}

func (r *CircuitBreakerRepository) Save(ctx context.Context, file ArchivedFile) error {
	if r.cb == nil {
		return r.repo.Save(ctx, file)
	}

	_, err := r.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, r.repo.Save(ctx, file)
	})

	r.cb.RecordRequest(err == nil)

	if err != nil {
		if r.cb.IsOpen() {
			return fmt.Errorf("circuit breaker is open for mongo-archive: %w", err)
		}
		return err
	}

	return nil
}

func (r *CircuitBreakerRepository) Get(ctx context.Context, fileID string) (*ArchivedFile, error) {
	if r.cb == nil {
		return r.repo.Get(ctx, fileID)
	}

	result, err := r.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return r.repo.Get(ctx, fileID)
	})

	r.cb.RecordRequest(err == nil)

	if err != nil {
		if r.cb.IsOpen() {
			return nil, fmt.Errorf("circuit breaker is open for mongo-archive: %w", err)
		}
		return nil, err
	}

	file, ok := result.(*ArchivedFile)
	if !ok {
		return nil, fmt.Errorf("repository returned invalid result type")
	}
	return file, nil
}

func (r *CircuitBreakerRepository) CountByVendor(ctx context.Context, vendorID string) (int64, error) {
	if r.cb == nil {
		return r.repo.CountByVendor(ctx, vendorID)
	}

	result, err := r.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return r.repo.CountByVendor(ctx, vendorID)
	})

	r.cb.RecordRequest(err == nil)

	if err != nil {
		if r.cb.IsOpen() {
			return 0, fmt.Errorf("circuit breaker is open for mongo-archive: %w", err)
		}
		return 0, err
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("repository returned invalid result type")
	}
	return count, nil
}

func (r *CircuitBreakerRepository) State() string {
	if r.cb == nil {
		return "disabled"
	}
	return r.cb.State().String()
}

func (r *CircuitBreakerRepository) IsOpen() bool {
	if r.cb == nil {
		return false
	}
	return r.cb.IsOpen()
}
