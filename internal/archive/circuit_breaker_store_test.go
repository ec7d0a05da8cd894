package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfex/internal/config"
)

type fakeRepository struct {
	saveErr error
	saved   []ArchivedFile
	files   map[string]*ArchivedFile
}

func (f *fakeRepository) Save(_ context.Context, file ArchivedFile) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, file)
	return nil
}

func (f *fakeRepository) Get(_ context.Context, fileID string) (*ArchivedFile, error) {
	return f.files[fileID], nil
}

func (f *fakeRepository) CountByVendor(_ context.Context, _ string) (int64, error) {
	return int64(len(f.saved)), nil
}

func TestCircuitBreakerDisabledPassesThrough(t *testing.T) {
	repo := &fakeRepository{}
	cb := NewCircuitBreakerRepository(repo, config.CircuitBreakerConfig{Enabled: false})

	err := cb.Save(context.Background(), ArchivedFile{FileID: "f-1"})
	require.NoError(t, err)
	assert.Len(t, repo.saved, 1)
	assert.Equal(t, "disabled", cb.State())
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	repo := &fakeRepository{saveErr: errors.New("mongo down")}
	cb := NewCircuitBreakerRepository(repo, config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	})

	for i := 0; i < 5; i++ {
		_ = cb.Save(context.Background(), ArchivedFile{FileID: "f-1"})
	}

	assert.True(t, cb.IsOpen())

	err := cb.Save(context.Background(), ArchivedFile{FileID: "f-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestCircuitBreakerGet(t *testing.T) {
	repo := &fakeRepository{files: map[string]*ArchivedFile{
		"f-1": {FileID: "f-1", VendorID: "acme"},
	}}
	cb := NewCircuitBreakerRepository(repo, config.CircuitBreakerConfig{Enabled: true})

	file, err := cb.Get(context.Background(), "f-1")
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Equal(t, "acme", file.VendorID)
}
