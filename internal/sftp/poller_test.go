package sftp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfex/internal/config"
	"sfex/internal/logger"
	"sfex/internal/vendors"
	"sfex/pkg/models"
)

type fakeRemoteClient struct {
	files   map[string][]byte
	removed []string
	listErr error
}

func (f *fakeRemoteClient) List(_, _ string) ([]RemoteFile, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]RemoteFile, 0, len(f.files))
	for name, content := range f.files {
		out = append(out, RemoteFile{Name: name, Size: int64(len(content))})
	}
	return out, nil
}

func (f *fakeRemoteClient) Download(remotePath string, w io.Writer) (int64, error) {
	content, ok := f.files[filepath.Base(remotePath)]
	if !ok {
		return 0, errors.New("no such file")
	}
	n, err := w.Write(content)
	return int64(n), err
}

func (f *fakeRemoteClient) Remove(remotePath string) error {
	f.removed = append(f.removed, remotePath)
	return nil
}

func (f *fakeRemoteClient) Close() error { return nil }

type fakeProducer struct {
	published  []publishedMessage
	publishErr error
}

type publishedMessage struct {
	queue         string
	body          []byte
	correlationID string
}

func (f *fakeProducer) Publish(_ context.Context, queue string, body []byte, correlationID string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedMessage{queue: queue, body: body, correlationID: correlationID})
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func pollableProfile() vendors.Profile {
	return vendors.Profile{
		ID:     "acme",
		Active: true,
		SFTP: vendors.SFTPSettings{
			Host:                "sftp.acme.example",
			RemoteDirectory:     "/outbox",
			PollIntervalSeconds: 60,
			DeleteAfterDownload: true,
		},
	}
}

func newTestPoller(t *testing.T, remote *fakeRemoteClient, producer *fakeProducer) *Poller {
	t.Helper()
	store, err := vendors.NewStore([]vendors.Profile{pollableProfile()})
	require.NoError(t, err)

	dial := func(_ vendors.SFTPSettings) (RemoteClient, error) {
		return remote, nil
	}

	return NewPoller(store, producer, dial, config.IngestionConfig{
		DownloadDirectory: t.TempDir(),
	}, logger.NopLogger())
}

func TestPollVendorIngestsFiles(t *testing.T) {
	content := []byte("Id,Amount\n1,100\n")
	remote := &fakeRemoteClient{files: map[string][]byte{"orders.csv": content}}
	producer := &fakeProducer{}
	poller := newTestPoller(t, remote, producer)

	err := poller.pollVendor(context.Background(), pollableProfile())
	require.NoError(t, err)
	require.Len(t, producer.published, 1)

	msg := producer.published[0]
	assert.Equal(t, "file.received", msg.queue)
	assert.NotEmpty(t, msg.correlationID)

	var event models.FileArrivalEvent
	require.NoError(t, json.Unmarshal(msg.body, &event))
	assert.Equal(t, "acme", event.VendorID)
	assert.Equal(t, int64(len(content)), event.SizeBytes)
	assert.Equal(t, msg.correlationID, event.CorrelationID)

	wantHash := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(wantHash[:]), event.ContentHash)

	// Local copy holds the exact remote bytes.
	local, err := os.ReadFile(event.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, content, local)

	// Remote copy removed only after successful publish.
	assert.Equal(t, []string{"/outbox/orders.csv"}, remote.removed)
}

func TestPollVendorKeepsRemoteOnPublishFailure(t *testing.T) {
	remote := &fakeRemoteClient{files: map[string][]byte{"orders.csv": []byte("x")}}
	producer := &fakeProducer{publishErr: errors.New("broker down")}
	poller := newTestPoller(t, remote, producer)

	err := poller.pollVendor(context.Background(), pollableProfile())
	require.NoError(t, err, "per-file failures do not abort the cycle")
	assert.Empty(t, producer.published)
	assert.Empty(t, remote.removed, "remote file survives so the next poll retries it")
}

func TestPollDueHonorsVendorInterval(t *testing.T) {
	remote := &fakeRemoteClient{files: map[string][]byte{"orders.csv": []byte("x")}}
	producer := &fakeProducer{}
	poller := newTestPoller(t, remote, producer)

	now := time.Now()
	poller.pollDue(context.Background(), now)
	require.Len(t, producer.published, 1)

	// 30s later: the 60s interval has not elapsed.
	poller.pollDue(context.Background(), now.Add(30*time.Second))
	assert.Len(t, producer.published, 1)

	poller.pollDue(context.Background(), now.Add(61*time.Second))
	assert.Len(t, producer.published, 2)
}

func TestPollDueSkipsDialFailure(t *testing.T) {
	store, err := vendors.NewStore([]vendors.Profile{pollableProfile()})
	require.NoError(t, err)

	dial := func(_ vendors.SFTPSettings) (RemoteClient, error) {
		return nil, errors.New("connection refused")
	}
	producer := &fakeProducer{}
	poller := NewPoller(store, producer, dial, config.IngestionConfig{DownloadDirectory: t.TempDir()}, logger.NopLogger())

	poller.pollDue(context.Background(), time.Now())
	assert.Empty(t, producer.published)
}
