package natsclient

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
}

func TestNewClientOptions(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithMaxReconnects(3),
		WithReconnectWait(time.Second),
		WithTimeout(2*time.Second),
		WithClientName("test-client"),
		WithToken("secret"),
		WithLogger(&SlogAdapter{L: slog.New(slog.NewTextHandler(io.Discard, nil))}),
	)
	require.NoError(t, err)
	assert.Equal(t, 3, client.maxReconnects)
	assert.Equal(t, time.Second, client.reconnectWait)
	assert.Equal(t, "test-client", client.clientName)
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	client, err := NewClient("nats://invalid:4222")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		client.recordFailure()
	}
	assert.NotEqual(t, StatusCircuitOpen, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(5), client.Failures())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, int32(0), client.Failures())
	assert.NotEqual(t, StatusCircuitOpen, client.Status())
}

func TestCircuitBreaker_BackoffGrowsAndCaps(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, time.Second, client.backoff.Load().(time.Duration))

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 2*time.Second, client.backoff.Load().(time.Duration))

	for round := 0; round < 20; round++ {
		for i := 0; i < 5; i++ {
			client.recordFailure()
		}
	}
	assert.LessOrEqual(t, client.backoff.Load().(time.Duration), time.Minute)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "circuit_open", StatusCircuitOpen.String())
	assert.Equal(t, "unknown", ConnectionStatus(99).String())
}

func TestOperationsRequireConnection(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.CreateStream(ctx, jetstream.StreamConfig{Name: "S"})
	assert.ErrorIs(t, err, ErrNotConnected)

	err = client.PublishToStream(ctx, "subject", nil)
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "B"})
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.GetKeyValueBucket(ctx, "B")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestWaitForConnectionTimesOut(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, client.WaitForConnection(ctx))
}

func TestCloseIsIdempotent(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, client.Close(ctx))
	assert.NoError(t, client.Close(ctx))
}

func TestIsAlreadyExistsError(t *testing.T) {
	assert.False(t, isAlreadyExistsError(nil))
	assert.True(t, isAlreadyExistsError(jetstream.ErrBucketExists))
	assert.True(t, isAlreadyExistsError(nats.ErrStreamNameAlreadyInUse))
	assert.False(t, isAlreadyExistsError(context.DeadlineExceeded))
}

func TestIsKVNotFoundError(t *testing.T) {
	assert.False(t, IsKVNotFoundError(nil))
	assert.True(t, IsKVNotFoundError(ErrKVKeyNotFound))
	assert.True(t, IsKVNotFoundError(jetstream.ErrKeyNotFound))
	assert.False(t, IsKVNotFoundError(context.Canceled))
}
