package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeBus_SendRecvFIFO(t *testing.T) {
	f := NewFakeBus()
	ctx := context.Background()

	require.NoError(t, f.Send(ctx, []byte("k1"), []byte("v1")))
	require.NoError(t, f.Send(ctx, []byte("k2"), []byte("v2")))

	msg, ok, err := f.Recv(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(msg.Value))
	require.NoError(t, msg.Commit(ctx))

	msg, ok, err = f.Recv(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", string(msg.Value))
}

func TestFakeBus_RecvRespectsContextCancellation(t *testing.T) {
	f := NewFakeBus()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok, err := f.Recv(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFakeBus_CloseUnblocksRecv(t *testing.T) {
	f := NewFakeBus()
	done := make(chan struct{})
	go func() {
		_, ok, err := f.Recv(context.Background())
		assert.NoError(t, err)
		assert.False(t, ok)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, f.Close())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}
