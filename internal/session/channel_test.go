package session

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioChannelPreservesOrder(t *testing.T) {
	ch := NewAudioChannel()
	chunks := [][]byte{{1}, {2, 2}, {3, 3, 3}}
	for _, c := range chunks {
		require.NoError(t, ch.Write(c))
	}

	ctx := context.Background()
	for _, want := range chunks {
		got, err := ch.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAudioChannelWriteNeverBlocks(t *testing.T) {
	ch := NewAudioChannel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			if err := ch.Write([]byte{byte(i)}); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writes blocked without a consumer")
	}
	assert.Equal(t, 10000, ch.Len())
}

func TestAudioChannelWriteAfterClose(t *testing.T) {
	ch := NewAudioChannel()
	ch.Close()
	assert.ErrorIs(t, ch.Write([]byte{1}), ErrChannelClosed)
}

func TestAudioChannelDrainsBeforeEOF(t *testing.T) {
	ch := NewAudioChannel()
	require.NoError(t, ch.Write([]byte{1}))
	require.NoError(t, ch.Write([]byte{2}))
	ch.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := ch.Read(ctx)
		require.NoError(t, err)
	}
	_, err := ch.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestAudioChannelCloseIdempotent(t *testing.T) {
	ch := NewAudioChannel()
	ch.Close()
	ch.Close()
	_, err := ch.Read(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestAudioChannelReadHonorsContext(t *testing.T) {
	ch := NewAudioChannel()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := ch.Read(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not return after cancellation")
	}
}

func TestAudioChannelReadWakesOnWrite(t *testing.T) {
	ch := NewAudioChannel()
	got := make(chan []byte, 1)
	go func() {
		chunk, err := ch.Read(context.Background())
		if err == nil {
			got <- chunk
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, ch.Write([]byte{7}))

	select {
	case chunk := <-got:
		assert.Equal(t, []byte{7}, chunk)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked reader never woke")
	}
}

func TestBeginDrainClaimsSingleConsumer(t *testing.T) {
	ch := NewAudioChannel()
	assert.True(t, ch.BeginDrain())
	assert.False(t, ch.BeginDrain())
}
