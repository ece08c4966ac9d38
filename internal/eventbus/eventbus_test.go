package eventbus

import (
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isqad/livelook-meet/internal/eventbus/rpc"
)

func TestMemory(t *testing.T) {
	bus := NewMemory()

	sub, err := bus.SubscribeClient("a")
	require.Nil(t, err)

	_, err = bus.SubscribeClient("a")
	assert.NotNil(t, err)

	assert.Nil(t, bus.PublishClient("a", rpc.NewUserLeftRpc("b")))
	assert.Nil(t, bus.PublishClient("nobody", rpc.NewUserLeftRpc("b")))

	msg := <-sub.Channel()
	assert.Equal(t, "client_messages:a", msg.Channel)
	assert.Contains(t, msg.Payload, `"user-left"`)

	assert.Nil(t, sub.Close())
	assert.Nil(t, sub.Close())

	_, ok := <-sub.Channel()
	assert.False(t, ok)

	// the id is free again once the subscription is gone
	sub, err = bus.SubscribeClient("a")
	require.Nil(t, err)
	sub.Close()
}

func TestMemoryDropsWhenBufferIsFull(t *testing.T) {
	bus := NewMemory()

	sub, err := bus.SubscribeClient("a")
	require.Nil(t, err)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < memoryBusBuffer+50; i++ {
			assert.Nil(t, bus.PublishClient("a", rpc.NewUserLeftRpc("b")))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full buffer")
	}
	assert.Len(t, sub.Channel(), memoryBusBuffer)
}

func TestRedisPubSub(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	bus := RedisPubSub(rdb)

	sub, err := bus.SubscribeClient("a")
	require.Nil(t, err)
	defer sub.Close()

	assert.Nil(t, bus.PublishClient("a", rpc.NewUserJoinedRpc("b", "Bob")))
	assert.Nil(t, bus.PublishClient("nobody", rpc.NewUserLeftRpc("b")))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "client_messages:a", msg.Channel)

		received, err := rpc.RpcFromReader(strings.NewReader(msg.Payload))
		require.Nil(t, err)
		assert.Equal(t, rpc.NewUserJoinedRpc("b", "Bob"), received)
	case <-time.After(2 * time.Second):
		t.Fatal("no message on the client channel")
	}
}
