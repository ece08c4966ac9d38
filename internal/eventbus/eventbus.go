package eventbus

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/isqad/livelook-meet/internal/core"
	"github.com/isqad/livelook-meet/internal/eventbus/rpc"
)

type Channel string

const (
	ClientMessages Channel = "client_messages"
)

func (c Channel) buildChannel(id core.ParticipantID) string {
	return string(c) + ":" + string(id)
}

// Publisher delivers a message to whichever relay node holds the participant's socket
type Publisher interface {
	PublishClient(id core.ParticipantID, r rpc.Rpc) error
}

type Subscriber interface {
	SubscribeClient(id core.ParticipantID) (RedisBus, error)
}

type RedisBus interface {
	Channel() <-chan *redis.Message
	Close() error
}

type Eventbus struct {
	rdb *redis.Client
}

// RedisPubSub is factory for building Eventbus based on redis pubsub
func RedisPubSub(rdb *redis.Client) *Eventbus {
	return &Eventbus{rdb: rdb}
}

func (e *Eventbus) PublishClient(id core.ParticipantID, r rpc.Rpc) error {
	msg, err := r.ToJSON()
	if err != nil {
		return err
	}
	return e.rdb.Publish(context.Background(), ClientMessages.buildChannel(id), msg).Err()
}

func (e *Eventbus) SubscribeClient(id core.ParticipantID) (RedisBus, error) {
	ctx := context.Background()
	pubsub := e.rdb.Subscribe(ctx, ClientMessages.buildChannel(id))
	// Wait until subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	return &UserSubscription{ParticipantID: id, pubsub: pubsub}, nil
}
