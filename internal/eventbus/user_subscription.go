package eventbus

import (
	"github.com/go-redis/redis/v8"

	"github.com/isqad/livelook-meet/internal/core"
)

// UserSubscription is a participant's client channel subscription
type UserSubscription struct {
	ParticipantID core.ParticipantID
	pubsub        *redis.PubSub
}

func (s *UserSubscription) Channel() <-chan *redis.Message {
	return s.pubsub.Channel()
}

func (s *UserSubscription) Close() error {
	return s.pubsub.Close()
}
