package eventbus

import (
	"errors"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-meet/internal/core"
	"github.com/isqad/livelook-meet/internal/eventbus/rpc"
)

const memoryBusBuffer = 256

var errAlreadySubscribed = errors.New("participant already subscribed")

// Memory is an in-process bus for a single relay node
type Memory struct {
	mu   sync.RWMutex
	subs map[core.ParticipantID]*memorySubscription
}

func NewMemory() *Memory {
	return &Memory{
		subs: make(map[core.ParticipantID]*memorySubscription),
	}
}

// PublishClient never blocks: messages for participants nobody listens to,
// or whose buffer is full, are dropped the same as redis does
func (m *Memory) PublishClient(id core.ParticipantID, r rpc.Rpc) error {
	payload, err := r.ToJSON()
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subs[id]
	if !ok {
		return nil
	}

	msg := &redis.Message{
		Channel: ClientMessages.buildChannel(id),
		Payload: string(payload),
	}
	select {
	case sub.messages <- msg:
	default:
		log.Warn().Str("service", "eventbus").Str("participantID", string(id)).Msg("client buffer is full, message dropped")
	}
	return nil
}

func (m *Memory) SubscribeClient(id core.ParticipantID) (RedisBus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subs[id]; ok {
		return nil, errAlreadySubscribed
	}

	sub := &memorySubscription{
		id:       id,
		bus:      m,
		messages: make(chan *redis.Message, memoryBusBuffer),
	}
	m.subs[id] = sub

	return sub, nil
}

type memorySubscription struct {
	id       core.ParticipantID
	bus      *Memory
	messages chan *redis.Message
	once     sync.Once
}

func (s *memorySubscription) Channel() <-chan *redis.Message {
	return s.messages
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		close(s.messages)
		s.bus.mu.Unlock()
	})
	return nil
}
