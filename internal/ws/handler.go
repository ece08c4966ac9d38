package ws

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/isqad/melody"
	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-meet/internal/core"
	"github.com/isqad/livelook-meet/internal/eventbus"
	"github.com/isqad/livelook-meet/internal/eventbus/rpc"
	"github.com/isqad/livelook-meet/internal/relay"
)

const (
	wsParticipantSessionKey  = "participantID"
	wsSubscriptionSessionKey = "subscription"
)

// WsHandler gives every socket a fresh participant id and subscribes it to
// its client channel before the upgrade, so nothing published after the
// connect handler runs is lost
func WsHandler(subscriber eventbus.Subscriber, websocket *melody.Melody) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := core.ParticipantID(uuid.NewString())

		subscription, err := subscriber.SubscribeClient(id)
		if err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("can't subscribe the participant to signaling channel")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		keys := make(map[string]interface{})
		keys[wsParticipantSessionKey] = id
		keys[wsSubscriptionSessionKey] = subscription

		if err := websocket.HandleRequestWithKeys(w, r, keys); err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("can't handle request")
			subscription.Close()
		}
	}
}

func ConnectHandler(hub *relay.Hub) func(session *melody.Session) {
	return func(session *melody.Session) {
		id, subscription, err := sessionKeys(session)
		if err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("extract session keys")
			session.Close()
			return
		}

		hub.Connected(id)

		go func() {
			for msg := range subscription.Channel() {
				if err := session.Write([]byte(msg.Payload)); err != nil {
					// there's only session closed error can be
					log.Debug().Err(err).Str("service", "ws").Str("participantID", string(id)).Msg("write to closed session")
					return
				}
			}
		}()
	}
}

func DisconnectHandler(hub *relay.Hub) func(session *melody.Session) {
	return func(session *melody.Session) {
		id, subscription, err := sessionKeys(session)
		if err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("extract session keys")
			return
		}

		// closed before the leave so publishes to this socket stop first
		if err := subscription.Close(); err != nil {
			log.Error().Err(err).Str("service", "ws").Str("participantID", string(id)).Msg("close subscription")
		}

		hub.Disconnected(context.Background(), id)
	}
}

func HandleMessage(hub *relay.Hub) func(s *melody.Session, msg []byte) {
	return func(s *melody.Session, msg []byte) {
		id, _, err := sessionKeys(s)
		if err != nil {
			log.Error().Err(err).Str("service", "ws").Msg("extract session keys")
			s.Close()
			return
		}

		message, err := rpc.RpcFromReader(bytes.NewReader(msg))
		if err != nil {
			log.Warn().Err(err).Str("service", "ws").Str("participantID", string(id)).Msg("rpc parse error")
			return
		}

		if err := hub.Handle(context.Background(), id, message); err != nil {
			log.Warn().
				Err(err).
				Str("service", "ws").
				Str("participantID", string(id)).
				Str("method", string(message.GetMethod())).
				Msg("handle rpc")
		}
	}
}

func sessionKeys(s *melody.Session) (core.ParticipantID, eventbus.RedisBus, error) {
	rawID, ok := s.Keys[wsParticipantSessionKey]
	if !ok {
		return "", nil, fmt.Errorf("no participant for given session: %+v", s)
	}
	id, ok := rawID.(core.ParticipantID)
	if !ok {
		return "", nil, fmt.Errorf("can't convert participant id: %+v", rawID)
	}

	rawSub, ok := s.Keys[wsSubscriptionSessionKey]
	if !ok {
		return "", nil, fmt.Errorf("no subscription for given session: %+v", s)
	}
	subscription, ok := rawSub.(eventbus.RedisBus)
	if !ok {
		return "", nil, fmt.Errorf("can't convert subscription: %+v", rawSub)
	}

	return id, subscription, nil
}
