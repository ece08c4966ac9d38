package eventbus

import (
	"bytes"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-meet/internal/eventbus/rpc"
)

var (
	errConvertRpc      = errors.New("can't convert rpc")
	errUndefinedMethod = errors.New("undefined method")
)

// Router dispatches the relay's messages to the client's callbacks.
// Callbacks run on the router goroutine one at a time.
type Router struct {
	messages <-chan []byte
	started  chan struct{}
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	onJoined               func(*rpc.JoinedRpc) error
	onExistingParticipants func(*rpc.ExistingParticipantsRpc) error
	onUserJoined           func(*rpc.UserJoinedRpc) error
	onOffer                func(*rpc.SDPRpc) error
	onAnswer               func(*rpc.SDPRpc) error
	onICECandidate         func(*rpc.ICECandidateRpc) error
	onUserLeft             func(*rpc.UserLeftRpc) error
}

func NewRouter(messages <-chan []byte) *Router {
	return &Router{
		messages: messages,
		started:  make(chan struct{}),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start runs the dispatch loop until Stop is called or messages is closed
func (router *Router) Start() <-chan struct{} {
	log.Debug().Str("service", "router").Msg("start")

	go func() {
		defer close(router.stopped)
		close(router.started)

		for {
			select {
			case <-router.stop:
				return
			case payload, ok := <-router.messages:
				if !ok {
					return
				}
				router.dispatch(payload)
			}
		}
	}()

	return router.started
}

func (router *Router) Stop() <-chan struct{} {
	router.stopOnce.Do(func() { close(router.stop) })
	return router.stopped
}

// Done is closed when the dispatch loop exits
func (router *Router) Done() <-chan struct{} {
	return router.stopped
}

func (router *Router) dispatch(payload []byte) {
	r, err := rpc.RpcFromReader(bytes.NewReader(payload))
	if err != nil {
		log.Error().Err(err).Str("service", "router").Msg("")
		return
	}

	switch r.GetMethod() {
	case rpc.JoinedMethod:
		msg, ok := r.(*rpc.JoinedRpc)
		if !ok {
			log.Error().Err(errConvertRpc).Str("service", "router").Msg("")
			return
		}
		router.call(r.GetMethod(), router.onJoined != nil, func() error { return router.onJoined(msg) })
	case rpc.ExistingParticipantsMethod:
		msg, ok := r.(*rpc.ExistingParticipantsRpc)
		if !ok {
			log.Error().Err(errConvertRpc).Str("service", "router").Msg("")
			return
		}
		router.call(r.GetMethod(), router.onExistingParticipants != nil, func() error { return router.onExistingParticipants(msg) })
	case rpc.UserJoinedMethod:
		msg, ok := r.(*rpc.UserJoinedRpc)
		if !ok {
			log.Error().Err(errConvertRpc).Str("service", "router").Msg("")
			return
		}
		router.call(r.GetMethod(), router.onUserJoined != nil, func() error { return router.onUserJoined(msg) })
	case rpc.OfferMethod:
		msg, ok := r.(*rpc.SDPRpc)
		if !ok {
			log.Error().Err(errConvertRpc).Str("service", "router").Msg("")
			return
		}
		router.call(r.GetMethod(), router.onOffer != nil, func() error { return router.onOffer(msg) })
	case rpc.AnswerMethod:
		msg, ok := r.(*rpc.SDPRpc)
		if !ok {
			log.Error().Err(errConvertRpc).Str("service", "router").Msg("")
			return
		}
		router.call(r.GetMethod(), router.onAnswer != nil, func() error { return router.onAnswer(msg) })
	case rpc.ICECandidateMethod:
		msg, ok := r.(*rpc.ICECandidateRpc)
		if !ok {
			log.Error().Err(errConvertRpc).Str("service", "router").Msg("")
			return
		}
		router.call(r.GetMethod(), router.onICECandidate != nil, func() error { return router.onICECandidate(msg) })
	case rpc.UserLeftMethod:
		msg, ok := r.(*rpc.UserLeftRpc)
		if !ok {
			log.Error().Err(errConvertRpc).Str("service", "router").Msg("")
			return
		}
		router.call(r.GetMethod(), router.onUserLeft != nil, func() error { return router.onUserLeft(msg) })
	default:
		log.Error().Err(errUndefinedMethod).Str("rpcMethod", string(r.GetMethod())).Str("service", "router").Msg("")
	}
}

func (router *Router) call(method rpc.Method, registered bool, callback func() error) {
	if !registered {
		log.Debug().Str("rpcMethod", string(method)).Str("service", "router").Msg("no callback")
		return
	}
	if err := callback(); err != nil {
		log.Error().Err(err).Str("rpcMethod", string(method)).Str("service", "router").Msg("callback error")
	}
}

func (router *Router) OnJoined(callback func(*rpc.JoinedRpc) error) {
	router.onJoined = callback
}

func (router *Router) OnExistingParticipants(callback func(*rpc.ExistingParticipantsRpc) error) {
	router.onExistingParticipants = callback
}

func (router *Router) OnUserJoined(callback func(*rpc.UserJoinedRpc) error) {
	router.onUserJoined = callback
}

func (router *Router) OnOffer(callback func(*rpc.SDPRpc) error) {
	router.onOffer = callback
}

func (router *Router) OnAnswer(callback func(*rpc.SDPRpc) error) {
	router.onAnswer = callback
}

func (router *Router) OnICECandidate(callback func(*rpc.ICECandidateRpc) error) {
	router.onICECandidate = callback
}

func (router *Router) OnUserLeft(callback func(*rpc.UserLeftRpc) error) {
	router.onUserLeft = callback
}
