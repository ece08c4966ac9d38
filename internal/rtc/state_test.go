package rtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	states := []NegotiationState{StateIdle, StateOfferSent, StateOfferReceived, StateAnswerSent, StateStable, StateClosed}
	events := []NegotiationEvent{EventSendOffer, EventReceiveOffer, EventSendAnswer, EventReceiveAnswer, EventComplete, EventClose, EventFail}

	legal := map[NegotiationState]map[NegotiationEvent]NegotiationState{
		StateIdle: {
			EventSendOffer:    StateOfferSent,
			EventReceiveOffer: StateOfferReceived,
		},
		StateOfferReceived: {EventSendAnswer: StateAnswerSent},
		StateAnswerSent:    {EventComplete: StateStable},
		StateOfferSent:     {EventReceiveAnswer: StateStable},
	}

	for _, s := range states {
		for _, e := range events {
			next, err := Transition(s, e)

			switch {
			case s == StateClosed:
				assert.ErrorIs(t, err, ErrIllegalTransition, "%s on %s", e, s)
				assert.Equal(t, StateClosed, next)
			case e == EventClose || e == EventFail:
				assert.Nil(t, err, "%s on %s", e, s)
				assert.Equal(t, StateClosed, next)
			default:
				want, ok := legal[s][e]
				if ok {
					assert.Nil(t, err, "%s on %s", e, s)
					assert.Equal(t, want, next, "%s on %s", e, s)
				} else {
					assert.ErrorIs(t, err, ErrIllegalTransition, "%s on %s", e, s)
					assert.Equal(t, s, next, "%s on %s", e, s)
				}
			}
		}
	}
}

func TestTransitionPaths(t *testing.T) {
	s := StateIdle
	for _, e := range []NegotiationEvent{EventSendOffer, EventReceiveAnswer} {
		var err error
		s, err = Transition(s, e)
		assert.Nil(t, err)
	}
	assert.Equal(t, StateStable, s)

	s = StateIdle
	for _, e := range []NegotiationEvent{EventReceiveOffer, EventSendAnswer, EventComplete} {
		var err error
		s, err = Transition(s, e)
		assert.Nil(t, err)
	}
	assert.Equal(t, StateStable, s)

	_, err := Transition(StateStable, EventSendOffer)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}
