package rtc

import (
	"errors"
	"fmt"
)

var ErrIllegalTransition = errors.New("illegal negotiation transition")

type NegotiationState string

const (
	StateIdle          NegotiationState = "idle"
	StateOfferSent     NegotiationState = "offer-sent"
	StateOfferReceived NegotiationState = "offer-received"
	StateAnswerSent    NegotiationState = "answer-sent"
	StateStable        NegotiationState = "stable"
	StateClosed        NegotiationState = "closed"
)

type NegotiationEvent string

const (
	EventSendOffer     NegotiationEvent = "send-offer"
	EventReceiveOffer  NegotiationEvent = "receive-offer"
	EventSendAnswer    NegotiationEvent = "send-answer"
	EventReceiveAnswer NegotiationEvent = "receive-answer"
	EventComplete      NegotiationEvent = "complete"
	EventClose         NegotiationEvent = "close"
	EventFail          NegotiationEvent = "fail"
)

// Role is decided once per pair by join order: the later joiner offers
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

type transitionKey struct {
	from  NegotiationState
	event NegotiationEvent
}

var transitions = map[transitionKey]NegotiationState{
	{StateIdle, EventSendOffer}:           StateOfferSent,
	{StateIdle, EventReceiveOffer}:        StateOfferReceived,
	{StateOfferReceived, EventSendAnswer}: StateAnswerSent,
	{StateAnswerSent, EventComplete}:      StateStable,
	{StateOfferSent, EventReceiveAnswer}:  StateStable,
}

// Transition returns the state reached from s on e. The state is returned
// unchanged together with ErrIllegalTransition when e is not allowed in s.
func Transition(s NegotiationState, e NegotiationEvent) (NegotiationState, error) {
	if s == StateClosed {
		return s, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, e, s)
	}
	if e == EventClose || e == EventFail {
		return StateClosed, nil
	}
	next, ok := transitions[transitionKey{s, e}]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, e, s)
	}
	return next, nil
}
