package rtc

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/isqad/livelook-meet/internal/core"
)

var errNoSender = errors.New("no sender for track kind")

// PeerConnectionEntry is the session's record of one remote participant's
// connection. Connection calls are serialised by the entry lock.
type PeerConnectionEntry struct {
	ID          core.ParticipantID
	DisplayName string
	Role        Role

	mu         sync.Mutex
	conn       Connection
	state      NegotiationState
	connState  webrtc.PeerConnectionState
	candidates *PendingCandidateQueue
	senders    map[webrtc.RTPCodecType]Sender

	closed atomic.Bool
}

func newPeerConnectionEntry(id core.ParticipantID, displayName string, role Role, conn Connection) *PeerConnectionEntry {
	return &PeerConnectionEntry{
		ID:          id,
		DisplayName: displayName,
		Role:        role,
		conn:        conn,
		state:       StateIdle,
		connState:   webrtc.PeerConnectionStateNew,
		candidates:  NewPendingCandidateQueue(),
		senders:     make(map[webrtc.RTPCodecType]Sender),
	}
}

func (e *PeerConnectionEntry) State() NegotiationState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

func (e *PeerConnectionEntry) ConnectionState() webrtc.PeerConnectionState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.connState
}

// Stats is false for connections that don't count received media
func (e *PeerConnectionEntry) Stats() (RemoteTrackStats, bool) {
	r, ok := e.conn.(statsReporter)
	if !ok {
		return RemoteTrackStats{}, false
	}
	return r.Stats(), true
}

func (e *PeerConnectionEntry) IsClosed() bool {
	return e.closed.Load()
}

func (e *PeerConnectionEntry) PendingCandidates() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.candidates.Len()
}

func (e *PeerConnectionEntry) setConnectionState(s webrtc.PeerConnectionState) {
	e.mu.Lock()
	e.connState = s
	e.mu.Unlock()
}

func (e *PeerConnectionEntry) transition(ev NegotiationEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.transitionLocked(ev)
}

func (e *PeerConnectionEntry) transitionLocked(ev NegotiationEvent) error {
	next, err := Transition(e.state, ev)
	if err != nil {
		return err
	}
	e.state = next
	return nil
}

func (e *PeerConnectionEntry) addSender(kind webrtc.RTPCodecType, s Sender) {
	e.mu.Lock()
	e.senders[kind] = s
	e.mu.Unlock()
}

// AddCandidate applies a remote candidate, or queues it while there is no
// remote description yet
func (e *PeerConnectionEntry) AddCandidate(c webrtc.ICECandidateInit) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return nil
	}
	if e.conn.RemoteDescription() == nil {
		e.candidates.Push(c)
		return nil
	}
	return e.conn.AddICECandidate(c)
}

func (e *PeerConnectionEntry) enqueueCandidates(q *PendingCandidateQueue) {
	e.mu.Lock()
	q.MoveTo(e.candidates)
	e.mu.Unlock()
}

// CreateOffer sets and returns the local offer and moves to offer-sent
func (e *PeerConnectionEntry) CreateOffer() (webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := Transition(e.state, EventSendOffer); err != nil {
		return webrtc.SessionDescription{}, err
	}

	offer, err := e.conn.CreateOffer()
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := e.conn.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}

	return offer, e.transitionLocked(EventSendOffer)
}

// AcceptOffer applies a remote offer, drains queued candidates and returns
// the local answer. The entry ends in answer-sent.
func (e *PeerConnectionEntry) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.transitionLocked(EventReceiveOffer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := e.conn.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	e.drainLocked()

	answer, err := e.conn.CreateAnswer()
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := e.conn.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}

	return answer, e.transitionLocked(EventSendAnswer)
}

// Complete marks the answer as delivered
func (e *PeerConnectionEntry) Complete() error {
	return e.transition(EventComplete)
}

// AcceptAnswer applies the remote answer to our offer
func (e *PeerConnectionEntry) AcceptAnswer(answer webrtc.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := Transition(e.state, EventReceiveAnswer); err != nil {
		return err
	}
	if err := validateAnswer(answer, e.conn.LocalDescription()); err != nil {
		return err
	}
	if err := e.conn.SetRemoteDescription(answer); err != nil {
		return err
	}
	e.drainLocked()

	return e.transitionLocked(EventReceiveAnswer)
}

func (e *PeerConnectionEntry) drainLocked() {
	n := e.candidates.Drain(e.conn.AddICECandidate)
	if n > 0 {
		log.Debug().Str("service", "entry").Str("participantID", string(e.ID)).Int("candidates", n).Msg("applied queued candidates")
	}
}

// ReplaceTrack swaps the sending track of the track's kind, no renegotiation
func (e *PeerConnectionEntry) ReplaceTrack(track webrtc.TrackLocal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return nil
	}
	sender, ok := e.senders[track.Kind()]
	if !ok {
		return errNoSender
	}
	return sender.ReplaceTrack(track)
}

// Close tears the connection down, it's safe to call more than once
func (e *PeerConnectionEntry) Close() error {
	if !e.closed.CAS(false, true) {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	_ = e.transitionLocked(EventClose)
	e.candidates = NewPendingCandidateQueue()

	return e.conn.Close()
}

// fail closes the entry after a negotiation error
func (e *PeerConnectionEntry) fail(err error) {
	log.Error().Err(err).Str("service", "entry").Str("participantID", string(e.ID)).Msg("negotiation failed")

	if !e.closed.CAS(false, true) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	_ = e.transitionLocked(EventFail)
	e.candidates = NewPendingCandidateQueue()

	if err := e.conn.Close(); err != nil {
		log.Warn().Err(err).Str("service", "entry").Str("participantID", string(e.ID)).Msg("close failed")
	}
}
