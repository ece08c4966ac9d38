package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/isqad/livelook-meet/internal/core"
	"github.com/isqad/livelook-meet/internal/eventbus"
	"github.com/isqad/livelook-meet/internal/eventbus/rpc"
	"github.com/isqad/livelook-meet/internal/telemetry"
)

const (
	inboxSize              = 256
	defaultDisconnectGrace = 10 * time.Second
)

type SessionParams struct {
	Signaler    Signaler
	Media       LocalMedia
	Factory     ConnectionFactory
	DisplayName string
	// DisconnectGrace is how long a disconnected peer may take to recover
	// before it's removed
	DisconnectGrace time.Duration
	// AnnounceMeeting sends meeting-started after joining
	AnnounceMeeting bool
}

type graceTimer struct {
	timer      *time.Timer
	generation uint64
}

// Session negotiates one peer connection per remote participant of a room.
// Signals and connection callbacks are queued and handled one at a time.
type Session struct {
	params   SessionParams
	registry *Registry

	inbox    chan Event
	done     chan struct{}
	doneOnce sync.Once

	localID atomic.String
	roomID  atomic.String
	left    atomic.Bool

	// handleMu serialises event handling with Leave
	handleMu   sync.Mutex
	early      map[core.ParticipantID]*PendingCandidateQueue
	grace      map[core.ParticipantID]*graceTimer
	generation uint64

	mu       sync.RWMutex
	roster   map[core.ParticipantID]*core.Participant
	order    []core.ParticipantID
	onChange func()
}

func NewSession(params SessionParams) *Session {
	if params.DisconnectGrace == 0 {
		params.DisconnectGrace = defaultDisconnectGrace
	}

	s := &Session{
		params: params,
		inbox:  make(chan Event, inboxSize),
		done:   make(chan struct{}),
		early:  make(map[core.ParticipantID]*PendingCandidateQueue),
		grace:  make(map[core.ParticipantID]*graceTimer),
		roster: make(map[core.ParticipantID]*core.Participant),
	}
	s.registry = NewRegistry(params.Media, params.Factory, s.post)

	return s
}

func (s *Session) Registry() *Registry {
	return s.registry
}

func (s *Session) LocalID() core.ParticipantID {
	return core.ParticipantID(s.localID.Load())
}

// OnChange is called after any roster or remote media change
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Participants returns the remote participants in join order
func (s *Session) Participants() []*core.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	participants := make([]*core.Participant, 0, len(s.order))
	for _, id := range s.order {
		participants = append(participants, s.roster[id].Clone())
	}
	return participants
}

// ConnectionStats reports received media for one remote participant
func (s *Session) ConnectionStats(id core.ParticipantID) (RemoteTrackStats, bool) {
	e := s.registry.Get(id)
	if e == nil {
		return RemoteTrackStats{}, false
	}
	return e.Stats()
}

// Deliver queues a message received from the relay
func (s *Session) Deliver(r rpc.Rpc) {
	s.post(Signal{Message: r})
}

// Route subscribes the session to every message the router dispatches
func (s *Session) Route(router *eventbus.Router) {
	router.OnJoined(func(m *rpc.JoinedRpc) error { s.Deliver(m); return nil })
	router.OnExistingParticipants(func(m *rpc.ExistingParticipantsRpc) error { s.Deliver(m); return nil })
	router.OnUserJoined(func(m *rpc.UserJoinedRpc) error { s.Deliver(m); return nil })
	router.OnOffer(func(m *rpc.SDPRpc) error { s.Deliver(m); return nil })
	router.OnAnswer(func(m *rpc.SDPRpc) error { s.Deliver(m); return nil })
	router.OnICECandidate(func(m *rpc.ICECandidateRpc) error { s.Deliver(m); return nil })
	router.OnUserLeft(func(m *rpc.UserLeftRpc) error { s.Deliver(m); return nil })
}

func (s *Session) post(ev Event) {
	select {
	case s.inbox <- ev:
	case <-s.done:
	}
}

// Run handles queued events until ctx is done
func (s *Session) Run(ctx context.Context) error {
	defer s.doneOnce.Do(func() { close(s.done) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.inbox:
			s.handle(ev)
		}
	}
}

func (s *Session) Join(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.handleMu.Lock()
	s.registry.ForgetRemoved()
	s.roomID.Store(roomID)
	s.left.Store(false)
	s.handleMu.Unlock()

	if err := s.params.Signaler.Send(rpc.NewJoinRoomRpc(roomID, s.params.DisplayName)); err != nil {
		return fmt.Errorf("could not join room %s: %w", roomID, err)
	}

	if s.params.AnnounceMeeting {
		if err := s.params.Signaler.Send(rpc.NewMeetingStartedRpc(roomID, s.params.DisplayName)); err != nil {
			log.Warn().Err(err).Str("service", "session").Msg("could not announce meeting")
		}
	}

	log.Info().Str("service", "session").Str("roomID", roomID).Msg("join requested")

	return nil
}

// Leave stops capture, closes every connection and tells the relay
func (s *Session) Leave() error {
	s.handleMu.Lock()
	s.left.Store(true)

	if s.params.Media != nil {
		s.params.Media.Stop()
	}
	s.registry.CloseAll()
	for id, g := range s.grace {
		g.timer.Stop()
		delete(s.grace, id)
	}
	s.early = make(map[core.ParticipantID]*PendingCandidateQueue)

	s.mu.Lock()
	s.roster = make(map[core.ParticipantID]*core.Participant)
	s.order = nil
	s.mu.Unlock()
	s.handleMu.Unlock()

	s.changed()

	log.Info().Str("service", "session").Str("roomID", s.roomID.Load()).Msg("left")

	return s.params.Signaler.Send(rpc.NewLeaveRoomRpc())
}

// ReplaceTracks swaps the outgoing tracks on every open connection
func (s *Session) ReplaceTracks(tracks []webrtc.TrackLocal) error {
	var errs []error

	s.registry.ForEach(func(e *PeerConnectionEntry) {
		for _, t := range tracks {
			if err := e.ReplaceTrack(t); err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", e.ID, t.Kind(), err))
			}
		}
	})

	return errors.Join(errs...)
}

func (s *Session) handle(ev Event) {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()

	if s.left.Load() {
		return
	}

	switch e := ev.(type) {
	case Signal:
		s.handleSignal(e.Message)
	case CandidateGenerated:
		s.handleLocalCandidate(e)
	case TrackReceived:
		s.handleTrack(e)
	case StateChanged:
		s.handleStateChange(e)
	case GraceExpired:
		s.handleGraceExpired(e)
	}
}

func (s *Session) handleSignal(msg rpc.Rpc) {
	switch m := msg.(type) {
	case *rpc.JoinedRpc:
		s.localID.Store(string(m.Params.ParticipantID))
		log.Debug().Str("service", "session").Str("participantID", string(m.Params.ParticipantID)).Msg("joined")
	case *rpc.ExistingParticipantsRpc:
		for _, p := range m.Params.Participants {
			s.connectTo(p.ID, p.DisplayName)
		}
	case *rpc.UserJoinedRpc:
		s.expect(m.Params.ParticipantID, m.Params.DisplayName)
	case *rpc.SDPRpc:
		if m.GetMethod() == rpc.OfferMethod {
			s.handleOffer(m)
		} else {
			s.handleAnswer(m)
		}
	case *rpc.ICECandidateRpc:
		s.handleRemoteCandidate(m)
	case *rpc.UserLeftRpc:
		s.removeParticipant(m.Params.ParticipantID, "user left")
	default:
		log.Warn().Str("service", "session").Str("rpcMethod", string(msg.GetMethod())).Msg("unexpected message")
	}
}

func (s *Session) isSelf(id core.ParticipantID) bool {
	return id == "" || id == s.LocalID()
}

func (s *Session) ensure(id core.ParticipantID, displayName string, role Role) (*PeerConnectionEntry, bool, error) {
	e, created, err := s.registry.Ensure(id, displayName, role)
	if err != nil {
		return nil, false, err
	}
	if created {
		if q, ok := s.early[id]; ok {
			e.enqueueCandidates(q)
			delete(s.early, id)
		}
	}
	return e, created, nil
}

// connectTo handles a participant already in the room: we joined later, we offer
func (s *Session) connectTo(id core.ParticipantID, displayName string) {
	if s.isSelf(id) {
		return
	}

	e, created, err := s.ensure(id, displayName, RoleInitiator)
	if err != nil {
		log.Error().Err(err).Str("service", "session").Str("participantID", string(id)).Msg("could not open connection")
		return
	}
	s.addParticipant(id, displayName)
	if !created {
		return
	}

	offer, err := e.CreateOffer()
	if err != nil {
		s.failEntry(e, fmt.Errorf("create offer: %w", err))
		return
	}
	if err := s.params.Signaler.Send(rpc.NewOfferRpc(offer, id)); err != nil {
		s.failEntry(e, fmt.Errorf("send offer: %w", err))
		return
	}

	log.Debug().Str("service", "session").Str("participantID", string(id)).Msg("offer sent")
}

// expect handles a participant who joined after us: they will offer
func (s *Session) expect(id core.ParticipantID, displayName string) {
	if s.isSelf(id) {
		return
	}

	if _, _, err := s.ensure(id, displayName, RoleResponder); err != nil {
		log.Error().Err(err).Str("service", "session").Str("participantID", string(id)).Msg("could not open connection")
		return
	}
	s.addParticipant(id, displayName)
}

func (s *Session) handleOffer(m *rpc.SDPRpc) {
	from := m.Params.FromParticipant
	if s.isSelf(from) {
		return
	}

	e, _, err := s.ensure(from, m.Params.FromDisplayName, RoleResponder)
	if err != nil {
		log.Error().Err(err).Str("service", "session").Str("participantID", string(from)).Msg("could not accept offer")
		return
	}
	s.addParticipant(from, m.Params.FromDisplayName)

	if state := e.State(); state != StateIdle {
		log.Warn().Str("service", "session").Str("participantID", string(from)).Str("state", string(state)).Msg("offer ignored")
		return
	}

	if _, err := validateDescription(m.Params.SDP, webrtc.SDPTypeOffer); err != nil {
		s.failEntry(e, err)
		return
	}

	answer, err := e.AcceptOffer(m.Params.SDP)
	if err != nil {
		s.failEntry(e, fmt.Errorf("accept offer: %w", err))
		return
	}
	if err := s.params.Signaler.Send(rpc.NewAnswerRpc(answer, from)); err != nil {
		s.failEntry(e, fmt.Errorf("send answer: %w", err))
		return
	}
	if err := e.Complete(); err != nil {
		s.failEntry(e, err)
		return
	}

	log.Debug().Str("service", "session").Str("participantID", string(from)).Msg("answer sent")
}

func (s *Session) handleAnswer(m *rpc.SDPRpc) {
	from := m.Params.FromParticipant

	e := s.registry.Get(from)
	if e == nil {
		log.Warn().Str("service", "session").Str("participantID", string(from)).Msg("answer from unknown participant")
		return
	}

	err := e.AcceptAnswer(m.Params.SDP)
	if errors.Is(err, ErrIllegalTransition) {
		log.Warn().Err(err).Str("service", "session").Str("participantID", string(from)).Msg("answer ignored")
		return
	}
	if err != nil {
		s.failEntry(e, fmt.Errorf("accept answer: %w", err))
		return
	}

	log.Debug().Str("service", "session").Str("participantID", string(from)).Msg("negotiation stable")
}

func (s *Session) handleRemoteCandidate(m *rpc.ICECandidateRpc) {
	from := m.Params.FromParticipant
	if s.isSelf(from) {
		return
	}

	e := s.registry.Get(from)
	if e == nil {
		if s.registry.WasRemoved(from) {
			return
		}
		// the offer is still on its way
		q, ok := s.early[from]
		if !ok {
			q = NewPendingCandidateQueue()
			s.early[from] = q
		}
		q.Push(m.Params.Candidate)
		return
	}

	if err := e.AddCandidate(m.Params.Candidate); err != nil {
		log.Warn().Err(err).Str("service", "session").Str("participantID", string(from)).Msg("candidate rejected")
	}
}

func (s *Session) handleLocalCandidate(ev CandidateGenerated) {
	e := s.registry.Get(ev.Participant)
	if e == nil || e.IsClosed() {
		return
	}

	if err := s.params.Signaler.Send(rpc.NewICECandidateRpc(ev.Candidate, ev.Participant)); err != nil {
		log.Error().Err(err).Str("service", "session").Str("participantID", string(ev.Participant)).Msg("could not send candidate")
	}
}

func (s *Session) handleTrack(ev TrackReceived) {
	e := s.registry.Get(ev.Participant)
	if e == nil || e.IsClosed() {
		return
	}

	s.mu.Lock()
	p, ok := s.roster[ev.Participant]
	if !ok {
		s.mu.Unlock()
		return
	}
	if p.Stream == nil {
		p.Stream = core.NewMediaStream(ev.Track.StreamID)
	}
	p.Stream.AddTrack(ev.Track)
	s.mu.Unlock()

	log.Debug().Str("service", "session").Str("participantID", string(ev.Participant)).Str("kind", ev.Track.Kind.String()).Msg("remote track")

	s.changed()
}

func (s *Session) handleStateChange(ev StateChanged) {
	e := s.registry.Get(ev.Participant)
	if e == nil {
		return
	}
	e.setConnectionState(ev.State)

	log.Debug().Str("service", "session").Str("participantID", string(ev.Participant)).Str("state", ev.State.String()).Msg("connection state changed")

	switch ev.State {
	case webrtc.PeerConnectionStateConnected:
		telemetry.ServiceOperationCounter.WithLabelValues("ice_connection", "success", "").Add(1)
		s.cancelGrace(ev.Participant)
	case webrtc.PeerConnectionStateDisconnected:
		telemetry.ServiceOperationCounter.WithLabelValues("ice_connection", "error", "state_disconnected").Add(1)
		s.startGrace(ev.Participant)
	case webrtc.PeerConnectionStateFailed:
		telemetry.ServiceOperationCounter.WithLabelValues("ice_connection", "error", "state_failed").Add(1)
		s.cancelGrace(ev.Participant)
		if err := e.Close(); err != nil {
			log.Warn().Err(err).Str("service", "session").Str("participantID", string(ev.Participant)).Msg("close failed")
		}
		s.clearStream(ev.Participant)
		s.changed()
	}
}

func (s *Session) startGrace(id core.ParticipantID) {
	if _, ok := s.grace[id]; ok {
		return
	}

	s.generation++
	generation := s.generation
	s.grace[id] = &graceTimer{
		generation: generation,
		timer: time.AfterFunc(s.params.DisconnectGrace, func() {
			s.post(GraceExpired{Participant: id, generation: generation})
		}),
	}
}

func (s *Session) cancelGrace(id core.ParticipantID) {
	if g, ok := s.grace[id]; ok {
		g.timer.Stop()
		delete(s.grace, id)
	}
}

func (s *Session) handleGraceExpired(ev GraceExpired) {
	g, ok := s.grace[ev.Participant]
	if !ok || g.generation != ev.generation {
		return
	}
	delete(s.grace, ev.Participant)

	e := s.registry.Get(ev.Participant)
	if e == nil || e.ConnectionState() != webrtc.PeerConnectionStateDisconnected {
		return
	}

	s.removeParticipant(ev.Participant, "disconnect grace expired")
}

func (s *Session) failEntry(e *PeerConnectionEntry, err error) {
	telemetry.ServiceOperationCounter.WithLabelValues("negotiation", "error", string(e.State())).Add(1)
	e.fail(err)
	s.clearStream(e.ID)
	s.changed()
}

func (s *Session) addParticipant(id core.ParticipantID, displayName string) {
	s.mu.Lock()
	if _, ok := s.roster[id]; ok {
		s.mu.Unlock()
		return
	}
	s.roster[id] = core.NewParticipant(id, displayName)
	s.order = append(s.order, id)
	s.mu.Unlock()

	log.Info().Str("service", "session").Str("participantID", string(id)).Str("displayName", displayName).Msg("participant added")

	s.changed()
}

func (s *Session) clearStream(id core.ParticipantID) {
	s.mu.Lock()
	if p, ok := s.roster[id]; ok {
		p.Stream = nil
	}
	s.mu.Unlock()
}

func (s *Session) removeParticipant(id core.ParticipantID, reason string) {
	s.cancelGrace(id)
	delete(s.early, id)
	removed := s.registry.Remove(id)

	s.mu.Lock()
	_, known := s.roster[id]
	if known {
		delete(s.roster, id)
		for i, oid := range s.order {
			if oid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !removed && !known {
		return
	}

	log.Info().Str("service", "session").Str("participantID", string(id)).Str("reason", reason).Msg("participant removed")

	s.changed()
}

func (s *Session) changed() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()

	if fn != nil {
		fn()
	}
}
