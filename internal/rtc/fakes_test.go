package rtc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/require"

	"github.com/isqad/livelook-meet/internal/core"
	"github.com/isqad/livelook-meet/internal/eventbus/rpc"
)

type fakeSender struct {
	mu     sync.Mutex
	tracks []webrtc.TrackLocal
	err    error
}

func (s *fakeSender) ReplaceTrack(t webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.tracks = append(s.tracks, t)
	return nil
}

func (s *fakeSender) current() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tracks[len(s.tracks)-1]
}

type fakeConnection struct {
	mu              sync.Mutex
	id              core.ParticipantID
	local           *webrtc.SessionDescription
	remote          *webrtc.SessionDescription
	candidates      []string
	rejectCandidate string
	addedKinds      []webrtc.RTPCodecType
	senders         map[webrtc.RTPCodecType]*fakeSender
	closed          bool
	offerErr        error
	stats           RemoteTrackStats
}

func (c *fakeConnection) Stats() RemoteTrackStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stats
}

func (c *fakeConnection) setStats(st RemoteTrackStats) {
	c.mu.Lock()
	c.stats = st
	c.mu.Unlock()
}

func (c *fakeConnection) CreateOffer() (webrtc.SessionDescription, error) {
	return testOffer, c.offerErr
}

func (c *fakeConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	return testAnswer, nil
}

func (c *fakeConnection) SetLocalDescription(d webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.local = &d
	return nil
}

func (c *fakeConnection) SetRemoteDescription(d webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.remote = &d
	return nil
}

func (c *fakeConnection) LocalDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.local
}

func (c *fakeConnection) RemoteDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.remote
}

func (c *fakeConnection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if candidate.Candidate == c.rejectCandidate {
		return errors.New("bad candidate")
	}
	c.candidates = append(c.candidates, candidate.Candidate)
	return nil
}

func (c *fakeConnection) AddTrack(t webrtc.TrackLocal) (Sender, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &fakeSender{tracks: []webrtc.TrackLocal{t}}
	c.senders[t.Kind()] = s
	c.addedKinds = append(c.addedKinds, t.Kind())
	return s, nil
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return nil
}

func (c *fakeConnection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func (c *fakeConnection) appliedCandidates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.candidates...)
}

// fakeNetwork hands out fake connections and remembers them by remote id
type fakeNetwork struct {
	mu     sync.Mutex
	conns  map[core.ParticipantID]*fakeConnection
	err    error
	opened int
	reject string
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{conns: make(map[core.ParticipantID]*fakeConnection)}
}

func (n *fakeNetwork) factory(id core.ParticipantID, sink EventSink) (Connection, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.err != nil {
		return nil, n.err
	}
	c := &fakeConnection{
		id:              id,
		senders:         make(map[webrtc.RTPCodecType]*fakeSender),
		rejectCandidate: n.reject,
	}
	n.conns[id] = c
	n.opened++
	return c, nil
}

func (n *fakeNetwork) conn(id core.ParticipantID) *fakeConnection {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.conns[id]
}

type fakeMedia struct {
	mu      sync.Mutex
	tracks  []webrtc.TrackLocal
	stopped bool
}

func newFakeMedia(t *testing.T) *fakeMedia {
	return &fakeMedia{tracks: []webrtc.TrackLocal{
		newTestTrack(t, webrtc.MimeTypeVP8, "video"),
		newTestTrack(t, webrtc.MimeTypeOpus, "audio"),
	}}
}

func (m *fakeMedia) LocalTracks() []webrtc.TrackLocal {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]webrtc.TrackLocal(nil), m.tracks...)
}

func (m *fakeMedia) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func newTestTrack(t *testing.T, mime string, id string) *webrtc.TrackLocalStaticSample {
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, "local")
	require.Nil(t, err)
	return track
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []rpc.Rpc
}

func (s *fakeSignaler) Send(r rpc.Rpc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, r)
	return nil
}

func (s *fakeSignaler) byMethod(m rpc.Method) []rpc.Rpc {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []rpc.Rpc
	for _, r := range s.sent {
		if r.GetMethod() == m {
			out = append(out, r)
		}
	}
	return out
}

// fakeRelay routes messages between sessions the way the relay service does.
// Deliveries are queued and pumped by the test so handlers never nest.
type fakeRelay struct {
	t       *testing.T
	members []core.ParticipantID
	peers   map[core.ParticipantID]*testPeer
	queue   []delivery
	// offers counts offers per "from->to" pair
	offers map[string]int
}

type delivery struct {
	to  core.ParticipantID
	msg rpc.Rpc
}

type testPeer struct {
	id      core.ParticipantID
	name    string
	session *Session
	network *fakeNetwork
	media   *fakeMedia
}

type relaySignaler struct {
	relay *fakeRelay
	from  core.ParticipantID
}

func newFakeRelay(t *testing.T) *fakeRelay {
	return &fakeRelay{
		t:      t,
		peers:  make(map[core.ParticipantID]*testPeer),
		offers: make(map[string]int),
	}
}

func (r *fakeRelay) add(id core.ParticipantID, name string) *testPeer {
	p := &testPeer{
		id:      id,
		name:    name,
		network: newFakeNetwork(),
		media:   newFakeMedia(r.t),
	}
	p.session = NewSession(SessionParams{
		Signaler:    &relaySignaler{relay: r, from: id},
		Media:       p.media,
		Factory:     p.network.factory,
		DisplayName: name,
	})
	r.peers[id] = p
	return p
}

func (s *relaySignaler) Send(msg rpc.Rpc) error {
	r := s.relay
	from := r.peers[s.from]

	switch m := msg.(type) {
	case *rpc.JoinRoomRpc:
		existing := make([]rpc.ParticipantInfo, 0, len(r.members))
		for _, id := range r.members {
			existing = append(existing, rpc.ParticipantInfo{ID: id, DisplayName: r.peers[id].name})
		}
		r.queue = append(r.queue, delivery{s.from, rpc.NewJoinedRpc(s.from, m.Params.RoomID)})
		r.queue = append(r.queue, delivery{s.from, rpc.NewExistingParticipantsRpc(existing)})
		for _, id := range r.members {
			r.queue = append(r.queue, delivery{id, rpc.NewUserJoinedRpc(s.from, from.name)})
		}
		r.members = append(r.members, s.from)
	case *rpc.LeaveRoomRpc:
		for i, id := range r.members {
			if id == s.from {
				r.members = append(r.members[:i], r.members[i+1:]...)
				break
			}
		}
		for _, id := range r.members {
			r.queue = append(r.queue, delivery{id, rpc.NewUserLeftRpc(s.from)})
		}
	case rpc.Targeted:
		m.Stamp(s.from, from.name)
		if m.GetMethod() == rpc.OfferMethod {
			r.offers[string(s.from)+"->"+string(m.Target())]++
		}
		r.queue = append(r.queue, delivery{m.Target(), m})
	}
	return nil
}

func (r *fakeRelay) join(p *testPeer) {
	require.Nil(r.t, p.session.Join(testContext(r.t), "room"))
	r.pump()
}

func (r *fakeRelay) pump() {
	for len(r.queue) > 0 {
		d := r.queue[0]
		r.queue = r.queue[1:]
		if p, ok := r.peers[d.to]; ok {
			p.session.handle(Signal{Message: d.msg})
		}
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
