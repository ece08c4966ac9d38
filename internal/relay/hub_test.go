package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isqad/livelook-meet/internal/core"
	"github.com/isqad/livelook-meet/internal/eventbus"
	"github.com/isqad/livelook-meet/internal/eventbus/rpc"
)

type published struct {
	to  core.ParticipantID
	msg rpc.Rpc
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
}

func (p *fakePublisher) PublishClient(id core.ParticipantID, r rpc.Rpc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{to: id, msg: r})
	return nil
}

func (p *fakePublisher) to(id core.ParticipantID) []rpc.Rpc {
	p.mu.Lock()
	defer p.mu.Unlock()

	var msgs []rpc.Rpc
	for _, s := range p.sent {
		if s.to == id {
			msgs = append(msgs, s.msg)
		}
	}
	return msgs
}

func (p *fakePublisher) reset() {
	p.mu.Lock()
	p.sent = nil
	p.mu.Unlock()
}

type fakeNotifier struct {
	calls [][2]string
	err   error
}

func (n *fakeNotifier) MeetingStarted(roomID string, displayName string) error {
	n.calls = append(n.calls, [2]string{roomID, displayName})
	return n.err
}

type fakeMeetings struct {
	started  []string
	joined   []core.ParticipantID
	left     []core.ParticipantID
	ended    []string
	active   map[string]*core.Meeting
	startErr error
}

func newFakeMeetings() *fakeMeetings {
	return &fakeMeetings{active: make(map[string]*core.Meeting)}
}

func (m *fakeMeetings) MeetingStarted(roomID string, startedBy string) (*core.Meeting, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.started = append(m.started, roomID)
	meeting := &core.Meeting{RoomID: roomID, StartedBy: startedBy}
	m.active[roomID] = meeting
	return meeting, nil
}

func (m *fakeMeetings) Joined(roomID string, p *core.Participant) error {
	m.joined = append(m.joined, p.ID)
	return nil
}

func (m *fakeMeetings) Left(roomID string, id core.ParticipantID) error {
	m.left = append(m.left, id)
	return nil
}

func (m *fakeMeetings) MeetingEnded(roomID string) error {
	m.ended = append(m.ended, roomID)
	delete(m.active, roomID)
	return nil
}

func (m *fakeMeetings) FindActiveMeeting(roomID string) (*core.Meeting, error) {
	return m.active[roomID], nil
}

func newTestHub() (*Hub, *fakePublisher, *fakeNotifier, *fakeMeetings) {
	pub := &fakePublisher{}
	notifier := &fakeNotifier{}
	meetings := newFakeMeetings()

	hub := NewHub(HubParams{
		Store:     NewMemoryRoomStore(),
		Publisher: pub,
		Notifier:  notifier,
		Meetings:  meetings,
	})
	return hub, pub, notifier, meetings
}

func testOffer(target core.ParticipantID) *rpc.SDPRpc {
	return rpc.NewOfferRpc(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}, target)
}

func TestHubJoin(t *testing.T) {
	hub, pub, _, meetings := newTestHub()
	ctx := context.Background()

	require.NoError(t, hub.Join(ctx, "a", "room", "Alice"))

	msgs := pub.to("a")
	require.Len(t, msgs, 2)
	assert.Equal(t, rpc.NewJoinedRpc("a", "room"), msgs[0])
	assert.Empty(t, msgs[1].(*rpc.ExistingParticipantsRpc).Params.Participants)

	pub.reset()
	require.NoError(t, hub.Join(ctx, "b", "room", "Bob"))
	require.NoError(t, hub.Join(ctx, "c", "room", "Carol"))

	msgs = pub.to("c")
	require.Len(t, msgs, 2)
	assert.Equal(t, []rpc.ParticipantInfo{
		{ID: "a", DisplayName: "Alice"},
		{ID: "b", DisplayName: "Bob"},
	}, msgs[1].(*rpc.ExistingParticipantsRpc).Params.Participants)

	msgs = pub.to("a")
	require.Len(t, msgs, 2)
	assert.Equal(t, rpc.NewUserJoinedRpc("b", "Bob"), msgs[0])
	assert.Equal(t, rpc.NewUserJoinedRpc("c", "Carol"), msgs[1])

	assert.Equal(t, []core.ParticipantID{"a", "b", "c"}, meetings.joined)
}

func TestHubRepeatedJoin(t *testing.T) {
	hub, pub, _, _ := newTestHub()
	ctx := context.Background()

	require.NoError(t, hub.Join(ctx, "a", "room", "Alice"))
	require.NoError(t, hub.Join(ctx, "b", "room", "Bob"))
	pub.reset()

	require.NoError(t, hub.Join(ctx, "b", "room", "Bob"))

	assert.Empty(t, pub.to("a"))
	msgs := pub.to("b")
	require.Len(t, msgs, 2)
	assert.Equal(t, []rpc.ParticipantInfo{{ID: "a", DisplayName: "Alice"}}, msgs[1].(*rpc.ExistingParticipantsRpc).Params.Participants)

	members, err := hub.Store.Members(ctx, "room")
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestHubJoinAnotherRoomLeavesFirst(t *testing.T) {
	hub, pub, _, _ := newTestHub()
	ctx := context.Background()

	require.NoError(t, hub.Join(ctx, "a", "one", "Alice"))
	require.NoError(t, hub.Join(ctx, "b", "one", "Bob"))
	pub.reset()

	require.NoError(t, hub.Join(ctx, "b", "two", "Bob"))

	assert.Equal(t, []rpc.Rpc{rpc.NewUserLeftRpc("b")}, pub.to("a"))
	m, err := hub.Store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "two", m.RoomID)

	assert.ErrorIs(t, hub.Join(ctx, "c", "", "Carol"), errNoRoomID)
}

func TestHubRouteStampsSender(t *testing.T) {
	hub, pub, _, _ := newTestHub()
	ctx := context.Background()

	require.NoError(t, hub.Join(ctx, "a", "room", "Alice"))
	require.NoError(t, hub.Join(ctx, "b", "room", "Bob"))
	pub.reset()

	offer := testOffer("a")
	offer.Params.FromParticipant = "spoofed"
	require.NoError(t, hub.Handle(ctx, "b", offer))

	msgs := pub.to("a")
	require.Len(t, msgs, 1)
	routed := msgs[0].(*rpc.SDPRpc)
	assert.Equal(t, core.ParticipantID("b"), routed.Params.FromParticipant)
	assert.Equal(t, "Bob", routed.Params.FromDisplayName)

	answer := rpc.NewAnswerRpc(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}, "b")
	require.NoError(t, hub.Handle(ctx, "a", answer))
	routedAnswer := pub.to("b")[0].(*rpc.SDPRpc)
	assert.Equal(t, core.ParticipantID("a"), routedAnswer.Params.FromParticipant)
	assert.Empty(t, routedAnswer.Params.FromDisplayName)
}

func TestHubRouteOutsideRoom(t *testing.T) {
	hub, pub, _, _ := newTestHub()
	ctx := context.Background()

	require.NoError(t, hub.Join(ctx, "a", "one", "Alice"))
	require.NoError(t, hub.Join(ctx, "b", "two", "Bob"))
	pub.reset()

	assert.ErrorIs(t, hub.Handle(ctx, "a", testOffer("b")), ErrNotInRoom)
	assert.ErrorIs(t, hub.Handle(ctx, "x", testOffer("a")), ErrNotInRoom)
	assert.ErrorIs(t, hub.Handle(ctx, "a", testOffer("missing")), ErrNotInRoom)
	assert.ErrorIs(t, hub.Handle(ctx, "a", testOffer("a")), ErrNotInRoom)
	assert.Empty(t, pub.sent)
}

func TestHubCandidates(t *testing.T) {
	hub, pub, _, _ := newTestHub()
	ctx := context.Background()

	require.NoError(t, hub.Join(ctx, "a", "room", "Alice"))
	require.NoError(t, hub.Join(ctx, "b", "room", "Bob"))
	pub.reset()

	require.NoError(t, hub.Handle(ctx, "a", rpc.NewICECandidateRpc(webrtc.ICECandidateInit{}, "b")))
	assert.Empty(t, pub.sent)

	require.NoError(t, hub.Handle(ctx, "a", rpc.NewICECandidateRpc(webrtc.ICECandidateInit{Candidate: "candidate:1"}, "b")))
	msgs := pub.to("b")
	require.Len(t, msgs, 1)
	assert.Equal(t, core.ParticipantID("a"), msgs[0].(*rpc.ICECandidateRpc).Params.FromParticipant)
}

func TestHubLeave(t *testing.T) {
	hub, pub, _, meetings := newTestHub()
	ctx := context.Background()

	require.NoError(t, hub.Join(ctx, "a", "room", "Alice"))
	require.NoError(t, hub.Join(ctx, "b", "room", "Bob"))
	require.NoError(t, hub.Join(ctx, "c", "room", "Carol"))
	pub.reset()

	require.NoError(t, hub.Handle(ctx, "b", rpc.NewLeaveRoomRpc()))
	assert.Equal(t, []rpc.Rpc{rpc.NewUserLeftRpc("b")}, pub.to("a"))
	assert.Equal(t, []rpc.Rpc{rpc.NewUserLeftRpc("b")}, pub.to("c"))

	pub.reset()
	hub.Disconnected(ctx, "b")
	assert.Empty(t, pub.sent)

	hub.Disconnected(ctx, "a")
	hub.Disconnected(ctx, "c")

	members, err := hub.Store.Members(ctx, "room")
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Equal(t, []core.ParticipantID{"b", "a", "c"}, meetings.left)
	assert.Equal(t, []string{"room"}, meetings.ended)
}

func TestHubMeetingStarted(t *testing.T) {
	hub, _, notifier, meetings := newTestHub()
	ctx := context.Background()

	require.NoError(t, hub.Join(ctx, "a", "room", "Alice"))

	require.NoError(t, hub.Handle(ctx, "a", rpc.NewMeetingStartedRpc("other", "Mallory")))
	require.NoError(t, hub.Handle(ctx, "a", rpc.NewMeetingStartedRpc("room", "Alice")))

	assert.Equal(t, [][2]string{{"room", "Alice"}, {"room", "Alice"}}, notifier.calls)
	assert.Equal(t, []string{"room"}, meetings.started)

	notifier.err = errors.New("nats down")
	meetings.startErr = errors.New("db down")
	delete(meetings.active, "room")
	assert.NoError(t, hub.Handle(ctx, "a", rpc.NewMeetingStartedRpc("room", "Alice")))
}

func TestHubRejectsServerMessages(t *testing.T) {
	hub, _, _, _ := newTestHub()

	err := hub.Handle(context.Background(), "a", rpc.NewUserLeftRpc("b"))
	assert.ErrorIs(t, err, rpc.ErrUnknownRpcType)
}

type failingAddStore struct {
	*MemoryRoomStore
	err error
}

func (s *failingAddStore) Add(ctx context.Context, m Member) error {
	return s.err
}

func TestHubJoinNotAnnouncedWhenNotSeated(t *testing.T) {
	ctx := context.Background()
	store := &failingAddStore{MemoryRoomStore: NewMemoryRoomStore()}
	pub := &fakePublisher{}
	hub := NewHub(HubParams{Store: store, Publisher: pub})

	require.NoError(t, store.MemoryRoomStore.Add(ctx, Member{ID: "a", RoomID: "room", DisplayName: "Alice"}))

	store.err = errors.New("redis down")
	assert.ErrorIs(t, hub.Join(ctx, "b", "room", "Bob"), store.err)
	assert.Empty(t, pub.to("a"))
}

func TestHubStalledSocketDoesNotBlockRoom(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewMemory()
	hub := NewHub(HubParams{Store: NewMemoryRoomStore(), Publisher: bus})

	subA, err := bus.SubscribeClient("a")
	require.NoError(t, err)
	defer subA.Close()
	go func() {
		for range subA.Channel() {
		}
	}()

	// b's writer is gone, nothing drains its buffer
	subB, err := bus.SubscribeClient("b")
	require.NoError(t, err)

	require.NoError(t, hub.Join(ctx, "a", "room", "Alice"))
	require.NoError(t, hub.Join(ctx, "b", "room", "Bob"))

	candidate := rpc.NewICECandidateRpc(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host"}, "b")
	for i := 0; i < 300; i++ {
		require.NoError(t, hub.Handle(ctx, "a", candidate))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, hub.Join(ctx, "c", "room", "Carol"))
		subB.Close()
		hub.Disconnected(ctx, "b")
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("room is stuck behind a stalled socket")
	}

	members, err := hub.Store.Members(ctx, "room")
	require.NoError(t, err)
	assert.Equal(t, []Member{
		{ID: "a", RoomID: "room", DisplayName: "Alice"},
		{ID: "c", RoomID: "room", DisplayName: "Carol"},
	}, members)
}
