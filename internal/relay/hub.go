package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-meet/internal/core"
	"github.com/isqad/livelook-meet/internal/eventbus"
	"github.com/isqad/livelook-meet/internal/eventbus/rpc"
	"github.com/isqad/livelook-meet/internal/telemetry"
)

var (
	ErrNotInRoom = errors.New("participant is not in the room")
	errNoRoomID  = errors.New("room id is required")
)

// Notifier hands meeting-started announcements to whoever pushes them to users
type Notifier interface {
	MeetingStarted(roomID string, displayName string) error
}

type HubParams struct {
	Store     RoomStore
	Publisher eventbus.Publisher
	// Notifier and Meetings are optional
	Notifier Notifier
	Meetings core.MeetingsStorer
}

// Hub routes signaling between the participants of a room
type Hub struct {
	HubParams

	// mu serialises membership changes on this node
	mu sync.Mutex
}

func NewHub(params HubParams) *Hub {
	return &Hub{HubParams: params}
}

func (h *Hub) Connected(id core.ParticipantID) {
	telemetry.ParticipantConnected()
	log.Debug().Str("service", "relay").Str("participantID", string(id)).Msg("connected")
}

// Disconnected is a leave the client never sent
func (h *Hub) Disconnected(ctx context.Context, id core.ParticipantID) {
	if err := h.Leave(ctx, id); err != nil {
		log.Error().Err(err).Str("service", "relay").Str("participantID", string(id)).Msg("leave on disconnect")
	}
	telemetry.ParticipantDisconnected()
}

// Handle processes one message a client sent
func (h *Hub) Handle(ctx context.Context, from core.ParticipantID, msg rpc.Rpc) error {
	telemetry.SignalingMessage(string(msg.GetMethod()))

	switch m := msg.(type) {
	case *rpc.JoinRoomRpc:
		return h.Join(ctx, from, m.Params.RoomID, m.Params.DisplayName)
	case *rpc.LeaveRoomRpc:
		return h.Leave(ctx, from)
	case *rpc.ICECandidateRpc:
		if m.IsEmpty() {
			return nil
		}
		return h.route(ctx, from, m)
	case *rpc.SDPRpc:
		return h.route(ctx, from, m)
	case *rpc.MeetingStartedRpc:
		h.meetingStarted(ctx, from, m)
		return nil
	default:
		return fmt.Errorf("%w: %s is not accepted from clients", rpc.ErrUnknownRpcType, msg.GetMethod())
	}
}

// Join seats the participant. Existing members are listed to the joiner and
// told about it; joining another room leaves the current one first.
func (h *Hub) Join(ctx context.Context, id core.ParticipantID, roomID string, displayName string) error {
	if roomID == "" {
		return errNoRoomID
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	current, err := h.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if current != nil && current.RoomID != roomID {
		if err := h.leave(ctx, id); err != nil {
			return err
		}
		current = nil
	}

	members, err := h.Store.Members(ctx, roomID)
	if err != nil {
		return err
	}

	existing := make([]rpc.ParticipantInfo, 0, len(members))
	for _, m := range members {
		if m.ID == id {
			continue
		}
		existing = append(existing, rpc.ParticipantInfo{ID: m.ID, DisplayName: m.DisplayName})
	}

	if err := h.Publisher.PublishClient(id, rpc.NewJoinedRpc(id, roomID)); err != nil {
		return err
	}
	if err := h.Publisher.PublishClient(id, rpc.NewExistingParticipantsRpc(existing)); err != nil {
		return err
	}

	// a repeated join only refreshes the joiner's view of the room
	if current != nil {
		return nil
	}

	// seated before the room hears about it
	if err := h.Store.Add(ctx, Member{ID: id, RoomID: roomID, DisplayName: displayName}); err != nil {
		return err
	}

	for _, m := range existing {
		if err := h.Publisher.PublishClient(m.ID, rpc.NewUserJoinedRpc(id, displayName)); err != nil {
			log.Error().Err(err).Str("service", "relay").Str("participantID", string(m.ID)).Msg("publish user-joined")
		}
	}
	if len(members) == 0 {
		telemetry.RoomCreated()
	}

	if h.Meetings != nil {
		p := core.NewParticipant(id, displayName)
		if err := h.Meetings.Joined(roomID, p); err != nil {
			log.Error().Err(err).Str("service", "relay").Msg("record attendance")
		}
	}

	log.Info().
		Str("service", "relay").
		Str("participantID", string(id)).
		Str("roomID", roomID).
		Int("existing", len(existing)).
		Msg("joined room")

	return nil
}

// Leave is a no-op for a participant in no room
func (h *Hub) Leave(ctx context.Context, id core.ParticipantID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.leave(ctx, id)
}

func (h *Hub) leave(ctx context.Context, id core.ParticipantID) error {
	m, err := h.Store.Remove(ctx, id)
	if err != nil || m == nil {
		return err
	}

	remaining, err := h.Store.Members(ctx, m.RoomID)
	if err != nil {
		return err
	}
	for _, other := range remaining {
		if err := h.Publisher.PublishClient(other.ID, rpc.NewUserLeftRpc(id)); err != nil {
			log.Error().Err(err).Str("service", "relay").Str("participantID", string(other.ID)).Msg("publish user-left")
		}
	}

	if h.Meetings != nil {
		if err := h.Meetings.Left(m.RoomID, id); err != nil {
			log.Error().Err(err).Str("service", "relay").Msg("record leave")
		}
	}

	if len(remaining) == 0 {
		telemetry.RoomDeleted()
		if h.Meetings != nil {
			if err := h.Meetings.MeetingEnded(m.RoomID); err != nil {
				log.Error().Err(err).Str("service", "relay").Msg("record meeting end")
			}
		}
	}

	log.Info().
		Str("service", "relay").
		Str("participantID", string(id)).
		Str("roomID", m.RoomID).
		Msg("left room")

	return nil
}

// route forwards an offer, answer or candidate to its target, stamped with
// the sender's identity
func (h *Hub) route(ctx context.Context, from core.ParticipantID, msg rpc.Targeted) error {
	sender, err := h.Store.Get(ctx, from)
	if err != nil {
		return err
	}
	if sender == nil {
		return fmt.Errorf("%w: sender %s", ErrNotInRoom, from)
	}

	target, err := h.Store.Get(ctx, msg.Target())
	if err != nil {
		return err
	}
	if target == nil || target.RoomID != sender.RoomID || target.ID == from {
		return fmt.Errorf("%w: target %s", ErrNotInRoom, msg.Target())
	}

	msg.Stamp(from, sender.DisplayName)

	return h.Publisher.PublishClient(target.ID, msg)
}

// meetingStarted is fire-and-forget, failures are only logged
func (h *Hub) meetingStarted(ctx context.Context, from core.ParticipantID, msg *rpc.MeetingStartedRpc) {
	roomID := msg.Params.RoomID
	displayName := msg.Params.DisplayName

	if sender, err := h.Store.Get(ctx, from); err == nil && sender != nil {
		roomID = sender.RoomID
		displayName = sender.DisplayName
	}

	if h.Meetings != nil {
		active, err := h.Meetings.FindActiveMeeting(roomID)
		if err == nil && active == nil {
			_, err = h.Meetings.MeetingStarted(roomID, displayName)
		}
		if err != nil {
			log.Error().Err(err).Str("service", "relay").Msg("record meeting start")
		}
	}

	if h.Notifier == nil {
		return
	}
	if err := h.Notifier.MeetingStarted(roomID, displayName); err != nil {
		log.Error().Err(err).Str("service", "relay").Str("roomID", roomID).Msg("notify meeting started")
	}
}
