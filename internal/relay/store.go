package relay

import (
	"context"
	"sync"

	"github.com/isqad/livelook-meet/internal/core"
)

// Member is a participant seated in a room
type Member struct {
	ID          core.ParticipantID
	RoomID      string
	DisplayName string
}

// RoomStore keeps room membership in join order
type RoomStore interface {
	// Add is a no-op for a participant already seated, so join order holds
	Add(ctx context.Context, m Member) error
	// Remove returns nil when the participant is in no room
	Remove(ctx context.Context, id core.ParticipantID) (*Member, error)
	Get(ctx context.Context, id core.ParticipantID) (*Member, error)
	Members(ctx context.Context, roomID string) ([]Member, error)
}

// MemoryRoomStore is a RoomStore for a single relay node
type MemoryRoomStore struct {
	mu      sync.RWMutex
	rooms   map[string][]core.ParticipantID
	members map[core.ParticipantID]Member
}

func NewMemoryRoomStore() *MemoryRoomStore {
	return &MemoryRoomStore{
		rooms:   make(map[string][]core.ParticipantID),
		members: make(map[core.ParticipantID]Member),
	}
}

func (s *MemoryRoomStore) Add(_ context.Context, m Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[m.ID]; ok {
		return nil
	}
	s.members[m.ID] = m
	s.rooms[m.RoomID] = append(s.rooms[m.RoomID], m.ID)

	return nil
}

func (s *MemoryRoomStore) Remove(_ context.Context, id core.ParticipantID) (*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[id]
	if !ok {
		return nil, nil
	}
	delete(s.members, id)

	ids := s.rooms[m.RoomID]
	for i, pid := range ids {
		if pid == id {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(s.rooms, m.RoomID)
	} else {
		s.rooms[m.RoomID] = ids
	}

	return &m, nil
}

func (s *MemoryRoomStore) Get(_ context.Context, id core.ParticipantID) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MemoryRoomStore) Members(_ context.Context, roomID string) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.rooms[roomID]
	members := make([]Member, 0, len(ids))
	for _, id := range ids {
		members = append(members, s.members[id])
	}
	return members, nil
}
