package rtc

import (
	"errors"
	"sort"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-meet/internal/core"
	"github.com/isqad/livelook-meet/internal/telemetry"
)

var (
	ErrNoLocalMedia       = errors.New("no local media to send")
	ErrParticipantRemoved = errors.New("participant already left this session")
)

// Registry holds at most one entry per remote participant
type Registry struct {
	mu      sync.RWMutex
	entries map[core.ParticipantID]*PeerConnectionEntry
	order   []core.ParticipantID
	removed map[core.ParticipantID]struct{}

	media   LocalMedia
	factory ConnectionFactory
	sink    EventSink
}

func NewRegistry(media LocalMedia, factory ConnectionFactory, sink EventSink) *Registry {
	return &Registry{
		entries: make(map[core.ParticipantID]*PeerConnectionEntry),
		removed: make(map[core.ParticipantID]struct{}),
		media:   media,
		factory: factory,
		sink:    sink,
	}
}

// Ensure returns the entry for id, opening a connection with the current
// local tracks attached when there is none. The flag reports creation.
func (r *Registry) Ensure(id core.ParticipantID, displayName string, role Role) (*PeerConnectionEntry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		return e, false, nil
	}
	if _, ok := r.removed[id]; ok {
		return nil, false, ErrParticipantRemoved
	}

	// read under the registry lock so a concurrent broadcast either sees
	// this entry or we see its tracks
	tracks := sortTracks(r.media.LocalTracks())
	if len(tracks) == 0 {
		return nil, false, ErrNoLocalMedia
	}

	conn, err := r.factory(id, r.sink)
	if err != nil {
		return nil, false, err
	}

	e := newPeerConnectionEntry(id, displayName, role, conn)
	for _, t := range tracks {
		sender, err := conn.AddTrack(t)
		if err != nil {
			if closeErr := conn.Close(); closeErr != nil {
				log.Warn().Err(closeErr).Str("service", "registry").Str("participantID", string(id)).Msg("")
			}
			return nil, false, err
		}
		e.addSender(t.Kind(), sender)
	}

	r.entries[id] = e
	r.order = append(r.order, id)
	telemetry.PeerConnectionOpened()

	log.Debug().Str("service", "registry").Str("participantID", string(id)).Str("role", string(role)).Msg("entry created")

	return e, true, nil
}

func (r *Registry) Get(id core.ParticipantID) *PeerConnectionEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.entries[id]
}

// Remove closes and forgets the entry. Removing an unknown id is a no-op.
func (r *Registry) Remove(id core.ParticipantID) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
		r.removed[id] = struct{}{}
		for i, oid := range r.order {
			if oid == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	telemetry.PeerConnectionClosed()
	if err := e.Close(); err != nil {
		log.Warn().Err(err).Str("service", "registry").Str("participantID", string(id)).Msg("close failed")
	}
	return true
}

// WasRemoved reports whether id left earlier in this session
func (r *Registry) WasRemoved(id core.ParticipantID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.removed[id]
	return ok
}

// ForgetRemoved clears the ids that left, so a new room may seat them again
func (r *Registry) ForgetRemoved() {
	r.mu.Lock()
	r.removed = make(map[core.ParticipantID]struct{})
	r.mu.Unlock()
}

// ForEach visits open entries in creation order. It holds the read lock, so
// fn must not call back into the registry.
func (r *Registry) ForEach(fn func(*PeerConnectionEntry)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		e := r.entries[id]
		if e.IsClosed() {
			continue
		}
		fn(e)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// CloseAll closes and forgets every entry
func (r *Registry) CloseAll() {
	r.mu.RLock()
	ids := make([]core.ParticipantID, len(r.order))
	copy(ids, r.order)
	r.mu.RUnlock()

	for _, id := range ids {
		r.Remove(id)
	}
}

// audio first, then video
func sortTracks(tracks []webrtc.TrackLocal) []webrtc.TrackLocal {
	sorted := make([]webrtc.TrackLocal, 0, len(tracks))
	for _, t := range tracks {
		if t != nil {
			sorted = append(sorted, t)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Kind() == webrtc.RTPCodecTypeAudio && sorted[j].Kind() != webrtc.RTPCodecTypeAudio
	})
	return sorted
}
