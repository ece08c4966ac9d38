package core

import (
	"time"
)

// ParticipantID identifies a connected peer for the lifetime of one session.
// The relay assigns it on connect and never re-uses it.
type ParticipantID string

// LocalParticipantID is the id the local user is rendered under
const LocalParticipantID ParticipantID = "local"

type Participant struct {
	ID          ParticipantID
	DisplayName string
	JoinedAt    time.Time

	// Stream is nil until the first remote track arrives
	Stream *MediaStream
}

func NewParticipant(id ParticipantID, displayName string) *Participant {
	return &Participant{
		ID:          id,
		DisplayName: displayName,
		JoinedAt:    time.Now(),
	}
}

// Clone returns a copy safe to hand out to presenters
func (p *Participant) Clone() *Participant {
	c := *p
	if p.Stream != nil {
		c.Stream = p.Stream.Clone()
	}
	return &c
}
