package rtc

import (
	"github.com/gammazero/deque"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"
)

// PendingCandidateQueue holds remote candidates that arrived before the
// remote description. Not safe for concurrent use; the owning entry locks.
type PendingCandidateQueue struct {
	q deque.Deque[webrtc.ICECandidateInit]
}

func NewPendingCandidateQueue() *PendingCandidateQueue {
	return &PendingCandidateQueue{}
}

func (p *PendingCandidateQueue) Push(c webrtc.ICECandidateInit) {
	p.q.PushBack(c)
}

func (p *PendingCandidateQueue) Len() int {
	return p.q.Len()
}

// Drain applies queued candidates in arrival order and empties the queue.
// A rejected candidate is logged and dropped, the rest are still applied.
// It returns how many were applied.
func (p *PendingCandidateQueue) Drain(apply func(webrtc.ICECandidateInit) error) int {
	applied := 0
	for p.q.Len() > 0 {
		c := p.q.PopFront()
		if err := apply(c); err != nil {
			log.Warn().Err(err).Str("service", "candidates").Str("candidate", c.Candidate).Msg("candidate rejected")
			continue
		}
		applied++
	}
	return applied
}

// MoveTo appends everything queued here to dst, keeping the order
func (p *PendingCandidateQueue) MoveTo(dst *PendingCandidateQueue) {
	for p.q.Len() > 0 {
		dst.q.PushBack(p.q.PopFront())
	}
}
