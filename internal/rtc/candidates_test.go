package rtc

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
)

func TestPendingCandidateQueue(t *testing.T) {
	q := NewPendingCandidateQueue()
	for _, c := range []string{"c1", "c2", "c3"} {
		q.Push(webrtc.ICECandidateInit{Candidate: c})
	}
	assert.Equal(t, 3, q.Len())

	var got []string
	applied := q.Drain(func(c webrtc.ICECandidateInit) error {
		got = append(got, c.Candidate)
		if c.Candidate == "c2" {
			return errors.New("rejected")
		}
		return nil
	})

	assert.Equal(t, []string{"c1", "c2", "c3"}, got)
	assert.Equal(t, 2, applied)
	assert.Equal(t, 0, q.Len())

	// rejected candidates are not re-queued
	assert.Equal(t, 0, q.Drain(func(webrtc.ICECandidateInit) error { return nil }))
}

func TestPendingCandidateQueueMoveTo(t *testing.T) {
	early := NewPendingCandidateQueue()
	early.Push(webrtc.ICECandidateInit{Candidate: "c1"})
	early.Push(webrtc.ICECandidateInit{Candidate: "c2"})

	dst := NewPendingCandidateQueue()
	dst.Push(webrtc.ICECandidateInit{Candidate: "c0"})
	early.MoveTo(dst)

	var got []string
	dst.Drain(func(c webrtc.ICECandidateInit) error {
		got = append(got, c.Candidate)
		return nil
	})

	assert.Equal(t, []string{"c0", "c1", "c2"}, got)
	assert.Equal(t, 0, early.Len())
}
