package notify

import (
	"fmt"
	"time"
)

const (
	MeetingStartedSubject = "livelook.meetings.started"
	NotifierQueue         = "livelook.notifier"
)

// Message announces a meeting to users who are not in it yet
type Message struct {
	RoomID      string    `json:"room_id"`
	DisplayName string    `json:"display_name"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	StartedAt   time.Time `json:"started_at"`
}

func NewMeetingStartedMessage(roomID string, displayName string) Message {
	return Message{
		RoomID:      roomID,
		DisplayName: displayName,
		Title:       "Meeting Started",
		Body:        fmt.Sprintf("%s is in a meeting. Join now!", displayName),
		StartedAt:   time.Now().UTC(),
	}
}
