package notify

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// Publisher sends meeting notifications to NATS without waiting for anyone
type Publisher struct {
	nc *nats.Conn
}

func NewPublisher(natsURL string) (*Publisher, error) {
	nc, err := nats.Connect(natsURL, nats.Name("livelook-relay"))
	if err != nil {
		return nil, err
	}

	return &Publisher{nc: nc}, nil
}

func (p *Publisher) MeetingStarted(roomID string, displayName string) error {
	data, err := json.Marshal(NewMeetingStartedMessage(roomID, displayName))
	if err != nil {
		return err
	}

	return p.nc.Publish(MeetingStartedSubject, data)
}

func (p *Publisher) Close() error {
	return p.nc.Drain()
}
