package notify

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Handler delivers one notification, e.g. as a push message
type Handler func(Message) error

// LogHandler only logs notifications
func LogHandler(m Message) error {
	log.Info().
		Str("service", "notifier").
		Str("roomID", m.RoomID).
		Str("displayName", m.DisplayName).
		Msg(m.Body)
	return nil
}

type Daemon struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	handler Handler

	errors chan error
	stop   chan struct{}
}

func New(natsURL string, handler Handler) (*Daemon, error) {
	nc, err := nats.Connect(natsURL, nats.Name("livelook-notifier"), nats.NoEcho())
	if err != nil {
		return nil, err
	}

	if handler == nil {
		handler = LogHandler
	}

	return &Daemon{
		nc:      nc,
		handler: handler,
		errors:  make(chan error, 16),
		stop:    make(chan struct{}),
	}, nil
}

// Run consumes notifications until Shutdown
func (d *Daemon) Run() error {
	log.Info().Str("service", "notifier").Msg("start notifier daemon")

	var err error
	d.sub, err = d.nc.QueueSubscribe(MeetingStartedSubject, NotifierQueue, func(msg *nats.Msg) {
		if err := d.handle(msg); err != nil {
			select {
			case d.errors <- err:
			case <-d.stop:
			}
		}
	})
	if err != nil {
		return err
	}

	for {
		select {
		case err := <-d.errors:
			log.Error().Err(err).Str("service", "notifier").Msg("handle notification")
		case <-d.stop:
			return d.close()
		}
	}
}

func (d *Daemon) Shutdown() {
	close(d.stop)
}

func (d *Daemon) close() error {
	log.Info().Str("service", "notifier").Msg("stop notifier daemon")

	if err := d.sub.Unsubscribe(); err != nil {
		log.Error().Err(err).Str("service", "notifier").Msg("unsubscribe")
	}

	return d.nc.Drain()
}

func (d *Daemon) handle(msg *nats.Msg) error {
	log.Debug().Str("service", "notifier").Str("data", string(msg.Data)).Msg("received notification")

	payload := Message{}
	if err := json.NewDecoder(bytes.NewReader(msg.Data)).Decode(&payload); err != nil {
		return fmt.Errorf("decode notification: %v, payload: %s", err, string(msg.Data))
	}
	if payload.RoomID == "" {
		return fmt.Errorf("notification without room: %s", string(msg.Data))
	}

	return d.handler(payload)
}
