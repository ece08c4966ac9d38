// Package client connects a call participant to the signaling relay.
package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/publicsuffix"

	"github.com/isqad/livelook-meet/internal/eventbus/rpc"
)

const (
	handshakeTimeout = 45 * time.Second
	writeTimeout     = 10 * time.Second
	closeTimeout     = time.Second
	messagesBuffer   = 256
)

var ErrClosed = errors.New("signaling connection closed")

// Signaling is the websocket to the relay. Send is safe for concurrent use.
type Signaling struct {
	conn     *websocket.Conn
	messages chan []byte

	writeMu   sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

func Dial(ctx context.Context, url string) (*Signaling, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		Jar:              jar,
		HandshakeTimeout: handshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	return &Signaling{
		conn:     conn,
		messages: make(chan []byte, messagesBuffer),
		closed:   make(chan struct{}),
	}, nil
}

func (s *Signaling) Send(r rpc.Rpc) error {
	msg, err := r.ToJSON()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.closed:
		return ErrClosed
	default:
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}

// Messages carries every frame the relay sends, closed when Listen returns
func (s *Signaling) Messages() <-chan []byte {
	return s.messages
}

// Listen reads frames into Messages until the connection closes or ctx is done
func (s *Signaling) Listen(ctx context.Context) error {
	defer close(s.messages)

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.closed:
		}
	}()

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		select {
		case s.messages <- message:
		case <-s.closed:
			return nil
		}
	}
}

// Close sends a close frame and drops the connection
func (s *Signaling) Close() error {
	var err error

	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		close(s.closed)
		// Cleanly close the connection by sending a close message
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeTimeout),
		)
		s.writeMu.Unlock()

		err = s.conn.Close()
	})

	return err
}
