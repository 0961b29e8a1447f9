package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

// Peers only listen, so anything larger than a control frame is abuse.
const maxPeerMessage = 1024

// SubscriberOptions tunes one websocket subscriber.
type SubscriberOptions struct {
	Queue        int           // Frames buffered before the hub drops the peer as slow
	Keepalive    time.Duration // Ping interval; a peer silent for two intervals is dropped
	WriteTimeout time.Duration // Deadline for a single frame write
}

// DefaultSubscriberOptions suits skeleton streams of a few dozen frames per
// second: a subscriber more than half a second behind is dropped.
func DefaultSubscriberOptions() SubscriberOptions {
	return SubscriberOptions{
		Queue:        16,
		Keepalive:    30 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Subscriber streams hub messages to one websocket peer.
type Subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	opts SubscriberOptions
	out  chan Message
}

// Subscribe registers conn with h. It returns nil if the hub has stopped.
func Subscribe(h *Hub, conn *websocket.Conn, opts SubscriberOptions) *Subscriber {
	if opts.Queue <= 0 {
		opts.Queue = DefaultSubscriberOptions().Queue
	}
	if opts.Keepalive <= 0 {
		opts.Keepalive = DefaultSubscriberOptions().Keepalive
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultSubscriberOptions().WriteTimeout
	}
	s := &Subscriber{
		hub:  h,
		conn: conn,
		opts: opts,
		out:  make(chan Message, opts.Queue),
	}
	if !h.Register(s) {
		return nil
	}
	return s
}

// Outbox implements Sink.
func (s *Subscriber) Outbox() chan Message {
	return s.out
}

// Serve writes greeting, when non-nil, and then forwards hub messages
// until the peer goes away or the hub drops it. It blocks for the life of
// the connection.
func (s *Subscriber) Serve(greeting Message) {
	if greeting != nil {
		if err := s.write(websocket.TextMessage, greeting); err != nil {
			s.hub.Unregister(s)
			s.conn.Close()
			return
		}
	}
	go s.forward()
	s.discardInbound()
}

// discardInbound reads until the connection fails. Reading is what lets
// the connection process pongs and close frames.
func (s *Subscriber) discardInbound() {
	defer func() {
		s.hub.Unregister(s)
		s.conn.Close()
	}()

	grace := 2 * s.opts.Keepalive
	s.conn.SetReadLimit(maxPeerMessage)
	s.conn.SetReadDeadline(time.Now().Add(grace))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(grace))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// forward is the only writer once Serve has sent the greeting.
func (s *Subscriber) forward() {
	keepalive := time.NewTicker(s.opts.Keepalive)
	defer func() {
		keepalive.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.out:
			if !ok {
				// Dropped by the hub or hub stopped
				s.write(websocket.CloseMessage, nil)
				return
			}
			if err := s.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-keepalive.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Subscriber) write(kind int, data []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	return s.conn.WriteMessage(kind, data)
}
