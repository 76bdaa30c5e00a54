package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// FeedConfig configures the websocket feed.
type FeedConfig struct {
	// BufferSize is the number of messages queued per subscriber before the
	// subscriber is dropped.
	BufferSize int
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultFeedConfig returns default feed configuration.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		BufferSize:   32,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// feedEvent is the JSON frame pushed to subscribers.
type feedEvent struct {
	Type   string    `json:"type"`
	SentAt time.Time `json:"sent_at"`
	Message
}

// Feed broadcasts messages to websocket subscribers. Send never blocks on a
// subscriber: a subscriber whose queue is full is disconnected.
type Feed struct {
	config   FeedConfig
	upgrader websocket.Upgrader

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
	wg     sync.WaitGroup
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.send) })
}

// NewFeed creates a feed. A nil config uses DefaultFeedConfig.
func NewFeed(config *FeedConfig) *Feed {
	cfg := DefaultFeedConfig()
	if config != nil {
		cfg = *config
	}
	return &Feed{
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

var _ Notifier = (*Feed)(nil)

// Send implements Notifier.
func (f *Feed) Send(_ context.Context, msg Message) error {
	payload, err := json.Marshal(feedEvent{Type: "alert", SentAt: time.Now().UTC(), Message: msg})
	if err != nil {
		return fmt.Errorf("marshal feed event: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("feed closed")
	}
	for s := range f.subs {
		select {
		case s.send <- payload:
		default:
			log.Warn().Msg("dropping slow feed subscriber")
			delete(f.subs, s)
			s.stop()
		}
	}
	return nil
}

// Subscribers returns the number of connected subscribers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// ServeHTTP upgrades the request to a websocket subscription.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("feed upgrade failed")
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, f.config.BufferSize)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close()
		return
	}
	f.subs[s] = struct{}{}
	f.wg.Add(2)
	f.mu.Unlock()

	go f.writeLoop(s)
	go f.readLoop(s)
}

// writeLoop drains the subscriber queue and keeps the connection alive.
func (f *Feed) writeLoop(s *subscriber) {
	defer f.wg.Done()
	ticker := time.NewTicker(f.config.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				f.remove(s)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.remove(s)
				return
			}
		}
	}
}

// readLoop discards inbound frames until the peer goes away.
func (f *Feed) readLoop(s *subscriber) {
	defer f.wg.Done()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			f.remove(s)
			return
		}
	}
}

func (f *Feed) remove(s *subscriber) {
	f.mu.Lock()
	delete(f.subs, s)
	f.mu.Unlock()
	s.stop()
}

// Close disconnects every subscriber and waits for their goroutines.
func (f *Feed) Close() error {
	f.mu.Lock()
	f.closed = true
	for s := range f.subs {
		delete(f.subs, s)
		s.stop()
	}
	f.mu.Unlock()

	f.wg.Wait()
	return nil
}
