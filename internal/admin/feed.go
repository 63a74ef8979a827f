package admin

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"courierwatch/internal/fleet"
	"courierwatch/internal/logging"
	"courierwatch/internal/risk"
	"courierwatch/internal/tracker"
)

const (
	feedBuffer       = 8
	feedWriteTimeout = 5 * time.Second
)

// feedMessage is the JSON frame pushed to feed clients once per tick.
type feedMessage struct {
	Type     string              `json:"type"`
	TickID   string              `json:"tick_id"`
	Seq      uint64              `json:"seq"`
	At       time.Time           `json:"at"`
	Summary  tracker.Summary     `json:"summary"`
	Alerts   []risk.Alert        `json:"alerts"`
	Entities []fleet.EntityState `json:"entities"`
}

type feedClient struct {
	send chan []byte
}

// Feed pushes every publication to connected websocket clients. Slow
// clients miss frames instead of delaying the tick.
type Feed struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*feedClient]struct{}
	last     []byte
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		clients:  make(map[*feedClient]struct{}),
	}
}

// Clients returns the number of connected clients.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// WritePublication implements tracker.PublicationWriter.
func (f *Feed) WritePublication(p tracker.Publication) error {
	msg, err := json.Marshal(feedMessage{
		Type:     "publication",
		TickID:   p.ID,
		Seq:      p.Seq,
		At:       p.At,
		Summary:  tracker.Summarize(&p),
		Alerts:   p.Alerts,
		Entities: p.Entities,
	})
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = msg
	for c := range f.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
	return nil
}

// ServeHTTP upgrades the connection and streams publications until the
// client goes away.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("feed upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	c := &feedClient{send: make(chan []byte, feedBuffer)}
	f.mu.Lock()
	if f.last != nil {
		c.send <- f.last
	}
	f.clients[c] = struct{}{}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.clients, c)
		f.mu.Unlock()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug("feed client write failed", "err", err)
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
