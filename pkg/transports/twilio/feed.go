package twilio

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// FeedEvent is one entry on the live call-event feed. Transcripts are
// redacted before publication.
type FeedEvent struct {
	Type       string    `json:"type"`
	CallSID    string    `json:"call_sid"`
	Transcript string    `json:"transcript,omitempty"`
	Digits     string    `json:"digits,omitempty"`
	Status     string    `json:"status,omitempty"`
	At         time.Time `json:"at"`
}

// eventFeed broadcasts call events to websocket subscribers. A slow
// subscriber loses events rather than backpressuring webhook handling.
type eventFeed struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	conn   *websocket.Conn
	sendCh chan []byte
	closed atomic.Bool
}

func newEventFeed(checkOrigin func(*http.Request) bool) *eventFeed {
	return &eventFeed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[*feedClient]struct{}),
	}
}

func (f *eventFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &feedClient{
		conn:   conn,
		sendCh: make(chan []byte, 64),
	}
	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.mu.Unlock()

	go c.writeLoop()

	// Subscribers are read-only; the read loop only notices disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	f.remove(c)
}

func (f *eventFeed) publish(ev FeedEvent) {
	f.mu.Lock()
	if len(f.clients) == 0 {
		f.mu.Unlock()
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		f.mu.Unlock()
		return
	}
	for c := range f.clients {
		select {
		case c.sendCh <- b:
		default:
		}
	}
	f.mu.Unlock()
}

func (f *eventFeed) remove(c *feedClient) {
	f.mu.Lock()
	delete(f.clients, c)
	f.mu.Unlock()
	c.close()
}

func (f *eventFeed) closeAll() {
	f.mu.Lock()
	clients := make([]*feedClient, 0, len(f.clients))
	for c := range f.clients {
		clients = append(clients, c)
	}
	f.clients = make(map[*feedClient]struct{})
	f.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (f *eventFeed) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (c *feedClient) writeLoop() {
	for msg := range c.sendCh {
		_ = c.conn.WriteMessage(websocket.TextMessage, msg)
	}
}

func (c *feedClient) close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.sendCh)
	}
	_ = c.conn.Close()
}
