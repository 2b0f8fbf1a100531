// Package events pushes circulation events to connected websocket clients.
// A reservation desk listens for copy.available to know when a queued request
// can be served; the service itself does not act on reservations when a copy
// comes back.
package events

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	TypeLoanIssued    = "loan.issued"
	TypeLoanReturned  = "loan.returned"
	TypeLoanRenewed   = "loan.renewed"
	TypeCopyAvailable = "copy.available"
)

// Event carries book-level state only. Borrower and loan identities stay off
// the stream.
type Event struct {
	Type                string    `json:"type"`
	BookID              string    `json:"book_id"`
	AvailableCopies     int       `json:"available_copies"`
	PendingReservations int64     `json:"pending_reservations,omitempty"`
	At                  time.Time `json:"at"`
}

// Publisher receives events after the transaction that produced them commits.
type Publisher interface {
	Publish(ev Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}

// Hub fans events out to websocket clients. Each client has its own buffered
// queue drained by a writer goroutine, so Publish never waits on the network.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]*client
}

// sendBuffer is how many events a client may fall behind before it is dropped.
const sendBuffer = 32

const writeWait = 2 * time.Second

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *client) writeLoop() {
	defer c.conn.Close()
	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*client)}
}

// Add subscribes ws and starts its writer. The hub owns closing ws from here on.
func (h *Hub) Add(ws *websocket.Conn) {
	c := &client{conn: ws, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[ws] = c
	h.mu.Unlock()
	go c.writeLoop()
}

// Remove unsubscribes ws. Its writer closes the connection once the queue is drained.
func (h *Hub) Remove(ws *websocket.Conn) {
	h.mu.Lock()
	h.drop(ws)
	h.mu.Unlock()
}

// drop must be called with h.mu held.
func (h *Hub) drop(ws *websocket.Conn) {
	if c, ok := h.clients[ws]; ok {
		delete(h.clients, ws)
		close(c.send)
	}
}

// Publish queues ev for every client. A client whose queue is full is dropped.
func (h *Hub) Publish(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[ERROR] Hub.Publish: marshal %s: %v", ev.Type, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ws, c := range h.clients {
		select {
		case c.send <- b:
		default:
			log.Printf("[WARN] Hub.Publish: dropping slow client")
			h.drop(ws)
		}
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
