package dictaserv

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Subscriber is one websocket client of the status feed
type Subscriber struct {
	ID   uuid.UUID
	Addr string

	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.send) })
}

// Subscribers tracks the connected websocket clients.
type Subscribers struct {
	clients map[uuid.UUID]*Subscriber
	mu      sync.RWMutex
}

func NewSubscribers() *Subscribers {
	return &Subscribers{
		clients: make(map[uuid.UUID]*Subscriber),
	}
}

func (sl *Subscribers) Add(sub *Subscriber) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.clients[sub.ID] = sub
}

func (sl *Subscribers) Remove(id uuid.UUID) {
	sl.mu.Lock()
	sub, ok := sl.clients[id]
	delete(sl.clients, id)
	sl.mu.Unlock()
	if ok {
		sub.close()
	}
}

func (sl *Subscribers) Len() int {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return len(sl.clients)
}

// Broadcast queues data for every subscriber. Slow subscribers whose buffer
// is full miss the message.
func (sl *Subscribers) Broadcast(data []byte) {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	for id, sub := range sl.clients {
		select {
		case sub.send <- data:
		default:
			slog.Warn("Failed to send to subscriber - channel full", "subscriberID", id)
		}
	}
}

// CloseAll disconnects every subscriber.
func (sl *Subscribers) CloseAll() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	for id, sub := range sl.clients {
		sub.close()
		delete(sl.clients, id)
	}
}
