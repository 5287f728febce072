// Package bus fans outbound frames to every socket attached to a session.
// A session usually has one socket, but concurrent connects with the same
// sessionId are legal and both peers then see the same stream.
package bus

import (
	"sync"

	"github.com/nextlevelbuilder/govoice/pkg/protocol"
)

// Sink receives frames destined for one socket. SendFrame must not block
// the publisher; gateway sockets enqueue to a buffered channel and report
// false when it is saturated.
type Sink interface {
	SendFrame(f *protocol.Frame) bool
}

// SessionBus groups sinks by session id and delivers frames in publish
// order to every member.
type SessionBus struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Sink
}

func New() *SessionBus {
	return &SessionBus{rooms: make(map[string]map[string]Sink)}
}

// Subscribe adds the sink to the session group under sinkID. Re-subscribing
// the same sinkID replaces the previous sink.
func (b *SessionBus) Subscribe(sessionID, sinkID string, s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room, ok := b.rooms[sessionID]
	if !ok {
		room = make(map[string]Sink)
		b.rooms[sessionID] = room
	}
	room[sinkID] = s
}

// Unsubscribe removes the sink and returns how many remain attached to the
// session, so the caller knows when the last socket is gone.
func (b *SessionBus) Unsubscribe(sessionID, sinkID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	room, ok := b.rooms[sessionID]
	if !ok {
		return 0
	}
	delete(room, sinkID)
	if len(room) == 0 {
		delete(b.rooms, sessionID)
		return 0
	}
	return len(room)
}

// Publish delivers the frame to every sink of the session and returns the
// number of sinks that accepted it.
func (b *SessionBus) Publish(sessionID string, f *protocol.Frame) int {
	b.mu.RLock()
	room := b.rooms[sessionID]
	sinks := make([]Sink, 0, len(room))
	for _, s := range room {
		sinks = append(sinks, s)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, s := range sinks {
		if s.SendFrame(f) {
			delivered++
		}
	}
	return delivered
}

// Count reports how many sinks are attached to the session.
func (b *SessionBus) Count(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[sessionID])
}
