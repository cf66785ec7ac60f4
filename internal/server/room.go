package server

import (
	"context"
	"log"
	"sync"
	"time"

	"babelchat/internal/types"
)

type Room struct {
	id           string
	name         string
	isPrivate    bool
	passwordHash []byte
	createdAt    time.Time
	// isDefault marks the global room, which never expires
	isDefault  bool
	cs         *ChatServer
	clients    map[*Client]struct{}
	clientLock sync.RWMutex
	log        *log.Logger
}

func (r *Room) Info() types.RoomInfo {
	return types.RoomInfo{
		Name:      r.name,
		IsPrivate: r.isPrivate,
		CreatedAt: r.createdAt,
	}
}

// addClient reports whether the client was newly added.
func (r *Room) addClient(c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; ok {
		return false
	}

	r.clients[c] = struct{}{}
	c.addRoom(r)
	return true
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.delRoom(r.id)
}

// evictAll empties the membership set without notifying anyone; used
// when the room expires.
func (r *Room) evictAll() {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	for c := range r.clients {
		delete(r.clients, c)
		c.delRoom(r.id)
	}
}

func (r *Room) memberCount() int {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	return len(r.clients)
}

// broadcast delivers msg to every member. The member set is snapshotted
// up front; joins and leaves during delivery do not change this call's
// recipients. Each recipient gets its own goroutine so a slow or failing
// translation for one member never delays the others. Delivery to a
// client that disconnected in the meantime is a silent no-op.
func (r *Room) broadcast(msg types.Message, sourceLang string) {
	r.clientLock.RLock()
	members := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		members = append(members, c)
	}
	r.clientLock.RUnlock()

	for _, c := range members {
		go func(c *Client) {
			out := msg
			if user, ok := r.cs.presence.Lookup(c.connID); ok && user.Language != "" {
				out.Text = r.cs.translator.TranslateFrom(context.Background(), msg.Text, sourceLang, user.Language)
			}

			c.queueMessage(&ServerMessage{
				BaseMessage: BaseMessage{Timestamp: out.Timestamp},
				ChatMessage: &out,
			})
		}(c)
	}
}
