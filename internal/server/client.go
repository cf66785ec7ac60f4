package server

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"babelchat/internal/types"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client owns one websocket connection and drives its session state:
// anonymous until a name claim succeeds, then a member of whatever
// rooms it joins.
type Client struct {
	connID     uuid.UUID
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	send       chan *ServerMessage
	rooms      map[string]*Room
	roomsLock  sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		connID:     uuid.New(),
		conn:       conn,
		chatServer: cs,
		log:        l,
		send:       make(chan *ServerMessage, 256),
		rooms:      make(map[string]*Room),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(AckError(0, "invalid message format"))
			continue
		}

		switch {
		case msg.ChooseUsername != nil:
			c.handleChooseUsername(&msg)
		case msg.CreateRoom != nil:
			c.handleCreateRoom(&msg)
		case msg.Join != nil:
			c.handleJoin(&msg)
		case msg.Publish != nil:
			c.handlePublish(&msg)
		}
	}
}

// handleChooseUsername claims the display name. On success the client
// receives its ack, the room list, and is placed in the default room.
func (c *Client) handleChooseUsername(msg *ClientMessage) {
	req := msg.ChooseUsername
	if err := c.chatServer.presence.Claim(c.connID, req.Name, req.Lang); err != nil {
		c.queueMessage(AckError(msg.Id, err.Error()))
		return
	}

	c.queueMessage(AckOK(msg.Id))
	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: NowMillis()},
		RoomList:    c.chatServer.ListRooms(),
	})
	c.chatServer.broadcastUserList()

	// every named connection starts out in the default room
	if room, err := c.chatServer.JoinRoom(DefaultRoomId, c, ""); err == nil {
		c.announceJoin(room)
	}
}

func (c *Client) handleCreateRoom(msg *ClientMessage) {
	if _, ok := c.chatServer.presence.Lookup(c.connID); !ok {
		c.queueMessage(AckError(msg.Id, "username required"))
		return
	}

	req := msg.CreateRoom
	roomID, err := c.chatServer.CreateRoom(req.Name, req.IsPrivate, req.Password)
	if err != nil {
		c.queueMessage(AckError(msg.Id, err.Error()))
		return
	}

	c.queueMessage(AckRoom(msg.Id, roomID))
	c.chatServer.broadcastRoomList()
}

func (c *Client) handleJoin(msg *ClientMessage) {
	if _, ok := c.chatServer.presence.Lookup(c.connID); !ok {
		c.queueMessage(AckError(msg.Id, "username required"))
		return
	}

	req := msg.Join
	if c.getRoom(req.RoomId) != nil {
		// already a member, nothing to announce
		c.queueMessage(AckRoom(msg.Id, req.RoomId))
		return
	}

	room, err := c.chatServer.JoinRoom(req.RoomId, c, req.Password)
	if err != nil {
		c.queueMessage(AckError(msg.Id, err.Error()))
		return
	}

	c.queueMessage(AckRoom(msg.Id, room.id))
	c.announceJoin(room)
}

// announceJoin replays the room's history to the joiner, then records
// and broadcasts the SYSTEM join notice.
func (c *Client) announceJoin(room *Room) {
	user, ok := c.chatServer.presence.Lookup(c.connID)
	if !ok {
		return
	}

	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: NowMillis()},
		History:     c.chatServer.history.Replay(room.id),
	})

	notice := systemMessage(user.Username+" joined.", room.id)
	c.chatServer.history.Append(notice)
	room.broadcast(notice, "")
}

// handlePublish appends and fans out a message. Malformed or
// unauthorized sends are dropped without a response: no claimed name,
// whitespace-only text, unknown room, or not a member.
func (c *Client) handlePublish(msg *ClientMessage) {
	user, ok := c.chatServer.presence.Lookup(c.connID)
	if !ok {
		return
	}

	text := strings.TrimSpace(msg.Publish.Text)
	if text == "" {
		return
	}

	roomID := msg.Publish.RoomId
	if roomID == "" {
		roomID = DefaultRoomId
	}

	room := c.getRoom(roomID)
	if room == nil {
		return
	}

	m := types.Message{
		Author:    user.Username,
		Text:      text,
		Timestamp: NowMillis(),
		RoomId:    roomID,
	}

	c.chatServer.history.Append(m)
	c.chatServer.stats.Incr(metricMessagesSent)

	// the source language is detected from the text itself; the author's
	// preferred language says nothing about what language they typed
	room.broadcast(m, "")
}

// queueMessage hands a message to the write pump. A full buffer means
// the client is too slow or gone; the message is dropped.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// cleanup tears the session down: membership is removed before the
// leave notices go out, so no broadcast reaches this connection after
// its removal completes.
func (c *Client) cleanup() {
	// a stopped run loop no longer drains deRegisterChan
	select {
	case c.chatServer.deRegisterChan <- c:
	case <-c.chatServer.stop:
	}

	user, named := c.chatServer.presence.Lookup(c.connID)
	rooms := c.chatServer.LeaveAll(c)
	c.chatServer.presence.Release(c.connID)

	if named {
		for _, room := range rooms {
			notice := systemMessage(user.Username+" left.", room.id)
			c.chatServer.history.Append(notice)
			room.broadcast(notice, "")
		}
		c.chatServer.broadcastUserList()
	}

	c.stopClient()
}

func (c *Client) currentRooms() []*Room {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	rooms := make([]*Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (c *Client) delRoom(id string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	delete(c.rooms, id)
}

func (c *Client) addRoom(r *Room) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms[r.id] = r
}

func (c *Client) getRoom(id string) *Room {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	if room, ok := c.rooms[id]; ok {
		return room
	}

	return nil
}
