package server

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"babelchat/internal/history"
	"babelchat/internal/presence"
	"babelchat/internal/stats"
	"babelchat/internal/types"

	"github.com/teris-io/shortid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultRoomId is the room every named connection is placed in. It
// exists for the lifetime of the process and is exempt from expiry.
const DefaultRoomId = "global"

const (
	metricActiveConnections = "ActiveConnections"
	metricActiveRooms       = "ActiveRooms"
	metricMessagesSent      = "MessagesSent"
)

// MessageTranslator produces a per-recipient copy of a message's text.
// Implementations must degrade to the original text on failure.
type MessageTranslator interface {
	TranslateFrom(ctx context.Context, text, source, target string) string
}

type ChatServer struct {
	log            *log.Logger
	presence       *presence.Registry
	history        *history.Store
	translator     MessageTranslator
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	rooms          map[string]*Room
	roomsLock      sync.RWMutex
	retention      time.Duration
	sweepInterval  time.Duration
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, pr *presence.Registry, hs *history.Store,
	tr MessageTranslator, su stats.StatsProvider, retention, sweepInterval time.Duration) (*ChatServer, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}
	if sweepInterval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive")
	}

	cs := &ChatServer{
		log:            logger,
		presence:       pr,
		history:        hs,
		translator:     tr,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		rooms:          make(map[string]*Room),
		retention:      retention,
		sweepInterval:  sweepInterval,
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	su.RegisterMetric(metricActiveConnections)
	su.RegisterMetric(metricActiveRooms)
	su.RegisterMetric(metricMessagesSent)

	cs.rooms[DefaultRoomId] = &Room{
		id:        DefaultRoomId,
		name:      "Global",
		createdAt: time.Now(),
		isDefault: true,
		cs:        cs,
		clients:   make(map[*Client]struct{}),
		log:       logger,
	}

	return cs, nil
}

func (cs *ChatServer) Run() {
	ticker := time.NewTicker(cs.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-cs.RegisterChan:
			cs.addClient(client)
			cs.stats.Incr(metricActiveConnections)
		case client := <-cs.deRegisterChan:
			cs.removeClient(client)
			cs.stats.Decr(metricActiveConnections)
		case now := <-ticker.C:
			cs.sweep(now)
		case <-cs.stop:
			close(cs.done)
			return
		}
	}
}

func (cs *ChatServer) sweep(now time.Time) {
	if n := cs.sweepExpiredRooms(now); n > 0 {
		cs.log.Printf("expired %d rooms", n)
		cs.broadcastRoomList()
	}
	if n := cs.history.SweepExpired(now); n > 0 {
		cs.log.Printf("evicted %d expired messages", n)
	}
}

// CreateRoom registers a new room and returns its identifier. Private
// rooms store a bcrypt hash of the password, never the password itself.
func (cs *ChatServer) CreateRoom(name string, isPrivate bool, password string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyRoomName
	}
	if isPrivate && password == "" {
		return "", ErrPasswordRequired
	}

	id, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate room id: %w", err)
	}

	var hash []byte
	if isPrivate {
		hash, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return "", fmt.Errorf("hash password: %w", err)
		}
	}

	room := &Room{
		id:           id,
		name:         name,
		isPrivate:    isPrivate,
		passwordHash: hash,
		createdAt:    time.Now(),
		cs:           cs,
		clients:      make(map[*Client]struct{}),
		log:          cs.log,
	}

	cs.roomsLock.Lock()
	cs.rooms[id] = room
	cs.roomsLock.Unlock()

	cs.stats.Incr(metricActiveRooms)
	cs.log.Printf("created room %q (%s)", name, id)

	return id, nil
}

func (cs *ChatServer) GetRoom(roomID string) (*Room, bool) {
	cs.roomsLock.RLock()
	defer cs.roomsLock.RUnlock()

	room, ok := cs.rooms[roomID]
	return room, ok
}

// JoinRoom validates the room and, for private rooms, the password,
// then adds the client to the membership set.
func (cs *ChatServer) JoinRoom(roomID string, c *Client, password string) (*Room, error) {
	room, ok := cs.GetRoom(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}

	if room.isPrivate {
		if err := bcrypt.CompareHashAndPassword(room.passwordHash, []byte(password)); err != nil {
			return nil, ErrWrongPassword
		}
	}

	room.addClient(c)
	return room, nil
}

// LeaveAll removes the client from every room it is a member of and
// returns those rooms.
func (cs *ChatServer) LeaveAll(c *Client) []*Room {
	rooms := c.currentRooms()
	for _, room := range rooms {
		room.removeClient(c)
	}
	return rooms
}

// ListRooms returns the public metadata of every live room.
func (cs *ChatServer) ListRooms() map[string]types.RoomInfo {
	cs.roomsLock.RLock()
	defer cs.roomsLock.RUnlock()

	rooms := make(map[string]types.RoomInfo, len(cs.rooms))
	for id, room := range cs.rooms {
		rooms[id] = room.Info()
	}
	return rooms
}

// sweepExpiredRooms drops every non-default room past the retention
// window. Members are evicted silently.
func (cs *ChatServer) sweepExpiredRooms(now time.Time) int {
	cutoff := now.Add(-cs.retention)

	cs.roomsLock.Lock()
	var expired []*Room
	for id, room := range cs.rooms {
		if room.isDefault {
			continue
		}
		if room.createdAt.Before(cutoff) {
			delete(cs.rooms, id)
			expired = append(expired, room)
		}
	}
	cs.roomsLock.Unlock()

	for _, room := range expired {
		room.evictAll()
		cs.stats.Decr(metricActiveRooms)
		cs.log.Printf("room %q (%s) expired", room.name, room.id)
	}

	return len(expired)
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	delete(cs.clients, c)
}

// broadcastRoomList pushes the current room list to every connection.
func (cs *ChatServer) broadcastRoomList() {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: NowMillis()},
		RoomList:    cs.ListRooms(),
	}

	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	for c := range cs.clients {
		c.queueMessage(msg)
	}
}

// broadcastUserList pushes the current display names to every
// connection.
func (cs *ChatServer) broadcastUserList() {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: NowMillis()},
		UserList:    cs.presence.Names(),
	}

	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	for c := range cs.clients {
		c.queueMessage(msg)
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
