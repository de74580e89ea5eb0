package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/searchktools/conduit/core/logger"
)

var (
	ErrHubFull         = errors.New("websocket: max clients reached")
	ErrDuplicateClient = errors.New("websocket: client id already connected")
	ErrClientNotFound  = errors.New("websocket: client not found")
	ErrClientClosed    = errors.New("websocket: client closed")
	ErrSendBufferFull  = errors.New("websocket: send buffer full")
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
)

type Client struct {
	ID   string
	conn *websocket.Conn
	send chan Message
	done chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool
}

func newClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan Message, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues msg without blocking.
func (c *Client) Send(msg Message) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) SendText(text string) error {
	return c.Send(Message{OpCode: OpText, Payload: []byte(text)})
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
	})
}

func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

// MessageHandler receives every data message read from a client.
type MessageHandler func(client *Client, msg Message)

// HubConfig configures a Hub.
type HubConfig struct {
	MaxClients     int
	MaxMessageSize int64
	// PingInterval is how often clients are pinged; a client that does not
	// answer within two intervals is dropped. Zero disables pings.
	PingInterval time.Duration
	OnMessage    MessageHandler
}

// Hub tracks connected clients and rooms.
type Hub struct {
	cfg     HubConfig
	log     *slog.Logger
	clients sync.Map
	rooms   sync.Map

	current      atomic.Int64
	totalClients atomic.Int64
	messageCount atomic.Int64
}

func NewHub(cfg HubConfig, log *slog.Logger) *Hub {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 10000
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Hub{cfg: cfg, log: log.With(logger.Component("websocket"))}
}

// Serve registers conn as client id and pumps messages until the peer goes
// away or ctx ends. It blocks for the lifetime of the connection.
func (h *Hub) Serve(ctx context.Context, id string, conn *websocket.Conn) error {
	if h.current.Add(1) > int64(h.cfg.MaxClients) {
		h.current.Add(-1)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many clients"),
			time.Now().Add(time.Second))
		return fmt.Errorf("%w (%d)", ErrHubFull, h.cfg.MaxClients)
	}
	defer h.current.Add(-1)

	client := newClient(id, conn)
	if _, loaded := h.clients.LoadOrStore(id, client); loaded {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "duplicate client"),
			time.Now().Add(time.Second))
		return fmt.Errorf("%w: %s", ErrDuplicateClient, id)
	}
	h.totalClients.Add(1)
	h.log.Debug("client connected", slog.String("client", id))

	stop := context.AfterFunc(ctx, client.Close)
	defer func() {
		stop()
		h.unregister(client)
		client.Close()
		h.log.Debug("client disconnected", slog.String("client", id))
	}()

	go h.writePump(client)
	h.readPump(client)
	return nil
}

func (h *Hub) unregister(client *Client) {
	h.clients.CompareAndDelete(client.ID, client)
	h.rooms.Range(func(_, value any) bool {
		value.(*Room).Leave(client.ID)
		return true
	})
}

func (h *Hub) readPump(client *Client) {
	conn := client.conn
	if h.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageSize)
	}
	if h.cfg.PingInterval > 0 {
		conn.SetReadDeadline(time.Now().Add(2 * h.cfg.PingInterval))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * h.cfg.PingInterval))
		})
	}
	for {
		typ, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("read failed", slog.String("client", client.ID), logger.Error(err))
			}
			return
		}
		h.messageCount.Add(1)
		if h.cfg.OnMessage != nil {
			h.cfg.OnMessage(client, Message{OpCode: OpCode(typ), Payload: payload})
		}
	}
}

func (h *Hub) writePump(client *Client) {
	var ping <-chan time.Time
	if h.cfg.PingInterval > 0 {
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		select {
		case msg := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(int(msg.OpCode), msg.Payload); err != nil {
				client.Close()
				return
			}
		case <-ping:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				client.Close()
				return
			}
		case <-client.done:
			return
		}
	}
}

// Broadcast sends msg to every client, or to the members of room when room
// is not empty. Clients whose buffer is full miss the message.
func (h *Hub) Broadcast(msg Message, room string) {
	if room != "" {
		if r, ok := h.GetRoom(room); ok {
			r.Broadcast(msg)
		}
		return
	}
	h.clients.Range(func(_, value any) bool {
		value.(*Client).Send(msg)
		return true
	})
}

func (h *Hub) BroadcastText(text string, room string) {
	h.Broadcast(Message{OpCode: OpText, Payload: []byte(text)}, room)
}

func (h *Hub) BroadcastBinary(data []byte, room string) {
	h.Broadcast(Message{OpCode: OpBinary, Payload: data}, room)
}

func (h *Hub) SendTo(clientID string, msg Message) error {
	client, ok := h.GetClient(clientID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	return client.Send(msg)
}

func (h *Hub) GetClient(clientID string) (*Client, bool) {
	val, ok := h.clients.Load(clientID)
	if !ok {
		return nil, false
	}
	return val.(*Client), true
}

func (h *Hub) ClientCount() int {
	return int(h.current.Load())
}

// HubStats is a snapshot of hub counters.
type HubStats struct {
	TotalClients   int64 `json:"total_clients"`
	CurrentClients int   `json:"current_clients"`
	Messages       int64 `json:"messages_received"`
	Rooms          int   `json:"rooms"`
}

func (h *Hub) Stats() HubStats {
	return HubStats{
		TotalClients:   h.totalClients.Load(),
		CurrentClients: h.ClientCount(),
		Messages:       h.messageCount.Load(),
		Rooms:          h.RoomCount(),
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.clients.Range(func(_, value any) bool {
		value.(*Client).Close()
		return true
	})
}

type Room struct {
	Name    string
	clients sync.Map
	hub     *Hub
}

// CreateRoom returns the room called name, creating it if needed.
func (h *Hub) CreateRoom(name string) *Room {
	val, _ := h.rooms.LoadOrStore(name, &Room{Name: name, hub: h})
	return val.(*Room)
}

func (h *Hub) GetRoom(name string) (*Room, bool) {
	val, ok := h.rooms.Load(name)
	if !ok {
		return nil, false
	}
	return val.(*Room), true
}

func (h *Hub) DeleteRoom(name string) {
	h.rooms.Delete(name)
}

func (h *Hub) RoomCount() int {
	count := 0
	h.rooms.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (r *Room) Join(clientID string) error {
	client, ok := r.hub.GetClient(clientID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	r.clients.Store(clientID, client)
	return nil
}

func (r *Room) Leave(clientID string) {
	r.clients.Delete(clientID)
}

func (r *Room) Broadcast(msg Message) {
	r.clients.Range(func(_, value any) bool {
		value.(*Client).Send(msg)
		return true
	})
}

func (r *Room) BroadcastText(text string) {
	r.Broadcast(Message{OpCode: OpText, Payload: []byte(text)})
}

func (r *Room) ClientCount() int {
	count := 0
	r.clients.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (r *Room) ClientIDs() []string {
	ids := make([]string, 0)
	r.clients.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	return ids
}
