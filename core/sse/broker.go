package sse

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/searchktools/conduit/core/http"
)

// ErrTooManyClients is returned by Subscribe when the broker is full.
var ErrTooManyClients = http.NewSentinel(503, "Too many event stream clients")

// Client is one subscriber.
type Client struct {
	ID string
	// LastID is the Last-Event-ID the client reconnected with, if any.
	LastID string

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new SSE client
func NewClient(id string, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Client{
		ID:     id,
		events: make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}
}

// Close ends the client's stream.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Send sends an event to the client (non-blocking)
func (c *Client) Send(event Event) bool {
	if c.IsClosed() {
		return false
	}
	select {
	case c.events <- event:
		return true
	default:
		return false
	}
}

// BrokerConfig configures a Broker.
type BrokerConfig struct {
	// Namespace prefixes the IDs of published events.
	Namespace         string
	MaxClients        int
	ClientBuffer      int
	KeepaliveInterval time.Duration
}

// Broker manages SSE connections
type Broker struct {
	cfg     BrokerConfig
	clients sync.Map
	eventID atomic.Uint64

	current       atomic.Int64
	totalClients  atomic.Int64
	messagesCount atomic.Int64
	droppedCount  atomic.Int64
}

// NewBroker creates a new SSE broker
func NewBroker(cfg BrokerConfig) *Broker {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 10000
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 30 * time.Second
	}
	return &Broker{cfg: cfg}
}

// Register adds client. It fails when the broker is full or the ID is taken.
func (b *Broker) Register(client *Client) error {
	if b.current.Add(1) > int64(b.cfg.MaxClients) {
		b.current.Add(-1)
		return fmt.Errorf("%w (%d)", ErrTooManyClients, b.cfg.MaxClients)
	}
	if _, loaded := b.clients.LoadOrStore(client.ID, client); loaded {
		b.current.Add(-1)
		return fmt.Errorf("sse: client %q already subscribed", client.ID)
	}
	b.totalClients.Add(1)
	return nil
}

// Unregister removes and closes client.
func (b *Broker) Unregister(client *Client) {
	if b.clients.CompareAndDelete(client.ID, client) {
		b.current.Add(-1)
	}
	client.Close()
}

func (b *Broker) nextID() string {
	id := b.eventID.Add(1)
	if b.cfg.Namespace == "" {
		return fmt.Sprint(id)
	}
	return fmt.Sprintf("%s-%d", b.cfg.Namespace, id)
}

// Publish stamps event with the next ID unless it has one and sends it to
// every client. Clients whose buffer is full miss it.
func (b *Broker) Publish(event Event) {
	if event.ID == "" {
		event.ID = b.nextID()
	}
	b.messagesCount.Add(1)
	b.clients.Range(func(_, value any) bool {
		if !value.(*Client).Send(event) {
			b.droppedCount.Add(1)
		}
		return true
	})
}

// Send publishes an event of eventType.
func (b *Broker) Send(eventType, data string) {
	b.Publish(Event{Event: eventType, Data: data})
}

// PublishToClient sends event to one client. It reports false when the
// client is unknown or its buffer is full.
func (b *Broker) PublishToClient(clientID string, event Event) bool {
	client, ok := b.GetClient(clientID)
	if !ok {
		return false
	}
	if event.ID == "" {
		event.ID = b.nextID()
	}
	return client.Send(event)
}

func (b *Broker) GetClient(clientID string) (*Client, bool) {
	val, ok := b.clients.Load(clientID)
	if !ok {
		return nil, false
	}
	return val.(*Client), true
}

func (b *Broker) ClientCount() int {
	return int(b.current.Load())
}

// BrokerStats is a snapshot of broker counters.
type BrokerStats struct {
	Namespace       string `json:"namespace"`
	TotalClients    int64  `json:"total_clients"`
	CurrentClients  int    `json:"current_clients"`
	MessagesSent    int64  `json:"messages_sent"`
	MessagesDropped int64  `json:"messages_dropped"`
	LastEventID     uint64 `json:"event_id"`
}

func (b *Broker) Stats() BrokerStats {
	return BrokerStats{
		Namespace:       b.cfg.Namespace,
		TotalClients:    b.totalClients.Load(),
		CurrentClients:  b.ClientCount(),
		MessagesSent:    b.messagesCount.Load(),
		MessagesDropped: b.droppedCount.Load(),
		LastEventID:     b.eventID.Load(),
	}
}

// Subscribe returns an event stream response for a new client. The client is
// registered when the stream starts and removed when the peer goes away.
func (b *Broker) Subscribe(clientID, lastID string) (*http.Response, error) {
	if b.ClientCount() >= b.cfg.MaxClients {
		return nil, ErrTooManyClients
	}
	return Stream(func(ctx context.Context, w *Writer) error {
		client := NewClient(clientID, b.cfg.ClientBuffer)
		client.LastID = lastID
		if err := b.Register(client); err != nil {
			return err
		}
		defer b.Unregister(client)
		return b.pump(ctx, client, w)
	}), nil
}

func (b *Broker) pump(ctx context.Context, client *Client, w *Writer) error {
	if err := w.Send(Event{Event: "connected", Data: "client_id:" + client.ID}); err != nil {
		return err
	}
	ticker := time.NewTicker(b.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case event := <-client.events:
			if err := w.Send(event); err != nil {
				return err
			}
		case <-ticker.C:
			if err := w.Comment("keepalive"); err != nil {
				return err
			}
		case <-client.done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Close ends every client's stream.
func (b *Broker) Close() {
	b.clients.Range(func(_, value any) bool {
		value.(*Client).Close()
		return true
	})
}
