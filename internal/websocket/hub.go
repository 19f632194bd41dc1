package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/strandart/api/internal/gpu"
	"github.com/strandart/api/internal/model"
	"github.com/strandart/api/internal/relay"
)

// preprocessTimeout bounds one home-GPU preprocessing pass. It is generous
// because the pass runs synchronously on the box.
const preprocessTimeout = 60 * time.Second

// WakeDispatcher queues a detached GPU wake-up. Failures are the dispatcher's
// problem; nothing is reported back to the client.
type WakeDispatcher interface {
	DispatchWake(ctx context.Context) error
}

// WakeLimiter throttles wake requests per subject. The hub sits outside the
// HTTP middleware chain, so the limit is enforced here instead.
type WakeLimiter interface {
	AllowWake(ctx context.Context, subject string) bool
}

// Client is one connected browser session: a WebSocket connection, a buffered
// send channel drained by the writer goroutine, and the relay session that
// owns its generation attempts.
type Client struct {
	SessionID string
	UserID    string
	Conn      *websocket.Conn
	Send      chan []byte

	session    *relay.Session
	mu         sync.Mutex
	generating bool
	closed     bool
}

// Hub tracks live client connections and dispatches their messages. Each
// client's generation runs in its own goroutine; the hub shares no per-job
// state between clients.
type Hub struct {
	router    *gpu.Router
	wake      WakeDispatcher
	wakeLimit WakeLimiter
	validate  *validator.Validate
	opts      relay.Options

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates a hub over the GPU router. wakeLimit may be nil.
func NewHub(router *gpu.Router, wake WakeDispatcher, wakeLimit WakeLimiter, validate *validator.Validate, opts relay.Options) *Hub {
	return &Hub{
		router:    router,
		wake:      wake,
		wakeLimit: wakeLimit,
		validate:  validate,
		opts:      opts,
		clients:   make(map[string]*Client),
	}
}

// ClientCount returns the number of live connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleConnection services one WebSocket connection until it closes
func (h *Hub) HandleConnection(c *websocket.Conn, userID string) {
	client := h.newClient(c, userID)

	h.mu.Lock()
	h.clients[client.SessionID] = client
	h.mu.Unlock()
	log.Printf("Client connected: %s", shortID(client.SessionID))

	defer func() {
		client.session.Cancel()
		h.mu.Lock()
		delete(h.clients, client.SessionID)
		h.mu.Unlock()
		// A generation or preprocess goroutine may still emit; closeSend
		// marks the client dead so late emits become no-ops instead of
		// sends on a closed channel.
		client.closeSend()
		log.Printf("Client disconnected: %s", shortID(client.SessionID))
	}()

	go client.writeLoop()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		var msg model.WSClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Dropping malformed message from %s: %v", shortID(client.SessionID), err)
			continue
		}

		h.dispatch(client, &msg)
	}
}

// newClient builds a Client and its relay session
func (h *Hub) newClient(c *websocket.Conn, userID string) *Client {
	client := &Client{
		SessionID: uuid.New().String(),
		UserID:    userID,
		Conn:      c,
		Send:      make(chan []byte, 256),
	}
	client.session = relay.NewSession(h.router, client, h.opts)
	return client
}

// dispatch routes one inbound message. Generation and preprocessing run in
// their own goroutines so the reader loop keeps consuming; cancel has to get
// through while a generation is live.
func (h *Hub) dispatch(client *Client, msg *model.WSClientMessage) {
	switch msg.Event {
	case model.WSEventWakeGPU:
		if h.wakeLimit != nil && !h.wakeLimit.AllowWake(context.Background(), client.wakeSubject()) {
			client.Status("Wake-up limit reached, try again later")
			return
		}
		log.Printf("Wake GPU requested by %s", shortID(client.SessionID))
		if err := h.wake.DispatchWake(context.Background()); err != nil {
			log.Printf("Failed to dispatch wake task: %v", err)
		}

	case model.WSEventPreprocessImage:
		req, ok := h.decodeGeneration(client, msg.Data)
		if !ok {
			return
		}
		go h.preprocess(client, req)

	case model.WSEventStartGeneration:
		req, ok := h.decodeGeneration(client, msg.Data)
		if !ok {
			return
		}
		if !client.tryBeginGeneration() {
			client.Status("A generation is already running for this session")
			return
		}
		go func() {
			defer client.endGeneration()
			if err := client.session.StartGeneration(context.Background(), req); err != nil {
				log.Printf("Generation for %s ended with: %v", shortID(client.SessionID), err)
			}
		}()

	case model.WSEventCancelGeneration:
		if client.session.Cancel() {
			client.Status("Cancelling generation...")
		} else {
			client.Status("No generation in progress")
		}

	default:
		log.Printf("Unknown event %q from %s", msg.Event, shortID(client.SessionID))
	}
}

func (h *Hub) decodeGeneration(client *Client, data json.RawMessage) (*model.GenerationRequest, bool) {
	var req model.GenerationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		client.Status("Invalid generation request")
		return nil, false
	}
	if err := h.validate.Struct(&req); err != nil {
		client.Status("Invalid generation parameters")
		return nil, false
	}
	return &req, true
}

// preprocess runs the optional home-GPU preprocessing pass. Whatever happens,
// the client ends up able to hit Generate.
func (h *Hub) preprocess(client *Client, req *model.GenerationRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), preprocessTimeout)
	defer cancel()

	client.Status("Pre-processing image...")

	result, err := h.router.Preprocess(ctx, req.ImageData, &req.Params)
	if err != nil {
		log.Printf("Preprocess failed for %s: %v", shortID(client.SessionID), err)
	}
	if err != nil || result == nil {
		client.Status("Image loaded! Click Generate to start.")
		return
	}

	client.Status("Ready! Image cached on home GPU.")
	client.send(model.WSEventPreprocessingComplete, model.WSPreprocessingPayload{
		CacheReady: true,
		Cached:     result.Cached,
		Provider:   model.ProviderHome,
	})
}

// Status implements relay.Emitter
func (c *Client) Status(msg string) {
	c.send(model.WSEventStatus, model.WSStatusPayload{Msg: msg})
}

// Progress implements relay.Emitter
func (c *Client) Progress(percent float64) {
	c.send(model.WSEventProgress, model.WSProgressPayload{Percent: percent})
}

// FinalSequence implements relay.Emitter
func (c *Client) FinalSequence(output map[string]interface{}) {
	c.send(model.WSEventFinalSequence, output)
}

func (c *Client) send(event string, data interface{}) {
	payload, err := json.Marshal(model.WSServerMessage{Event: event, Data: data})
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", event, err)
		return
	}
	// The mutex serializes emits against closeSend: an emit either lands
	// before the channel closes or sees the closed flag and drops.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	// Drop rather than block when the client stops draining.
	select {
	case c.Send <- payload:
	default:
	}
}

// closeSend marks the client closed and shuts the send channel so the writer
// goroutine exits. Safe to call more than once. Emitters racing this call
// drop their event instead of panicking.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// wakeSubject is the identity wake throttling counts against
func (c *Client) wakeSubject() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.SessionID
}

func (c *Client) tryBeginGeneration() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generating {
		return false
	}
	c.generating = true
	return true
}

func (c *Client) endGeneration() {
	c.mu.Lock()
	c.generating = false
	c.mu.Unlock()
}

// writeLoop drains the send channel onto the wire and keeps the connection
// alive with pings.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
