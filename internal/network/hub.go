package network

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/PandemicSim/internal/engine"
	"github.com/MRamiBalles/PandemicSim/internal/events"
	"github.com/MRamiBalles/PandemicSim/internal/platform/logger"
	"github.com/MRamiBalles/PandemicSim/internal/platform/metrics"
)

// MessageType tags frames sent to viewers.
type MessageType string

const (
	MsgTypeSnapshot MessageType = "SNAPSHOT"
	MsgTypeEvent    MessageType = "EVENT"
	MsgTypeAck      MessageType = "ACK"
	MsgTypeError    MessageType = "ERROR"
)

// Message is the envelope of every frame sent to a viewer.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
	logger     *logger.Logger

	controller *Controller
	maxClients int
	sendBuffer int
	upgrader   websocket.Upgrader
}

// NewHub initializes a new WebSocket Hub. maxClients <= 0 means unlimited.
func NewHub(controller *Controller, log *logger.Logger, maxClients, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     log,
		controller: controller,
		maxClients: maxClients,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // viewers are served from other origins in development
			},
		},
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub shutting down.")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.Get().RecordWSConnection(1)
			h.logger.Info("New WebSocket viewer connected")
			// Paused runs produce no new ticks; greet with the current state.
			if h.controller != nil {
				h.sendTo(client, Message{Type: MsgTypeSnapshot, Payload: h.controller.Engine().Snapshot()})
			}
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Info("WebSocket viewer disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					metrics.Get().RecordWSMessage(false)
				default:
					h.drop(client)
					h.logger.Warn("Dropped slow WebSocket viewer")
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes a client. Caller holds h.mu.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	metrics.Get().RecordWSConnection(-1)
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast serializes msg and queues it for every connected client.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to serialize frame for WebSocket broadcast: " + err.Error())
		return
	}
	select {
	case h.broadcast <- payload:
	case <-h.done:
	}
}

// BroadcastEvent sends one event to all connected clients.
func (h *Hub) BroadcastEvent(event events.Event) {
	h.Broadcast(Message{Type: MsgTypeEvent, Payload: event})
}

// sendTo queues msg for a single client if it is still connected.
func (h *Hub) sendTo(client *Client, msg Message) {
	msg.Timestamp = time.Now().Unix()
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to serialize reply frame: " + err.Error())
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client] {
		return
	}
	select {
	case client.send <- payload:
		metrics.Get().RecordWSMessage(false)
	default:
	}
}

// ServeWs upgrades an HTTP request to a viewer connection.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	if h.maxClients > 0 && h.ClientCount() >= h.maxClients {
		http.Error(w, "too many viewers", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.Get().RecordWSError()
		h.logger.Error("Failed to upgrade websocket connection: " + err.Error())
		return
	}

	client := NewClient(h, conn)
	client.Register()

	go client.WritePump()
	go client.ReadPump()
}

// StartSnapshotPoller broadcasts a snapshot whenever the engine has moved to
// a new tick or a new run.
func (h *Hub) StartSnapshotPoller(ctx context.Context, eng *engine.Engine, interval time.Duration) {
	go func() {
		poll := time.NewTicker(interval)
		defer poll.Stop()

		lastRun, lastTick := "", int64(-1)
		for {
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
				if h.ClientCount() == 0 {
					continue
				}
				runID, tick := eng.RunID(), eng.Tick()
				if runID == lastRun && tick == lastTick {
					continue
				}
				snap := eng.Snapshot()
				lastRun, lastTick = snap.RunID, snap.Tick
				h.Broadcast(Message{Type: MsgTypeSnapshot, Payload: snap})
			}
		}
	}()
}

// StartEventPoller polls the EventLog and pushes new events to the Hub.
// This lets the Hub run independently from the Engine's step loop while
// picking up the same events.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog, interval time.Duration) {
	go func() {
		poll := time.NewTicker(interval)
		defer poll.Stop()

		lastProcessed := eventLog.Len()
		for {
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
				newEvents := eventLog.Since(lastProcessed)
				lastProcessed += len(newEvents)
				for _, event := range newEvents {
					h.BroadcastEvent(event)
				}
			}
		}
	}()
}
