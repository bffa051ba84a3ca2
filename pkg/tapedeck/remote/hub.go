package remote

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/retr0680/tapedeck/pkg/tapedeck/metrics"
	"github.com/retr0680/tapedeck/pkg/tapedeck/playlist"
)

// MessageType names the kind of a websocket message.
type MessageType string

const (
	// events pushed to clients
	MsgTypePlaylist MessageType = "playlist"
	MsgTypeTrack    MessageType = "track"
	MsgTypeProgress MessageType = "progress"
	MsgTypeState    MessageType = "state"
	MsgTypeVolume   MessageType = "volume"
	MsgTypeError    MessageType = "error"
	MsgTypePong     MessageType = "pong"

	// commands received from clients
	MsgTypePing     MessageType = "ping"
	MsgTypePlay     MessageType = "play"
	MsgTypePause    MessageType = "pause"
	MsgTypeToggle   MessageType = "toggle"
	MsgTypeNext     MessageType = "next"
	MsgTypePrevious MessageType = "previous"
	MsgTypeSeek     MessageType = "seek"
	MsgTypeSetVol   MessageType = "set_volume"
	MsgTypeSelect   MessageType = "select"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Message is the websocket envelope in both directions.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client is one websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans session events out to every connected websocket client. It implements
// playlist.Presenter so it can be plugged straight into a session.
type Hub struct {
	logger *zap.SugaredLogger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

// NewHub creates a hub. Call Run to start dispatching.
func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		logger:     logger.Named("hub"),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run dispatches registrations and broadcasts until ctx is done or Stop is called.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case data := <-h.broadcast:
			h.fanOut(data)

		case <-ctx.Done():
			h.cleanup()
			return

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop shuts the hub down, disconnecting every client.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

func (h *Hub) PlaylistChanged(snapshot playlist.Snapshot) {
	h.publish(MsgTypePlaylist, struct {
		Status statusDTO  `json:"status"`
		Tracks []trackDTO `json:"tracks"`
	}{newStatusDTO(snapshot), newTrackDTOs(snapshot)})
}

func (h *Hub) TrackSelected(index int, track playlist.Track) {
	h.publish(MsgTypeTrack, newTrackDTO(index, track, true))
}

func (h *Hub) ProgressChanged(progress playlist.Progress) {
	h.publish(MsgTypeProgress, newProgressDTO(progress))
}

func (h *Hub) StateChanged(state playlist.State) {
	h.publish(MsgTypeState, struct {
		State playlist.State `json:"state"`
	}{state})
}

func (h *Hub) VolumeChanged(volume float64) {
	h.publish(MsgTypeVolume, struct {
		Volume float64 `json:"volume"`
	}{volume})
}

// publish never blocks the caller; events are dropped while the hub is backed up.
func (h *Hub) publish(msgType MessageType, payload interface{}) {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		h.logger.Warnw("Failed to encode message", "type", msgType, "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Debugw("Hub backed up, dropping event", "type", msgType)
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	metrics.RemoteClientsConnected.Set(float64(count))
	h.logger.Debugw("Client connected", "remote", client.conn.RemoteAddr().String(), "clients", count)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.RemoteClientsConnected.Set(float64(count))
	h.logger.Debugw("Client disconnected", "remote", client.conn.RemoteAddr().String(), "clients", count)
}

func (h *Hub) fanOut(data []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			// slow consumer, drop it
			h.removeClient(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[*Client]bool)
	metrics.RemoteClientsConnected.Set(0)
}

// attach registers a new connection and starts its pumps. handle is called for every
// command the client sends.
func (h *Hub) attach(ctx context.Context, conn *websocket.Conn, handle func(ctx context.Context, msg *Message) error) {
	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(ctx, handle)
}

func (c *Client) readPump(ctx context.Context, handle func(ctx context.Context, msg *Message) error) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warnw("Websocket read error", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(MsgTypeError, errorResponse{Error: "invalid message format"})
			continue
		}

		if msg.Type == MsgTypePing {
			c.reply(MsgTypePong, nil)
			continue
		}

		if err := handle(ctx, &msg); err != nil {
			c.reply(MsgTypeError, errorResponse{Error: err.Error()})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply sends a message to this client only. Drops it when the client is backed up.
func (c *Client) reply(msgType MessageType, payload interface{}) {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	if !c.hub.clients[c] {
		return
	}

	select {
	case c.send <- data:
	default:
	}
}

func encodeMessage(msgType MessageType, payload interface{}) ([]byte, error) {
	msg := Message{Type: msgType, Timestamp: time.Now().UnixMilli()}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Data = data
	}

	return json.Marshal(msg)
}
