package host

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wrale/wrale-adplay/api/types/v1alpha1"
	"github.com/wrale/wrale-adplay/internal/wadplayd/lifecycle"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Subscribers only send control frames
	maxMessageSize = 512
)

// connection is a status subscriber
type connection struct {
	id     uuid.UUID
	ws     *websocket.Conn
	send   chan []byte
	hub    *Hub
	logger zerolog.Logger
}

func (c *connection) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		if err := c.ws.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("error closing websocket connection")
		}
	}()

	c.ws.SetReadLimit(maxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

func (c *connection) write(mt int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(mt, payload)
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.logger.Warn().Err(err).Msg("failed to write status message")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

// Hub fans status changes out to websocket subscribers
type Hub struct {
	connections map[*connection]bool
	register    chan *connection
	unregister  chan *connection
	broadcast   chan []byte
	done        chan struct{}
	logger      zerolog.Logger
	now         func() time.Time
}

// NewHub creates a hub; Run must be called for it to deliver messages
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[*connection]bool),
		register:    make(chan *connection),
		unregister:  make(chan *connection),
		broadcast:   make(chan []byte, 64),
		done:        make(chan struct{}),
		logger:      logger.With().Str("component", "status-hub").Logger(),
		now:         time.Now,
	}
}

// Run delivers messages until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.connections {
				close(c.send)
				delete(h.connections, c)
			}
			return
		case c := <-h.register:
			h.connections[c] = true
			h.logger.Debug().
				Str("subscriber", c.id.String()).
				Int("connections", len(h.connections)).
				Msg("status subscriber connected")
		case c := <-h.unregister:
			if _, ok := h.connections[c]; ok {
				delete(h.connections, c)
				close(c.send)
				h.logger.Debug().
					Str("subscriber", c.id.String()).
					Int("connections", len(h.connections)).
					Msg("status subscriber disconnected")
			}
		case m := <-h.broadcast:
			for c := range h.connections {
				select {
				case c.send <- m:
				default:
					close(c.send)
					delete(h.connections, c)
				}
			}
		}
	}
}

func (h *Hub) message(cycleID uuid.UUID, status lifecycle.Status) ([]byte, error) {
	return json.Marshal(v1alpha1.StatusMessage{
		TypeMeta: v1alpha1.TypeMeta{
			Kind:       "StatusMessage",
			APIVersion: v1alpha1.APIVersion,
		},
		CycleID:   cycleID,
		Status:    status.String(),
		UpdatedAt: h.now().UTC(),
	})
}

// Publish broadcasts a status change. It never blocks; when the hub is
// saturated the message is dropped.
func (h *Hub) Publish(cycleID uuid.UUID, status lifecycle.Status) {
	data, err := h.message(cycleID, status)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal status message")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn().Str("status", status.String()).Msg("status broadcast dropped")
	}
}

// serve upgrades the request and subscribes it, sending initial first
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, initial []byte) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &connection{
		id:     uuid.New(),
		ws:     ws,
		send:   make(chan []byte, 16),
		hub:    h,
		logger: h.logger,
	}
	if initial != nil {
		c.send <- initial
	}

	select {
	case h.register <- c:
	case <-h.done:
		ws.Close()
		return
	}

	go c.writePump()
	c.readPump()
}
