package chathub

import (
	"context"
	"dealchat/backend/internal/catalog"
	"dealchat/backend/internal/config"
	"dealchat/backend/internal/models"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ClientOptions configures a WebSocketClient.
type ClientOptions struct {
	// UserID pins the connection to an authenticated user.
	UserID string
	Lang   string
	// SendBuffer is the outbound queue size.
	SendBuffer int
	// EventsPerSecond and Burst limit inbound events; zero disables the limit.
	EventsPerSecond float64
	Burst           int
	// Catalog enriches incoming call notifications; may be nil.
	Catalog        catalog.Catalog
	CatalogTimeout time.Duration
}

// WebSocketClient implements Client over a gorilla/websocket connection.
type WebSocketClient struct {
	ConnID string
	Conn   *websocket.Conn
	Hub    *ManagerService

	opts    ClientOptions
	limiter *rate.Limiter
	send    chan []byte

	mu     sync.RWMutex
	closed bool
}

func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, opts ClientOptions) *WebSocketClient {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = config.DefaultSendBuffer
	}
	if opts.CatalogTimeout <= 0 {
		opts.CatalogTimeout = config.DefaultCatalogTimeout
	}
	c := &WebSocketClient{
		ConnID: uuid.NewString(),
		Conn:   conn,
		Hub:    hub,
		opts:   opts,
		send:   make(chan []byte, opts.SendBuffer),
	}
	if opts.EventsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.EventsPerSecond) + 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.EventsPerSecond), burst)
	}
	return c
}

func (c *WebSocketClient) GetConnID() string { return c.ConnID }
func (c *WebSocketClient) GetUserID() string { return c.opts.UserID }
func (c *WebSocketClient) GetLang() string   { return c.opts.Lang }

func (c *WebSocketClient) Send(ev models.Outbound) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Run starts the pumps for the WebSocket.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes the send queue, which stops writePump and closes the socket.
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Str("module", "ws").Str("conn_id", c.ConnID).Err(err).Msg("read error")
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.Hub.reportError(c, models.EventName(frame), models.ErrRateLimited)
			continue
		}

		ev, err := models.DecodeInbound(frame)
		if err != nil {
			log.Debug().Str("module", "ws").Str("conn_id", c.ConnID).Err(err).Msg("rejected frame")
			c.Hub.reportError(c, models.EventName(frame), err)
			continue
		}

		if status, ok := ev.(*models.VideoCallStatus); ok {
			c.enrichCall(status)
		}

		if !c.Hub.Dispatch(c, ev) {
			return
		}
	}
}

// enrichCall attaches the listing title to an outgoing call. Lookup
// failures only cost the label.
func (c *WebSocketClient) enrichCall(ev *models.VideoCallStatus) {
	if c.opts.Catalog == nil || ev.Status != models.CallCalling || ev.ListingID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CatalogTimeout)
	defer cancel()

	listing, err := c.opts.Catalog.GetListing(ctx, ev.ListingID)
	if err != nil {
		log.Debug().Str("module", "ws").Str("listing_id", ev.ListingID).Err(err).Msg("listing lookup failed")
		return
	}
	ev.ListingTitle = listing.Title
}

// writePump writes queued events to the socket, one frame per event, and
// keeps the connection alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// the hub closed the queue
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
