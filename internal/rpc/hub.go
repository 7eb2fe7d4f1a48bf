package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/ledger"
	"solana-atomic-swap/internal/observability"
)

// Hub defaults.
const (
	DefaultSendBuffer   = 256
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
	DefaultReadTimeout  = 60 * time.Second
)

// Hub fans committed swap events out to websocket subscribers. It is a
// ledger.EventSink; a slow subscriber loses events instead of stalling commits.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	nextSub atomic.Int64
	closed  bool

	sendBuffer   int
	pingInterval time.Duration
	readTimeout  time.Duration
}

var _ ledger.EventSink = (*Hub)(nil)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	subs map[int64]SubscribeParams
}

// NewHub creates a hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:       logger,
		clients:      make(map[*wsClient]struct{}),
		sendBuffer:   DefaultSendBuffer,
		pingInterval: DefaultPingInterval,
		readTimeout:  DefaultReadTimeout,
	}
}

// Publish implements ledger.EventSink.
func (h *Hub) Publish(_ context.Context, events []*domain.SwapEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		c.mu.Lock()
		for subID, filter := range c.subs {
			for _, e := range events {
				if !filter.matches(e) {
					continue
				}
				msg, err := json.Marshal(Notification{
					JSONRPC: Version,
					Method:  MethodSwapNotification,
					Params:  NotificationPayload{Subscription: subID, Result: e},
				})
				if err != nil {
					c.mu.Unlock()
					return err
				}
				select {
				case c.send <- msg:
				default:
					observability.RecordWSDrop()
					h.logger.Warn("dropping event for slow subscriber",
						zap.Int64("subscription", subID),
						zap.String("event_id", e.EventID),
					)
				}
			}
		}
		c.mu.Unlock()
	}
	return nil
}

func (f SubscribeParams) matches(e *domain.SwapEvent) bool {
	if !f.Pool.IsZero() && f.Pool.String() != e.Pool {
		return false
	}
	if !f.SwapID.IsZero() && f.SwapID.String() != e.SwapID {
		return false
	}
	return true
}

// Subscribers returns the number of connected websocket clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.closed = true
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
	observability.UpdateWSSubscribers(0)
}

// ServeHTTP upgrades the request and serves subscribe requests until the
// connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
		subs: make(map[int64]SubscribeParams),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	observability.UpdateWSSubscribers(n)

	go h.writeLoop(c)
	h.readLoop(c)

	h.mu.Lock()
	delete(h.clients, c)
	n = len(h.clients)
	h.mu.Unlock()
	observability.UpdateWSSubscribers(n)
	c.close()
}

func (h *Hub) readLoop(c *wsClient) {
	c.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	for {
		var req Request
		if err := c.conn.ReadJSON(&req); err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		resp := Response{JSONRPC: Version, ID: req.ID}
		switch req.Method {
		case MethodSwapSubscribe:
			var filter SubscribeParams
			if err := decodeParams(req.Params, &filter); err != nil {
				resp.Error = toRPCError(err)
				break
			}
			subID := h.nextSub.Add(1)
			c.mu.Lock()
			c.subs[subID] = filter
			c.mu.Unlock()
			resp.Result = subID
		case MethodSwapUnsubscribe:
			var p UnsubscribeParams
			if err := decodeParams(req.Params, &p); err != nil {
				resp.Error = toRPCError(err)
				break
			}
			c.mu.Lock()
			_, ok := c.subs[p.Subscription]
			delete(c.subs, p.Subscription)
			c.mu.Unlock()
			resp.Result = ok
		default:
			resp.Error = &Error{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
		}

		msg, err := json.Marshal(resp)
		if err != nil {
			return
		}
		select {
		case c.send <- msg:
		case <-c.done:
			return
		}
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
