package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"solana-atomic-swap/internal/domain"
	"solana-atomic-swap/internal/rpc"
)

// ErrClosed is returned by a closed WSClient.
var ErrClosed = errors.New("websocket client closed")

// WSConfig configures WSClient behavior.
type WSConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval between ping frames.
	PingInterval time.Duration
	// ReadTimeout bounds the wait for any frame, pongs included.
	ReadTimeout time.Duration
	// WriteTimeout bounds a single write.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription ack.
	SubscribeTimeout time.Duration
	// Buffer is the capacity of each subscription channel.
	Buffer int
	// Logger receives connection diagnostics.
	Logger *zap.Logger
}

// DefaultWSConfig returns the default configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  10 * time.Second,
		Buffer:            1024,
	}
}

// WSClient streams swap events from the swapd /ws endpoint. Subscriptions
// survive reconnects; events committed while disconnected are not replayed,
// use GetSwapHistory to backfill.
type WSClient struct {
	endpoint string
	config   WSConfig
	logger   *zap.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps server subscription id to its channel and filter.
	subs   map[int64]*subscription
	subsMu sync.RWMutex

	// pending maps request id to the channel awaiting its response.
	pending   map[uint64]chan wsReply
	pendingMu sync.Mutex

	done         chan struct{}
	wg           sync.WaitGroup
	reconnecting atomic.Bool
}

type subscription struct {
	filter rpc.SubscribeParams
	ch     chan *domain.SwapEvent
}

type wsReply struct {
	result json.RawMessage
	err    *rpc.Error
}

// wsMessage is either a response (ID set) or a notification (Method set).
type wsMessage struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *rpc.Error      `json:"error"`
	Params json.RawMessage `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64             `json:"subscription"`
	Result       *domain.SwapEvent `json:"result"`
}

// DialWS connects to a swapd websocket endpoint, e.g. ws://localhost:8899/ws.
func DialWS(ctx context.Context, endpoint string, config *WSConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		subs:     make(map[int64]*subscription),
		pending:  make(map[uint64]chan wsReply),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *WSClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.closed.Load() {
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	return nil
}

// Subscribe streams events matching filter. The channel is closed by Close.
func (c *WSClient) Subscribe(ctx context.Context, filter rpc.SubscribeParams) (<-chan *domain.SwapEvent, error) {
	subID, err := c.subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}

	sub := &subscription{filter: filter, ch: make(chan *domain.SwapEvent, c.config.Buffer)}
	c.subsMu.Lock()
	c.subs[subID] = sub
	c.subsMu.Unlock()
	return sub.ch, nil
}

func (c *WSClient) subscribe(ctx context.Context, filter rpc.SubscribeParams) (int64, error) {
	result, err := c.request(ctx, rpc.MethodSwapSubscribe, filter)
	if err != nil {
		return 0, err
	}
	var subID int64
	if err := json.Unmarshal(result, &subID); err != nil {
		return 0, fmt.Errorf("decode subscription id: %w", err)
	}
	return subID, nil
}

// request sends one JSON-RPC request and waits for its response.
func (c *WSClient) request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	reqID := c.requestID.Add(1)
	replyCh := make(chan wsReply, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = replyCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		return nil, fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(map[string]any{
		"jsonrpc": rpc.Version,
		"id":      reqID,
		"method":  method,
		"params":  params,
	})
	c.connMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case reply := <-replyCh:
		if reply.err != nil {
			return nil, rpc.FromError(reply.err)
		}
		return reply.result, nil
	case <-time.After(c.config.SubscribeTimeout):
		return nil, fmt.Errorf("%s timeout after %s", method, c.config.SubscribeTimeout)
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the connection and every subscription channel.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.subsMu.Lock()
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()
	return nil
}

func (c *WSClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			// A failed reconnect leaves no connection; keep retrying.
			if !c.reconnecting.Swap(true) {
				go c.reconnect(nil, reconnectDelay)
				reconnectDelay = nextDelay(reconnectDelay, c.config.MaxReconnectDelay)
			}
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Warn("websocket read failed", zap.Error(err))

			if !c.reconnecting.Swap(true) {
				go c.reconnect(conn, reconnectDelay)
			}
			reconnectDelay = nextDelay(reconnectDelay, c.config.MaxReconnectDelay)

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay
		c.handleMessage(message)
	}
}

// reconnect replaces a failed connection and resubscribes every filter.
func (c *WSClient) reconnect(failed *websocket.Conn, delay time.Duration) {
	defer c.reconnecting.Store(false)

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if failed != nil && c.conn == failed {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.logger.Warn("websocket reconnect failed", zap.Error(err))
		return
	}
	c.resubscribeAll()
}

func nextDelay(d, limit time.Duration) time.Duration {
	d *= 2
	if d > limit {
		d = limit
	}
	return d
}

func (c *WSClient) resubscribeAll() {
	c.subsMu.RLock()
	old := make(map[int64]*subscription, len(c.subs))
	for id, sub := range c.subs {
		old[id] = sub
	}
	c.subsMu.RUnlock()

	for oldID, sub := range old {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.SubscribeTimeout)
		newID, err := c.subscribe(ctx, sub.filter)
		cancel()
		if err != nil {
			c.logger.Warn("resubscribe failed", zap.Int64("subscription", oldID), zap.Error(err))
			continue
		}

		c.subsMu.Lock()
		delete(c.subs, oldID)
		c.subs[newID] = sub
		c.subsMu.Unlock()
	}
}

func (c *WSClient) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Debug("ignoring malformed websocket message", zap.Error(err))
		return
	}

	if msg.Method == rpc.MethodSwapNotification {
		var params wsNotificationParams
		if err := json.Unmarshal(msg.Params, &params); err != nil || params.Result == nil {
			return
		}
		c.subsMu.RLock()
		sub, ok := c.subs[params.Subscription]
		c.subsMu.RUnlock()
		if !ok {
			return
		}
		select {
		case sub.ch <- params.Result:
		case <-c.done:
		}
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[msg.ID]
	c.pendingMu.Unlock()
	if ok {
		select {
		case ch <- wsReply{result: msg.Result, err: msg.Error}:
		default:
		}
	}
}

func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.logger.Debug("ping failed", zap.Error(err))
				}
			}
			c.connMu.Unlock()
		}
	}
}
