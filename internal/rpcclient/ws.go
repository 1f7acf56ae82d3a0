package rpcclient

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sovereign-arena/level5-proxy/pkg/logging"
)

const (
	wsIdleTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// AccountNotification is a decoded accountNotification payload.
type AccountNotification struct {
	SubscriptionID uint64
	Data           []byte
}

// WSClient maintains a single persistent subscription connection to a
// Solana RPC provider's WebSocket endpoint.
type WSClient struct {
	url       string
	conn      *websocket.Conn
	mu        sync.Mutex
	requestID atomic.Uint64
	log       *logging.Logger

	notifications chan AccountNotification
}

// NewWSClient dials url and returns a ready-to-use client. Callers should
// run Listen in a goroutine to pump incoming notifications.
func NewWSClient(url string) (*WSClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial ws %s: %w", url, err)
	}

	c := &WSClient{
		url:           url,
		conn:          conn,
		log:           logging.GetDefault().Component("rpcclient-ws"),
		notifications: make(chan AccountNotification, 256),
	}
	c.armDeadline()
	conn.SetPongHandler(func(string) error {
		c.armDeadline()
		return nil
	})

	return c, nil
}

func (c *WSClient) armDeadline() {
	c.conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
}

// Subscribe issues accountSubscribe for address and returns the JSON-RPC
// request id of that call. It does not read the provider's reply, so the
// subscription id the provider assigns is not returned here; it is only
// seen as SubscriptionID on each AccountNotification.
func (c *WSClient) Subscribe(address string) (uint64, error) {
	id := c.requestID.Add(1)
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "accountSubscribe",
		"params": []interface{}{
			address,
			map[string]interface{}{
				"encoding":   "base64",
				"commitment": "confirmed",
			},
		},
	}

	c.mu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	err := c.conn.WriteJSON(req)
	c.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("accountSubscribe: %w", err)
	}

	// The provider's reply carrying the subscription id is left on the
	// socket; Listen reads and discards it, since it is not an
	// accountNotification.
	return id, nil
}

// Notifications returns the channel of decoded accountNotification
// payloads. Listen must be running to populate it.
func (c *WSClient) Notifications() <-chan AccountNotification {
	return c.notifications
}

// Listen pumps frames off the socket until it closes or ping fails,
// decoding accountNotification messages onto Notifications() and sending a
// ping every wsIdleTimeout/2 (30s), whose pong re-arms the 60s read
// deadline. It returns when the connection drops; callers own
// reconnect-with-backoff.
func (c *WSClient) Listen() error {
	idle := time.NewTicker(wsIdleTimeout / 2)
	defer idle.Stop()

	done := make(chan error, 1)
	go func() {
		for {
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			c.armDeadline()
			if notif, ok := parseAccountNotification(message); ok {
				select {
				case c.notifications <- notif:
				default:
					c.log.Warn("notification channel full, dropping")
				}
			}
		}
	}()

	for {
		select {
		case err := <-done:
			return err
		case <-idle.C:
			c.mu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// Close closes the underlying connection.
func (c *WSClient) Close() error {
	return c.conn.Close()
}

func parseAccountNotification(message []byte) (AccountNotification, bool) {
	var frame struct {
		Method string `json:"method"`
		Params struct {
			Subscription uint64 `json:"subscription"`
			Result       struct {
				Value struct {
					Data [2]string `json:"data"`
				} `json:"value"`
			} `json:"result"`
		} `json:"params"`
	}

	if err := json.Unmarshal(message, &frame); err != nil || frame.Method != "accountNotification" {
		return AccountNotification{}, false
	}

	data, err := base64.StdEncoding.DecodeString(frame.Params.Result.Value.Data[0])
	if err != nil {
		return AccountNotification{}, false
	}

	return AccountNotification{
		SubscriptionID: frame.Params.Subscription,
		Data:           data,
	}, true
}
