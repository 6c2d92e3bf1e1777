package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"emastream/internal/model"
)

const (
	readDeadline = 90 * time.Second
	pongWait     = 90 * time.Second
)

// WSClient is a single WebSocket connection to a Binance futures kline
// stream. Reconnection policy lives with the caller; this type only knows
// how to dial one stream and read normalized events from it.
type WSClient struct {
	url  string
	conn *websocket.Conn
}

// StreamURL builds the raw-stream URL for one symbol+interval, e.g.
// "wss://fstream.binance.com/ws/btcusdt@kline_1m".
func StreamURL(baseURL, symbol, interval string) string {
	return strings.TrimRight(baseURL, "/") + "/" +
		strings.ToLower(symbol) + "@kline_" + interval
}

// NewWSClient creates a client for the given stream URL.
func NewWSClient(url string) *WSClient {
	return &WSClient{url: url}
}

// Dial establishes the connection. Binance sends pings; answering pongs is
// handled by gorilla's default ping handler, we only refresh the read
// deadline.
func (c *WSClient) Dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("binance: dial %s: %w", c.url, err)
	}

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	c.conn = conn
	return nil
}

// ReadEvent blocks for the next kline event. ok=false with a nil error
// means a non-kline frame was read (caller should just read again).
func (c *WSClient) ReadEvent() (model.KlineEvent, bool, error) {
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return model.KlineEvent{}, false, fmt.Errorf("binance: read: %w", err)
	}
	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	return ParseKlineEvent(msg)
}

// Close tears down the connection. Safe to call on a never-dialed client.
func (c *WSClient) Close() error {
	if c.conn == nil {
		return nil
	}
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
	return c.conn.Close()
}
