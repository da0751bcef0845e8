package ledger

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func websocketURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	}
	return endpoint
}

// StreamEvents subscribes to the effects of address and calls fn for every event until ctx is done.
// Dropped connections are re-dialed after ReconnectDelay. The initial dial error is returned.
func (c *HTTPClient) StreamEvents(ctx context.Context, address string, fn func(Event)) error {
	if c.streamURL == "" {
		return fmt.Errorf("no stream endpoint configured")
	}
	target := c.streamURL + fmt.Sprintf(eventsStreamPath, url.PathEscape(address))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}

	go func() {
		for {
			c.readEvents(ctx, conn, address, fn)
			if ctx.Err() != nil {
				return
			}
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.reconnectDelay):
				}
				conn, _, err = websocket.DefaultDialer.DialContext(ctx, target, nil)
				if err == nil {
					c.logger.Info("ledger stream reconnected", zap.String("account", address))
					break
				}
				c.logger.Warn("ledger stream reconnect failed", zap.String("account", address), zap.Error(err))
			}
		}
	}()
	return nil
}

// readEvents pumps one connection until it fails or ctx is done.
func (c *HTTPClient) readEvents(ctx context.Context, conn *websocket.Conn, address string, fn func(Event)) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("ledger stream dropped", zap.String("account", address), zap.Error(err))
			}
			return
		}
		if ev.Account == "" {
			ev.Account = address
		}
		fn(ev)
	}
}
