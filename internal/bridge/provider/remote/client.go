package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tansive/chatbridge/internal/bridge/provider"
	"github.com/tansive/chatbridge/internal/common/httpclient"
	"github.com/tidwall/gjson"
)

// client is the handle for one sidecar session.
type client struct {
	driver *Driver
	id     string
	conn   *websocket.Conn

	closeOnce sync.Once
	mu        sync.Mutex
	closing   bool
	done      chan struct{}
}

var _ provider.Client = (*client)(nil)

func (c *client) GetChats(ctx context.Context) (json.RawMessage, error) {
	p, err := sessionPath(c.id, "chats")
	if err != nil {
		return nil, err
	}
	body, _, err := c.driver.http.DoRequest(ctx, httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   p,
	})
	if err != nil {
		return nil, err
	}
	if _, err := parseArray(body); err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *client) GetMessages(ctx context.Context, chatID string) ([]json.RawMessage, error) {
	p, err := sessionPath(c.id, "chats", chatID, "messages")
	if err != nil {
		return nil, err
	}
	body, _, err := c.driver.http.DoRequest(ctx, httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   p,
	})
	if err != nil {
		return nil, err
	}
	r, err := parseArray(body)
	if err != nil {
		return nil, err
	}
	return rawElements(r), nil
}

// Close asks the sidecar to close the session and, once confirmed, drops the
// event stream.
func (c *client) Close(ctx context.Context) error {
	p, err := sessionPath(c.id, "close")
	if err != nil {
		return err
	}
	if _, err := c.driver.http.PostJSON(ctx, p, struct{}{}); err != nil {
		return err
	}
	c.closeStream()
	return nil
}

func (c *client) closeStream() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
	})
}

func (c *client) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

// readEvents forwards stream frames to the callbacks until the stream ends.
func (c *client) readEvents(ctx context.Context, cb provider.Callbacks) {
	defer close(c.done)
	logger := log.Ctx(ctx).With().Str("session_id", c.id).Logger()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.isClosing() {
				return
			}
			logger.Warn().Err(err).Msg("driver event stream lost")
			if cb.OnStatus != nil {
				cb.OnStatus(statusStreamLost)
			}
			return
		}
		frame := gjson.ParseBytes(data)
		payload := frame.Get("data").String()
		switch frame.Get("type").String() {
		case frameQR:
			if cb.OnQR != nil && payload != "" {
				cb.OnQR(payload)
			}
		case frameStatus:
			if cb.OnStatus != nil && payload != "" {
				cb.OnStatus(payload)
			}
		default:
			logger.Debug().Str("frame", string(data)).Msg("ignoring driver frame")
		}
	}
}
