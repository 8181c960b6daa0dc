package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/buppyai/puppy-station/pkg/models"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// maxMessageBytes bounds one push frame; init snapshots are the largest.
const maxMessageBytes = 4 << 20

// Stream is an open WebSocket push channel. The first message is always init.
type Stream struct {
	conn *websocket.Conn
}

// Stream dials the /ws push channel. ctx bounds only the handshake.
func (c *Client) Stream(ctx context.Context) (*Stream, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPClient: c.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	conn.SetReadLimit(maxMessageBytes)
	return &Stream{conn: conn}, nil
}

// Next blocks for the next message.
func (s *Stream) Next(ctx context.Context) (models.Message, error) {
	var m models.Message
	err := wsjson.Read(ctx, s.conn, &m)
	return m, err
}

// Close closes the connection.
func (s *Stream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
