package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/buppyai/puppy-station/pkg/models"
	"github.com/coder/websocket"
)

const wsWriteTimeout = 10 * time.Second

// handleWebSocket serves the push channel: an init snapshot followed by every broadcast message.
// The subscription is taken before the snapshot so nothing committed in between is missed;
// queued messages already covered by the snapshot carry a seq <= init's and are ignored by clients.
func (a *App) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: a.opts.Dev})
	if err != nil {
		a.log.Warn("websocket accept failed", "err", err)
		return
	}
	defer func() { _ = c.CloseNow() }()

	sub := a.Hub.Subscribe("ws")
	defer a.Hub.Unsubscribe(sub)

	// No client messages are expected; CloseRead handles control frames and reports disconnects.
	ctx := c.CloseRead(r.Context())

	snap, err := a.Fleet.Snapshot(ctx, a.opts.ActivityLimit)
	if err != nil {
		a.log.Error("websocket snapshot failed", "err", err)
		_ = c.Close(websocket.StatusInternalError, "snapshot failed")
		return
	}
	init, err := a.Hub.Encode(models.MsgInit, snap.Seq, snap)
	if err != nil {
		_ = c.Close(websocket.StatusInternalError, "encode failed")
		return
	}
	if err := writeWS(ctx, c, init); err != nil {
		return
	}

	ping := time.NewTicker(a.opts.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				_ = c.Close(websocket.StatusTryAgainLater, "subscriber dropped")
				return
			}
			if err := writeWS(ctx, c, msg); err != nil {
				a.log.Debug("websocket write failed", "subscriber", sub.ID, "err", err)
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := c.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func writeWS(ctx context.Context, c *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, msg)
}
