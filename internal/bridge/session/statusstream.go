package session

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tansive/chatbridge/internal/bridge/eventbus"
	"github.com/tansive/chatbridge/internal/common/httpx"
)

const (
	streamBufferSize  = 16
	streamWriteWait   = 10 * time.Second
	streamPongWait    = 60 * time.Second
	streamPingPeriod  = (streamPongWait * 9) / 10
	streamFrameStatus = "status"
	streamFrameQR     = "qr"
)

// streamFrame is one websocket message of the status stream.
type streamFrame struct {
	Type         string `json:"type"`
	SessionID    string `json:"sessionId"`
	Status       Status `json:"status,omitempty"`
	DriverStatus string `json:"driverStatus,omitempty"`
	QRCode       string `json:"qrCode,omitempty"`
}

// streamSessionEvents upgrades to a websocket and pushes the session's current
// status followed by every status and QR event until the session is closed or the
// client goes away.
func (a *API) streamSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	logger := log.Ctx(r.Context()).With().Str("session_id", id).Logger()

	sess, aerr := a.coordinator.GetStatus(id)
	if aerr != nil {
		httpx.SendError(w, aerr)
		return
	}

	// subscribe before the snapshot is sent so no transition falls in between
	events, unsubscribe := a.coordinator.Bus().Subscribe(eventbus.SessionPattern(id), streamBufferSize)
	defer unsubscribe()

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if err := writeFrame(conn, streamFrame{
		Type:         streamFrameStatus,
		SessionID:    id,
		Status:       sess.Status,
		DriverStatus: sess.DriverStatus,
	}); err != nil {
		return
	}

	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-clientGone:
			logger.Debug().Msg("status stream client disconnected")
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			frame, ok := toStreamFrame(event)
			if !ok {
				continue
			}
			if err := writeFrame(conn, frame); err != nil {
				logger.Debug().Err(err).Msg("status stream write failed")
				return
			}
		}
	}
}

func toStreamFrame(event eventbus.Event) (streamFrame, bool) {
	switch data := event.Data.(type) {
	case StatusEvent:
		return streamFrame{
			Type:         streamFrameStatus,
			SessionID:    data.SessionID,
			Status:       data.Status,
			DriverStatus: data.DriverStatus,
		}, true
	case QREvent:
		return streamFrame{
			Type:      streamFrameQR,
			SessionID: data.SessionID,
			QRCode:    data.QRCode,
		}, true
	}
	return streamFrame{}, false
}

func writeFrame(conn *websocket.Conn, frame streamFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(frame)
}
