package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldpath/visittracker/api/middleware"
	"github.com/fieldpath/visittracker/api/responses"
	"github.com/fieldpath/visittracker/internal/visits"
	"github.com/fieldpath/visittracker/pkg/logger"
)

const (
	defaultPingInterval = 15 * time.Second
	writeWait           = 5 * time.Second
)

// Stream frame types.
const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
)

// StreamFrame is one websocket message. Every snapshot frame carries the
// complete matching list.
type StreamFrame struct {
	Type   string                  `json:"type"`
	Visits []visits.TransferRecord `json:"visits,omitempty"`
	Error  *responses.APIError     `json:"error,omitempty"`
}

// VisitStreamHandler pushes live visit snapshots over a websocket. Closing
// the socket releases the store registration.
type VisitStreamHandler struct {
	svc            visits.Service
	logg           *logger.Logger
	allowedOrigins []string
	pingInterval   time.Duration
}

func NewVisitStreamHandler(svc visits.Service, logg *logger.Logger, allowedOrigins []string, pingInterval time.Duration) *VisitStreamHandler {
	if logg == nil {
		logg = logger.Nop()
	}
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return &VisitStreamHandler{
		svc:            svc,
		logg:           logg,
		allowedOrigins: allowedOrigins,
		pingInterval:   pingInterval,
	}
}

func (h *VisitStreamHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(h.allowedOrigins) == 0 {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			h.logg.Warn(h.logg.WithField(r.Context(), "origin", origin), "visits.stream.origin_rejected")
			return false
		},
	}
}

func (h *VisitStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.TenantIDFromContext(ctx)
	filter, err := streamFilter(r)
	if err != nil {
		responses.WriteError(ctx, h.logg, w, err)
		return
	}

	upgrader := h.upgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logg.Warn(h.logg.WithField(ctx, "error", err.Error()), "visits.stream.upgrade_failed")
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go h.readUntilClosed(ws, cancel)
	go h.ping(ctx, ws)

	h.logg.Info(ctx, "visits.stream.opened")
	defer h.logg.Info(ctx, "visits.stream.closed")

	for list, err := range h.svc.Stream(ctx, tenantID, filter) {
		if err != nil {
			typed, meta := responses.Classify(err)
			payload := responses.ErrorPayload(typed, meta)
			payload.Error.RequestID = logger.RequestIDFromContext(ctx)
			h.logg.Error(ctx, "visits.stream.failed", err)
			_ = h.write(ws, StreamFrame{Type: FrameError, Error: &payload.Error})
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, string(typed.Code())),
				time.Now().Add(writeWait))
			return
		}
		if err := h.write(ws, StreamFrame{Type: FrameSnapshot, Visits: transferRecords(list)}); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logg.Debug(h.logg.WithField(ctx, "error", err.Error()), "visits.stream.write_failed")
			}
			return
		}
	}
}

func (h *VisitStreamHandler) write(ws *websocket.Conn, frame StreamFrame) error {
	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.WriteJSON(frame)
}

// readUntilClosed drains client frames so pongs and close frames are
// processed, and cancels the stream once the peer goes away.
func (h *VisitStreamHandler) readUntilClosed(ws *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	deadline := 2 * h.pingInterval
	_ = ws.SetReadDeadline(time.Now().Add(deadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(deadline))
	})
	for {
		if _, _, err := ws.NextReader(); err != nil {
			return
		}
	}
}

func (h *VisitStreamHandler) ping(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
