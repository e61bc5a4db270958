package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/codebuildervaibhav/vodchat/internal/app"
)

// StreamRequest is one request read from the socket
type StreamRequest struct {
	app.Target
	Filter string `json:"filter"`
}

// StreamStatus closes every request on the socket
type StreamStatus struct {
	Status string `json:"status"`
	RunID  string `json:"run_id,omitempty"`
	Items  int    `json:"items"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
}

// StreamHandler streams transcripts over a WebSocket, one text message per
// written chunk.
type StreamHandler struct {
	app    *app.App
	logger *slog.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(a *app.App, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{app: a, logger: orDiscard(logger)}
}

// Upgrade rejects plain HTTP requests on the socket route
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handle processes WebSocket connections. Requests are served one at a
// time until the client closes the socket.
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	h.logger.Info("websocket connection established", slog.String("remote", c.RemoteAddr().String()))

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("websocket closed", slog.Any("error", err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req StreamRequest
		if err := json.Unmarshal(message, &req); err != nil {
			if err := c.WriteJSON(StreamStatus{Status: "error", Error: "malformed request", Code: "ERR_BAD_REQUEST"}); err != nil {
				return
			}
			continue
		}

		if err := c.WriteJSON(h.serve(c, req)); err != nil {
			h.logger.Warn("websocket write failed", slog.Any("error", err))
			return
		}
	}
}

func (h *StreamHandler) serve(c *websocket.Conn, req StreamRequest) StreamStatus {
	ctx := context.Background()
	job, err := h.app.Prepare(ctx, req.Target, req.Filter)
	if err != nil {
		_, code := classify(err)
		return StreamStatus{Status: "error", Error: err.Error(), Code: code}
	}

	report, err := job.Run(ctx, &socketWriter{conn: c}, app.RunOptions{Exports: true})
	st := StreamStatus{Status: "done", RunID: report.ID, Items: len(report.Items)}
	if err != nil {
		st.Status = "error"
		st.Error = err.Error()
		st.Code = "ERR_RUN"
	}
	return st
}

// socketWriter sends each header and record line as its own message
type socketWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *socketWriter) Write(p []byte) (int, error) {
	msg := strings.Trim(string(p), "\n")
	if msg == "" {
		return len(p), nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return 0, err
	}
	return len(p), nil
}
