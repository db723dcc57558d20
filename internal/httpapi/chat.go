package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/diveroast/internal/agent"
)

// ChatRequest is the body of a chat turn, over HTTP and websocket alike.
type ChatRequest struct {
	Message string `json:"message" binding:"required,max=8000"`
}

// sseStream writes agent events as server-sent events. Events and
// keep-alive comments may come from different goroutines.
type sseStream struct {
	mu      sync.Mutex
	w       gin.ResponseWriter
	flusher http.Flusher
	broken  bool
}

func newSSEStream(w gin.ResponseWriter) *sseStream {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()
	return &sseStream{w: w, flusher: w}
}

func (s *sseStream) send(ev agent.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.write(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, data))
}

func (s *sseStream) ping() {
	s.write(": ping\n\n")
}

// write drops output once the client went away; the turn itself is
// stopped through the request context.
func (s *sseStream) write(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return
	}
	if _, err := s.w.WriteString(frame); err != nil {
		s.broken = true
		return
	}
	s.flusher.Flush()
}

func (s *Server) chatSSE(c *gin.Context) {
	id := c.Param("id")
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body must be {\"message\": \"...\"}: "+err.Error())
		return
	}
	if _, err := s.deps.Sessions.Get(id); err != nil {
		s.abortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	stream := newSSEStream(c.Writer)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stream.ping()
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	// The error was already delivered as the stream's error event.
	_ = s.deps.Chat.Chat(ctx, id, req.Message, stream.send)
	close(stop)
	wg.Wait()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	wsQueue     = 4
	wsWriteWait = 10 * time.Second
)

// chatWebSocket runs one turn per received {message}. Turns on one
// connection run in order; closing the connection cancels the running turn.
func (s *Server) chatWebSocket(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.deps.Sessions.Get(id); err != nil {
		s.abortWithError(c, err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session_id", id, "error", err)
		return
	}
	defer ws.Close()
	s.logger.Info("websocket connected", "session_id", id)

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	requests := make(chan ChatRequest, wsQueue)
	go func() {
		defer cancel()
		defer close(requests)
		for {
			var req ChatRequest
			if err := ws.ReadJSON(&req); err != nil {
				s.logger.Info("websocket disconnected", "session_id", id, "error", err)
				return
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	send := func(ev agent.Event) {
		_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := ws.WriteJSON(ev); err != nil {
			s.logger.Warn("websocket write failed", "session_id", id, "error", err)
			cancel()
		}
	}
	for req := range requests {
		_ = s.deps.Chat.Chat(ctx, id, req.Message, send)
		if ctx.Err() != nil {
			return
		}
	}
}
