// Package client provides an HTTP and websocket client for the DiveRoast server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// DefaultServerURL is used when neither an argument nor DIVEROAST_SERVER_URL is set.
const DefaultServerURL = "http://localhost:8585"

// Client talks to the DiveRoast HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client.
// If baseURL is empty, uses DIVEROAST_SERVER_URL or defaults to localhost:8585.
// Timeout can be configured via DIVEROAST_CLIENT_TIMEOUT (default 2m, enough
// for an enriched dashboard).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("DIVEROAST_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = DefaultServerURL
	}

	timeout := 2 * time.Minute
	if t := os.Getenv("DIVEROAST_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Kind       string `json:"kind"`
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("server error %d (%s): %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// =============================================================================
// TYPES (matching the server's JSON)
// =============================================================================

// Job is a corpus refresh job.
type Job struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Total       int        `json:"total"`
	Result      *JobResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobResult summarizes a finished refresh.
type JobResult struct {
	Articles   int            `json:"articles"`
	Passages   int            `json:"passages"`
	ByCategory map[string]int `json:"by_category"`
	Skipped    int            `json:"skipped"`
}

// Finished reports whether the job reached a terminal state.
func (j Job) Finished() bool {
	return j.Status == "completed" || j.Status == "failed"
}

// Status is the server status.
type Status struct {
	Status         string  `json:"status"`
	Version        string  `json:"version"`
	Model          string  `json:"model"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	Sessions       int     `json:"sessions"`
	CorpusPassages *int    `json:"corpus_passages,omitempty"`
	CorpusError    string  `json:"corpus_error,omitempty"`
	ActiveJob      *Job    `json:"active_job,omitempty"`
	Metrics        Stats   `json:"metrics"`
}

// Stats holds the server's in-memory runtime statistics.
type Stats struct {
	UptimeSeconds float64                    `json:"uptime_seconds"`
	Operations    map[string]*OperationStats `json:"operations"`
}

// OperationStats holds metrics for a single operation type.
type OperationStats struct {
	Count             int64    `json:"count"`
	TotalTimeMs       int64    `json:"total_time_ms"`
	AvgTimeMs         float64  `json:"avg_time_ms"`
	MinTimeMs         int64    `json:"min_time_ms"`
	MaxTimeMs         int64    `json:"max_time_ms"`
	TotalInputTokens  *int64   `json:"total_input_tokens,omitempty"`
	TotalOutputTokens *int64   `json:"total_output_tokens,omitempty"`
	AvgInputTokens    *float64 `json:"avg_input_tokens,omitempty"`
	AvgOutputTokens   *float64 `json:"avg_output_tokens,omitempty"`
}

// =============================================================================
// REST
// =============================================================================

// Upload sends a logbook and returns the new session.
func (c *Client) Upload(ctx context.Context, filename string, raw []byte) (*models.UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form: %w", err)
	}
	if _, err := part.Write(raw); err != nil {
		return nil, fmt.Errorf("write form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	var res models.UploadResult
	if err := c.do(ctx, http.MethodPost, "/api/upload", &buf, mw.FormDataContentType(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Dashboard fetches a session's dashboard, optionally with dive notes.
func (c *Client) Dashboard(ctx context.Context, sessionID string, enrich bool) (*models.Dashboard, error) {
	path := "/api/dashboard/" + url.PathEscape(sessionID)
	if enrich {
		path += "?enrich=true"
	}
	var dash models.Dashboard
	if err := c.do(ctx, http.MethodGet, path, nil, "", &dash); err != nil {
		return nil, err
	}
	return &dash, nil
}

// DeleteSession evicts a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(sessionID), nil, "", nil)
}

// StartRefresh starts a corpus refresh. running is true when the returned
// job was already in progress.
func (c *Client) StartRefresh(ctx context.Context) (jobID string, running bool, err error) {
	var resp struct {
		JobID   string `json:"job_id"`
		Running bool   `json:"already_running"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/corpus/refresh", nil, "", &resp); err != nil {
		return "", false, err
	}
	return resp.JobID, resp.Running, nil
}

// ListJobs lists refresh jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	var resp struct {
		Jobs []Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/jobs", nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// GetJob fetches one job.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, "", &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Status fetches the server status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, "", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// =============================================================================
// CHAT (websocket)
// =============================================================================

// Event is one chat stream event.
type Event struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// TurnError is a turn that ended with an error event.
type TurnError struct {
	Message string
	Kind    string
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn failed (%s): %s", e.Kind, e.Message)
}

// ChatConn is an open chat websocket. Turns run one at a time.
type ChatConn struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
}

// OpenChat connects to a session's chat websocket.
func (c *Client) OpenChat(ctx context.Context, sessionID string) (*ChatConn, error) {
	wsURL := c.baseURL
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	u, err := url.Parse(wsURL + "/api/chat/" + url.PathEscape(sessionID) + "/ws")
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: "session not found", Kind: "session_not_found"}
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	return &ChatConn{conn: conn}, nil
}

// Send runs one turn, calling onEvent for each event until the turn ends.
// An error event is returned as *TurnError after being passed to onEvent.
func (cc *ChatConn) Send(ctx context.Context, message string, onEvent func(Event) error) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if err := cc.conn.WriteJSON(map[string]string{"message": message}); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	// Closing the connection cancels the turn server side.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cc.Close()
		case <-done:
		}
	}()

	for {
		var ev Event
		if err := cc.conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := onEvent(ev); err != nil {
			return err
		}
		switch ev.Type {
		case "done":
			return nil
		case "error":
			return &TurnError{Message: ev.Error, Kind: ev.Kind}
		}
	}
}

// Close closes the connection.
func (cc *ChatConn) Close() error {
	var err error
	cc.closeOnce.Do(func() {
		_ = cc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = cc.conn.Close()
	})
	return err
}

// Chat runs a single turn on a fresh connection.
func (c *Client) Chat(ctx context.Context, sessionID, message string, onEvent func(Event) error) error {
	cc, err := c.OpenChat(ctx, sessionID)
	if err != nil {
		return err
	}
	defer cc.Close()
	return cc.Send(ctx, message, onEvent)
}
