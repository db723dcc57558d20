package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/diveroast/internal/metrics"
	"github.com/raphaelgruber/diveroast/internal/service"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) prometheus(c *gin.Context) {
	prom := s.deps.Metrics.Prometheus()
	if prom == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: "metrics disabled"})
		return
	}
	prom.Handler().ServeHTTP(c.Writer, c.Request)
}

func (s *Server) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.deps.MaxUploadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse{
				Error: fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit),
				Kind:  "too_large",
			})
			return
		}
		badRequest(c, "multipart field \"file\" is required")
		return
	}
	f, err := header.Open()
	if err != nil {
		s.abortWithError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		s.abortWithError(c, fmt.Errorf("read upload: %w", err))
		return
	}

	res, err := s.deps.Dives.Upload(c.Request.Context(), header.Filename, raw)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) dashboard(c *gin.Context) {
	id := c.Param("id")
	enrich, _ := strconv.ParseBool(c.DefaultQuery("enrich", "false"))

	var (
		dash any
		err  error
	)
	if enrich {
		dash, err = s.deps.Dives.EnrichedDashboard(c.Request.Context(), id)
	} else {
		dash, err = s.deps.Dives.Dashboard(id)
	}
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

func (s *Server) deleteSession(c *gin.Context) {
	if err := s.deps.Dives.Delete(c.Param("id")); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type refreshResponse struct {
	JobID   string `json:"job_id"`
	Running bool   `json:"already_running"`
}

func (s *Server) startRefresh(c *gin.Context) {
	id, running, err := s.deps.Jobs.StartRefresh(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	status := http.StatusAccepted
	if running {
		status = http.StatusOK
	}
	c.JSON(status, refreshResponse{JobID: id, Running: running})
}

func (s *Server) listJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.deps.Jobs.ListJobs()})
}

func (s *Server) getJob(c *gin.Context) {
	job, ok := s.deps.Jobs.GetJob(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: "job not found", Kind: "not_found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status         string           `json:"status"`
	Version        string           `json:"version"`
	Model          string           `json:"model"`
	UptimeSeconds  float64          `json:"uptime_seconds"`
	Sessions       int              `json:"sessions"`
	CorpusPassages *int             `json:"corpus_passages,omitempty"`
	CorpusError    string           `json:"corpus_error,omitempty"`
	ActiveJob      *service.Job     `json:"active_job,omitempty"`
	Metrics        metrics.Snapshot `json:"metrics"`
}

func (s *Server) status(c *gin.Context) {
	resp := StatusResponse{
		Status:        "ok",
		Version:       s.deps.Version,
		Model:         s.deps.Model,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Sessions:      s.deps.Sessions.Len(),
	}
	if s.deps.Metrics != nil {
		resp.Metrics = s.deps.Metrics.Snapshot()
	}
	if s.deps.Corpus != nil {
		n, err := s.deps.Corpus.CountPassages(c.Request.Context())
		if err != nil {
			resp.Status = "degraded"
			resp.CorpusError = err.Error()
		} else {
			resp.CorpusPassages = &n
		}
	}
	for _, job := range s.deps.Jobs.ListJobs() {
		if job.Status == service.JobStatusPending || job.Status == service.JobStatusRunning {
			resp.ActiveJob = &job
			break
		}
	}
	c.JSON(http.StatusOK, resp)
}
