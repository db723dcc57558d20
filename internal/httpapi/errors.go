package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/diveroast/internal/agent"
	"github.com/raphaelgruber/diveroast/internal/models"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrParse), errors.Is(err, agent.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, models.ErrDiveNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrTurnInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func kindFor(err error) string {
	if errors.Is(err, models.ErrParse) {
		return "parse_error"
	}
	return agent.ErrorKind(err)
}

// abortWithError maps err onto a status code and JSON body.
func (s *Server) abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error(), Kind: kindFor(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msg, Kind: "invalid_request"})
}
