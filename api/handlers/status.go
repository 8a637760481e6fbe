package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/testlooper/wetty/internal/model"
	"github.com/testlooper/wetty/internal/session"
)

// StatusHandler serves read-only views of the live sessions.
type StatusHandler struct {
	sessions *session.Manager
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(sessions *session.Manager) *StatusHandler {
	return &StatusHandler{sessions: sessions}
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	PID       *int   `json:"pid,omitempty"`
	RepoName  string `json:"repoName,omitempty"`
	Commit    string `json:"commit,omitempty"`
	Test      string `json:"test,omitempty"`
	Ports     string `json:"ports,omitempty"`
	Duration  string `json:"duration"`
	CreatedAt string `json:"createdAt"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /health.
func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": h.sessions.Count(),
	})
}

// List handles GET /api/sessions.
func (h *StatusHandler) List(c *gin.Context) {
	infos := h.sessions.List()
	resp := make([]*SessionResponse, 0, len(infos))
	for i := range infos {
		resp = append(resp, toSessionResponse(&infos[i]))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": resp})
}

// Get handles GET /api/sessions/:id.
func (h *StatusHandler) Get(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+c.Param("id")+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	info := s.Info()
	c.JSON(http.StatusOK, toSessionResponse(&info))
}

// RegisterRoutes registers the status routes.
func (h *StatusHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	api := r.Group("/api")
	api.GET("/sessions", h.List)
	api.GET("/sessions/:id", h.Get)
}

func toSessionResponse(s *model.SessionInfo) *SessionResponse {
	return &SessionResponse{
		ID:        s.ID,
		State:     string(s.State),
		PID:       s.PID,
		RepoName:  s.RepoName,
		Commit:    s.Commit,
		Test:      s.Test,
		Ports:     s.Ports,
		Duration:  formatDuration(s.Duration()),
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

// formatDuration formats a duration rounded to the second.
func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
