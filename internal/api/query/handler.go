package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/collinvine/talk-to-oura/internal/api/middleware"
	"github.com/collinvine/talk-to-oura/internal/domain"
	"github.com/collinvine/talk-to-oura/internal/oura"
	"github.com/collinvine/talk-to-oura/internal/service"
	"github.com/gin-gonic/gin"
)

// Handler handles query API requests
type Handler struct {
	queryService *service.QueryService
}

// NewHandler creates a new query handler
func NewHandler(queryService *service.QueryService) *Handler {
	return &Handler{queryService: queryService}
}

// RegisterRoutes registers query routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/query", h.Query)
	r.GET("/oura/status", h.OuraStatus)
	r.POST("/oura/token", h.OuraToken)
}

// Query answers a question about the session's Oura data over SSE
func (h *Handler) Query(c *gin.Context) {
	var req domain.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stream, err := h.queryService.AskStream(c.Request.Context(), middleware.SessionID(c), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrInvalidRequest):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrUnauthorized):
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		event, ok := <-stream
		if !ok {
			return false
		}
		data, _ := json.Marshal(event)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
		return true
	})
}

// OuraStatus reports whether the session's Oura connection works
func (h *Handler) OuraStatus(c *gin.Context) {
	if err := h.queryService.Status(c.Request.Context(), middleware.SessionID(c)); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, gin.H{"connected": false, "error": "no Oura connection"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"connected": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true})
}

type tokenRequest struct {
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// OuraToken stores an externally obtained Oura credential for the
// session. The OAuth dance itself lives outside this service.
func (h *Handler) OuraToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token := oura.Token{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	}
	if req.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	if err := h.queryService.Connect(middleware.SessionID(c), token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "connected"})
}
