package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shipshift/orchestrator/internal/store"
)

// HistoryHandler serves persisted rollout records
type HistoryHandler struct {
	history *store.History
}

// NewHistoryHandler creates a new HistoryHandler. history may be nil when
// no database is configured; endpoints then answer 503.
func NewHistoryHandler(history *store.History) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// List returns recent rollouts, newest first
func (h *HistoryHandler) List(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Database not available"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rollouts": records})
}

// Get returns one rollout by id
func (h *HistoryHandler) Get(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Database not available"})
		return
	}

	record, err := h.history.Get(c.Request.Context(), c.Param("rollout_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Rollout not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}
