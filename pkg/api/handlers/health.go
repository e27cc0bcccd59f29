package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/centrald/pkg/api/types"
	"github.com/urmzd/centrald/pkg/coordinator"
)

// Coordinator is the part of the coordinator the handlers need.
type Coordinator interface {
	Snapshot() coordinator.Snapshot
	Connect(conn coordinator.Conn) *coordinator.Session
	Receive(s *coordinator.Session, line string)
	Disconnect(s *coordinator.Session)
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	coord Coordinator
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(coord Coordinator) *HealthHandler {
	return &HealthHandler{coord: coord}
}

// Health handles GET /health
// @Summary      Health check
// @Description  Returns the coordinator state and the number of connected peers
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.HealthResponse  "Service is healthy"
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	snap := h.coord.Snapshot()
	c.JSON(http.StatusOK, types.HealthResponse{
		Status:    "healthy",
		State:     snap.State.String(),
		Sessions:  len(snap.Sessions),
		Timestamp: time.Now(),
	})
}
