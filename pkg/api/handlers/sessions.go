package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/centrald/pkg/api/types"
	"github.com/urmzd/centrald/pkg/coordinator"
)

// SessionsHandler lists connected peers
type SessionsHandler struct {
	coord Coordinator
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(coord Coordinator) *SessionsHandler {
	return &SessionsHandler{coord: coord}
}

// ListSessions handles GET /sessions
// @Summary      List sessions
// @Description  Returns every connected peer in connection order
// @Tags         sessions
// @Produce      json
// @Param        role  query     string  false  "Filter by role (client, device, undeclared)"
// @Success      200   {object}  types.ListSessionsResponse
// @Router       /sessions [get]
func (h *SessionsHandler) ListSessions(c *gin.Context) {
	role := c.Query("role")

	result := []types.Session{}
	for _, si := range h.coord.Snapshot().Sessions {
		if role != "" && si.Role.String() != role {
			continue
		}
		result = append(result, toSession(si))
	}

	c.JSON(http.StatusOK, types.ListSessionsResponse{
		Sessions: result,
		Count:    len(result),
	})
}

// GetSession handles GET /sessions/:id
// @Summary      Get session
// @Description  Returns one connected peer by session id
// @Tags         sessions
// @Produce      json
// @Param        id   path      int  true  "Session id"
// @Success      200  {object}  types.SessionResponse
// @Failure      400  {object}  types.ErrorResponse  "Invalid id"
// @Failure      404  {object}  types.ErrorResponse  "Session not found"
// @Router       /sessions/{id} [get]
func (h *SessionsHandler) GetSession(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_request",
			Message: "Session id must be an integer",
		})
		return
	}

	si, ok := h.coord.Snapshot().Session(id)
	if !ok {
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   "not_found",
			Message: "Session not found",
		})
		return
	}

	c.JSON(http.StatusOK, types.SessionResponse{Session: toSession(si)})
}

func toSession(si coordinator.SessionInfo) types.Session {
	s := types.Session{
		ID:            si.ID,
		Role:          si.Role.String(),
		Name:          si.Name,
		Remote:        si.Remote,
		ConnectedAt:   si.ConnectedAt,
		Authenticated: si.Authenticated,
		Priority:      si.Priority,
		HasPriority:   si.HasPriority,
		GoodWeather:   si.WeatherGood,
		Bop:           uint32(si.Bop),
		Errors:        uint32(si.Errors),
		View:          uint32(si.View),
	}
	if si.Role == coordinator.RoleDevice {
		s.Device = &types.DeviceReg{Index: si.Index, Kind: si.Kind, Host: si.Host, Port: si.Port}
	}
	if !si.HoldUntil.IsZero() {
		t := si.HoldUntil
		s.HoldUntil = &t
	}
	return s
}
