package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/centrald/pkg/api/types"
)

// StateHandler serves the global state word and coordinator values
type StateHandler struct {
	coord Coordinator
}

// NewStateHandler creates a new state handler
func NewStateHandler(coord Coordinator) *StateHandler {
	return &StateHandler{coord: coord}
}

// GetState handles GET /state
// @Summary      Get global state
// @Description  Returns the state word decoded into phase, power mode, weather and BOP bits, plus the priority holder and weather verdict inputs
// @Tags         state
// @Produce      json
// @Success      200  {object}  types.StateResponse
// @Router       /state [get]
func (h *StateHandler) GetState(c *gin.Context) {
	snap := h.coord.Snapshot()
	w := snap.State

	c.JSON(http.StatusOK, types.StateResponse{
		Word:              uint32(w),
		Description:       w.String(),
		Phase:             w.Phase().String(),
		Power:             w.Power().String(),
		GoodWeather:       w.GoodWeather(),
		Bop:               uint32(w.Bop()),
		DeviceErrors:      uint32(w.DeviceErrors()),
		PriorityHolder:    snap.PriorityHolder,
		PriorityClient:    snap.PriorityClient,
		Priority:          snap.Priority,
		RequiredDevices:   nonNil(snap.RequiredDevices),
		FailedDevices:     nonNil(snap.FailedDevices),
		BadWeatherDevices: nonNil(snap.BadWeatherDevices),
		NextState:         snap.NextState.String(),
		NextStateChange:   snap.NextStateChange,
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
