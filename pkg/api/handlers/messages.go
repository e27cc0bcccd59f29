package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/centrald/pkg/api/types"
	"github.com/urmzd/centrald/pkg/db"
	"github.com/urmzd/centrald/pkg/protocol"
)

const (
	defaultMessageLimit = 100
	maxMessageLimit     = 1000
)

// MessagesHandler serves the message journal
type MessagesHandler struct {
	store db.MessageStore
}

// NewMessagesHandler creates a new messages handler
func NewMessagesHandler(store db.MessageStore) *MessagesHandler {
	return &MessagesHandler{store: store}
}

// ListMessages handles GET /messages
// @Summary      List log messages
// @Description  Returns journal entries, newest first
// @Tags         messages
// @Produce      json
// @Param        limit     query     int     false  "Maximum number of messages (default 100, max 1000)"
// @Param        severity  query     string  false  "Severity name or numeric mask"
// @Param        source    query     string  false  "Only messages from this source"
// @Param        since     query     string  false  "RFC 3339 lower time bound"
// @Success      200       {object}  types.ListMessagesResponse
// @Failure      400       {object}  types.ErrorResponse  "Invalid query"
// @Failure      500       {object}  types.ErrorResponse  "Journal error"
// @Router       /messages [get]
func (h *MessagesHandler) ListMessages(c *gin.Context) {
	f := db.MessageFilter{
		Source: c.Query("source"),
		Limit:  defaultMessageLimit,
	}

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badQuery(c, "limit must be a positive integer")
			return
		}
		f.Limit = min(n, maxMessageLimit)
	}
	if v := c.Query("severity"); v != "" {
		sev, err := parseSeverityMask(v)
		if err != nil {
			badQuery(c, err.Error())
			return
		}
		f.Severity = sev
	}
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badQuery(c, "since must be an RFC 3339 time")
			return
		}
		f.Since = t
	}

	msgs, err := h.store.Recent(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Error:   "journal_error",
			Message: err.Error(),
		})
		return
	}

	result := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		result = append(result, types.Message{
			Time:     m.Time,
			Source:   m.Source,
			Severity: m.Severity.String(),
			Text:     m.Text,
		})
	}
	c.JSON(http.StatusOK, types.ListMessagesResponse{
		Messages: result,
		Count:    len(result),
	})
}

// parseSeverityMask accepts a level name or a numeric mask of levels.
func parseSeverityMask(v string) (protocol.Severity, error) {
	if n, err := strconv.ParseUint(v, 0, 8); err == nil {
		if n == 0 || protocol.Severity(n)&^protocol.SeverityAll != 0 {
			return 0, protocol.Syntax("severity mask %s out of range", v)
		}
		return protocol.Severity(n), nil
	}
	return protocol.ParseSeverity(v)
}

func badQuery(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, types.ErrorResponse{
		Error:   "invalid_request",
		Message: msg,
	})
}
