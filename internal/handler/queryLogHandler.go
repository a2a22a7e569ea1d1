package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aman-churiwal/leetquery/internal/repository"
	"github.com/aman-churiwal/leetquery/internal/service"
	"github.com/gin-gonic/gin"
)

type QueryLogHandler struct {
	service *service.QueryAnalyticsService
}

func NewQueryLogHandler(service *service.QueryAnalyticsService) *QueryLogHandler {
	return &QueryLogHandler{service: service}
}

// Handles GET /admin/query-stats
func (h *QueryLogHandler) GetSummary(c *gin.Context) {
	from, to, err := parseTimeRange(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	summary, err := h.service.GetSummary(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Handles GET /admin/query-logs
func (h *QueryLogHandler) GetLogs(c *gin.Context) {
	from, to, err := parseTimeRange(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	filter := repository.QueryLogFilter{
		QueryType: strings.ToUpper(c.Query("type")),
		Subject:   c.Query("subject"),
	}
	if successStr := c.Query("success"); successStr != "" {
		if s, err := strconv.ParseBool(successStr); err == nil {
			filter.Success = &s
		}
	}

	logs, err := h.service.GetLogs(c.Request.Context(), from, to, filter, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":   logs,
		"limit":  limit,
		"offset": offset,
	})
}

// Parses 'from' and 'to' query parameters, RFC 3339 or unix seconds.
// Defaults to the last 24 hours.
func parseTimeRange(c *gin.Context) (time.Time, time.Time, error) {
	to := time.Now()
	from := to.Add(-24 * time.Hour)

	if fromStr := c.Query("from"); fromStr != "" {
		parsed, err := parseTime(fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid 'from' time")
		}
		from = parsed
	}

	if toStr := c.Query("to"); toStr != "" {
		parsed, err := parseTime(toStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid 'to' time")
		}
		to = parsed
	}

	if from.After(to) {
		return time.Time{}, time.Time{}, errors.New("'from' must not be after 'to'")
	}

	return from, to, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	timestamp, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(timestamp, 0), nil
}
