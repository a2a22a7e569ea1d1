package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/aman-churiwal/leetquery/internal/middleware"
	"github.com/aman-churiwal/leetquery/internal/ratelimit"
	"github.com/aman-churiwal/leetquery/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type QueryHandler struct {
	service *service.QueryService
}

func NewQueryHandler(service *service.QueryService) *QueryHandler {
	return &QueryHandler{service: service}
}

// Handles POST /query/execute (and the legacy POST /executeQuery)
func (h *QueryHandler) Execute(c *gin.Context) {
	var req struct {
		Query string `json:"query"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Request body must be JSON of the form {\"query\": \"...\"}")
		return
	}

	caller := service.Caller{ClientKey: ratelimit.ClientKey(c.Request)}
	if identity := middleware.GetIdentity(c); identity != nil {
		caller.Subject = identity.Subject
	}

	result, err := h.service.Execute(c.Request.Context(), caller, req.Query)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Debug().Str("client", caller.ClientKey).Msg("client went away during query")
			c.Status(499)
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
