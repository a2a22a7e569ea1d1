package handler

import (
	"net/http"
	"strconv"

	"github.com/aman-churiwal/leetquery/internal/service"
	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	service *service.CatalogService
}

func NewCatalogHandler(service *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// Handles GET /stages
func (h *CatalogHandler) Stages(c *gin.Context) {
	stages, err := h.service.Stages(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stages)
}

// Handles GET /problems
func (h *CatalogHandler) Problems(c *gin.Context) {
	grouped, err := h.service.StagesWithProblems(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, grouped)
}

// Handles GET /problems/:stageId
func (h *CatalogHandler) ProblemsByStage(c *gin.Context) {
	stageID, ok := intParam(c, "stageId")
	if !ok {
		return
	}

	problems, err := h.service.ProblemsByStage(c.Request.Context(), stageID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, problems)
}

// Handles GET /levels/:levelId/challenges
func (h *CatalogHandler) Challenges(c *gin.Context) {
	levelID, ok := intParam(c, "levelId")
	if !ok {
		return
	}

	challenges, err := h.service.Challenges(c.Request.Context(), levelID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, challenges)
}

// Handles GET /levels/:levelId/schema
func (h *CatalogHandler) Schema(c *gin.Context) {
	levelID, ok := intParam(c, "levelId")
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"schemaInfo": h.service.SchemaInfo(c.Request.Context(), levelID)})
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return v, true
}
