package handler

import (
	"net/http"
	"strconv"

	"github.com/aman-churiwal/leetquery/internal/auth"
	"github.com/aman-churiwal/leetquery/internal/middleware"
	"github.com/aman-churiwal/leetquery/internal/service"
	"github.com/gin-gonic/gin"
)

// AdminHandler serves the /admin routes. Everything except CheckRole sits
// behind the ADMIN role gate.
type AdminHandler struct {
	catalog *service.CatalogService
	roles   *service.RoleService
	hints   auth.RoleStore
}

func NewAdminHandler(catalog *service.CatalogService, roles *service.RoleService, hints auth.RoleStore) *AdminHandler {
	return &AdminHandler{catalog: catalog, roles: roles, hints: hints}
}

// Handles GET /admin/status
func (h *AdminHandler) Status(c *gin.Context) {
	identity := middleware.GetIdentity(c)
	c.JSON(http.StatusOK, gin.H{
		"subject": identity.Subject,
		"role":    identity.Role,
		"admin":   identity.IsAdmin(),
	})
}

// Handles POST /admin/problems
func (h *AdminHandler) CreateProblem(c *gin.Context) {
	var req service.ProblemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	problem, err := h.catalog.AddProblem(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"problemId": problem.ID,
		"problem":   problem,
	})
}

// Handles DELETE /admin/problems/:id
func (h *AdminHandler) DeleteProblem(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		badRequest(c, "id must be a positive integer")
		return
	}

	if err := h.catalog.DeleteProblem(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Problem deleted successfully"})
}

// Handles PUT /admin/roles/:subject
func (h *AdminHandler) SetRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "role is required")
		return
	}

	actor := middleware.GetIdentity(c)
	subject := c.Param("subject")

	role, err := h.roles.Grant(c.Request.Context(), actor.Subject, subject, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subject": subject, "role": role})
}

// Handles GET /admin/checkRole. The answer comes from an unverified
// decode and is a display hint only.
func (h *AdminHandler) CheckRole(c *gin.Context) {
	c.String(http.StatusOK, auth.RoleHint(c.Request.Context(), h.hints, c.GetHeader("Authorization")))
}
