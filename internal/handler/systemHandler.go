package handler

import (
	"net/http"

	"github.com/aman-churiwal/leetquery/internal/circuitbreaker"
	"github.com/aman-churiwal/leetquery/internal/healthcheck"
	"github.com/gin-gonic/gin"
)

const livenessMessage = "LeetQuery Backend is running!"

// Handles health and breaker endpoints
type SystemHandler struct {
	breakers map[string]*circuitbreaker.CircuitBreaker
	checker  *healthcheck.Checker
}

func NewSystemHandler(checker *healthcheck.Checker, breakers ...*circuitbreaker.CircuitBreaker) *SystemHandler {
	m := make(map[string]*circuitbreaker.CircuitBreaker, len(breakers))
	for _, b := range breakers {
		m[b.Name()] = b
	}

	return &SystemHandler{breakers: m, checker: checker}
}

// Handles GET /health. Always 200 while the process serves requests.
func (h *SystemHandler) Health(c *gin.Context) {
	c.String(http.StatusOK, livenessMessage)
}

// Handles GET /health/ready
func (h *SystemHandler) Ready(c *gin.Context) {
	if h.checker == nil {
		c.JSON(http.StatusOK, gin.H{"status": healthcheck.Healthy.String()})
		return
	}

	report := h.checker.Report()
	status := http.StatusOK
	if h.checker.OverallHealth() == healthcheck.Unhealthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, report)
}

// Returns the status of all circuit breakers
func (h *SystemHandler) CircuitBreakerStatus(c *gin.Context) {
	statuses := make(map[string]circuitbreaker.Metrics, len(h.breakers))
	for name, b := range h.breakers {
		statuses[name] = b.Metrics()
	}

	c.JSON(http.StatusOK, statuses)
}

// Manually resets a circuit breaker
func (h *SystemHandler) ResetCircuitBreaker(c *gin.Context) {
	name := c.Param("name")

	b, exists := h.breakers[name]
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "Circuit breaker not found",
		})
		return
	}

	b.Reset()

	c.JSON(http.StatusOK, gin.H{
		"message": "Circuit breaker reset successfully",
		"name":    name,
	})
}
