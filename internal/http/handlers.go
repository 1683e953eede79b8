package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

// handleReady checks the entry store when a probe is configured.
func (s *Server) handleReady(c *gin.Context) {
	checks := gin.H{}
	status, code := "ready", http.StatusOK

	if s.ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(ctx, "readiness check failed", "error", err)
			checks["store"] = "failed"
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleReportsHealth lists the report endpoints.
func (s *Server) handleReportsHealth(c *gin.Context) {
	NewResponse().
		Message("Report service is healthy").
		Data(gin.H{
			"timestamp": s.now().UTC().Format(time.RFC3339),
			"endpoints": gin.H{
				"weekly": gin.H{
					"available": "/api/reports/weekly/available-periods",
					"legacy":    "/api/reports/weekly?date=YYYY-MM-DD",
					"data":      "/api/reports/weekly/data/:weekValue",
				},
				"monthly": gin.H{
					"available": "/api/reports/monthly/available-months",
					"legacy":    "/api/reports/monthly?date=YYYY-MM-DD",
					"data":      "/api/reports/monthly/data/:monthValue",
				},
				"quarterly": gin.H{
					"available": "/api/reports/quarters/available",
					"legacy":    "/api/reports/quarterly?date=YYYY-MM-DD",
					"data":      "/api/reports/quarterly/data/:quarterValue",
				},
				"yearly": gin.H{
					"available": "/api/reports/years/available",
					"legacy":    "/api/reports/yearly?date=YYYY-MM-DD",
					"data":      "/api/reports/yearly/data/:yearValue",
				},
			},
		}).
		Write(c)
}
