package server

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mantonx/tonearm/internal/modules/modulemanager"
)

var startedAt = time.Now()

// setupRoutes mounts the system routes and every module's routes
func setupRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		setupHealthRoutes(api)

		api.GET("", func(c *gin.Context) {
			routes := r.Routes()
			list := make([]gin.H, 0, len(routes))
			for _, route := range routes {
				list = append(list, gin.H{"method": route.Method, "path": route.Path})
			}
			sort.Slice(list, func(i, j int) bool {
				return list[i]["path"].(string) < list[j]["path"].(string)
			})
			c.JSON(http.StatusOK, gin.H{"routes": list})
		})
	}

	modulemanager.RegisterRoutes(r)
}

// setupHealthRoutes registers liveness and module health
func setupHealthRoutes(api *gin.RouterGroup) {
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(startedAt).Round(time.Second).String(),
		})
	})

	api.GET("/health/modules", func(c *gin.Context) {
		report := modulemanager.Registry.HealthCheck(c.Request.Context())
		status := http.StatusOK
		for _, h := range report {
			if h.Status == modulemanager.HealthStateUnhealthy {
				status = http.StatusServiceUnavailable
				break
			}
		}
		c.JSON(status, gin.H{"modules": report})
	})
}
