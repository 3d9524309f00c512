package handlers

import (
	"github.com/gin-gonic/gin"

	"ramallah-time/internal/ratelimit"
)

// Handlers groups every endpoint handler of the API.
type Handlers struct {
	Places    *PlaceHandler
	Admin     *AdminHandler
	Assistant *AssistantHandler
	Health    *HealthHandler
	// Limiter guards login, admin verification and the AI endpoints. Nil disables it.
	Limiter *ratelimit.RateLimiter
}

// Register mounts the API routes on r.
func Register(r gin.IRouter, h Handlers) {
	limited := ratelimit.Middleware(h.Limiter)

	if h.Health != nil {
		r.GET("/health", h.Health.Check)
	}

	api := r.Group("/api")
	{
		// Places
		api.POST("/places", h.Places.Create)
		api.GET("/places", h.Places.List)
		api.GET("/places/:id", h.Places.Get)
		api.PUT("/places/:id", h.Places.Update)
		api.DELETE("/places/:id", h.Places.Delete)
		api.POST("/places/:id/images", h.Places.UploadImages)
		api.DELETE("/places/images/:image_id", h.Places.DeleteImage)
		api.POST("/places/:id/activate", h.Places.Activate)
		api.POST("/places/:id/request-renew", h.Places.RequestRenewal)

		// Owners
		api.POST("/owner-login", limited, h.Places.OwnerLogin)

		// Admin
		admin := api.Group("/admin")
		{
			admin.GET("/verify", limited, h.Admin.Verify)
			admin.GET("/stats", h.Admin.GetStats)
			admin.GET("/delete-logs", h.Admin.GetDeleteLogs)
			admin.GET("/places/:id/activations", h.Admin.GetActivations)
		}

		// AI guide
		if h.Assistant != nil {
			api.POST("/ai-guide", limited, h.Assistant.Chat)
			api.POST("/ai-scan", limited, h.Assistant.Scan)
		}
	}
}
