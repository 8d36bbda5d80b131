package api

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the API on r
func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.Use(RequestID(), RequestLogger(h.log))

	api := r.Group("/api")
	{
		api.GET("/health", h.health)
		api.POST("/geometry", h.geometryHandler)
		api.POST("/compose", h.composeHandler)
	}
}
