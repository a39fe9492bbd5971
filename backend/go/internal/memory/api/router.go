package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all the routes for the memory service.
func RegisterRoutes(router *gin.Engine, api *API) {
	router.GET("/healthz", api.HealthHandler)

	mem := router.Group("/api/v1/ai-mem")
	{
		mem.GET("/home", api.HomeHandler)
		mem.POST("/", api.CreateMemoryHandler)
	}
}

// NewRouter builds a gin engine with the memory routes registered.
func NewRouter(api *API) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	RegisterRoutes(router, api)
	return router
}
