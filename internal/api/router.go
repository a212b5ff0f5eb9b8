package api

import (
	"github.com/collinvine/talk-to-oura/internal/api/middleware"
	"github.com/collinvine/talk-to-oura/internal/api/query"
	"github.com/collinvine/talk-to-oura/internal/service"
	"github.com/gin-gonic/gin"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	AllowOrigins []string
}

// SetupRouter sets up the Gin router
func SetupRouter(queryService *service.QueryService, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Query API, session-scoped
	queryHandler := query.NewHandler(queryService)
	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.Session())
	queryHandler.RegisterRoutes(apiGroup)

	return r
}
