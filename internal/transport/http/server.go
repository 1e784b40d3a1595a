package http

import (
	"github.com/gin-gonic/gin"

	"gopherai-docqa/internal/bootstrap"
	"gopherai-docqa/internal/transport/http/handler"
	"gopherai-docqa/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = 8 << 20

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	RegisterAPI(router, app.Services)
	return router
}

// RegisterAPI mounts the owner-scoped /api/v1 routes.
func RegisterAPI(router gin.IRouter, services *bootstrap.Services) {
	documentHandler := handler.NewDocumentHandler(services.Documents, services.Chunks, services.Lifecycle)
	chunkHandler := handler.NewChunkHandler(services.Chunks)
	queryHandler := handler.NewQueryHandler(services.Query, services.Ask)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireOwner())

	docGroup := v1.Group("/documents")
	docGroup.POST("", documentHandler.Upload)
	docGroup.GET("", documentHandler.List)
	docGroup.GET("/:id", documentHandler.Get)
	docGroup.DELETE("/:id", documentHandler.Delete)
	docGroup.POST("/:id/status", documentHandler.Transition)
	docGroup.GET("/:id/chunks", documentHandler.Chunks)
	docGroup.POST("/:id/chunks", chunkHandler.Create)
	docGroup.GET("/:id/facets", documentHandler.Facets)

	v1.GET("/facets", documentHandler.CorpusFacets)
	v1.PATCH("/chunks/:id/structure", chunkHandler.UpdateStructure)
	v1.POST("/query", queryHandler.Query)
	v1.POST("/ask", queryHandler.Ask)
}
