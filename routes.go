package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func setupRoutes(appServer *AppServer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	router.Use(errorHandlingMiddleware())
	router.Use(corsMiddleware())

	router.GET("/health", appServer.healthHandler)

	mcpHandler := mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			return appServer.mcpServer
		},
		nil,
	)
	router.Any("/mcp", gin.WrapH(mcpHandler))
	router.Any("/mcp/*path", gin.WrapH(mcpHandler))

	router.GET("/uploads/:filename", appServer.serveUploadHandler)

	api := router.Group("/api")
	{
		api.GET("/config", appServer.getConfigHandler)
		api.POST("/config/task", appServer.saveTaskConfigHandler)
		api.POST("/config/web", appServer.saveWebConfigHandler)
		api.POST("/config/mobile", appServer.saveMobileConfigHandler)

		api.GET("/images", appServer.listImagesHandler)
		api.POST("/images", appServer.uploadImageHandler)

		api.POST("/run", appServer.startRunHandler)
		api.GET("/status", appServer.statusHandler)
		api.GET("/results", appServer.resultsHandler)
		api.GET("/runs", appServer.listRunsHandler)

		api.GET("/link_files", appServer.listLinkFilesHandler)
		api.POST("/open_links", appServer.openLinksHandler)

		api.GET("/erp/login_status", appServer.erpLoginStatusHandler)
	}

	return router
}
