package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// AppServer 控制台 HTTP 服务与 MCP 服务
type AppServer struct {
	service    *CollectService
	mcpServer  *mcp.Server
	router     *gin.Engine
	httpServer *http.Server
}

func NewAppServer(service *CollectService) *AppServer {
	appServer := &AppServer{service: service}
	appServer.mcpServer = InitMCPServer(appServer)
	return appServer
}

// Start 启动 HTTP 服务，收到退出信号后优雅关闭
func (s *AppServer) Start(port string) error {
	s.router = setupRoutes(s)

	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.router,
	}

	go func() {
		logrus.Infof("启动 HTTP 服务器: %s", port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("服务器启动失败: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Infof("正在关闭服务器...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.Warnf("等待连接关闭超时，强制退出: %v", err)
	} else {
		logrus.Infof("服务器已优雅关闭")
	}
	s.service.Close()
	return nil
}

// StartSTDIO 以 STDIO 方式运行 MCP 服务，供本地 MCP 客户端使用
func (s *AppServer) StartSTDIO() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer s.service.Close()

	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}
