package main

import (
	"context"
	"encoding/base64"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

type emptyArgs struct{}

// InitMCPServer 创建 MCP 服务并注册工具
func InitMCPServer(appServer *AppServer) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "tiktok-shop-mcp",
			Version: "1.0.0",
		},
		nil,
	)

	registerTools(server, appServer)

	logrus.Info("MCP Server initialized with official SDK")
	return server
}

func registerTools(server *mcp.Server, appServer *AppServer) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "start_collect_run",
			Description: "在手机 TikTok 商城中以图搜商品，并把前若干个商品的分享链接保存或发送到微信。任务在后台执行，用 get_run_status 查看进度",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args StartRunRequest) (*mcp.CallToolResult, any, error) {
			result := appServer.handleStartCollectRun(ctx, args)
			return convertToMCPResult(result), nil, nil
		},
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "get_run_status",
			Description: "查看最近一次采集任务的状态和已收集的链接",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, _ emptyArgs) (*mcp.CallToolResult, any, error) {
			result := appServer.handleGetRunStatus(ctx)
			return convertToMCPResult(result), nil, nil
		},
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "list_link_files",
			Description: "列出已保存的链接文件（新的在前）",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, _ emptyArgs) (*mcp.CallToolResult, any, error) {
			result := appServer.handleListLinkFiles(ctx)
			return convertToMCPResult(result), nil, nil
		},
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "open_links",
			Description: "启动带妙手插件的浏览器，登录 ERP 后逐个打开链接文件中的商品链接",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args OpenLinksRequest) (*mcp.CallToolResult, any, error) {
			result := appServer.handleOpenLinks(ctx, args)
			return convertToMCPResult(result), nil, nil
		},
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "check_erp_login",
			Description: "检查妙手 ERP 的登录状态（使用已保存的 cookies）",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, _ emptyArgs) (*mcp.CallToolResult, any, error) {
			result := appServer.handleCheckERPLogin(ctx)
			return convertToMCPResult(result), nil, nil
		},
	)

	logrus.Infof("Registered %d MCP tools", 5)
}

// convertToMCPResult 将自定义的 MCPToolResult 转换为官方 SDK 的格式
func convertToMCPResult(result *MCPToolResult) *mcp.CallToolResult {
	var contents []mcp.Content
	for _, c := range result.Content {
		switch c.Type {
		case "text":
			contents = append(contents, &mcp.TextContent{Text: c.Text})
		case "image":
			data, err := base64.StdEncoding.DecodeString(c.Data)
			if err != nil {
				logrus.WithError(err).Error("Failed to decode base64 image data")
				contents = append(contents, &mcp.TextContent{Text: "图片数据解码失败: " + err.Error()})
				continue
			}
			contents = append(contents, &mcp.ImageContent{Data: data, MIMEType: c.MimeType})
		}
	}

	return &mcp.CallToolResult{
		Content: contents,
		IsError: result.IsError,
	}
}
