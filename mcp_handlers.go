package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/tiktok-shop-mcp/automation"
	"github.com/xpzouying/tiktok-shop-mcp/linkopener"
)

// MCP 工具处理函数

func textResult(text string) *MCPToolResult {
	return &MCPToolResult{
		Content: []MCPContent{{Type: "text", Text: text}},
	}
}

func errorResult(text string) *MCPToolResult {
	return &MCPToolResult{
		Content: []MCPContent{{Type: "text", Text: text}},
		IsError: true,
	}
}

// handleStartCollectRun 启动采集任务
func (s *AppServer) handleStartCollectRun(ctx context.Context, args StartRunRequest) *MCPToolResult {
	logrus.Infof("MCP: 启动采集任务 - 图片: %s, 最大链接数: %d", args.PCImagePath, args.MaxLinks)

	resp, err := s.service.StartRun(&args)
	if err != nil {
		if errors.Is(err, automation.ErrRunInProgress) {
			return errorResult("已有采集任务正在运行，请稍后用 get_run_status 查看")
		}
		return errorResult("启动采集任务失败: " + err.Error())
	}

	return textResult(fmt.Sprintf("采集任务已在后台启动，任务ID: %s", resp.RunID))
}

// handleGetRunStatus 查看任务状态
func (s *AppServer) handleGetRunStatus(ctx context.Context) *MCPToolResult {
	logrus.Info("MCP: 查看任务状态")
	return textResult(formatSnapshot(s.service.Status()))
}

func formatSnapshot(snap automation.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "任务状态: %s\n", snap.Status)
	if snap.ID != "" {
		fmt.Fprintf(&sb, "任务ID: %s\n", snap.ID)
	}
	if snap.StartedAt != nil {
		fmt.Fprintf(&sb, "开始时间: %s\n", snap.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if snap.FinishedAt != nil && snap.StartedAt != nil {
		fmt.Fprintf(&sb, "耗时: %v\n", snap.FinishedAt.Sub(*snap.StartedAt).Round(time.Second))
	}
	if snap.Error != "" {
		fmt.Fprintf(&sb, "错误: %s\n", snap.Error)
	}
	if snap.LinkFile != "" {
		fmt.Fprintf(&sb, "链接文件: %s\n", snap.LinkFile)
	}
	fmt.Fprintf(&sb, "已收集链接: %d 个\n", len(snap.Results))
	for i, link := range snap.Results {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, link)
	}
	return sb.String()
}

// handleListLinkFiles 列出链接文件
func (s *AppServer) handleListLinkFiles(ctx context.Context) *MCPToolResult {
	logrus.Info("MCP: 列出链接文件")

	files, err := s.service.ListLinkFiles()
	if err != nil {
		return errorResult("读取链接文件失败: " + err.Error())
	}
	if len(files) == 0 {
		return textResult("还没有任何链接文件")
	}
	return textResult(fmt.Sprintf("共 %d 个链接文件:\n%s", len(files), strings.Join(files, "\n")))
}

// handleOpenLinks 打开链接文件
func (s *AppServer) handleOpenLinks(ctx context.Context, args OpenLinksRequest) *MCPToolResult {
	logrus.Infof("MCP: 打开链接文件 - %s", args.Filename)

	if args.Filename == "" {
		return errorResult("打开链接失败: 缺少 filename 参数")
	}
	if err := s.service.OpenLinks(ctx, args.Filename); err != nil {
		if errors.Is(err, linkopener.ErrBrowserBusy) {
			return errorResult("浏览器正在使用中，请先关闭之前打开的浏览器")
		}
		return errorResult("打开链接失败: " + err.Error())
	}
	return textResult(fmt.Sprintf("正在后台打开文件 '%s' 中的链接，浏览器会保持打开直到手动关闭", args.Filename))
}

// handleCheckERPLogin 检查妙手 ERP 登录状态
func (s *AppServer) handleCheckERPLogin(ctx context.Context) *MCPToolResult {
	logrus.Info("MCP: 检查妙手登录状态")

	status, err := s.service.CheckERPLogin(ctx)
	if err != nil {
		return errorResult("检查登录状态失败: " + err.Error())
	}
	if status.IsLoggedIn {
		return textResult("妙手 ERP 已登录")
	}
	return textResult(fmt.Sprintf("妙手 ERP 未登录（当前页面: %s），请通过 open_links 登录一次", status.URL))
}
