package main

import (
	"github.com/xpzouying/tiktok-shop-mcp/automation"
	"github.com/xpzouying/tiktok-shop-mcp/store"
)

// MCPToolResult MCP 工具的返回，最终转换为 mcp.CallToolResult
type MCPToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

type MCPContent struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// ErrorResponse HTTP 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse HTTP 成功响应
type SuccessResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// StartRunRequest 启动采集任务，pc_image_path 是 uploads 下的文件名
type StartRunRequest struct {
	PCImagePath string `json:"pc_image_path,omitempty" jsonschema:"已上传到 uploads 目录的图片文件名，为空时使用配置文件中的 pc_image_path"`
	MaxLinks    int    `json:"max_links,omitempty" jsonschema:"本次最多收集的链接数，0 表示使用配置"`
}

type StartRunResponse struct {
	RunID  string            `json:"run_id"`
	Status automation.Status `json:"status"`
}

// OpenLinksRequest 打开 shared_links 下的链接文件
type OpenLinksRequest struct {
	Filename string `json:"filename" jsonschema:"shared_links 目录下的文件名，例如 links-20240501120000.txt"`
}

// TaskConfigRequest 控制台可修改的任务参数
type TaskConfigRequest struct {
	MaxProductsToProcess int    `json:"max_products_to_process" binding:"required,min=1"`
	ShareTarget          string `json:"share_target"`
	ContactName          string `json:"contact_name"`
	SlotStart            int    `json:"slot_start"`
	SlotEnd              int    `json:"slot_end"`
	Schedule             string `json:"schedule"`
}

// WebConfigRequest 妙手 ERP 与插件配置，密码为空时保留原值
type WebConfigRequest struct {
	ProxyServer      string `json:"proxy_server"`
	MiaoshouURL      string `json:"miaoshou_url"`
	MiaoshouUsername string `json:"miaoshou_username"`
	MiaoshouPassword string `json:"miaoshou_password"`
	ExtensionPath    string `json:"extension_path"`
	UserDataDir      string `json:"user_data_dir"`
	CollectMode      string `json:"collect_mode"`
}

// MobileConfigRequest 设备与 TikTok 应用配置
type MobileConfigRequest struct {
	PlatformVersion   string `json:"platform_version"`
	DeviceName        string `json:"device_name"`
	TikTokAppPackage  string `json:"tiktok_app_package"`
	TikTokAppActivity string `json:"tiktok_app_activity"`
}

type RunsResponse struct {
	Runs []store.Record `json:"runs"`
}
