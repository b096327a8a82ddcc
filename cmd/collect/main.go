package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-runewidth"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/tiktok-shop-mcp/automation"
	"github.com/xpzouying/tiktok-shop-mcp/configs"
)

// 这个 CLI 在前台执行一次采集任务，不启动控制台与 MCP 服务，
// 适合配合系统定时任务或手动调试设备。
func main() {
	var (
		configPath string
		imagePath  string
		maxLinks   int
		logLevel   string
	)
	flag.StringVar(&configPath, "config", configs.DefaultConfigPath, "配置文件路径")
	flag.StringVar(&imagePath, "image", "", "本机图片路径，为空时使用配置中的 task.pc_image_path")
	flag.IntVar(&maxLinks, "max", 0, "最多收集的链接数，0 表示使用配置")
	flag.StringVar(&logLevel, "log-level", "info", "日志级别")
	flag.Parse()

	closeLog, err := configs.InitLogger(logLevel, "logs", os.Stdout)
	if err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}
	defer closeLog()
	configs.LoadDotEnv()

	cfg, err := configs.Load(configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := automation.NewRunner(cfg)
	res, err := runner.Execute(ctx, automation.RunOptions{PCImagePath: imagePath, MaxLinks: maxLinks})
	if err != nil {
		logrus.WithError(err).Error("采集任务失败")
		stop()
		closeLog()
		os.Exit(1)
	}

	printLinks(os.Stdout, res)
}

// printLinks 以表格形式输出结果，中文列宽按显示宽度对齐
func printLinks(w io.Writer, res *automation.RunResult) {
	if len(res.Links) == 0 {
		fmt.Fprintln(w, "未收集到任何链接")
		return
	}

	headers := []string{"序号", "分享链接"}
	rows := make([][]string, 0, len(res.Links))
	for i, link := range res.Links {
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), link})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if cw := runewidth.StringWidth(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	line := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = runewidth.FillRight(cell, widths[i])
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	line(headers)
	sep := make([]string, len(widths))
	for i, cw := range widths {
		sep[i] = strings.Repeat("-", cw)
	}
	line(sep)
	for _, row := range rows {
		line(row)
	}

	if res.LinkFile != "" {
		fmt.Fprintf(w, "\n共 %d 个链接，已保存到 %s\n", len(res.Links), res.LinkFile)
	} else {
		fmt.Fprintf(w, "\n共 %d 个链接\n", len(res.Links))
	}
}
