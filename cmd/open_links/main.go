package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/xpzouying/tiktok-shop-mcp/configs"
	"github.com/xpzouying/tiktok-shop-mcp/cookies"
	"github.com/xpzouying/tiktok-shop-mcp/linkopener"
)

// 这个 CLI 用带妙手插件的浏览器打开一个链接文件，
// 不传 -file 时打开最新的文件，浏览器关闭后退出。
func main() {
	var (
		configPath   string
		linksDir     string
		file         string
		binPath      string
		list         bool
		resetCookies bool
	)
	flag.StringVar(&configPath, "config", configs.DefaultConfigPath, "配置文件路径")
	flag.StringVar(&linksDir, "dir", configs.DefaultSharedLinksDir, "链接文件目录")
	flag.StringVar(&file, "file", "", "链接文件名，默认使用最新的文件")
	flag.StringVar(&binPath, "bin", "", "浏览器二进制文件路径（可选，不传则使用 ROD_BROWSER_BIN 环境变量）")
	flag.BoolVar(&list, "list", false, "只列出链接文件")
	flag.BoolVar(&resetCookies, "reset-cookies", false, "启动前清理妙手 cookies 文件并重新登录")
	flag.Parse()

	closeLog, err := configs.InitLogger("info", "logs", os.Stdout)
	if err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}
	defer closeLog()
	configs.LoadDotEnv()

	if binPath == "" {
		binPath = os.Getenv("ROD_BROWSER_BIN")
	}
	configs.SetBinPath(binPath)

	files, err := linkopener.ListLinkFiles(linksDir)
	if err != nil {
		logrus.Fatalf("读取链接目录失败: %v", err)
	}
	if list {
		for _, f := range files {
			fmt.Println(f)
		}
		return
	}
	if file == "" {
		if len(files) == 0 {
			logrus.Fatalf("%s 下没有链接文件", linksDir)
		}
		file = files[0]
	}

	if resetCookies {
		path := cookies.GetCookiesFilePath()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logrus.Fatalf("failed to reset cookies: %v", err)
		}
		logrus.Infof("cookies 已清理: %s，将重新登录", path)
	}

	cfg, err := configs.Load(configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opener := linkopener.NewOpener(cfg.WebAutomation,
		linkopener.WithLinksDir(linksDir),
		linkopener.WithBinPath(configs.GetBinPath()),
	)
	logrus.Infof("打开链接文件: %s", file)
	if err := opener.OpenFile(ctx, file); err != nil {
		logrus.Fatalf("打开链接失败: %v", err)
	}
}
