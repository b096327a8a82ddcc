package main

import (
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/xpzouying/tiktok-shop-mcp/browser"
	"github.com/xpzouying/tiktok-shop-mcp/configs"
	"github.com/xpzouying/tiktok-shop-mcp/store"
)

func main() {
	var (
		configPath string
		headless   bool
		binPath    string // 浏览器二进制文件路径
		port       string
		dbPath     string
		logLevel   string
		logDir     string
		stdioMode  bool // 是否使用 STDIO 模式
	)
	flag.StringVar(&configPath, "config", configs.DefaultConfigPath, "配置文件路径")
	flag.BoolVar(&headless, "headless", true, "检查 ERP 登录状态时是否使用无头浏览器")
	flag.StringVar(&binPath, "bin", "", "浏览器二进制文件路径")
	flag.StringVar(&port, "port", "", "端口，默认使用配置中的 server.port")
	flag.StringVar(&dbPath, "db", "", "任务记录数据库路径，默认使用配置中的 server.db_path")
	flag.StringVar(&logLevel, "log-level", "info", "日志级别")
	flag.StringVar(&logDir, "log-dir", "logs", "日志目录，为空时只输出到控制台")
	flag.BoolVar(&stdioMode, "stdio", false, "使用 STDIO 模式（用于 MCP 客户端）")
	flag.Parse()

	console := os.Stdout
	if stdioMode {
		console = os.Stderr
	}
	closeLog, err := configs.InitLogger(logLevel, logDir, console)
	if err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}
	defer closeLog()

	configs.LoadDotEnv()

	if len(binPath) == 0 {
		binPath = os.Getenv("ROD_BROWSER_BIN")
	}
	configs.InitHeadless(headless)
	configs.SetBinPath(binPath)

	cfg, err := configs.Load(configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	browser.GetGlobalManager().SetConfig(configs.IsHeadless(), configs.GetBinPath())
	if port == "" {
		port = cfg.Server.Port
	}
	if dbPath == "" {
		dbPath = cfg.Server.DBPath
	}

	st, err := store.Open(dbPath)
	if err != nil {
		logrus.Fatalf("打开任务记录数据库失败: %v", err)
	}
	defer st.Close()

	// 初始化服务
	service := NewCollectService(configPath, WithStore(st))
	if err := service.StartScheduler(); err != nil {
		logrus.Fatalf("启动定时任务失败: %v", err)
	}

	// 创建应用服务器
	appServer := NewAppServer(service)

	// 根据模式选择启动方式
	if stdioMode {
		logrus.Info("启动 STDIO 模式 MCP 服务器")
		if err := appServer.StartSTDIO(); err != nil {
			logrus.Fatalf("failed to run STDIO server: %v", err)
		}
		return
	}

	if err := appServer.Start(port); err != nil {
		logrus.Fatalf("failed to run server: %v", err)
	}
}
