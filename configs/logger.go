package configs

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// InitLogger 初始化 logrus：同时输出到 console 和 logs/app-日期.log。
// STDIO 模式下 stdout 被 MCP 协议占用，console 应传 os.Stderr。
// 返回的关闭函数用于在进程退出前关闭日志文件。
func InitLogger(level, dir string, console io.Writer) (func(), error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if dir == "" {
		logrus.SetOutput(console)
		return func() {}, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := filepath.Join(dir, "app-"+time.Now().Format("2006-01-02")+".log")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	logrus.SetOutput(io.MultiWriter(console, f))

	return func() { _ = f.Close() }, nil
}
