package browser

import (
	"context"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ExtensionOptions 带妙手插件的有头浏览器参数
type ExtensionOptions struct {
	BinPath       string
	ExtensionPath string
	UserDataDir   string
	ProxyServer   string
}

// ExtensionBrowser 加载了插件、使用持久化用户目录的浏览器
type ExtensionBrowser struct {
	*rod.Browser
	launcher *launcher.Launcher
}

func newLauncher(opts ExtensionOptions) (*launcher.Launcher, error) {
	l := launcher.New().
		Headless(false).
		Set("disable-blink-features", "AutomationControlled").
		Set("no-first-run").
		Set("no-default-browser-check")

	if opts.BinPath != "" {
		l = l.Bin(opts.BinPath)
	}
	if opts.UserDataDir != "" {
		dir, err := filepath.Abs(opts.UserDataDir)
		if err != nil {
			return nil, errors.Wrap(err, "解析用户数据目录失败")
		}
		l = l.UserDataDir(dir)
	}
	if opts.ExtensionPath != "" {
		ext, err := filepath.Abs(opts.ExtensionPath)
		if err != nil {
			return nil, errors.Wrap(err, "解析插件路径失败")
		}
		l = l.Delete("disable-extensions").
			Set("disable-extensions-except", ext).
			Set("load-extension", ext)
	}
	if opts.ProxyServer != "" {
		l = l.Proxy(opts.ProxyServer)
	}
	return l, nil
}

// LaunchExtension 启动浏览器并连接 CDP
func LaunchExtension(opts ExtensionOptions) (*ExtensionBrowser, error) {
	l, err := newLauncher(opts)
	if err != nil {
		return nil, err
	}

	if opts.ProxyServer != "" {
		logrus.Infof("正在使用代理服务器: %s", opts.ProxyServer)
	} else {
		logrus.Info("未使用代理服务器")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, errors.Wrap(err, "启动浏览器失败")
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, errors.Wrap(err, "连接浏览器失败")
	}
	return &ExtensionBrowser{Browser: b, launcher: l}, nil
}

// WaitClosed 阻塞到用户关闭浏览器或 ctx 结束
func (b *ExtensionBrowser) WaitClosed(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.Pages(); err != nil {
				logrus.Info("浏览器已关闭")
				return
			}
		}
	}
}

// Close 关闭浏览器进程，用户目录保留
func (b *ExtensionBrowser) Close() {
	if err := b.Browser.Close(); err != nil {
		logrus.Debugf("关闭浏览器: %v", err)
	}
	b.launcher.Kill()
}
