package browser

import (
	"runtime"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
	"github.com/xpzouying/headless_browser"

	"github.com/xpzouying/tiktok-shop-mcp/cookies"
)

const windowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type browserConfig struct {
	binPath    string
	cookiePath string
}

type Option func(*browserConfig)

func WithBinPath(binPath string) Option {
	return func(c *browserConfig) {
		c.binPath = binPath
	}
}

// WithCookiesPath 指定要注入的妙手 ERP cookies 文件
func WithCookiesPath(path string) Option {
	return func(c *browserConfig) {
		c.cookiePath = path
	}
}

// NewBrowser 创建不带插件的浏览器，用于检查 ERP 登录态。
// 已保存的 cookies 会在启动时注入。
func NewBrowser(headless bool, options ...Option) *headless_browser.Browser {
	cfg := &browserConfig{}
	for _, opt := range options {
		opt(cfg)
	}

	opts := []headless_browser.Option{
		headless_browser.WithHeadless(headless),
	}
	if cfg.binPath != "" {
		opts = append(opts, headless_browser.WithChromeBinPath(cfg.binPath))
	}

	cookiePath := cfg.cookiePath
	if cookiePath == "" {
		cookiePath = cookies.GetCookiesFilePath()
	}
	if data, err := cookies.NewLoadCookie(cookiePath).LoadCookies(); err == nil {
		opts = append(opts, headless_browser.WithCookies(string(data)))
		logrus.WithField("cookies_path", cookiePath).Debug("已加载 ERP cookies")
	} else {
		logrus.WithField("cookies_path", cookiePath).Warnf("加载 ERP cookies 失败: %v", err)
	}

	return headless_browser.New(opts...)
}

// ConfigurePage 在 Windows 上把 UA 和 navigator.platform 改回 Windows。
// headless_browser 的 stealth 默认伪装成 Mac，妙手会据此下发不同的页面。
func ConfigurePage(page *rod.Page) {
	if runtime.GOOS != "windows" {
		return
	}

	_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent: windowsUA,
		Platform:  "Windows",
	})
	_, err := page.EvalOnNewDocument(`
		Object.defineProperty(navigator, 'platform', { get: () => 'Win32' });
		Object.defineProperty(navigator, 'vendor', { get: () => 'Google Inc.' });
	`)
	if err != nil {
		logrus.Warnf("注入 navigator 补丁失败: %v", err)
	}
}
