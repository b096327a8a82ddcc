package linkopener

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/tiktok-shop-mcp/browser"
	"github.com/xpzouying/tiktok-shop-mcp/configs"
	"github.com/xpzouying/tiktok-shop-mcp/cookies"
)

var ErrBrowserBusy = errors.New("插件浏览器正在使用中")

const (
	loginTimeout    = 60 * time.Second
	linkTimeout     = 60 * time.Second
	setupTimeout    = 5 * time.Second
	captchaRetries  = 3
	collectBtnText  = "采集此商品"
	captchaText     = "Verify to continue:"
	shadowHostQuery = "[data-wxt-shadow-root]"
)

// 插件把按钮放在 closed shadow root 里，在页面脚本执行前改成 open 才能访问
const openShadowRootJS = `(function() {
	const orig = Element.prototype.attachShadow;
	Element.prototype.attachShadow = function(init) {
		return orig.call(this, Object.assign({}, init, {mode: 'open'}));
	};
})();`

// Opener 启动带妙手插件的浏览器，登录 ERP 后逐个打开链接
type Opener struct {
	web         configs.WebAutomationConfig
	linksDir    string
	binPath     string
	cookiesPath string
	manager     *browser.Manager
	launch      func(browser.ExtensionOptions) (*browser.ExtensionBrowser, error)
	sleep       func(time.Duration)
}

type Option func(*Opener)

func WithLinksDir(dir string) Option {
	return func(o *Opener) { o.linksDir = dir }
}

func WithBinPath(bin string) Option {
	return func(o *Opener) { o.binPath = bin }
}

func WithManager(m *browser.Manager) Option {
	return func(o *Opener) { o.manager = m }
}

func WithCookiesPath(path string) Option {
	return func(o *Opener) { o.cookiesPath = path }
}

func NewOpener(web configs.WebAutomationConfig, options ...Option) *Opener {
	o := &Opener{
		web:         web,
		linksDir:    configs.DefaultSharedLinksDir,
		binPath:     configs.GetBinPath(),
		cookiesPath: cookies.GetCookiesFilePath(),
		manager:     browser.GetGlobalManager(),
		launch:      browser.LaunchExtension,
		sleep:       time.Sleep,
	}
	for _, opt := range options {
		opt(o)
	}
	if o.web.UserDataDir == "" {
		o.web.UserDataDir = configs.DefaultBrowserProfile
	}
	return o
}

// Prepare 校验文件名并读取链接
func (o *Opener) Prepare(name string) ([]string, error) {
	path, err := ResolveLinkFile(o.linksDir, name)
	if err != nil {
		return nil, err
	}
	links, err := ReadLinks(path)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, errors.Wrap(ErrNoLinks, path)
	}
	return links, nil
}

// Start 校验文件、占用浏览器用户目录后在后台打开链接。
// 返回的 channel 在浏览器关闭或 ctx 结束后收到结果。
func (o *Opener) Start(ctx context.Context, name string) (<-chan error, error) {
	links, err := o.Prepare(name)
	if err != nil {
		return nil, err
	}

	release, ok := o.manager.TryAcquireProfile(o.web.UserDataDir)
	if !ok {
		return nil, ErrBrowserBusy
	}

	logrus.Infof("准备从文件 '%s' 打开 %d 个链接...", name, len(links))
	done := make(chan error, 1)
	go func() {
		defer release()
		err := o.run(ctx, links)
		if err != nil {
			logrus.WithError(err).Errorf("打开文件 %s 中的链接失败", name)
		} else {
			logrus.Infof("文件 %s 的链接任务结束", name)
		}
		done <- err
	}()
	return done, nil
}

// OpenFile 打开文件中的链接，阻塞到用户关闭浏览器
func (o *Opener) OpenFile(ctx context.Context, name string) error {
	done, err := o.Start(ctx, name)
	if err != nil {
		return err
	}
	return <-done
}

func (o *Opener) run(ctx context.Context, links []string) error {
	b, err := o.launch(browser.ExtensionOptions{
		BinPath:       o.binPath,
		ExtensionPath: o.web.ExtensionPath,
		UserDataDir:   o.web.UserDataDir,
		ProxyServer:   o.web.ProxyServer,
	})
	if err != nil {
		return err
	}
	defer b.Close()

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return errors.Wrap(err, "创建页面失败")
	}
	browser.ConfigurePage(page)

	// 插件首次加载会自己打开设置页
	o.sleep(5 * time.Second)
	o.setupExtension(b, page)

	if err := o.login(ctx, page); err != nil {
		return errors.Wrap(err, "登录或处理插件初始化失败")
	}
	if err := cookies.SavePageCookiesToPath(page, o.cookiesPath); err != nil {
		logrus.WithError(err).Warn("保存 ERP cookies 失败")
	}

	collect := o.web.CollectMode == configs.DefaultCollectModeClick
	opened := 0
	for i, link := range links {
		logrus.Infof("[%d/%d] 正在打开链接: %s", i+1, len(links), link)
		if err := o.openLink(ctx, b, link, collect); err != nil {
			logrus.WithError(err).Errorf("打开链接失败 %s", link)
			continue
		}
		opened++
	}

	logrus.Infof("所有链接都已尝试打开（成功 %d/%d），浏览器将保持开启，可手动关闭", opened, len(links))
	b.WaitClosed(ctx)
	return nil
}

// setupExtension 处理插件的首次启用页，找不到时忽略
func (o *Opener) setupExtension(b *browser.ExtensionBrowser, main *rod.Page) {
	pages, err := b.Pages()
	if err != nil {
		logrus.WithError(err).Warn("获取页面列表失败")
		return
	}
	logrus.Infof("浏览器启动后有 %d 个页面", len(pages))

	for _, p := range pages {
		if p.TargetID == main.TargetID {
			continue
		}
		pageURL := ""
		if info, err := p.Info(); err == nil {
			pageURL = info.URL
		}
		logrus.Infof("正在检查页面: %s", pageURL)

		if err := confirmExtension(p.Timeout(setupTimeout)); err != nil {
			logrus.Warnf("页面 %s 不是插件设置页，忽略: %v", pageURL, err)
			continue
		}
		logrus.Info("成功处理插件的初始设置页面")
		_ = p.Close()
		return
	}
}

func confirmExtension(p *rod.Page) error {
	if _, err := p.Element("label span"); err != nil {
		return err
	}
	spans, err := p.Elements("label span")
	if err != nil {
		return err
	}
	if len(spans) < 2 {
		return errors.Errorf("只有 %d 个选项", len(spans))
	}
	if err := spans[1].Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	btn, err := p.ElementR("button", "确认开启")
	if err != nil {
		return err
	}
	return btn.Click(proto.InputMouseButtonLeft, 1)
}

// login 登录妙手 ERP，等待跳转到 /welcome。
// 没有配置账号时等待用户在浏览器里手动登录。
func (o *Opener) login(ctx context.Context, page *rod.Page) error {
	target := o.web.MiaoshouURL
	if target == "" {
		target = configs.DefaultMiaoshouURL
	}
	logrus.Infof("正在导航到妙手登录页面: %s", target)

	p := page.Context(ctx).Timeout(loginTimeout)
	if err := p.Navigate(target); err != nil {
		return errors.Wrap(err, "打开妙手登录页失败")
	}
	if err := p.WaitLoad(); err != nil {
		logrus.Warnf("等待登录页加载失败: %v", err)
	}

	if o.web.MiaoshouUsername == "" || o.web.MiaoshouPassword == "" {
		logrus.Warn("未配置妙手账号或密码，请在浏览器中手动登录")
	} else if err := fillLoginForm(p, o.web.MiaoshouUsername, o.web.MiaoshouPassword); err != nil {
		return err
	}

	if err := waitForWelcome(ctx, page, loginTimeout); err != nil {
		return err
	}
	logrus.Info("妙手网站登录成功")
	return nil
}

func fillLoginForm(p *rod.Page, username, password string) error {
	user, err := p.Element(`input[placeholder*="手机号"]`)
	if err != nil {
		return errors.Wrap(err, "未找到账号输入框")
	}
	if err := user.Input(username); err != nil {
		return errors.Wrap(err, "输入账号失败")
	}

	pwd, err := p.Element(`input[type="password"]`)
	if err != nil {
		return errors.Wrap(err, "未找到密码输入框")
	}
	if err := pwd.Input(password); err != nil {
		return errors.Wrap(err, "输入密码失败")
	}

	if has, remember, _ := p.Has(".remember-check-box"); has {
		_ = remember.Click(proto.InputMouseButtonLeft, 1)
	}

	btn, err := p.ElementR("button", "立即登录")
	if err != nil {
		return errors.Wrap(err, "未找到登录按钮")
	}
	return btn.Click(proto.InputMouseButtonLeft, 1)
}

func waitForWelcome(ctx context.Context, page *rod.Page, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if info, err := page.Info(); err == nil && isWelcomeURL(info.URL) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return errors.Errorf("%s 内未跳转到 /welcome", timeout)
}

// isWelcomeURL 只看路径和 hash，登录页的 ?redirect=%2Fwelcome 不算
func isWelcomeURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.Contains(u.Path, "/welcome") || strings.Contains(u.Fragment, "/welcome")
}

func (o *Opener) openLink(ctx context.Context, b *browser.ExtensionBrowser, link string, collect bool) error {
	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return errors.Wrap(err, "创建标签页失败")
	}
	browser.ConfigurePage(page)
	if collect {
		if _, err := page.EvalOnNewDocument(openShadowRootJS); err != nil {
			logrus.Warnf("注入 shadow root 脚本失败: %v", err)
		}
	}

	p := page.Context(ctx).Timeout(linkTimeout)
	if err := p.Navigate(link); err != nil {
		return err
	}
	if err := p.WaitLoad(); err != nil {
		logrus.Warnf("等待页面加载超时: %v", err)
	}

	if collect {
		if err := o.collect(ctx, page, link); err != nil {
			logrus.WithError(err).Errorf("采集失败，放弃此链接: %s", link)
		}
	}
	return nil
}

// collect 处理验证码后点击插件的"采集此商品"
func (o *Opener) collect(ctx context.Context, page *rod.Page, link string) error {
	for i := 0; i < captchaRetries; i++ {
		has, _, err := page.HasR("*", captchaText)
		if err != nil || !has {
			break
		}
		if i == captchaRetries-1 {
			return errors.Errorf("刷新 %d 次后验证码依然存在", captchaRetries)
		}
		logrus.Warnf("检测到验证码，正在刷新页面... (第 %d/%d 次)", i+1, captchaRetries)
		p := page.Context(ctx).Timeout(20 * time.Second)
		if err := p.Reload(); err != nil {
			return errors.Wrap(err, "刷新页面失败")
		}
		_ = p.WaitLoad()
	}

	o.sleep(3 * time.Second)

	p := page.Context(ctx).Timeout(setupTimeout)
	host, err := p.Element(shadowHostQuery)
	if err != nil {
		return errors.Wrap(err, "未找到插件容器")
	}
	root, err := host.ShadowRoot()
	if err != nil {
		return errors.Wrap(err, "读取插件 shadow root 失败")
	}
	btn, err := root.ElementR("button", collectBtnText)
	if err != nil {
		return errors.Wrap(err, "未找到采集按钮")
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return errors.Wrap(err, "点击采集按钮失败")
	}
	logrus.Infof("成功点击采集按钮: %s", link)
	o.sleep(5 * time.Second)
	return nil
}
