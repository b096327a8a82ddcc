package automation

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/tiktok-shop-mcp/configs"
	"github.com/xpzouying/tiktok-shop-mcp/device"
	"github.com/xpzouying/tiktok-shop-mcp/share"
	"github.com/xpzouying/tiktok-shop-mcp/tiktok"
	"github.com/xpzouying/tiktok-shop-mcp/wechat"
)

var ErrRunFailed = errors.New("采集任务失败")

const (
	appSettleDelay     = 4 * time.Second
	errorScreenshot    = "task_error.png"
	sessionQuitTimeout = 30 * time.Second
)

// Session 一次采集任务使用的设备会话，由 *device.Driver 实现
type Session interface {
	tiktok.Device
	wechat.Device

	TakeScreenshot(ctx context.Context, path string) error
	Quit(ctx context.Context) error
}

// SessionOpener 按配置创建设备会话
type SessionOpener func(ctx context.Context, cfg *configs.Config) (Session, error)

// OpenDevice 通过 Appium 创建会话
func OpenDevice(ctx context.Context, cfg *configs.Config) (Session, error) {
	caps := device.Capabilities{
		PlatformName:    cfg.Device.PlatformName,
		PlatformVersion: cfg.Device.PlatformVersion,
		DeviceName:      cfg.Device.DeviceName,
		AutomationName:  cfg.Device.AutomationName,
		AppPackage:      cfg.TikTok.AppPackage,
		AppActivity:     cfg.TikTok.AppActivity,
		NoReset:         cfg.Device.NoReset,
		FullReset:       cfg.Device.FullReset,
	}
	drv, err := device.Open(ctx, cfg.Appium.ServerURL, caps)
	if err != nil {
		return nil, err
	}
	return drv, nil
}

// RunOptions 单次任务的参数，覆盖配置文件中的同名字段
type RunOptions struct {
	PCImagePath string `json:"pc_image_path,omitempty"`
	MaxLinks    int    `json:"max_links,omitempty"`
}

// RunResult 任务结果
type RunResult struct {
	Links    []string `json:"links"`
	LinkFile string   `json:"link_file,omitempty"`
}

// Runner 串起一次完整的采集流程：打开 TikTok 商城、图搜、逐个分享商品链接
type Runner struct {
	cfg      *configs.Config
	open     SessionOpener
	linksDir string
	sleep    func(time.Duration)
}

type RunnerOption func(*Runner)

// WithSleep 替换任务中的固定等待，测试时使用
func WithSleep(fn func(time.Duration)) RunnerOption {
	return func(r *Runner) {
		r.sleep = fn
	}
}

func WithSessionOpener(open SessionOpener) RunnerOption {
	return func(r *Runner) {
		r.open = open
	}
}

// WithLinksDir 文件分享模式的输出目录
func WithLinksDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.linksDir = dir
	}
}

func NewRunner(cfg *configs.Config, options ...RunnerOption) *Runner {
	r := &Runner{
		cfg:      cfg,
		open:     OpenDevice,
		linksDir: configs.DefaultSharedLinksDir,
		sleep:    time.Sleep,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Execute 执行一次采集任务。
// 致命步骤失败时返回包装了 ErrRunFailed 的错误；没有收集到链接仍视为完成。
func (r *Runner) Execute(ctx context.Context, opts RunOptions) (res *RunResult, err error) {
	cfg := r.cfg
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(ErrRunFailed, err.Error())
	}

	sess, err := r.open(ctx, cfg)
	if err != nil {
		return nil, errors.Wrapf(ErrRunFailed, "初始化设备会话失败: %v", err)
	}
	defer func() {
		quitCtx, cancel := context.WithTimeout(context.Background(), sessionQuitTimeout)
		defer cancel()
		if qerr := sess.Quit(quitCtx); qerr != nil {
			logrus.WithError(qerr).Warn("关闭设备会话失败")
		}
	}()
	defer func() {
		if err != nil {
			logrus.WithError(err).Error("自动化任务执行期间发生错误")
			r.screenshot(sess)
		}
	}()

	pkg := cfg.TikTok.AppPackage
	logrus.Info("强制关闭并重启TikTok以确保干净的环境...")
	if terr := sess.TerminateApp(ctx, pkg); terr != nil {
		logrus.WithError(terr).Warn("关闭 TikTok 失败")
	}
	if herr := sess.PressHome(ctx); herr != nil {
		logrus.WithError(herr).Warn("返回桌面失败")
	}
	if err := sess.SwitchToApp(ctx, pkg); err != nil {
		return nil, errors.Wrapf(ErrRunFailed, "启动 TikTok 失败: %v", err)
	}
	r.sleep(appSettleDelay)

	shop := tiktok.NewShopPage(sess, pkg).WithSleep(r.sleep)

	logrus.Info("=== 步骤1: 进入TikTok商城 ===")
	if err := shop.OpenShop(ctx); err != nil {
		return nil, errors.Wrapf(ErrRunFailed, "进入TikTok商城失败: %v", err)
	}

	logrus.Info("=== (可选) 步骤2: 从PC传输图片到设备 ===")
	imagePath := strings.TrimSpace(cfg.Task.PCImagePath)
	if opts.PCImagePath != "" {
		imagePath = opts.PCImagePath
	}
	if imagePath != "" {
		logrus.Infof("检测到PC端图片路径 '%s'，开始传输...", imagePath)
		if err := shop.FetchImageFromPC(ctx, imagePath); err != nil {
			return nil, errors.Wrapf(ErrRunFailed, "从PC传输图片失败: %v", err)
		}
	} else {
		logrus.Info("未提供PC端图片路径，跳过传输步骤")
	}

	logrus.Info("=== 步骤3: 开始图像搜索 ===")
	if err := shop.StartImageSearch(ctx); err != nil {
		return nil, errors.Wrapf(ErrRunFailed, "图像搜索失败: %v", err)
	}

	logrus.Info("=== 步骤4: 收集并分享商品链接 ===")
	sink := share.New(cfg.Task.ShareTarget, share.Options{
		Dir:     r.linksDir,
		WeChat:  wechat.NewPage(sess, cfg.WeChat.AppPackage).WithSleep(r.sleep),
		Contact: cfg.Task.ContactName,
	})

	target := tiktok.ScanTarget{
		MaxLinks:     cfg.Task.MaxProductsToProcess,
		SlotStart:    cfg.Task.SlotStart,
		SlotEnd:      cfg.Task.SlotEnd,
		ProductXPath: cfg.Task.ProductXPath,
	}
	if opts.MaxLinks > 0 {
		target.MaxLinks = opts.MaxLinks
	}
	action := tiktok.NewCollectAction(shop, target).
		WithLookupTimeout(time.Duration(cfg.Task.ImplicitWait) * time.Second).
		WithSleep(r.sleep)

	links := action.CollectAndShare(ctx, sink)

	logrus.Info("=== 步骤5: 验证结果 ===")
	if len(links) == 0 {
		logrus.Warn("未能成功分享任何链接")
	} else {
		logrus.Infof("成功分享了 %d 个链接", len(links))
	}

	res = &RunResult{Links: links}
	if fs, ok := sink.(*share.FileSink); ok && len(links) > 0 {
		res.LinkFile = filepath.Base(fs.Path())
	}
	return res, nil
}

// screenshot 失败时尽量留下现场，截图失败不影响任务结果
func (r *Runner) screenshot(sess Session) {
	path := filepath.Join(r.cfg.Task.ScreenshotPath, errorScreenshot)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := sess.TakeScreenshot(ctx, path); err != nil {
		logrus.WithError(err).Warn("保存错误截图失败")
		return
	}
	logrus.Infof("已保存错误截图: %s", path)
}
