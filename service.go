package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/tiktok-shop-mcp/automation"
	"github.com/xpzouying/tiktok-shop-mcp/browser"
	"github.com/xpzouying/tiktok-shop-mcp/configs"
	"github.com/xpzouying/tiktok-shop-mcp/linkopener"
	"github.com/xpzouying/tiktok-shop-mcp/share"
	"github.com/xpzouying/tiktok-shop-mcp/store"
)

var (
	ErrInvalidImage = errors.New("文件不是图片")
	ErrNotFound     = errors.New("文件不存在")
)

// 识别图片类型只需要文件头
const imageHeaderSize = 261

// CollectService 控制台与 MCP 共用的业务逻辑
type CollectService struct {
	configPath string
	uploadDir  string
	linksDir   string

	mu       sync.Mutex // 保护配置文件的读改写
	run      automation.RunFunc
	exec     *automation.Executor
	sched    *automation.Scheduler
	store    *store.Store
	browsers *browser.Manager

	// 测试时替换
	openLinks func(ctx context.Context, web configs.WebAutomationConfig, name string) error
}

type ServiceOption func(*CollectService)

func WithStore(st *store.Store) ServiceOption {
	return func(s *CollectService) { s.store = st }
}

func WithDirs(uploadDir, linksDir string) ServiceOption {
	return func(s *CollectService) {
		s.uploadDir = uploadDir
		s.linksDir = linksDir
	}
}

// WithRunFunc 替换实际执行任务的函数
func WithRunFunc(run automation.RunFunc) ServiceOption {
	return func(s *CollectService) { s.run = run }
}

func NewCollectService(configPath string, options ...ServiceOption) *CollectService {
	s := &CollectService{
		configPath: configPath,
		uploadDir:  configs.DefaultUploadDir,
		linksDir:   configs.DefaultSharedLinksDir,
		browsers:   browser.GetGlobalManager(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.run == nil {
		s.run = s.runOnce
	}
	s.exec = automation.NewExecutor(s.run, s.recorder())
	if s.openLinks == nil {
		s.openLinks = s.startOpener
	}
	return s
}

func (s *CollectService) recorder() automation.Recorder {
	if s.store == nil {
		return nil
	}
	return s.store
}

// runOnce 每次任务重新读取配置，控制台的修改对下一次任务生效
func (s *CollectService) runOnce(ctx context.Context, opts automation.RunOptions) (*automation.RunResult, error) {
	cfg, err := s.LoadConfig()
	if err != nil {
		return nil, errors.Wrap(automation.ErrRunFailed, err.Error())
	}
	runner := automation.NewRunner(cfg, automation.WithLinksDir(s.linksDir))
	return runner.Execute(ctx, opts)
}

func (s *CollectService) LoadConfig() (*configs.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return configs.Load(s.configPath)
}

// updateConfig 读取、修改并保存配置
func (s *CollectService) updateConfig(fn func(cfg *configs.Config) error) (*configs.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 环境变量中的密钥不能落盘，这里只读文件本身
	cfg, err := configs.LoadFile(s.configPath)
	if err != nil {
		return nil, err
	}
	if err := fn(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Save(s.configPath); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *CollectService) SaveTaskConfig(req *TaskConfigRequest) (*configs.Config, error) {
	if err := share.CheckMode(req.ShareTarget); err != nil {
		return nil, err
	}
	if err := automation.CheckSchedule(req.Schedule); err != nil {
		return nil, err
	}
	cfg, err := s.updateConfig(func(cfg *configs.Config) error {
		cfg.Task.MaxProductsToProcess = req.MaxProductsToProcess
		if req.ShareTarget != "" {
			cfg.Task.ShareTarget = req.ShareTarget
		}
		cfg.Task.ContactName = req.ContactName
		if req.SlotStart > 0 && req.SlotEnd > 0 {
			cfg.Task.SlotStart, cfg.Task.SlotEnd = req.SlotStart, req.SlotEnd
		}
		cfg.Task.Schedule = strings.TrimSpace(req.Schedule)
		return cfg.Validate()
	})
	if err != nil {
		return nil, err
	}
	logrus.Info("任务配置已保存")
	return cfg, nil
}

func (s *CollectService) SaveWebConfig(req *WebConfigRequest) (*configs.Config, error) {
	cfg, err := s.updateConfig(func(cfg *configs.Config) error {
		web := &cfg.WebAutomation
		web.ProxyServer = req.ProxyServer
		if req.MiaoshouURL != "" {
			web.MiaoshouURL = req.MiaoshouURL
		}
		web.MiaoshouUsername = req.MiaoshouUsername
		if req.MiaoshouPassword != "" {
			web.MiaoshouPassword = req.MiaoshouPassword
		}
		web.ExtensionPath = req.ExtensionPath
		if req.UserDataDir != "" {
			web.UserDataDir = req.UserDataDir
		}
		switch req.CollectMode {
		case "":
		case configs.DefaultCollectModeOpen, configs.DefaultCollectModeClick:
			web.CollectMode = req.CollectMode
		default:
			return errors.Errorf("collect_mode 只能是 %s 或 %s", configs.DefaultCollectModeOpen, configs.DefaultCollectModeClick)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.Info("Web自动化配置已保存")
	return cfg, nil
}

func (s *CollectService) SaveMobileConfig(req *MobileConfigRequest) (*configs.Config, error) {
	cfg, err := s.updateConfig(func(cfg *configs.Config) error {
		cfg.Device.PlatformVersion = req.PlatformVersion
		cfg.Device.DeviceName = req.DeviceName
		if req.TikTokAppPackage != "" {
			cfg.TikTok.AppPackage = req.TikTokAppPackage
		}
		cfg.TikTok.AppActivity = req.TikTokAppActivity
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.Info("APP自动化配置已保存")
	return cfg, nil
}

// ListImages 列出 uploads 中的图片文件
func (s *CollectService) ListImages() ([]string, error) {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrap(err, "读取图片目录失败")
	}

	images := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isImageFile(filepath.Join(s.uploadDir, e.Name())) {
			images = append(images, e.Name())
		}
	}
	sort.Strings(images)
	return images, nil
}

// SaveImage 保存上传的图片，按文件头判断类型
func (s *CollectService) SaveImage(name string, r io.Reader) (string, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", errors.Wrap(ErrInvalidImage, "文件名为空")
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(err, "读取上传文件失败")
	}
	if !filetype.IsImage(data) {
		return "", errors.Wrap(ErrInvalidImage, name)
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", errors.Wrap(err, "创建图片目录失败")
	}
	if err := os.WriteFile(filepath.Join(s.uploadDir, name), data, 0o644); err != nil {
		return "", errors.Wrap(err, "保存图片失败")
	}
	logrus.Infof("已保存上传图片: %s", name)
	return name, nil
}

// ImagePath uploads 下某个图片的路径
func (s *CollectService) ImagePath(name string) (string, error) {
	path, err := linkopener.ResolveLinkFile(s.uploadDir, name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", errors.Wrap(ErrNotFound, name)
	}
	return path, nil
}

// StartRun 提交一次采集任务
func (s *CollectService) StartRun(req *StartRunRequest) (*StartRunResponse, error) {
	opts := automation.RunOptions{MaxLinks: req.MaxLinks}
	if req.PCImagePath != "" {
		path, err := s.ImagePath(req.PCImagePath)
		if err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, errors.Wrap(err, "解析图片路径失败")
		}
		opts.PCImagePath = abs
		logrus.Infof("收到启动采集任务请求，图片: %s", abs)
	}

	h, err := s.exec.Submit(opts)
	if err != nil {
		return nil, err
	}
	return &StartRunResponse{RunID: h.ID(), Status: automation.StatusRunning}, nil
}

func (s *CollectService) Status() automation.Snapshot {
	return s.exec.Current()
}

func (s *CollectService) ListRuns(ctx context.Context, limit int) ([]store.Record, error) {
	if s.store == nil {
		return []store.Record{}, nil
	}
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []store.Record{}
	}
	return runs, nil
}

func (s *CollectService) ListLinkFiles() ([]string, error) {
	return linkopener.ListLinkFiles(s.linksDir)
}

// OpenLinks 在后台打开链接文件，文件校验失败或浏览器占用时立即返回错误
func (s *CollectService) OpenLinks(ctx context.Context, name string) error {
	cfg, err := s.LoadConfig()
	if err != nil {
		return err
	}
	return s.openLinks(ctx, cfg.WebAutomation, name)
}

func (s *CollectService) startOpener(ctx context.Context, web configs.WebAutomationConfig, name string) error {
	opener := linkopener.NewOpener(web,
		linkopener.WithLinksDir(s.linksDir),
		linkopener.WithManager(s.browsers),
	)
	// 浏览器需要一直开着，不能跟随请求的 ctx
	_, err := opener.Start(context.WithoutCancel(ctx), name)
	return err
}

func (s *CollectService) CheckERPLogin(ctx context.Context) (*linkopener.LoginStatus, error) {
	cfg, err := s.LoadConfig()
	if err != nil {
		return nil, err
	}
	return linkopener.CheckLogin(ctx, s.browsers, cfg.WebAutomation.MiaoshouURL)
}

// StartScheduler 按配置中的 task.schedule 启用定时采集
func (s *CollectService) StartScheduler() error {
	cfg, err := s.LoadConfig()
	if err != nil {
		return err
	}
	sched := automation.NewScheduler(s.exec)
	if err := sched.Start(cfg.Task.Schedule); err != nil {
		return err
	}
	s.sched = sched
	return nil
}

// Close 停止定时任务、取消正在运行的任务并关闭浏览器
func (s *CollectService) Close() {
	if s.sched != nil {
		s.sched.Stop()
	}
	s.exec.Close()
	s.browsers.CloseBrowser()
}

func isImageFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, imageHeaderSize)
	n, _ := io.ReadFull(f, head)
	return filetype.IsImage(head[:n])
}
