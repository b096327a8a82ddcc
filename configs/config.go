package configs

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "config.yaml"

	DefaultAppiumServerURL  = "http://127.0.0.1:4723"
	DefaultTikTokPackage    = "com.zhiliaoapp.musically"
	DefaultTikTokActivity   = "com.ss.android.ugc.aweme.splash.SplashActivity"
	DefaultWeChatPackage    = "com.tencent.mm"
	DefaultMaxProducts      = 20
	DefaultImplicitWait     = 10
	DefaultScreenshotPath   = "screenshots"
	DefaultShareTarget      = "file"
	DefaultSlotStart        = 5
	DefaultSlotEnd          = 9
	DefaultUploadDir        = "uploads"
	DefaultSharedLinksDir   = "shared_links"
	DefaultMiaoshouURL      = "https://erp.91miaoshou.com/?redirect=%2Fwelcome"
	DefaultBrowserProfile   = "browser_profile"
	DefaultCollectModeOpen  = "open"
	DefaultCollectModeClick = "collect"
	DefaultServerPort       = ":18060"
	DefaultDBPath           = "data/runs.db"
)

// Config 对应 config.yaml 的完整结构
type Config struct {
	Appium        AppiumConfig        `yaml:"appium" json:"appium"`
	Device        DeviceConfig        `yaml:"device" json:"device"`
	TikTok        AppConfig           `yaml:"tiktok" json:"tiktok"`
	WeChat        AppConfig           `yaml:"wechat" json:"wechat"`
	Task          TaskConfig          `yaml:"task" json:"task"`
	WebAutomation WebAutomationConfig `yaml:"web_automation" json:"web_automation"`
	Server        ServerConfig        `yaml:"server" json:"server"`
}

// ServerConfig 控制台与 MCP 服务
type ServerConfig struct {
	Port   string `yaml:"port" json:"port"`
	DBPath string `yaml:"db_path" json:"db_path"`
}

type AppiumConfig struct {
	ServerURL string `yaml:"server_url" json:"server_url"`
}

// DeviceConfig 设备能力参数，会被映射为 appium:xxx capabilities
type DeviceConfig struct {
	PlatformName    string `yaml:"platform_name" json:"platform_name"`
	PlatformVersion string `yaml:"platform_version" json:"platform_version"`
	DeviceName      string `yaml:"device_name" json:"device_name"`
	AutomationName  string `yaml:"automation_name" json:"automation_name"`
	NoReset         bool   `yaml:"no_reset" json:"no_reset"`
	FullReset       bool   `yaml:"full_reset" json:"full_reset"`
}

type AppConfig struct {
	AppPackage  string `yaml:"app_package" json:"app_package"`
	AppActivity string `yaml:"app_activity,omitempty" json:"app_activity,omitempty"`
}

// TaskConfig 采集任务参数
type TaskConfig struct {
	MaxProductsToProcess int    `yaml:"max_products_to_process" json:"max_products_to_process"`
	ImplicitWait         int    `yaml:"implicit_wait" json:"implicit_wait"` // 秒
	ScreenshotPath       string `yaml:"screenshot_path" json:"screenshot_path"`
	ShareTarget          string `yaml:"share_target" json:"share_target"`
	ContactName          string `yaml:"contact_name" json:"contact_name"`
	PCImagePath          string `yaml:"pc_image_path" json:"pc_image_path"`
	SlotStart            int    `yaml:"slot_start" json:"slot_start"`
	SlotEnd              int    `yaml:"slot_end" json:"slot_end"`
	ProductXPath         string `yaml:"product_xpath,omitempty" json:"product_xpath,omitempty"`
	// cron 表达式（秒字段可选），为空则不启用定时任务
	Schedule string `yaml:"schedule,omitempty" json:"schedule,omitempty"`
}

// WebAutomationConfig 妙手 ERP 与浏览器插件相关配置
type WebAutomationConfig struct {
	ProxyServer      string `yaml:"proxy_server" json:"proxy_server"`
	MiaoshouURL      string `yaml:"miaoshou_url" json:"miaoshou_url"`
	MiaoshouUsername string `yaml:"miaoshou_username" json:"miaoshou_username"`
	MiaoshouPassword string `yaml:"miaoshou_password" json:"-"`
	ExtensionPath    string `yaml:"extension_path" json:"extension_path"`
	UserDataDir      string `yaml:"user_data_dir" json:"user_data_dir"`
	CollectMode      string `yaml:"collect_mode" json:"collect_mode"`
}

// Default 返回带默认值的配置
func Default() *Config {
	return &Config{
		Appium: AppiumConfig{ServerURL: DefaultAppiumServerURL},
		Device: DeviceConfig{
			PlatformName:   "Android",
			AutomationName: "UiAutomator2",
			NoReset:        true,
		},
		TikTok: AppConfig{AppPackage: DefaultTikTokPackage, AppActivity: DefaultTikTokActivity},
		WeChat: AppConfig{AppPackage: DefaultWeChatPackage},
		Task: TaskConfig{
			MaxProductsToProcess: DefaultMaxProducts,
			ImplicitWait:         DefaultImplicitWait,
			ScreenshotPath:       DefaultScreenshotPath,
			ShareTarget:          DefaultShareTarget,
			SlotStart:            DefaultSlotStart,
			SlotEnd:              DefaultSlotEnd,
		},
		WebAutomation: WebAutomationConfig{
			MiaoshouURL: DefaultMiaoshouURL,
			UserDataDir: DefaultBrowserProfile,
			CollectMode: DefaultCollectModeOpen,
		},
		Server: ServerConfig{Port: DefaultServerPort, DBPath: DefaultDBPath},
	}
}

// Load 读取配置文件，文件不存在时返回默认配置。
// 读取完成后会用 .env 与环境变量覆盖敏感字段，结果只用于运行，不要写回文件。
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile 只读取配置文件本身，不叠加环境变量，用于修改后保存
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "解析配置文件失败: %s", path)
		}
	case os.IsNotExist(err):
		logrus.WithField("path", path).Warn("配置文件不存在，使用默认配置")
	default:
		return nil, errors.Wrapf(err, "读取配置文件失败: %s", path)
	}

	cfg.fillDefaults()
	return cfg, nil
}

// Save 将配置写回文件
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "序列化配置失败")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "写入配置文件失败: %s", path)
	}
	return nil
}

// Validate 校验运行一次采集任务所需的字段
func (c *Config) Validate() error {
	if c.Appium.ServerURL == "" {
		return errors.New("appium.server_url 不能为空")
	}
	if c.TikTok.AppPackage == "" {
		return errors.New("tiktok.app_package 不能为空")
	}
	if c.Task.MaxProductsToProcess <= 0 {
		return errors.Errorf("task.max_products_to_process 必须为正数，当前: %d", c.Task.MaxProductsToProcess)
	}
	if c.Task.SlotStart < 1 || c.Task.SlotEnd <= c.Task.SlotStart {
		return errors.Errorf("task 槽位区间无效: [%d, %d)", c.Task.SlotStart, c.Task.SlotEnd)
	}
	if strings.EqualFold(c.Task.ShareTarget, "wechat") && c.Task.ContactName == "" {
		return errors.New("share_target 为 wechat 时 contact_name 不能为空")
	}
	return nil
}

// LoadDotEnv 加载 .env 文件，文件不存在时忽略
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if !os.IsNotExist(err) {
				logrus.WithError(err).WithField("path", p).Warn("加载 .env 失败")
			}
			continue
		}
		logrus.WithField("path", p).Debug("已加载 .env")
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("APPIUM_SERVER_URL"); v != "" {
		c.Appium.ServerURL = v
	}
	if v := os.Getenv("MIAOSHOU_USERNAME"); v != "" {
		c.WebAutomation.MiaoshouUsername = v
	}
	if v := os.Getenv("MIAOSHOU_PASSWORD"); v != "" {
		c.WebAutomation.MiaoshouPassword = v
	}
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.Task.ImplicitWait <= 0 {
		c.Task.ImplicitWait = def.Task.ImplicitWait
	}
	if c.Task.ScreenshotPath == "" {
		c.Task.ScreenshotPath = def.Task.ScreenshotPath
	}
	if c.Task.ShareTarget == "" {
		c.Task.ShareTarget = def.Task.ShareTarget
	}
	if c.Task.SlotStart == 0 && c.Task.SlotEnd == 0 {
		c.Task.SlotStart, c.Task.SlotEnd = def.Task.SlotStart, def.Task.SlotEnd
	}
	if c.TikTok.AppPackage == "" {
		c.TikTok.AppPackage = def.TikTok.AppPackage
	}
	if c.WeChat.AppPackage == "" {
		c.WeChat.AppPackage = def.WeChat.AppPackage
	}
	if c.WebAutomation.UserDataDir == "" {
		c.WebAutomation.UserDataDir = def.WebAutomation.UserDataDir
	}
	if c.WebAutomation.CollectMode == "" {
		c.WebAutomation.CollectMode = def.WebAutomation.CollectMode
	}
	if c.Server.Port == "" {
		c.Server.Port = def.Server.Port
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = def.Server.DBPath
	}
}
