package browser

import (
	"path/filepath"
	"sync"

	"github.com/go-rod/rod"
	"github.com/sirupsen/logrus"
	"github.com/xpzouying/headless_browser"
)

// Manager 管理两类浏览器资源：
// 检查登录态用的无头浏览器同一时间只给一个调用方；
// 插件浏览器的用户目录同一时间只能被一个进程打开。
type Manager struct {
	mu       sync.Mutex
	cond     *sync.Cond
	browser  *headless_browser.Browser
	headless bool
	binPath  string
	inUse    bool
	profiles map[string]bool
}

var (
	globalManager     *Manager
	globalManagerOnce sync.Once
)

// GetGlobalManager 进程内唯一的 Manager
func GetGlobalManager() *Manager {
	globalManagerOnce.Do(func() {
		globalManager = NewManager()
	})
	return globalManager
}

func NewManager() *Manager {
	m := &Manager{profiles: make(map[string]bool)}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *Manager) SetConfig(headless bool, binPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headless = headless
	m.binPath = binPath
}

// AcquireBrowser 获取无头浏览器，阻塞到可用。用完必须调用 release。
func (m *Manager) AcquireBrowser() (*headless_browser.Browser, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inUse {
		logrus.Info("⏳ 浏览器正在使用中，等待释放...")
		for m.inUse {
			m.cond.Wait()
		}
		logrus.Info("✓ 浏览器已释放，继续执行")
	}
	if m.browser == nil {
		logrus.Info("创建新的浏览器实例...")
		m.browser = NewBrowser(m.headless, WithBinPath(m.binPath))
		logrus.Info("✓ 浏览器实例创建成功")
	}
	m.inUse = true

	release := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.inUse = false
		m.cond.Broadcast()
	}
	return m.browser, release
}

// NewPageWithRelease 打开新页面，release 会先关页面再释放浏览器
func (m *Manager) NewPageWithRelease() (*rod.Page, func()) {
	b, releaseBrowser := m.AcquireBrowser()
	page := b.NewPage()
	ConfigurePage(page)

	return page, func() {
		if page != nil {
			_ = page.Close()
		}
		releaseBrowser()
	}
}

// TryAcquireProfile 占用用户目录，已被占用时返回 false
func (m *Manager) TryAcquireProfile(dir string) (func(), bool) {
	key := profileKey(dir)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profiles[key] {
		return nil, false
	}
	m.profiles[key] = true
	return m.profileRelease(key), true
}

// AcquireProfile 占用用户目录，阻塞到可用
func (m *Manager) AcquireProfile(dir string) func() {
	key := profileKey(dir)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profiles[key] {
		logrus.Infof("⏳ 用户目录 %s 正在使用中，等待释放...", key)
		for m.profiles[key] {
			m.cond.Wait()
		}
		logrus.Infof("✓ 用户目录 %s 已释放，继续执行", key)
	}
	m.profiles[key] = true
	return m.profileRelease(key)
}

func (m *Manager) profileRelease(key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.profiles, key)
			m.cond.Broadcast()
		})
	}
}

// CloseBrowser 关闭无头浏览器
func (m *Manager) CloseBrowser() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		logrus.Info("关闭浏览器实例...")
		m.browser.Close()
		m.browser = nil
		m.inUse = false
		m.cond.Broadcast()
	}
}

func profileKey(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}
