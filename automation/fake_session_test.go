package automation

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xpzouying/tiktok-shop-mcp/configs"
	"github.com/xpzouying/tiktok-shop-mcp/device"
)

var testSlotPattern = regexp.MustCompile(`^//item\[(\d+)\]$`)

type fakeCard struct {
	s    *fakeSession
	rect device.Rect
	link string
}

func (c *fakeCard) Rect(ctx context.Context) (device.Rect, error) { return c.rect, nil }
func (c *fakeCard) Click(ctx context.Context) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.calls = append(c.s.calls, "tap")
	c.s.opened = c
	return nil
}
func (c *fakeCard) Text(ctx context.Context) (string, error)        { return "", nil }
func (c *fakeCard) SetValue(ctx context.Context, text string) error { return nil }

// fakeSession 只有一屏商品的假设备
type fakeSession struct {
	mu sync.Mutex

	cards     map[int]*fakeCard
	opened    *fakeCard
	clipboard string
	// 点击 xpath 包含这些片段时找不到元素
	missing []string
	// 截图、推送图片失败时返回的错误
	screenshotErr error
	pushErr       error

	calls       []string
	pushed      map[string][]byte
	screenshots []string
	quits       int
}

func newFakeSession() *fakeSession {
	return &fakeSession{cards: map[int]*fakeCard{}, pushed: map[string][]byte{}}
}

func (s *fakeSession) addCard(slot, x, y int, link string) {
	s.cards[slot] = &fakeCard{s: s, rect: device.Rect{X: x, Y: y, Width: 400, Height: 600}, link: link}
}

func (s *fakeSession) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeSession) FindElement(ctx context.Context, xpath string, timeout time.Duration) (device.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := testSlotPattern.FindStringSubmatch(xpath); m != nil {
		slot, _ := strconv.Atoi(m[1])
		if c, ok := s.cards[slot]; ok {
			return c, nil
		}
	}
	return nil, nil
}

func (s *fakeSession) ClickElement(ctx context.Context, xpath string, timeout time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "click")
	for _, frag := range s.missing {
		if strings.Contains(xpath, frag) {
			return false, nil
		}
	}
	if strings.Contains(xpath, "复制链接") && s.opened != nil {
		s.clipboard = s.opened.link
	}
	return true, nil
}

func (s *fakeSession) InputText(ctx context.Context, xpath, text string, timeout time.Duration) (bool, error) {
	s.record("input")
	return true, nil
}

func (s *fakeSession) SwitchToApp(ctx context.Context, appPackage string) error {
	s.record("switch:" + appPackage)
	return nil
}

func (s *fakeSession) TerminateApp(ctx context.Context, appPackage string) error {
	s.record("terminate:" + appPackage)
	return nil
}

func (s *fakeSession) PressHome(ctx context.Context) error {
	s.record("home")
	return nil
}

func (s *fakeSession) Back(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "back")
	s.opened = nil
	return nil
}

func (s *fakeSession) SwipeUp(ctx context.Context) error {
	s.record("swipe")
	return nil
}

func (s *fakeSession) ClipboardText(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clipboard, nil
}

func (s *fakeSession) SetClipboardText(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clipboard = text
	return nil
}

func (s *fakeSession) PushFile(ctx context.Context, remotePath string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pushErr != nil {
		return s.pushErr
	}
	s.pushed[remotePath] = data
	return nil
}

func (s *fakeSession) TakeScreenshot(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenshots = append(s.screenshots, path)
	return s.screenshotErr
}

func (s *fakeSession) Quit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quits++
	return nil
}

func openerFor(s *fakeSession) SessionOpener {
	return func(ctx context.Context, cfg *configs.Config) (Session, error) {
		return s, nil
	}
}

func testConfig(dir string) *configs.Config {
	cfg := configs.Default()
	cfg.Task.ProductXPath = "//item[{slot}]"
	cfg.Task.ScreenshotPath = dir
	return cfg
}

func noSleep(time.Duration) {}
