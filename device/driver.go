package device

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultSwipeMs      = 1000

	keycodeHome = 3
	byXPath     = "xpath"
)

// Driver 在 Session 之上提供带等待的元素查找、手势和应用切换。
// 元素等待全部在客户端轮询完成，会话的 implicit wait 固定为 0。
type Driver struct {
	session      *Session
	pollInterval time.Duration
	sleep        func(time.Duration)
}

// Open 连接 Appium 并创建会话
func Open(ctx context.Context, serverURL string, caps Capabilities) (*Driver, error) {
	client := NewClient(serverURL)

	logrus.WithFields(logrus.Fields{
		"server": serverURL,
		"device": caps.DeviceName,
	}).Info("正在连接 Appium 服务...")

	ready, err := client.Status(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "无法连接 Appium 服务: %s", serverURL)
	}
	if !ready {
		return nil, errors.Errorf("Appium 服务未就绪: %s", serverURL)
	}

	session, err := client.NewSession(ctx, caps)
	if err != nil {
		return nil, err
	}
	if err := session.SetImplicitWait(ctx, 0); err != nil {
		logrus.Warnf("设置 implicit wait 失败: %v", err)
	}

	logrus.WithField("session", session.ID).Info("Appium 会话创建成功")
	return NewDriver(session), nil
}

func NewDriver(session *Session) *Driver {
	return &Driver{
		session:      session,
		pollInterval: DefaultPollInterval,
		sleep:        time.Sleep,
	}
}

// FindElement 在 timeout 内轮询查找元素。
// 元素不存在返回 (nil, nil)；只有查询非法或会话/网络故障才返回错误。
func (d *Driver) FindElement(ctx context.Context, xpath string, timeout time.Duration) (Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		id, err := d.session.FindElement(ctx, byXPath, xpath)
		if err == nil {
			return &remoteElement{session: d.session, id: id}, nil
		}
		if !errors.Is(err, ErrNoSuchElement) {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			logrus.Debugf("元素未找到: %s", xpath)
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

// FindElements 在 timeout 内等待至少一个元素出现，超时返回空切片
func (d *Driver) FindElements(ctx context.Context, xpath string, timeout time.Duration) ([]Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		ids, err := d.session.FindElements(ctx, byXPath, xpath)
		if err != nil && !errors.Is(err, ErrNoSuchElement) {
			return nil, err
		}
		if len(ids) > 0 {
			elements := make([]Element, 0, len(ids))
			for _, id := range ids {
				elements = append(elements, &remoteElement{session: d.session, id: id})
			}
			return elements, nil
		}
		if !time.Now().Before(deadline) {
			return []Element{}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

// ClickElement 等待元素出现并点击，未找到返回 false
func (d *Driver) ClickElement(ctx context.Context, xpath string, timeout time.Duration) (bool, error) {
	el, err := d.FindElement(ctx, xpath, timeout)
	if err != nil || el == nil {
		return false, err
	}
	if err := el.Click(ctx); err != nil {
		return false, errors.Wrapf(err, "点击元素失败: %s", xpath)
	}
	return true, nil
}

// InputText 等待元素出现并输入文本，未找到返回 false
func (d *Driver) InputText(ctx context.Context, xpath, text string, timeout time.Duration) (bool, error) {
	el, err := d.FindElement(ctx, xpath, timeout)
	if err != nil || el == nil {
		return false, err
	}
	if err := el.SetValue(ctx, text); err != nil {
		return false, errors.Wrapf(err, "输入文本失败: %s", xpath)
	}
	return true, nil
}

// Swipe 单指滑动，duration 为按住移动的时长
func (d *Driver) Swipe(ctx context.Context, startX, startY, endX, endY int, duration time.Duration) error {
	actions := []interface{}{
		map[string]interface{}{
			"type":       "pointer",
			"id":         "finger1",
			"parameters": map[string]string{"pointerType": "touch"},
			"actions": []interface{}{
				map[string]interface{}{"type": "pointerMove", "duration": 0, "x": startX, "y": startY},
				map[string]interface{}{"type": "pointerDown", "button": 0},
				map[string]interface{}{"type": "pause", "duration": 100},
				map[string]interface{}{"type": "pointerMove", "duration": duration.Milliseconds(), "x": endX, "y": endY},
				map[string]interface{}{"type": "pointerUp", "button": 0},
			},
		},
	}
	return d.session.PerformActions(ctx, actions)
}

// SwipeUp 在屏幕中线从 80% 高度滑到 20% 高度，然后等待 1 秒
func (d *Driver) SwipeUp(ctx context.Context) error {
	size, err := d.session.WindowRect(ctx)
	if err != nil {
		return errors.Wrap(err, "获取屏幕尺寸失败")
	}
	x := size.Width / 2
	startY := size.Height * 8 / 10
	endY := size.Height * 2 / 10

	if err := d.Swipe(ctx, x, startY, x, endY, DefaultSwipeMs*time.Millisecond); err != nil {
		return errors.Wrap(err, "向上滑动失败")
	}
	d.sleep(time.Second)
	return nil
}

func (d *Driver) Back(ctx context.Context) error {
	return d.session.Back(ctx)
}

// SwitchToApp 把指定应用切到前台
func (d *Driver) SwitchToApp(ctx context.Context, appPackage string) error {
	if err := d.session.ActivateApp(ctx, appPackage); err != nil {
		return errors.Wrapf(err, "切换到应用 %s 失败", appPackage)
	}
	return nil
}

func (d *Driver) TerminateApp(ctx context.Context, appPackage string) error {
	if err := d.session.TerminateApp(ctx, appPackage); err != nil {
		return errors.Wrapf(err, "关闭应用 %s 失败", appPackage)
	}
	return nil
}

func (d *Driver) PressHome(ctx context.Context) error {
	return d.session.PressKeycode(ctx, keycodeHome)
}

// ClipboardText 读取设备（而不是本机）的剪贴板
func (d *Driver) ClipboardText(ctx context.Context) (string, error) {
	return d.session.GetClipboard(ctx)
}

func (d *Driver) SetClipboardText(ctx context.Context, text string) error {
	return d.session.SetClipboard(ctx, text)
}

func (d *Driver) PushFile(ctx context.Context, remotePath string, data []byte) error {
	return d.session.PushFile(ctx, remotePath, data)
}

// TakeScreenshot 截图并保存到本地路径
func (d *Driver) TakeScreenshot(ctx context.Context, path string) error {
	data, err := d.session.Screenshot(ctx)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "创建截图目录失败")
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Quit 关闭会话
func (d *Driver) Quit(ctx context.Context) error {
	if d.session == nil {
		return nil
	}
	if err := d.session.Delete(ctx); err != nil {
		return errors.Wrap(err, "关闭 Appium 会话失败")
	}
	logrus.Info("Appium 会话已关闭")
	return nil
}
