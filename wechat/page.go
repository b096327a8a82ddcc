package wechat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/tiktok-shop-mcp/device"
)

const (
	searchButtonXPath = `//*[@resource-id="com.tencent.mm:id/action_option_search"]`
	searchInputXPath  = `//*[@resource-id="com.tencent.mm:id/search_input"]`
	messageInputXPath = `//android.widget.EditText[@text='请输入消息内容']`
	sendButtonXPath   = `//android.widget.Button[@text='发送']`

	defaultTimeout   = 10 * time.Second
	clickTimeout     = 3 * time.Second
	chatTitleTimeout = 3 * time.Second
)

// Device 微信页面依赖的设备能力，由 *device.Driver 实现
type Device interface {
	FindElement(ctx context.Context, xpath string, timeout time.Duration) (device.Element, error)
	ClickElement(ctx context.Context, xpath string, timeout time.Duration) (bool, error)
	InputText(ctx context.Context, xpath, text string, timeout time.Duration) (bool, error)
	ClipboardText(ctx context.Context) (string, error)
	SwitchToApp(ctx context.Context, appPackage string) error
	TerminateApp(ctx context.Context, appPackage string) error
	PressHome(ctx context.Context) error
	Back(ctx context.Context) error
}

// Page 微信页面操作
type Page struct {
	dev        Device
	appPackage string
	sleep      func(time.Duration)
}

func NewPage(dev Device, appPackage string) *Page {
	return &Page{
		dev:        dev,
		appPackage: appPackage,
		sleep:      time.Sleep,
	}
}

// WithSleep 替换页面操作之间的固定等待
func (p *Page) WithSleep(fn func(time.Duration)) *Page {
	if fn != nil {
		p.sleep = fn
	}
	return p
}

// OpenChat 切到微信并进入与 contact 的聊天。
// 已经停留在该聊天时直接返回，否则重启微信后搜索联系人。
func (p *Page) OpenChat(ctx context.Context, contact string) error {
	if err := p.dev.SwitchToApp(ctx, p.appPackage); err != nil {
		return errors.Wrap(err, "切换到微信失败")
	}
	if p.IsChatOpen(ctx, contact) {
		logrus.Debugf("已在与 %s 的聊天页面", contact)
		return nil
	}

	if err := p.Restart(ctx); err != nil {
		return err
	}
	return p.SearchContact(ctx, contact)
}

// IsChatOpen 聊天标题是否为 contact
func (p *Page) IsChatOpen(ctx context.Context, contact string) bool {
	el, err := p.dev.FindElement(ctx, chatTitleXPath(contact), chatTitleTimeout)
	if err != nil {
		logrus.Warnf("检查聊天页面失败: %v", err)
		return false
	}
	return el != nil
}

// Restart 关闭微信并从桌面重新打开
func (p *Page) Restart(ctx context.Context) error {
	logrus.Info("正在打开微信...")
	if err := p.dev.TerminateApp(ctx, p.appPackage); err != nil {
		return err
	}
	if err := p.dev.PressHome(ctx); err != nil {
		return errors.Wrap(err, "返回桌面失败")
	}
	if err := p.dev.SwitchToApp(ctx, p.appPackage); err != nil {
		return errors.Wrap(err, "启动微信失败")
	}
	p.sleep(5 * time.Second)
	return nil
}

// SearchContact 通过顶部搜索进入联系人聊天
func (p *Page) SearchContact(ctx context.Context, contact string) error {
	logrus.Infof("搜索联系人: %s", contact)

	ok, err := p.dev.ClickElement(ctx, searchButtonXPath, clickTimeout)
	if err != nil {
		return errors.Wrap(err, "点击搜索图标失败")
	}
	if !ok {
		return errors.New("未找到顶部的搜索图标")
	}
	p.sleep(time.Second)

	ok, err = p.dev.InputText(ctx, searchInputXPath, contact, defaultTimeout)
	if err != nil {
		return errors.Wrap(err, "输入联系人名称失败")
	}
	if !ok {
		return errors.New("未找到搜索输入框")
	}
	p.sleep(2 * time.Second)

	ok, err = p.dev.ClickElement(ctx, contactXPath(contact), clickTimeout)
	if err != nil {
		return errors.Wrap(err, "点击联系人失败")
	}
	if !ok {
		return errors.Errorf("未找到联系人: %s", contact)
	}
	logrus.Infof("成功找到并点击联系人: %s", contact)
	p.sleep(2 * time.Second)
	return nil
}

// SendMessage 发送设备剪贴板中的内容，剪贴板为空时发送 fallback
func (p *Page) SendMessage(ctx context.Context, fallback string) error {
	logrus.Info("发送消息...")

	input, err := p.dev.FindElement(ctx, messageInputXPath, defaultTimeout)
	if err != nil {
		return errors.Wrap(err, "查找消息输入框失败")
	}
	if input == nil {
		return errors.New("未找到消息输入框")
	}

	text, err := p.dev.ClipboardText(ctx)
	if err != nil {
		logrus.Warnf("读取设备剪贴板失败: %v", err)
	}
	if strings.TrimSpace(text) == "" {
		text = fallback
	}
	if text == "" {
		return errors.New("剪贴板和消息参数均为空，无可发送内容")
	}

	if err := input.SetValue(ctx, text); err != nil {
		return errors.Wrap(err, "输入消息失败")
	}
	p.sleep(time.Second)

	ok, err := p.dev.ClickElement(ctx, sendButtonXPath, clickTimeout)
	if err != nil {
		return errors.Wrap(err, "点击发送按钮失败")
	}
	if !ok {
		return errors.New("未找到发送按钮")
	}
	logrus.Info("消息发送成功")
	return nil
}

// BackToChatList 从聊天页返回到会话列表
func (p *Page) BackToChatList(ctx context.Context) error {
	for i := 0; i < 2; i++ {
		if err := p.dev.Back(ctx); err != nil {
			return errors.Wrap(err, "返回聊天列表失败")
		}
		p.sleep(time.Second)
	}
	return nil
}

func chatTitleXPath(contact string) string {
	return fmt.Sprintf("//android.widget.TextView[@text=%s]", xpathLiteral(contact))
}

func contactXPath(contact string) string {
	return fmt.Sprintf("//android.widget.TextView[contains(@text, %s)]", xpathLiteral(contact))
}

// xpathLiteral 把任意字符串转成 XPath 字面量，兼容同时含单双引号的名字
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+part+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
