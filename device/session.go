package device

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

const (
	w3cElementKey    = "element-6066-11e4-a52e-4f735466cecf"
	legacyElementKey = "ELEMENT"
)

// Capabilities 创建会话时的设备能力
type Capabilities struct {
	PlatformName      string
	PlatformVersion   string
	DeviceName        string
	AutomationName    string
	AppPackage        string
	AppActivity       string
	NoReset           bool
	FullReset         bool
	NewCommandTimeout int // 秒
}

// W3C 转换为 alwaysMatch，非标准字段加 appium: 前缀
func (c Capabilities) W3C() map[string]interface{} {
	caps := map[string]interface{}{
		"platformName":     c.PlatformName,
		"appium:noReset":   c.NoReset,
		"appium:fullReset": c.FullReset,
	}
	optional := map[string]string{
		"appium:platformVersion": c.PlatformVersion,
		"appium:deviceName":      c.DeviceName,
		"appium:automationName":  c.AutomationName,
		"appium:appPackage":      c.AppPackage,
		"appium:appActivity":     c.AppActivity,
	}
	for k, v := range optional {
		if v != "" {
			caps[k] = v
		}
	}
	if c.NewCommandTimeout > 0 {
		caps["appium:newCommandTimeout"] = c.NewCommandTimeout
	}
	return caps
}

// Session 一个已建立的 Appium 会话，方法与 W3C 端点一一对应
type Session struct {
	client *Client
	ID     string
}

// NewSession 创建会话
func (c *Client) NewSession(ctx context.Context, caps Capabilities) (*Session, error) {
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": caps.W3C(),
			"firstMatch":  []interface{}{map[string]interface{}{}},
		},
	}
	res, err := c.do(ctx, http.MethodPost, "/session", body)
	if err != nil {
		return nil, errors.Wrap(err, "创建 Appium 会话失败")
	}
	id := res.Get("sessionId").String()
	if id == "" {
		return nil, errors.New("创建 Appium 会话失败: 响应中没有 sessionId")
	}
	return &Session{client: c, ID: id}, nil
}

func (s *Session) path(p string) string {
	return "/session/" + s.ID + p
}

func (s *Session) SetImplicitWait(ctx context.Context, ms int) error {
	_, err := s.client.do(ctx, http.MethodPost, s.path("/timeouts"), map[string]int{"implicit": ms})
	return err
}

// FindElement 单次查找，不存在时返回 ErrNoSuchElement
func (s *Session) FindElement(ctx context.Context, using, value string) (string, error) {
	res, err := s.client.do(ctx, http.MethodPost, s.path("/element"), map[string]string{
		"using": using,
		"value": value,
	})
	if err != nil {
		return "", err
	}
	id := elementID(res)
	if id == "" {
		return "", ErrNoSuchElement
	}
	return id, nil
}

func (s *Session) FindElements(ctx context.Context, using, value string) ([]string, error) {
	res, err := s.client.do(ctx, http.MethodPost, s.path("/elements"), map[string]string{
		"using": using,
		"value": value,
	})
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, item := range res.Array() {
		if id := elementID(item); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Session) ElementRect(ctx context.Context, id string) (Rect, error) {
	res, err := s.client.do(ctx, http.MethodGet, s.path("/element/"+id+"/rect"), nil)
	if err != nil {
		return Rect{}, err
	}
	return Rect{
		X:      int(res.Get("x").Int()),
		Y:      int(res.Get("y").Int()),
		Width:  int(res.Get("width").Int()),
		Height: int(res.Get("height").Int()),
	}, nil
}

func (s *Session) ElementClick(ctx context.Context, id string) error {
	_, err := s.client.do(ctx, http.MethodPost, s.path("/element/"+id+"/click"), map[string]string{})
	return err
}

func (s *Session) ElementText(ctx context.Context, id string) (string, error) {
	res, err := s.client.do(ctx, http.MethodGet, s.path("/element/"+id+"/text"), nil)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

func (s *Session) ElementClear(ctx context.Context, id string) error {
	_, err := s.client.do(ctx, http.MethodPost, s.path("/element/"+id+"/clear"), map[string]string{})
	return err
}

func (s *Session) ElementSendKeys(ctx context.Context, id, text string) error {
	_, err := s.client.do(ctx, http.MethodPost, s.path("/element/"+id+"/value"), map[string]string{"text": text})
	return err
}

func (s *Session) Back(ctx context.Context) error {
	_, err := s.client.do(ctx, http.MethodPost, s.path("/back"), map[string]string{})
	return err
}

func (s *Session) WindowRect(ctx context.Context) (Rect, error) {
	res, err := s.client.do(ctx, http.MethodGet, s.path("/window/rect"), nil)
	if err != nil {
		return Rect{}, err
	}
	return Rect{
		X:      int(res.Get("x").Int()),
		Y:      int(res.Get("y").Int()),
		Width:  int(res.Get("width").Int()),
		Height: int(res.Get("height").Int()),
	}, nil
}

// PerformActions W3C actions
func (s *Session) PerformActions(ctx context.Context, actions []interface{}) error {
	_, err := s.client.do(ctx, http.MethodPost, s.path("/actions"), map[string]interface{}{"actions": actions})
	return err
}

func (s *Session) ActivateApp(ctx context.Context, appID string) error {
	_, err := s.client.do(ctx, http.MethodPost, s.path("/appium/device/activate_app"), map[string]string{"appId": appID})
	return err
}

func (s *Session) TerminateApp(ctx context.Context, appID string) error {
	_, err := s.client.do(ctx, http.MethodPost, s.path("/appium/device/terminate_app"), map[string]string{"appId": appID})
	return err
}

func (s *Session) PressKeycode(ctx context.Context, keycode int) error {
	_, err := s.client.do(ctx, http.MethodPost, s.path("/appium/device/press_keycode"), map[string]int{"keycode": keycode})
	return err
}

// GetClipboard 读取设备剪贴板（纯文本）
func (s *Session) GetClipboard(ctx context.Context) (string, error) {
	res, err := s.client.do(ctx, http.MethodPost, s.path("/appium/device/get_clipboard"), map[string]string{
		"contentType": "plaintext",
	})
	if err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(res.String())
	if err != nil {
		return "", errors.Wrap(err, "剪贴板内容解码失败")
	}
	return string(data), nil
}

func (s *Session) SetClipboard(ctx context.Context, text string) error {
	_, err := s.client.do(ctx, http.MethodPost, s.path("/appium/device/set_clipboard"), map[string]string{
		"content":     base64.StdEncoding.EncodeToString([]byte(text)),
		"contentType": "plaintext",
	})
	return err
}

func (s *Session) PushFile(ctx context.Context, remotePath string, data []byte) error {
	_, err := s.client.do(ctx, http.MethodPost, s.path("/appium/device/push_file"), map[string]string{
		"path": remotePath,
		"data": base64.StdEncoding.EncodeToString(data),
	})
	return err
}

// Screenshot 返回 PNG 数据
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	res, err := s.client.do(ctx, http.MethodGet, s.path("/screenshot"), nil)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(res.String())
	if err != nil {
		return nil, errors.Wrap(err, "截图解码失败")
	}
	return data, nil
}

func (s *Session) Delete(ctx context.Context) error {
	_, err := s.client.do(ctx, http.MethodDelete, s.path(""), nil)
	return err
}

func elementID(res gjson.Result) string {
	if id := res.Get(w3cElementKey); id.Exists() {
		return id.String()
	}
	return res.Get(legacyElementKey).String()
}
