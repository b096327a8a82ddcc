package share

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpzouying/tiktok-shop-mcp/device"
	"github.com/xpzouying/tiktok-shop-mcp/wechat"
)

func TestFileSink_AppendsInOrder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shared_links")
	now := time.Date(2024, 5, 1, 12, 30, 45, 7*int(time.Millisecond), time.Local)
	sink := newFileSinkAt(dir, now)

	ctx := context.Background()
	assert.True(t, sink.Share(ctx, "http://a"))
	assert.True(t, sink.Share(ctx, "http://b"))

	assert.Equal(t, filepath.Join(dir, "links-20240501123045007.txt"), sink.Path())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(sink.Path())
	require.NoError(t, err)
	assert.Equal(t, "http://a\nhttp://b\n", string(data))
}

func TestFileSink_SameSecondUsesDifferentFiles(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 5, 1, 12, 30, 45, 0, time.Local)
	first := newFileSinkAt(dir, base)
	second := newFileSinkAt(dir, base.Add(250*time.Millisecond))
	require.NotEqual(t, first.Path(), second.Path())

	ctx := context.Background()
	require.True(t, first.Share(ctx, "http://a"))
	require.True(t, second.Share(ctx, "http://b"))

	data, err := os.ReadFile(first.Path())
	require.NoError(t, err)
	assert.Equal(t, "http://a\n", string(data))
	// 文件名按时间排序
	assert.Less(t, filepath.Base(first.Path()), filepath.Base(second.Path()))
}

func TestFileSink_WriteFailure(t *testing.T) {
	base := t.TempDir()
	// 目录位置被普通文件占用，MkdirAll 会失败
	blocker := filepath.Join(base, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	sink := NewFileSink(blocker)
	assert.False(t, sink.Share(context.Background(), "http://a"))
}

func TestFileSink_DefaultDir(t *testing.T) {
	sink := NewFileSink("")
	assert.Equal(t, DefaultDir, filepath.Dir(sink.Path()))
}

func TestNew(t *testing.T) {
	tests := []struct {
		mode string
		want interface{}
	}{
		{mode: "", want: &FileSink{}},
		{mode: "file", want: &FileSink{}},
		{mode: "FILE", want: &FileSink{}},
		{mode: "wechat", want: &WeChatSink{}},
		{mode: "email", want: invalidSink{}},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			sink := New(tt.mode, Options{Dir: t.TempDir()})
			assert.IsType(t, tt.want, sink)
		})
	}
}

func TestNew_UnknownModeAlwaysFails(t *testing.T) {
	sink := New("email", Options{})
	assert.False(t, sink.Share(context.Background(), "http://a"))
	assert.False(t, sink.Share(context.Background(), "http://b"))
}

func TestCheckMode(t *testing.T) {
	assert.NoError(t, CheckMode(""))
	assert.NoError(t, CheckMode("wechat"))

	err := CheckMode("email")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestWeChatSink_NotConfigured(t *testing.T) {
	assert.False(t, NewWeChatSink(nil, "张三").Share(context.Background(), "http://a"))

	page := wechat.NewPage(&chatDevice{}, "com.tencent.mm")
	assert.False(t, NewWeChatSink(page, "").Share(context.Background(), "http://a"))
}

func TestWeChatSink_SendsToOpenChat(t *testing.T) {
	dev := &chatDevice{title: "文件传输助手", clipboard: "http://a"}
	page := wechat.NewPage(dev, "com.tencent.mm").WithSleep(func(time.Duration) {})

	ok := NewWeChatSink(page, "文件传输助手").Share(context.Background(), "http://a")
	require.True(t, ok)
	assert.Equal(t, "http://a", dev.sent)
	assert.Zero(t, dev.terminated)
}

func TestWeChatSink_ContactNotFound(t *testing.T) {
	dev := &chatDevice{noContact: true}
	page := wechat.NewPage(dev, "com.tencent.mm")

	page.WithSleep(func(time.Duration) {})

	ok := NewWeChatSink(page, "张三").Share(context.Background(), "http://a")
	assert.False(t, ok)
	assert.Equal(t, 1, dev.terminated)
	assert.Empty(t, dev.sent)
}

// chatDevice 只模拟聊天标题、联系人和消息输入框
type chatDevice struct {
	title      string
	clipboard  string
	noContact  bool
	sent       string
	terminated int
}

type chatElement struct {
	dev *chatDevice
}

func (e chatElement) Rect(ctx context.Context) (device.Rect, error) { return device.Rect{}, nil }
func (e chatElement) Click(ctx context.Context) error                { return nil }
func (e chatElement) Text(ctx context.Context) (string, error)       { return "", nil }
func (e chatElement) SetValue(ctx context.Context, text string) error {
	e.dev.sent = text
	return nil
}

func (d *chatDevice) FindElement(ctx context.Context, xpath string, timeout time.Duration) (device.Element, error) {
	if d.title != "" && xpath == "//android.widget.TextView[@text='"+d.title+"']" {
		return chatElement{dev: d}, nil
	}
	if xpath == "//android.widget.EditText[@text='请输入消息内容']" {
		return chatElement{dev: d}, nil
	}
	return nil, nil
}

func (d *chatDevice) ClickElement(ctx context.Context, xpath string, timeout time.Duration) (bool, error) {
	if d.noContact && xpath != `//*[@resource-id="com.tencent.mm:id/action_option_search"]` {
		return false, nil
	}
	return true, nil
}

func (d *chatDevice) InputText(ctx context.Context, xpath, text string, timeout time.Duration) (bool, error) {
	return true, nil
}

func (d *chatDevice) ClipboardText(ctx context.Context) (string, error) { return d.clipboard, nil }

func (d *chatDevice) SwitchToApp(ctx context.Context, appPackage string) error { return nil }

func (d *chatDevice) TerminateApp(ctx context.Context, appPackage string) error {
	d.terminated++
	return nil
}

func (d *chatDevice) PressHome(ctx context.Context) error { return nil }

func (d *chatDevice) Back(ctx context.Context) error { return nil }
