package browser

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher/flags"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireProfile(t *testing.T) {
	m := NewManager()
	dir := t.TempDir()

	release, ok := m.TryAcquireProfile(dir)
	require.True(t, ok)

	_, ok = m.TryAcquireProfile(dir)
	assert.False(t, ok, "同一目录不能被打开两次")

	// 相对路径和绝对路径指向同一目录时也算占用
	other, ok := m.TryAcquireProfile(filepath.Join(dir, "sub", ".."))
	assert.False(t, ok)
	assert.Nil(t, other)

	release()
	release()

	again, ok := m.TryAcquireProfile(dir)
	require.True(t, ok)
	again()
}

func TestAcquireProfile_WaitsForRelease(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	m := NewManager()
	dir := t.TempDir()

	release := m.AcquireProfile(dir)
	acquired := make(chan struct{})
	go func() {
		r := m.AcquireProfile(dir)
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("目录未释放前不应获取成功")
	case <-time.After(100 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("释放后应获取成功")
	}

	var waited, resumed bool
	for _, e := range hook.AllEntries() {
		if strings.HasPrefix(e.Message, "⏳ 用户目录") {
			waited = true
		}
		if strings.HasPrefix(e.Message, "✓ 用户目录") {
			resumed = true
		}
	}
	assert.True(t, waited, "等待时应输出 ⏳ 日志")
	assert.True(t, resumed, "释放后应输出 ✓ 日志")
}

func TestNewLauncher(t *testing.T) {
	dir := t.TempDir()
	ext := filepath.Join(dir, "ext")

	l, err := newLauncher(ExtensionOptions{
		BinPath:       "/usr/bin/chromium",
		ExtensionPath: ext,
		UserDataDir:   filepath.Join(dir, "profile"),
		ProxyServer:   "http://127.0.0.1:10908",
	})
	require.NoError(t, err)

	assert.Equal(t, ext, l.Get("load-extension"))
	assert.Equal(t, ext, l.Get("disable-extensions-except"))
	assert.Equal(t, filepath.Join(dir, "profile"), l.Get(flags.UserDataDir))
	assert.Equal(t, "http://127.0.0.1:10908", l.Get(flags.ProxyServer))
	assert.False(t, l.Has(flags.Headless))
}

func TestNewLauncher_Minimal(t *testing.T) {
	l, err := newLauncher(ExtensionOptions{})
	require.NoError(t, err)
	assert.False(t, l.Has("load-extension"))
	assert.False(t, l.Has(flags.ProxyServer))
}
