package share

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/tiktok-shop-mcp/wechat"
)

const (
	ModeFile   = "file"
	ModeWeChat = "wechat"
)

var ErrUnknownMode = errors.New("未知的分享模式")

// Sink 链接的去向。Share 只返回是否成功，失败原因写日志。
type Sink interface {
	Share(ctx context.Context, link string) bool
}

// Options 构造 Sink 需要的参数，按模式取用
type Options struct {
	// Dir 文件模式的输出目录，为空时使用 shared_links
	Dir string

	// WeChat 和 Contact 用于微信模式
	WeChat  *wechat.Page
	Contact string
}

// New 按模式名创建 Sink，空字符串视为文件模式。
// 未知模式不会返回错误，而是得到一个每次调用都失败并记录配置错误的 Sink。
func New(mode string, opts Options) Sink {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeFile:
		return NewFileSink(opts.Dir)
	case ModeWeChat:
		return NewWeChatSink(opts.WeChat, opts.Contact)
	default:
		return invalidSink{mode: mode}
	}
}

// CheckMode 校验模式名
func CheckMode(mode string) error {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeFile, ModeWeChat:
		return nil
	}
	return errors.Wrapf(ErrUnknownMode, "%q", mode)
}

type invalidSink struct {
	mode string
}

func (s invalidSink) Share(ctx context.Context, link string) bool {
	logrus.WithError(errors.Wrapf(ErrUnknownMode, "%q", s.mode)).Errorf("配置错误: 无效的分享方式 '%s'", s.mode)
	return false
}
