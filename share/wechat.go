package share

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/xpzouying/tiktok-shop-mcp/wechat"
)

// WeChatSink 把链接发给微信联系人，每次发送前都重新确认聊天界面
type WeChatSink struct {
	page    *wechat.Page
	contact string
}

func NewWeChatSink(page *wechat.Page, contact string) *WeChatSink {
	return &WeChatSink{page: page, contact: contact}
}

func (s *WeChatSink) Share(ctx context.Context, link string) bool {
	if s.page == nil {
		logrus.Error("微信分享未初始化设备")
		return false
	}
	if s.contact == "" {
		logrus.Error("未配置微信联系人")
		return false
	}

	logrus.Infof("准备通过微信分享链接给: %s", s.contact)
	if err := s.page.OpenChat(ctx, s.contact); err != nil {
		logrus.WithError(err).Errorf("打开与 %s 的聊天失败", s.contact)
		return false
	}
	if err := s.page.SendMessage(ctx, link); err != nil {
		logrus.WithError(err).Error("发送链接失败")
		return false
	}

	logrus.Info("链接已通过微信分享")
	return true
}
