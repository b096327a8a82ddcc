package linkopener

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/tiktok-shop-mcp/browser"
	"github.com/xpzouying/tiktok-shop-mcp/configs"
)

// LoginStatus ERP 登录态
type LoginStatus struct {
	IsLoggedIn bool   `json:"is_logged_in"`
	URL        string `json:"url"`
}

// CheckLogin 用保存的 cookies 打开妙手，能停留在 /welcome 且没有登录表单即视为已登录
func CheckLogin(ctx context.Context, m *browser.Manager, miaoshouURL string) (*LoginStatus, error) {
	if miaoshouURL == "" {
		miaoshouURL = configs.DefaultMiaoshouURL
	}

	page, release := m.NewPageWithRelease()
	defer release()

	p := page.Context(ctx).Timeout(30 * time.Second)
	if err := p.Navigate(miaoshouURL); err != nil {
		return nil, errors.Wrap(err, "打开妙手失败")
	}
	if err := p.WaitLoad(); err != nil {
		logrus.Warnf("等待妙手页面加载失败: %v", err)
	}

	status := &LoginStatus{}
	if err := waitForWelcome(ctx, page, 10*time.Second); err != nil {
		if info, ierr := page.Info(); ierr == nil {
			status.URL = info.URL
		}
		return status, nil
	}

	info, err := page.Info()
	if err != nil {
		return nil, errors.Wrap(err, "读取页面信息失败")
	}
	status.URL = info.URL

	hasForm, _, err := page.Has(`input[type="password"]`)
	if err != nil {
		return nil, errors.Wrap(err, "检查登录表单失败")
	}
	status.IsLoggedIn = !hasForm
	return status, nil
}
