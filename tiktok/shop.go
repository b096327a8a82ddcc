package tiktok

import (
	"context"
	"os"
	"time"

	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/tiktok-shop-mcp/device"
)

const (
	// RemoteImagePath 图搜种子图片在设备上的位置，相册第一张即为它
	RemoteImagePath = "/sdcard/Download/tiktok_search_image.png"

	shopTabTimeout   = 5 * time.Second
	cameraTimeout    = 5 * time.Second
	galleryTimeout   = 5 * time.Second
	shareTimeout     = 10 * time.Second
	copyLinkTimeout  = 10 * time.Second
	videoBackTimeout = 3 * time.Second
)

// Device 页面操作依赖的设备能力，由 *device.Driver 实现
type Device interface {
	FindElement(ctx context.Context, xpath string, timeout time.Duration) (device.Element, error)
	ClickElement(ctx context.Context, xpath string, timeout time.Duration) (bool, error)
	SwitchToApp(ctx context.Context, appPackage string) error
	Back(ctx context.Context) error
	SwipeUp(ctx context.Context) error
	ClipboardText(ctx context.Context) (string, error)
	SetClipboardText(ctx context.Context, text string) error
	PushFile(ctx context.Context, remotePath string, data []byte) error
}

// ShopPage TikTok 商城相关页面的操作
type ShopPage struct {
	dev        Device
	appPackage string
	sleep      func(time.Duration)
}

func NewShopPage(dev Device, appPackage string) *ShopPage {
	return &ShopPage{
		dev:        dev,
		appPackage: appPackage,
		sleep:      time.Sleep,
	}
}

func (p *ShopPage) WithSleep(fn func(time.Duration)) *ShopPage {
	if fn != nil {
		p.sleep = fn
	}
	return p
}

// OpenShop 点击底部的商城入口
func (p *ShopPage) OpenShop(ctx context.Context) error {
	logrus.Info("正在打开TikTok商城...")

	ok, err := p.dev.ClickElement(ctx, shopTabXPath, shopTabTimeout)
	if err != nil {
		return errors.Wrap(err, "打开TikTok商城失败")
	}
	if !ok {
		return errors.New("未找到商城入口")
	}

	logrus.Info("成功进入TikTok商城")
	p.sleep(time.Second)
	return nil
}

// FetchImageFromPC 把本地图片推送到设备相册，供图搜使用
func (p *ShopPage) FetchImageFromPC(ctx context.Context, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return errors.Wrapf(err, "读取本地图片失败: %s", localPath)
	}
	if !filetype.IsImage(data) {
		return errors.Errorf("文件不是图片: %s", localPath)
	}

	logrus.Infof("正在将图片 '%s' 传输到设备的 '%s'...", localPath, RemoteImagePath)
	if err := p.dev.PushFile(ctx, RemoteImagePath, data); err != nil {
		return errors.Wrap(err, "从PC传输图片失败")
	}
	logrus.Infof("图片成功传输到 %s", RemoteImagePath)

	// 等待媒体库扫描到新图片
	p.sleep(3 * time.Second)
	return nil
}

// StartImageSearch 点击相机图标并选择相册第一张图片
func (p *ShopPage) StartImageSearch(ctx context.Context) error {
	logrus.Info("开始图像搜索...")

	ok, err := p.dev.ClickElement(ctx, cameraIconXPath, cameraTimeout)
	if err != nil {
		return errors.Wrap(err, "点击相机图标失败")
	}
	if !ok {
		return errors.New("在商城主页未找到相机图标")
	}
	logrus.Info("成功点击相机图标，进入相册")
	p.sleep(2 * time.Second)

	ok, err = p.dev.ClickElement(ctx, firstGalleryImageXPath, galleryTimeout)
	if err != nil {
		return errors.Wrap(err, "选择相册图片失败")
	}
	if !ok {
		return errors.New("在相册中未找到任何图片")
	}
	logrus.Info("成功选择第一张图片进行搜索")
	p.sleep(5 * time.Second)
	return nil
}

// FindProduct 查找一个商品卡片，不存在返回 nil
func (p *ShopPage) FindProduct(ctx context.Context, xpath string, timeout time.Duration) (device.Element, error) {
	return p.dev.FindElement(ctx, xpath, timeout)
}

// EnterProductDetail 点击商品卡片进入详情页
func (p *ShopPage) EnterProductDetail(ctx context.Context, product device.Element) error {
	logrus.Info("进入商品详情页...")
	if err := product.Click(ctx); err != nil {
		return errors.Wrap(err, "进入商品详情页失败")
	}
	p.sleep(2 * time.Second)
	return nil
}

// ShareProductLink 打开分享面板并点击"复制链接"。
// 分享按钮或复制选项不存在时返回 false，不算错误。
func (p *ShopPage) ShareProductLink(ctx context.Context) (bool, error) {
	logrus.Info("开始分享商品链接...")

	// 先清空剪贴板，复制失败时不会读到上一个商品的链接
	if err := p.dev.SetClipboardText(ctx, ""); err != nil {
		logrus.Warnf("清空设备剪贴板失败: %v", err)
	}

	ok, err := p.dev.ClickElement(ctx, shareButtonXPath, shareTimeout)
	if err != nil {
		return false, errors.Wrap(err, "点击分享按钮失败")
	}
	if !ok {
		logrus.Warn("未找到分享按钮")
		return false, nil
	}
	p.sleep(2 * time.Second)

	ok, err = p.dev.ClickElement(ctx, copyLinkXPath, copyLinkTimeout)
	if err != nil {
		return false, errors.Wrap(err, "点击复制链接失败")
	}
	if !ok {
		logrus.Warn("未找到复制链接选项")
		return false, nil
	}
	logrus.Info("商品链接已复制到剪贴板")
	p.sleep(time.Second)
	return true, nil
}

// CopiedLink 读取设备剪贴板中的链接
func (p *ShopPage) CopiedLink(ctx context.Context) (string, error) {
	text, err := p.dev.ClipboardText(ctx)
	if err != nil {
		return "", errors.Wrap(err, "读取设备剪贴板失败")
	}
	return text, nil
}

func (p *ShopPage) GoBack(ctx context.Context) error {
	if err := p.dev.Back(ctx); err != nil {
		return errors.Wrap(err, "返回上一页失败")
	}
	p.sleep(2 * time.Second)
	return nil
}

// IsOnVideoPage 是否停留在视频播放页
func (p *ShopPage) IsOnVideoPage(ctx context.Context) (bool, error) {
	el, err := p.dev.FindElement(ctx, videoBackButtonXPath, videoBackTimeout)
	if err != nil {
		return false, err
	}
	return el != nil, nil
}

// ReturnToList 处理完一个商品后回到结果列表：
// 先把 TikTok 切回前台（分享面板可能拉起了其他应用），再返回，
// 如果落在视频播放页则多返回一次。
func (p *ShopPage) ReturnToList(ctx context.Context) error {
	if err := p.dev.SwitchToApp(ctx, p.appPackage); err != nil {
		return err
	}
	if err := p.GoBack(ctx); err != nil {
		return err
	}
	onVideo, err := p.IsOnVideoPage(ctx)
	if err != nil {
		return err
	}
	if onVideo {
		logrus.Info("当前在视频页，再返回一次")
		return p.GoBack(ctx)
	}
	return nil
}

// Recover 出错后的恢复：切回 TikTok 并返回一次
func (p *ShopPage) Recover(ctx context.Context) error {
	if err := p.dev.SwitchToApp(ctx, p.appPackage); err != nil {
		return err
	}
	return p.GoBack(ctx)
}

// ScrollForMore 上滑加载更多商品
func (p *ShopPage) ScrollForMore(ctx context.Context) error {
	logrus.Info("滑动页面以加载更多...")
	return p.dev.SwipeUp(ctx)
}
