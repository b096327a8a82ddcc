package tiktok

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxLinks      = 20
	DefaultSlotStart     = 5
	DefaultSlotEnd       = 9
	DefaultLookupTimeout = 10 * time.Second

	// SlotPlaceholder 商品 XPath 模板中的序号占位符
	SlotPlaceholder = "{slot}"

	pageSettleDelay = 3 * time.Second
)

// ScanTarget 一次采集任务的扫描参数，任务开始后不再修改
type ScanTarget struct {
	MaxLinks int `json:"max_links"`
	// 每屏探测的卡片序号区间 [SlotStart, SlotEnd)
	SlotStart    int    `json:"slot_start"`
	SlotEnd      int    `json:"slot_end"`
	ProductXPath string `json:"product_xpath"`
}

// Validate 校验扫描参数
func (t ScanTarget) Validate() error {
	if t.MaxLinks <= 0 {
		return errors.Errorf("最大链接数必须为正数: %d", t.MaxLinks)
	}
	if t.SlotStart < 1 || t.SlotEnd <= t.SlotStart {
		return errors.Errorf("槽位区间无效: [%d, %d)", t.SlotStart, t.SlotEnd)
	}
	if strings.TrimSpace(t.ProductXPath) == "" {
		return errors.New("商品 XPath 模板不能为空")
	}
	return nil
}

// SlotXPath 生成第 slot 个卡片的查询表达式。
// 模板没有 {slot} 占位符时在末尾追加 [slot]。
func (t ScanTarget) SlotXPath(slot int) string {
	idx := strconv.Itoa(slot)
	if strings.Contains(t.ProductXPath, SlotPlaceholder) {
		return strings.ReplaceAll(t.ProductXPath, SlotPlaceholder, idx)
	}
	return t.ProductXPath + "[" + idx + "]"
}

// LinkSink 链接的去向，返回是否成功
type LinkSink interface {
	Share(ctx context.Context, link string) bool
}

// IsValidLink 链接非空且以 http:// 或 https:// 开头
func IsValidLink(link string) bool {
	return strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://")
}

type slotOutcome int

const (
	slotAbsent    slotOutcome = iota // 该位置没有卡片
	slotSeen                         // 已处理过
	slotSkipped                      // 已进入详情，但没有拿到可用链接
	slotCollected                    // 链接已交给 sink 且成功
	slotFailed                       // 处理过程中出错
)

type slotResult struct {
	slot    int
	outcome slotOutcome
	link    string
	err     error
}

// needsRecovery 是否需要执行返回列表的恢复动作
func (r slotResult) needsRecovery() bool {
	return r.outcome == slotSkipped || r.outcome == slotCollected || r.outcome == slotFailed
}

// CollectAction 在图搜结果页逐个打开商品、复制分享链接并交给 sink
type CollectAction struct {
	shop          *ShopPage
	target        ScanTarget
	identify      IdentityFunc
	lookupTimeout time.Duration
	seen          *SeenSet
	sleep         func(time.Duration)
}

// NewCollectAction 创建采集动作，未设置的参数使用默认值
func NewCollectAction(shop *ShopPage, target ScanTarget) *CollectAction {
	if target.MaxLinks == 0 {
		target.MaxLinks = DefaultMaxLinks
	}
	if target.SlotStart == 0 && target.SlotEnd == 0 {
		target.SlotStart = DefaultSlotStart
		target.SlotEnd = DefaultSlotEnd
	}
	if target.ProductXPath == "" {
		target.ProductXPath = DefaultProductXPath
	}

	return &CollectAction{
		shop:          shop,
		target:        target,
		identify:      GeometryIdentity,
		lookupTimeout: DefaultLookupTimeout,
		seen:          NewSeenSet(),
		sleep:         time.Sleep,
	}
}

// WithIdentity 替换去重键的计算方式
func (a *CollectAction) WithIdentity(fn IdentityFunc) *CollectAction {
	if fn != nil {
		a.identify = fn
	}
	return a
}

// WithLookupTimeout 设置查找单个卡片的等待时间
func (a *CollectAction) WithLookupTimeout(d time.Duration) *CollectAction {
	if d > 0 {
		a.lookupTimeout = d
	}
	return a
}

func (a *CollectAction) WithSleep(fn func(time.Duration)) *CollectAction {
	if fn != nil {
		a.sleep = fn
	}
	return a
}

// Target 实际使用的扫描参数
func (a *CollectAction) Target() ScanTarget {
	return a.target
}

// CollectAndShare 逐屏扫描商品并分享链接，返回成功交给 sink 的链接（按顺序）。
// 单个商品失败不会中断任务；一屏内没有新链接时认为到达列表底部。
func (a *CollectAction) CollectAndShare(ctx context.Context, sink LinkSink) []string {
	maxLinks := a.target.MaxLinks
	collected := make([]string, 0, maxLinks)
	a.seen = NewSeenSet()

	logrus.Infof("开始收集商品链接，目标: %d 个，槽位: [%d, %d)", maxLinks, a.target.SlotStart, a.target.SlotEnd)

	page := 0
	for len(collected) < maxLinks {
		page++
		newLinksOnThisScroll := 0

		for slot := a.target.SlotStart; slot < a.target.SlotEnd; slot++ {
			if len(collected) >= maxLinks {
				break
			}

			res := a.processSlot(ctx, slot, sink)
			if res.outcome == slotCollected {
				collected = append(collected, res.link)
				newLinksOnThisScroll++
				logrus.Infof("成功收集链接 (%d/%d): %s", len(collected), maxLinks, res.link)
			}
			if res.needsRecovery() {
				a.recover(ctx, res)
			}
		}

		if len(collected) >= maxLinks {
			logrus.Info("已达到目标链接数")
			break
		}
		if newLinksOnThisScroll == 0 {
			logrus.Infof("第 %d 屏未发现任何新商品，认为已到达列表底部", page)
			break
		}

		if err := a.shop.ScrollForMore(ctx); err != nil {
			logrus.WithError(err).Error("滑动页面失败")
		}
		a.sleep(pageSettleDelay)
	}

	if len(collected) == 0 {
		logrus.Warn("未能收集到任何商品链接")
	} else {
		logrus.Infof("总共收集到 %d 个链接，扫描 %d 屏，处理过 %d 个商品", len(collected), page, a.seen.Len())
	}
	return collected
}

// processSlot 处理一个卡片位置，错误都收敛在返回值里
func (a *CollectAction) processSlot(ctx context.Context, slot int, sink LinkSink) slotResult {
	xpath := a.target.SlotXPath(slot)
	logrus.Debugf("商品XPATH: %s", xpath)

	product, err := a.shop.FindProduct(ctx, xpath, a.lookupTimeout)
	if err != nil {
		return slotResult{slot: slot, outcome: slotFailed, err: errors.Wrap(err, "查找商品失败")}
	}
	if product == nil {
		return slotResult{slot: slot, outcome: slotAbsent}
	}

	id, err := a.identify(ctx, product)
	if err != nil {
		return slotResult{slot: slot, outcome: slotFailed, err: errors.Wrap(err, "获取商品位置失败")}
	}
	// 进入详情前先记录，保证同一个商品最多尝试一次
	if !a.seen.Add(id) {
		return slotResult{slot: slot, outcome: slotSeen}
	}
	logrus.WithFields(logrus.Fields{"slot": slot, "identity": id}).Info("处理新商品")

	if err := a.shop.EnterProductDetail(ctx, product); err != nil {
		return slotResult{slot: slot, outcome: slotFailed, err: err}
	}

	shared, err := a.shop.ShareProductLink(ctx)
	if err != nil {
		return slotResult{slot: slot, outcome: slotFailed, err: err}
	}
	if !shared {
		return slotResult{slot: slot, outcome: slotSkipped}
	}

	link, err := a.shop.CopiedLink(ctx)
	if err != nil {
		return slotResult{slot: slot, outcome: slotFailed, err: err}
	}
	link = strings.TrimSpace(link)
	if !IsValidLink(link) {
		logrus.Warnf("从剪贴板获取的链接无效: '%s'", link)
		return slotResult{slot: slot, outcome: slotSkipped, link: link}
	}

	if !sink.Share(ctx, link) {
		logrus.Warnf("分享链接失败: %s", link)
		return slotResult{slot: slot, outcome: slotSkipped, link: link}
	}
	return slotResult{slot: slot, outcome: slotCollected, link: link}
}

// recover 回到结果列表，每个进入过详情的卡片恰好执行一次
func (a *CollectAction) recover(ctx context.Context, res slotResult) {
	if res.outcome == slotFailed {
		logrus.WithError(res.err).Errorf("处理索引 %d 的商品时出错", res.slot)
		if err := a.shop.Recover(ctx); err != nil {
			logrus.WithError(err).Warn("出错后返回列表失败")
		}
		return
	}

	if err := a.shop.ReturnToList(ctx); err != nil {
		logrus.WithError(err).Warnf("处理索引 %d 的商品后返回列表失败", res.slot)
	}
}
