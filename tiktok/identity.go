package tiktok

import (
	"context"
	"fmt"

	"github.com/xpzouying/tiktok-shop-mcp/device"
)

// ElementIdentity 商品卡片的去重键。
// TikTok 不提供稳定的商品 ID，同一屏内只有位置是稳定的，所以默认按几何信息生成。
type ElementIdentity string

// IdentityFunc 从元素计算去重键，平台若提供稳定 ID 可以替换
type IdentityFunc func(ctx context.Context, el device.Element) (ElementIdentity, error)

// GeometryIdentity 由 (x, y, width, height) 生成去重键
func GeometryIdentity(ctx context.Context, el device.Element) (ElementIdentity, error) {
	r, err := el.Rect(ctx)
	if err != nil {
		return "", err
	}
	return ElementIdentity(fmt.Sprintf("%d,%d,%d,%d", r.X, r.Y, r.Width, r.Height)), nil
}

// SeenSet 一次采集任务内已处理过的商品，只增不减
type SeenSet struct {
	items map[ElementIdentity]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{items: make(map[ElementIdentity]struct{})}
}

func (s *SeenSet) Has(id ElementIdentity) bool {
	_, ok := s.items[id]
	return ok
}

// Add 记录一个标识，已存在时返回 false
func (s *SeenSet) Add(id ElementIdentity) bool {
	if s.Has(id) {
		return false
	}
	s.items[id] = struct{}{}
	return true
}

func (s *SeenSet) Len() int {
	return len(s.items)
}
