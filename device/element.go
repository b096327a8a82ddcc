package device

import (
	"context"
	"fmt"
)

// Rect 元素在屏幕上的位置和尺寸
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}

// Element 一个已定位到的界面元素
type Element interface {
	Rect(ctx context.Context) (Rect, error)
	Click(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	SetValue(ctx context.Context, text string) error
}

type remoteElement struct {
	session *Session
	id      string
}

func (e *remoteElement) Rect(ctx context.Context) (Rect, error) {
	return e.session.ElementRect(ctx, e.id)
}

func (e *remoteElement) Click(ctx context.Context) error {
	return e.session.ElementClick(ctx, e.id)
}

func (e *remoteElement) Text(ctx context.Context) (string, error) {
	return e.session.ElementText(ctx, e.id)
}

// SetValue 先清空再输入
func (e *remoteElement) SetValue(ctx context.Context, text string) error {
	if err := e.session.ElementClear(ctx, e.id); err != nil {
		return err
	}
	return e.session.ElementSendKeys(ctx, e.id, text)
}
