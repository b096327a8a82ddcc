package tiktok

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/xpzouying/tiktok-shop-mcp/device"
)

const testProductXPath = "//item[{slot}]"

var slotPattern = regexp.MustCompile(`^//item\[(\d+)\]$`)

// fakeProduct 结果列表中的一个商品卡片
type fakeProduct struct {
	dev      *fakeDevice
	rect     device.Rect
	link     string
	clickErr error
	rectErr  error
}

func (p *fakeProduct) Rect(ctx context.Context) (device.Rect, error) {
	if p.rectErr != nil {
		return device.Rect{}, p.rectErr
	}
	return p.rect, nil
}

func (p *fakeProduct) Click(ctx context.Context) error {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	p.dev.calls = append(p.dev.calls, "tap")
	if p.clickErr != nil {
		return p.clickErr
	}
	p.dev.current = p
	p.dev.taps = append(p.dev.taps, p.rect)
	return nil
}

func (p *fakeProduct) Text(ctx context.Context) (string, error) { return "", nil }

func (p *fakeProduct) SetValue(ctx context.Context, text string) error { return nil }

// fakeDevice 记录调用次数的假设备。
// pages[i] 是第 i 屏上各槽位的卡片，上滑后切到下一屏，超出后停在最后一屏。
type fakeDevice struct {
	mu sync.Mutex

	pages   []map[int]*fakeProduct
	page    int
	current *fakeProduct

	clipboard     string
	noShareButton bool
	onVideoPage   bool
	lookupErr     error
	clickErrs     map[string]error
	missing       map[string]bool

	calls    []string
	taps     []device.Rect
	swipes   int
	backs    int
	switches []string
	pushed   map[string][]byte
}

func newFakeDevice(pages ...map[int]*fakeProduct) *fakeDevice {
	d := &fakeDevice{
		pages:     pages,
		clickErrs: map[string]error{},
		missing:   map[string]bool{},
		pushed:    map[string][]byte{},
	}
	for _, page := range pages {
		for _, p := range page {
			p.dev = d
		}
	}
	return d
}

func (d *fakeDevice) FindElement(ctx context.Context, xpath string, timeout time.Duration) (device.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if m := slotPattern.FindStringSubmatch(xpath); m != nil {
		if d.lookupErr != nil {
			return nil, d.lookupErr
		}
		slot, _ := strconv.Atoi(m[1])
		if len(d.pages) == 0 {
			return nil, nil
		}
		if p, ok := d.pages[d.page][slot]; ok {
			return p, nil
		}
		return nil, nil
	}
	if xpath == videoBackButtonXPath && d.onVideoPage {
		return &fakeProduct{dev: d}, nil
	}
	return nil, nil
}

func (d *fakeDevice) ClickElement(ctx context.Context, xpath string, timeout time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, "click:"+xpath)
	if err, ok := d.clickErrs[xpath]; ok {
		return false, err
	}
	if d.missing[xpath] {
		return false, nil
	}
	switch xpath {
	case shareButtonXPath:
		return !d.noShareButton, nil
	case copyLinkXPath:
		if d.current != nil {
			d.clipboard = d.current.link
		}
		return true, nil
	}
	return true, nil
}

func (d *fakeDevice) SwitchToApp(ctx context.Context, appPackage string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "switch")
	d.switches = append(d.switches, appPackage)
	return nil
}

func (d *fakeDevice) Back(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "back")
	d.backs++
	d.current = nil
	return nil
}

func (d *fakeDevice) SwipeUp(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "swipe")
	d.swipes++
	if d.page < len(d.pages)-1 {
		d.page++
	}
	return nil
}

func (d *fakeDevice) ClipboardText(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clipboard, nil
}

func (d *fakeDevice) SetClipboardText(ctx context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clipboard = text
	return nil
}

func (d *fakeDevice) PushFile(ctx context.Context, remotePath string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.clickErrs["push"]; ok {
		return err
	}
	d.pushed[remotePath] = data
	return nil
}

func (d *fakeDevice) count(call string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == call {
			n++
		}
	}
	return n
}

// recordingSink 记录收到的链接，ok=false 时全部失败
type recordingSink struct {
	ok    bool
	links []string
}

func (s *recordingSink) Share(ctx context.Context, link string) bool {
	s.links = append(s.links, link)
	return s.ok
}

func product(x, y int, link string) *fakeProduct {
	return &fakeProduct{rect: device.Rect{X: x, Y: y, Width: 500, Height: 700}, link: link}
}

var errTapFailed = errors.New("tap failed")

func noSleep(time.Duration) {}

func newTestAction(dev *fakeDevice, maxLinks int) *CollectAction {
	shop := NewShopPage(dev, "com.zhiliaoapp.musically")
	shop.sleep = noSleep

	a := NewCollectAction(shop, ScanTarget{
		MaxLinks:     maxLinks,
		SlotStart:    5,
		SlotEnd:      9,
		ProductXPath: testProductXPath,
	})
	a.sleep = noSleep
	return a
}
