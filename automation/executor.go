package automation

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/tiktok-shop-mcp/store"
)

var ErrRunInProgress = errors.New("已有采集任务正在运行")

// RunFunc 执行一次任务
type RunFunc func(ctx context.Context, opts RunOptions) (*RunResult, error)

// Recorder 保存任务历史
type Recorder interface {
	SaveRun(ctx context.Context, rec store.Record) error
}

// Executor 同一时间只允许一个采集任务，任务在后台 goroutine 中执行
type Executor struct {
	run      RunFunc
	recorder Recorder

	mu      sync.Mutex
	current *RunHandle
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExecutor recorder 可以为 nil
func NewExecutor(run RunFunc, recorder Recorder) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		run:      run,
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit 在后台启动一次任务，已有任务运行时返回 ErrRunInProgress
func (e *Executor) Submit(opts RunOptions) (*RunHandle, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrRunInProgress
	}
	if e.ctx.Err() != nil {
		e.mu.Unlock()
		return nil, errors.New("执行器已关闭")
	}

	h := newRunHandle(opts)
	h.start(time.Now())
	e.current = h
	e.running = true
	e.wg.Add(1)
	e.mu.Unlock()

	// 写历史可能较慢，不能持有锁，否则 Current/Running 会被阻塞
	e.record(h)

	logrus.WithFields(logrus.Fields{
		"run_id": h.ID(),
		"image":  opts.PCImagePath,
	}).Info("启动采集任务")

	go e.execute(h)
	return h, nil
}

func (e *Executor) execute(h *RunHandle) {
	defer e.wg.Done()

	var (
		res *RunResult
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("任务异常退出: %v", r)
			}
		}()
		res, err = e.run(e.ctx, h.opts)
	}()

	h.finish(time.Now(), res, err)
	if err != nil {
		logrus.WithError(err).WithField("run_id", h.ID()).Error("采集任务失败，请检查日志")
	} else {
		logrus.WithField("run_id", h.ID()).Infof("采集任务完成，共 %d 个链接", len(h.Snapshot().Results))
	}
	e.record(h)

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	close(h.done)
}

func (e *Executor) record(h *RunHandle) {
	if e.recorder == nil {
		return
	}
	snap := h.Snapshot()
	rec := store.Record{
		ID:        snap.ID,
		Status:    string(snap.Status),
		ImagePath: snap.ImagePath,
		Links:     snap.Results,
		LinkFile:  snap.LinkFile,
		Error:     snap.Error,
	}
	if snap.StartedAt != nil {
		rec.StartedAt = *snap.StartedAt
	}
	if snap.FinishedAt != nil {
		rec.FinishedAt = *snap.FinishedAt
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.recorder.SaveRun(ctx, rec); err != nil {
		logrus.WithError(err).Warn("保存任务历史失败")
	}
}

// Current 最近一次任务的状态，从未运行过时为 idle
func (e *Executor) Current() Snapshot {
	e.mu.Lock()
	h := e.current
	e.mu.Unlock()

	if h == nil {
		return IdleSnapshot()
	}
	return h.Snapshot()
}

// Running 是否有任务正在执行
func (e *Executor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Close 取消正在运行的任务并等待其退出
func (e *Executor) Close() {
	e.cancel()
	e.wg.Wait()
}
