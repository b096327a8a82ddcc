package automation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// RunHandle 一次任务的运行状态，只由执行任务的 goroutine 写入
type RunHandle struct {
	mu sync.RWMutex

	id         string
	opts       RunOptions
	status     Status
	links      []string
	linkFile   string
	errText    string
	startedAt  time.Time
	finishedAt time.Time
	done       chan struct{}
}

// Snapshot RunHandle 某一时刻的只读副本
type Snapshot struct {
	ID         string     `json:"id,omitempty"`
	Status     Status     `json:"status"`
	Results    []string   `json:"results"`
	LinkFile   string     `json:"link_file,omitempty"`
	ImagePath  string     `json:"image_path,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// IdleSnapshot 没有任何任务时的状态
func IdleSnapshot() Snapshot {
	return Snapshot{Status: StatusIdle, Results: []string{}}
}

func newRunHandle(opts RunOptions) *RunHandle {
	return &RunHandle{
		id:     uuid.NewString(),
		opts:   opts,
		status: StatusIdle,
		done:   make(chan struct{}),
	}
}

func (h *RunHandle) ID() string {
	return h.id
}

// Done 任务结束后关闭
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

func (h *RunHandle) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snap := Snapshot{
		ID:        h.id,
		Status:    h.status,
		Results:   append([]string{}, h.links...),
		LinkFile:  h.linkFile,
		ImagePath: h.opts.PCImagePath,
		Error:     h.errText,
	}
	if !h.startedAt.IsZero() {
		t := h.startedAt
		snap.StartedAt = &t
	}
	if !h.finishedAt.IsZero() {
		t := h.finishedAt
		snap.FinishedAt = &t
	}
	return snap
}

func (h *RunHandle) start(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = StatusRunning
	h.links = nil
	h.startedAt = now
}

func (h *RunHandle) finish(now time.Time, res *RunResult, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.finishedAt = now
	if err != nil {
		h.status = StatusFailed
		h.errText = err.Error()
	} else {
		h.status = StatusCompleted
	}
	if res != nil {
		h.links = res.Links
		h.linkFile = res.LinkFile
	}
}
