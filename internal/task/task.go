package task

import (
	"context"
	"time"
)

// TaskFunc 任务回调
type TaskFunc func(ctx context.Context)

// Task 延迟任务
// Target 是房间 ID，Name 是动作名（fuse、chain、autoStart ...），两者只用于日志
type Task struct {
	ID     string
	Target string
	Name   string
	Delay  time.Duration
	DueAt  time.Time
	Fn     TaskFunc

	rounds int // 剩余圈数，由时间轮维护
}

// NewTask 创建任务
func NewTask(id, target, name string, delay time.Duration, fn TaskFunc) *Task {
	return &Task{
		ID:     id,
		Target: target,
		Name:   name,
		Delay:  delay,
		DueAt:  time.Now().Add(delay),
		Fn:     fn,
	}
}

// Lag 相对计划时间的延后
func (t *Task) Lag(now time.Time) time.Duration {
	if now.Before(t.DueAt) {
		return 0
	}
	return now.Sub(t.DueAt)
}

// Execute 执行任务
func (t *Task) Execute(ctx context.Context) {
	if t.Fn == nil {
		return
	}
	t.Fn(ctx)
}
