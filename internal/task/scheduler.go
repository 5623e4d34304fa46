package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotRunning 调度器未启动或已停止
var ErrNotRunning = errors.New("scheduler not running")

// Scheduler 延迟任务调度器
// 时间轮负责计时，到期任务交给工作协程池执行
type Scheduler struct {
	wheel      *TimeWheel
	workerPool *WorkerPool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	seq        atomic.Uint64
	logger     *slog.Logger
	running    bool
	runningMu  sync.RWMutex
}

// Options 调度器参数
type Options struct {
	WorkerCount int
	Tick        time.Duration
	SlotCount   int
}

// NewScheduler 创建任务调度器
func NewScheduler(opts Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		wheel:      NewTimeWheel(opts.Tick, opts.SlotCount),
		workerPool: NewWorkerPool(opts.WorkerCount),
		ctx:        ctx,
		cancel:     cancel,
		logger:     slog.Default().With("component", "Scheduler"),
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.runningMu.Lock()
	if s.running {
		s.runningMu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.runningMu.Unlock()

	s.workerPool.Start()

	s.wg.Add(1)
	go s.tickLoop()

	s.logger.Info("Scheduler started", "tick", s.wheel.tick, "slots", len(s.wheel.slots))

	return nil
}

// tickLoop 时钟循环协程
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := s.wheel.Ticker()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-ticker.C:
			s.onTick()
		}
	}
}

// onTick 时钟触发处理
func (s *Scheduler) onTick() {
	tasks := s.wheel.Tick()
	if len(tasks) == 0 {
		return
	}

	s.workerPool.SubmitBatch(tasks)
}

// Stop 停止调度器，未到期的任务直接丢弃
func (s *Scheduler) Stop() {
	s.runningMu.Lock()
	if !s.running {
		s.runningMu.Unlock()
		return
	}
	s.running = false
	s.runningMu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.wheel.Stop()
	s.workerPool.Stop()

	s.logger.Info("Scheduler stopped", "dropped", s.wheel.Pending())
}

// AddTask 添加任务
func (s *Scheduler) AddTask(task *Task) error {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()

	if !s.running {
		return ErrNotRunning
	}

	if task == nil {
		return fmt.Errorf("task is nil")
	}

	if task.ID == "" {
		return fmt.Errorf("task id is empty")
	}

	s.wheel.AddTask(task)
	return nil
}

// After 在 delay 之后以 target 为目标执行 fn
// 任务 ID 由 target、name 和自增序号组成
func (s *Scheduler) After(target, name string, delay time.Duration, fn func(ctx context.Context)) error {
	id := fmt.Sprintf("%s:%s:%d", target, name, s.seq.Add(1))
	if err := s.AddTask(NewTask(id, target, name, delay, fn)); err != nil {
		s.logger.Warn("Failed to schedule task", "taskID", id, "target", target, "name", name, "error", err)
		return err
	}
	return nil
}

// RemoveTask 删除任务
func (s *Scheduler) RemoveTask(taskID string) error {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()

	if !s.running {
		return ErrNotRunning
	}

	if !s.wheel.RemoveTask(taskID) {
		return fmt.Errorf("task not found: %s", taskID)
	}

	return nil
}

// IsRunning 检查调度器是否运行中
func (s *Scheduler) IsRunning() bool {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()

	return s.running
}

// Check 健康检查，未运行时返回错误
func (s *Scheduler) Check(context.Context) error {
	if !s.IsRunning() {
		return ErrNotRunning
	}
	return nil
}

// Pending 尚未到期的任务数
func (s *Scheduler) Pending() int {
	return s.wheel.Pending()
}
