package task

import (
	"sync"
	"time"
)

const (
	// DefaultTick 默认刻度
	DefaultTick = 10 * time.Millisecond

	// DefaultSlotCount 默认槽位数量（10ms * 512 ≈ 5s 一圈）
	DefaultSlotCount = 512
)

// TimeWheel 单层时间轮，超过一圈的任务通过圈数计数
type TimeWheel struct {
	slots  []*Slot
	tick   time.Duration
	ticker *time.Ticker

	mu      sync.Mutex
	current int            // 当前槽位索引
	where   map[string]int // taskID -> 槽位索引
}

// NewTimeWheel 创建时间轮
func NewTimeWheel(tick time.Duration, slotCount int) *TimeWheel {
	if tick <= 0 {
		tick = DefaultTick
	}
	if slotCount <= 0 {
		slotCount = DefaultSlotCount
	}

	tw := &TimeWheel{
		slots:  make([]*Slot, slotCount),
		tick:   tick,
		ticker: time.NewTicker(tick),
		where:  make(map[string]int),
	}
	for i := range tw.slots {
		tw.slots[i] = NewSlot()
	}

	return tw
}

// ticksFor 延迟换算成格数，不足一格按一格
func (tw *TimeWheel) ticksFor(delay time.Duration) int {
	ticks := int((delay + tw.tick - 1) / tw.tick)
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}

// AddTask 添加任务到时间轮
func (tw *TimeWheel) AddTask(task *Task) {
	ticks := tw.ticksFor(task.Delay)

	// 槽位计算和入槽在同一把锁下完成，避免 Tick 在两者之间推进导致多等一圈
	tw.mu.Lock()
	defer tw.mu.Unlock()

	task.rounds = (ticks - 1) / len(tw.slots)
	idx := (tw.current + ticks) % len(tw.slots)
	if old, ok := tw.where[task.ID]; ok && old != idx {
		tw.slots[old].Remove(task.ID)
	}
	tw.where[task.ID] = idx
	tw.slots[idx].Add(task)
}

// RemoveTask 从时间轮删除任务
func (tw *TimeWheel) RemoveTask(taskID string) bool {
	tw.mu.Lock()
	idx, ok := tw.where[taskID]
	delete(tw.where, taskID)
	tw.mu.Unlock()

	if !ok {
		return false
	}
	return tw.slots[idx].Remove(taskID)
}

// Tick 推进一格，返回到期任务（由调度器调用）
func (tw *TimeWheel) Tick() []*Task {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	tw.current = (tw.current + 1) % len(tw.slots)
	due := tw.slots[tw.current].Collect()
	for _, task := range due {
		delete(tw.where, task.ID)
	}
	return due
}

// CurrentSlot 当前槽位索引
func (tw *TimeWheel) CurrentSlot() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	return tw.current
}

// Pending 尚未到期的任务数
func (tw *TimeWheel) Pending() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	return len(tw.where)
}

// Stop 停止时间轮
func (tw *TimeWheel) Stop() {
	tw.ticker.Stop()
}

// Ticker 时间轮的定时器
func (tw *TimeWheel) Ticker() *time.Ticker {
	return tw.ticker
}
