package task

import (
	"container/list"
	"sync"
)

// Slot 时间轮槽位，按加入顺序保存任务
type Slot struct {
	mu    sync.Mutex
	queue *list.List
	index map[string]*list.Element // taskID -> 队列节点
}

// NewSlot 创建槽位
func NewSlot() *Slot {
	return &Slot{
		queue: list.New(),
		index: make(map[string]*list.Element),
	}
}

// Add 加入任务，同 ID 的旧任务被替换
func (s *Slot) Add(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.index[task.ID]; ok {
		s.queue.Remove(e)
	}
	s.index[task.ID] = s.queue.PushBack(task)
}

// Remove 删除任务
func (s *Slot) Remove(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.index[taskID]
	if !ok {
		return false
	}
	s.queue.Remove(e)
	delete(s.index, taskID)
	return true
}

// Collect 按加入顺序取出本圈到期的任务，其余任务圈数减一
func (s *Slot) Collect() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Task
	for e := s.queue.Front(); e != nil; {
		next := e.Next()
		task := e.Value.(*Task)
		if task.rounds > 0 {
			task.rounds--
		} else {
			due = append(due, task)
			s.queue.Remove(e)
			delete(s.index, task.ID)
		}
		e = next
	}
	return due
}

// Len 槽位任务数
func (s *Slot) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queue.Len()
}
