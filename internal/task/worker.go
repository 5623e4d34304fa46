package task

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

const (
	// lateThreshold 超过该延后时记录告警
	lateThreshold = 100 * time.Millisecond

	queueSizePerWorker = 64
)

// WorkerPool 工作协程池
// 同一 Target 的任务固定落到同一个协程，同一刻到期的任务按加入顺序执行
type WorkerPool struct {
	workerCount int
	queues      []chan *Task
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      *slog.Logger
}

// NewWorkerPool 创建工作协程池
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 10
	}

	ctx, cancel := context.WithCancel(context.Background())

	queues := make([]chan *Task, workerCount)
	for i := range queues {
		queues[i] = make(chan *Task, queueSizePerWorker)
	}

	return &WorkerPool{
		workerCount: workerCount,
		queues:      queues,
		ctx:         ctx,
		cancel:      cancel,
		logger:      slog.Default().With("component", "WorkerPool"),
	}
}

// Start 启动工作协程池
func (wp *WorkerPool) Start() {
	for i := range wp.queues {
		wp.wg.Add(1)
		go wp.worker(i, wp.queues[i])
	}

	wp.logger.Info("Worker pool started", "workerCount", wp.workerCount)
}

func (wp *WorkerPool) worker(id int, queue <-chan *Task) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case task := <-queue:
			wp.executeTask(id, task)
		}
	}
}

// executeTask 执行任务，panic 不影响其他任务
func (wp *WorkerPool) executeTask(workerID int, task *Task) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error("Task panic recovered",
				"workerID", workerID,
				"taskID", task.ID,
				"target", task.Target,
				"name", task.Name,
				"panic", r)
		}
	}()

	if lag := task.Lag(time.Now()); lag > lateThreshold {
		wp.logger.Warn("Task running late",
			"taskID", task.ID,
			"target", task.Target,
			"name", task.Name,
			"lag", lag)
	}

	task.Execute(wp.ctx)
}

// Submit 提交任务；队列满时阻塞等待，保证到期任务不被丢弃
func (wp *WorkerPool) Submit(task *Task) {
	if task == nil {
		return
	}
	queue := wp.queues[wp.shard(task.Target)]

	select {
	case queue <- task:
		return
	default:
	}

	wp.logger.Warn("Task queue full, tick delayed", "taskID", task.ID, "target", task.Target)
	select {
	case queue <- task:
	case <-wp.ctx.Done():
		wp.logger.Warn("Worker pool stopped, task dropped", "taskID", task.ID)
	}
}

// SubmitBatch 批量提交任务
func (wp *WorkerPool) SubmitBatch(tasks []*Task) {
	for _, task := range tasks {
		wp.Submit(task)
	}
}

func (wp *WorkerPool) shard(target string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(target))
	return int(h.Sum32() % uint32(len(wp.queues)))
}

// Stop 停止工作协程池，队列中未执行的任务被丢弃
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
	wp.logger.Info("Worker pool stopped")
}
