package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"sudooom.arena/internal/model"
	"sudooom.arena/internal/proto"
)

// Dispatcher 上行事件处理器（由 handler.Dispatcher 实现）
type Dispatcher interface {
	Dispatch(ctx context.Context, conn model.ConnID, event string, data json.RawMessage)
}

// SubscriberConfig Worker Pool 配置
type SubscriberConfig struct {
	WorkerCount int // Worker 数量
	BufferSize  int // 每个 Worker 的缓冲区大小
}

// UpstreamSubscriber 逻辑侧上行订阅器
// 按连接哈希分配 Worker，同一连接的事件按到达顺序处理
type UpstreamSubscriber struct {
	nc           *nats.Conn
	dispatcher   Dispatcher
	publisher    *Publisher
	config       SubscriberConfig
	subscription *nats.Subscription
	queues       []chan *proto.UpstreamMessage
	wg           sync.WaitGroup
	cancelFunc   context.CancelFunc
	logger       *slog.Logger
}

// NewUpstreamSubscriber 创建上行订阅器
func NewUpstreamSubscriber(nc *nats.Conn, dispatcher Dispatcher, publisher *Publisher, config SubscriberConfig) *UpstreamSubscriber {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 16
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1024
	}

	return &UpstreamSubscriber{
		nc:         nc,
		dispatcher: dispatcher,
		publisher:  publisher,
		config:     config,
		logger:     slog.Default().With("component", "NATSSubscriber"),
	}
}

// Start 启动 Worker 并订阅上行 Subject
func (s *UpstreamSubscriber) Start(ctx context.Context) error {
	s.startWorkers(ctx)

	sub, err := s.nc.Subscribe(SubjectLogicUpstream, func(msg *nats.Msg) {
		s.enqueue(msg.Data)
	})
	if err != nil {
		s.cancelFunc()
		return err
	}

	s.subscription = sub
	s.logger.Info("NATS subscriber started",
		"subject", SubjectLogicUpstream,
		"workerCount", s.config.WorkerCount,
		"bufferSize", s.config.BufferSize)
	return nil
}

func (s *UpstreamSubscriber) startWorkers(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.queues = make([]chan *proto.UpstreamMessage, s.config.WorkerCount)
	for i := range s.queues {
		s.queues[i] = make(chan *proto.UpstreamMessage, s.config.BufferSize)
		s.wg.Add(1)
		go s.worker(workerCtx, s.queues[i])
	}
}

// enqueue 解析消息并放入连接对应的队列
func (s *UpstreamSubscriber) enqueue(data []byte) {
	var message proto.UpstreamMessage
	if err := json.Unmarshal(data, &message); err != nil {
		s.logger.Error("Failed to unmarshal message", "error", err)
		return
	}
	if message.ConnID == "" || message.Event == "" {
		s.logger.Warn("Upstream message missing connId or event", "gatewayId", message.GatewayID)
		return
	}

	select {
	case s.queues[shard(message.ConnID, len(s.queues))] <- &message:
	default:
		s.logger.Warn("Message buffer full, dropping message",
			"connId", string(message.ConnID),
			"event", message.Event,
			"bufferSize", s.config.BufferSize)
	}
}

func (s *UpstreamSubscriber) worker(ctx context.Context, queue chan *proto.UpstreamMessage) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-queue:
			s.handleUpstreamMessage(ctx, msg)
		}
	}
}

// handleUpstreamMessage 记录路由后交给分发器；断线事件处理完再删除路由
func (s *UpstreamSubscriber) handleUpstreamMessage(ctx context.Context, msg *proto.UpstreamMessage) {
	s.publisher.Route(msg.ConnID, msg.GatewayID)
	s.dispatcher.Dispatch(ctx, msg.ConnID, msg.Event, msg.Data)
	if msg.Event == proto.EventDisconnect {
		s.publisher.Forget(msg.ConnID)
	}
}

// Stop 停止订阅并等待 Worker 退出
func (s *UpstreamSubscriber) Stop() {
	if s.subscription != nil {
		if err := s.subscription.Unsubscribe(); err != nil {
			s.logger.Error("Failed to unsubscribe", "error", err)
		}
	}
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()
	s.logger.Info("NATS subscriber stopped")
}

// GetBufferUsage 获取缓冲区使用情况（用于监控）
func (s *UpstreamSubscriber) GetBufferUsage() (current int, capacity int) {
	for _, q := range s.queues {
		current += len(q)
		capacity += cap(q)
	}
	return current, capacity
}

// Check 缓冲区使用超过九成时视为积压
func (s *UpstreamSubscriber) Check(context.Context) error {
	current, capacity := s.GetBufferUsage()
	if capacity > 0 && current*10 > capacity*9 {
		return fmt.Errorf("upstream backlog %d/%d", current, capacity)
	}
	return nil
}

func shard(conn model.ConnID, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conn))
	return int(h.Sum32() % uint32(n))
}
