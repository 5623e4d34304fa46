package nats

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"sudooom.arena/internal/broadcast"
	"sudooom.arena/internal/model"
	"sudooom.arena/internal/proto"
)

type publishFunc func(subject string, data []byte) error

// Publisher 逻辑侧下行发布器，实现 broadcast.Sender
// 记录每个连接所在的网关，下行时发布到对应网关的 Subject
type Publisher struct {
	publish publishFunc
	mu      sync.RWMutex
	routes  map[model.ConnID]string
	logger  *slog.Logger
}

// NewPublisher 创建下行发布器
func NewPublisher(nc *nats.Conn) *Publisher {
	return newPublisher(nc.Publish)
}

func newPublisher(publish publishFunc) *Publisher {
	return &Publisher{
		publish: publish,
		routes:  make(map[model.ConnID]string),
		logger:  slog.Default().With("component", "NATSPublisher"),
	}
}

// Route 记录连接所在网关
func (p *Publisher) Route(conn model.ConnID, gatewayID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[conn] = gatewayID
}

// Forget 删除连接路由
func (p *Publisher) Forget(conn model.ConnID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.routes, conn)
}

// Send 实现 broadcast.Sender
func (p *Publisher) Send(conn model.ConnID, payload []byte) error {
	p.mu.RLock()
	gatewayID, ok := p.routes[conn]
	p.mu.RUnlock()
	if !ok {
		return broadcast.ErrUnknownConn
	}

	data, err := json.Marshal(proto.DownstreamMessage{ConnIDs: []model.ConnID{conn}, Payload: payload})
	if err != nil {
		return err
	}

	subject := BuildGatewayDownstreamSubject(gatewayID)
	if err := p.publish(subject, data); err != nil {
		p.logger.Error("Failed to publish to gateway", "gatewayId", gatewayID, "error", err)
		return err
	}
	return nil
}
