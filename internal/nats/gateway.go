package nats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go"

	"sudooom.arena/internal/broadcast"
	"sudooom.arena/internal/model"
	"sudooom.arena/internal/proto"
)

// Forwarder 网关侧上行转发器，实现 gateway.Upstream
type Forwarder struct {
	publish   publishFunc
	gatewayID string
	logger    *slog.Logger
}

// NewForwarder 创建上行转发器
func NewForwarder(nc *nats.Conn, gatewayID string) *Forwarder {
	return newForwarder(nc.Publish, gatewayID)
}

func newForwarder(publish publishFunc, gatewayID string) *Forwarder {
	return &Forwarder{
		publish:   publish,
		gatewayID: gatewayID,
		logger:    slog.Default().With("component", "NATSForwarder"),
	}
}

// Dispatch 把客户端事件发布到逻辑服
func (f *Forwarder) Dispatch(ctx context.Context, conn model.ConnID, event string, data json.RawMessage) {
	payload, err := json.Marshal(proto.UpstreamMessage{
		GatewayID: f.gatewayID,
		ConnID:    conn,
		Event:     event,
		Data:      data,
	})
	if err != nil {
		f.logger.Error("Failed to marshal upstream message", "connId", string(conn), "error", err)
		return
	}

	if err := f.publish(SubjectLogicUpstream, payload); err != nil {
		f.logger.Error("Failed to publish upstream message", "connId", string(conn), "event", event, "error", err)
	}
}

// DownstreamSubscriber 网关侧下行订阅器，把逻辑服推送投递到本地连接
type DownstreamSubscriber struct {
	nc           *nats.Conn
	gatewayID    string
	sender       broadcast.Sender
	subscription *nats.Subscription
	logger       *slog.Logger
}

// NewDownstreamSubscriber 创建下行订阅器
func NewDownstreamSubscriber(nc *nats.Conn, gatewayID string, sender broadcast.Sender) *DownstreamSubscriber {
	return &DownstreamSubscriber{
		nc:        nc,
		gatewayID: gatewayID,
		sender:    sender,
		logger:    slog.Default().With("component", "NATSDownstream"),
	}
}

// Start 订阅本网关的下行 Subject
func (s *DownstreamSubscriber) Start() error {
	subject := BuildGatewayDownstreamSubject(s.gatewayID)
	sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
		s.handleDownstream(msg.Data)
	})
	if err != nil {
		return err
	}
	s.subscription = sub
	s.logger.Info("Subscribed to downstream", "subject", subject)
	return nil
}

func (s *DownstreamSubscriber) handleDownstream(data []byte) {
	var message proto.DownstreamMessage
	if err := json.Unmarshal(data, &message); err != nil {
		s.logger.Error("Failed to unmarshal downstream message", "error", err)
		return
	}

	for _, conn := range message.ConnIDs {
		err := s.sender.Send(conn, message.Payload)
		if err == nil || errors.Is(err, broadcast.ErrUnknownConn) {
			continue
		}
		s.logger.Warn("Failed to deliver downstream message", "connId", string(conn), "error", err)
	}
}

// Stop 取消订阅
func (s *DownstreamSubscriber) Stop() {
	if s.subscription == nil {
		return
	}
	if err := s.subscription.Unsubscribe(); err != nil {
		s.logger.Error("Failed to unsubscribe", "error", err)
	}
}
