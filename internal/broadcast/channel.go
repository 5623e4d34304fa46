package broadcast

import (
	"encoding/json"
	"errors"
	"log/slog"

	"sudooom.arena/internal/model"
	"sudooom.arena/internal/proto"
)

// ErrUnknownConn 连接不存在或已关闭
var ErrUnknownConn = errors.New("UNKNOWN_CONNECTION")

// Sender 把编码好的消息投递给连接
type Sender interface {
	Send(conn model.ConnID, payload []byte) error
}

// Channel 下行广播通道
// 每个事件只编码一次，逐个连接投递；投递失败不影响其他连接
type Channel struct {
	sender Sender
	logger *slog.Logger
}

// NewChannel 创建广播通道
func NewChannel(sender Sender) *Channel {
	return &Channel{
		sender: sender,
		logger: slog.Default().With("component", "Broadcast"),
	}
}

// SendTo 发送事件给一组连接
func (c *Channel) SendTo(conns []model.ConnID, event string, data any) {
	if len(conns) == 0 {
		return
	}

	payload, err := Encode(event, data)
	if err != nil {
		c.logger.Error("Failed to marshal event", "event", event, "error", err)
		return
	}

	for _, conn := range conns {
		if err := c.sender.Send(conn, payload); err != nil {
			if errors.Is(err, ErrUnknownConn) {
				c.logger.Debug("Skip closed connection", "connId", string(conn), "event", event)
				continue
			}
			c.logger.Warn("Failed to send event", "connId", string(conn), "event", event, "error", err)
		}
	}
}

// Send 发送事件给单个连接
func (c *Channel) Send(conn model.ConnID, event string, data any) {
	c.SendTo([]model.ConnID{conn}, event, data)
}

// Encode 编码为 {event, data} 消息
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(proto.Envelope{Event: event, Data: raw})
}
