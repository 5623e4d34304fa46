package gateway

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sudooom.arena/internal/model"
)

var (
	ErrConnectionClosed = errors.New("CONNECTION_CLOSED")
	ErrSendBufferFull   = errors.New("SEND_BUFFER_FULL")
)

// Connection 表示一个客户端 WebSocket 连接
type Connection struct {
	id           model.ConnID
	socket       *websocket.Conn
	remoteAddr   string
	logger       *slog.Logger
	writeChan    chan []byte
	writeTimeout time.Duration
	closeChan    chan struct{}
	closeOnce    sync.Once
	createTime   time.Time
	lastActive   atomic.Int64
}

// NewConnection 包装已升级的 socket 并启动写协程
func NewConnection(socket *websocket.Conn, sendBuffer int, writeTimeout time.Duration) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	id := model.ConnID(uuid.NewString())
	c := &Connection{
		id:           id,
		socket:       socket,
		remoteAddr:   socket.RemoteAddr().String(),
		logger:       slog.Default().With("component", "Connection", "connId", string(id)),
		writeChan:    make(chan []byte, sendBuffer),
		writeTimeout: writeTimeout,
		closeChan:    make(chan struct{}),
		createTime:   time.Now(),
	}
	c.UpdateActive()

	// 客户端 ping 也算活跃
	socket.SetPingHandler(func(appData string) error {
		c.UpdateActive()
		err := socket.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	socket.SetPongHandler(func(string) error {
		c.UpdateActive()
		return nil
	})

	go c.writeLoop()
	return c
}

func (c *Connection) ID() model.ConnID {
	return c.id
}

func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// Send 把消息放入写队列；队列满时直接失败，不阻塞房间广播
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.closeChan:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeChan <- data:
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Read 读取一条文本消息
func (c *Connection) Read() ([]byte, error) {
	_, data, err := c.socket.ReadMessage()
	if err != nil {
		return nil, err
	}
	c.UpdateActive()
	return data, nil
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeChan:
			_ = c.socket.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.socket.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("Failed to write message", "error", err)
				c.Close()
				return
			}
		case <-c.closeChan:
			return
		}
	}
}

// Close 关闭连接，可重复调用
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		deadline := time.Now().Add(time.Second)
		_ = c.socket.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "connection closed"), deadline)
		_ = c.socket.Close()
	})
}

// Closed 是否已关闭
func (c *Connection) Closed() bool {
	select {
	case <-c.closeChan:
		return true
	default:
		return false
	}
}

// UpdateActive 刷新最后活跃时间
func (c *Connection) UpdateActive() {
	c.lastActive.Store(time.Now().UnixNano())
}

// LastActiveTime 最后活跃时间
func (c *Connection) LastActiveTime() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Connection) CreateTime() time.Time {
	return c.createTime
}
