package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sudooom.arena/internal/model"
	"sudooom.arena/internal/proto"
)

const maxMessageSize = 64 * 1024

// Upstream 接收客户端上行事件（本地 Dispatcher 或 NATS 转发）
type Upstream interface {
	Dispatch(ctx context.Context, conn model.ConnID, event string, data json.RawMessage)
}

// Options 网关参数
type Options struct {
	SendBuffer             int
	WriteTimeout           time.Duration
	HeartbeatTimeout       time.Duration
	HeartbeatCheckInterval time.Duration
	AllowedOrigins         []string // 为空时不校验 Origin
}

// Server WebSocket 网关
type Server struct {
	opts      Options
	connMgr   *Manager
	upstream  Upstream
	upgrader  websocket.Upgrader
	heartbeat *HeartbeatChecker
	baseCtx   context.Context
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// New 创建网关
func New(opts Options, connMgr *Manager, upstream Upstream) *Server {
	s := &Server{
		opts:     opts,
		connMgr:  connMgr,
		upstream: upstream,
		baseCtx:  context.Background(),
		logger:   slog.Default().With("component", "Gateway"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.heartbeat = NewHeartbeatChecker(connMgr, opts.HeartbeatTimeout, opts.HeartbeatCheckInterval)
	return s
}

// Start 启动心跳检测；ctx 也作为上行事件的基础 context
func (s *Server) Start(ctx context.Context) {
	s.baseCtx = ctx
	go s.heartbeat.Run(ctx)
}

// ConnManager 返回连接管理器
func (s *Server) ConnManager() *Manager {
	return s.connMgr
}

// HandleWebSocket GET /ws
func (s *Server) HandleWebSocket(c *gin.Context) {
	socket, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "ip", c.ClientIP(), "error", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	conn := NewConnection(socket, s.opts.SendBuffer, s.opts.WriteTimeout)
	s.connMgr.Add(conn)
	s.logger.Info("Connection opened", "connId", string(conn.ID()), "remoteAddr", conn.RemoteAddr())

	defer func() {
		conn.Close()
		s.connMgr.Remove(conn)
		s.upstream.Dispatch(s.baseCtx, conn.ID(), proto.EventDisconnect, nil)
		s.logger.Info("Connection closed",
			"connId", string(conn.ID()),
			"duration", time.Since(conn.CreateTime()))
	}()

	s.readLoop(conn)
}

// readLoop 逐条读取并按顺序派发，保证同一连接的事件有序
func (s *Server) readLoop(conn *Connection) {
	conn.socket.SetReadLimit(maxMessageSize)

	for {
		data, err := conn.Read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("Read failed", "connId", string(conn.ID()), "error", err)
			}
			return
		}

		var env proto.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			s.logger.Debug("Malformed envelope", "connId", string(conn.ID()), "error", err)
			continue
		}
		// 断线事件只能由网关产生
		if env.Event == proto.EventDisconnect {
			continue
		}

		s.upstream.Dispatch(s.baseCtx, conn.ID(), env.Event, env.Data)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.opts.AllowedOrigins, r.Header.Get("Origin"))
}

// Shutdown 关闭所有连接并等待读协程退出
func (s *Server) Shutdown() {
	s.connMgr.CloseAll()
	s.wg.Wait()
}
