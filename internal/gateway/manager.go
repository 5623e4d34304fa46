package gateway

import (
	"errors"
	"sync"
	"time"

	"sudooom.arena/internal/broadcast"
	"sudooom.arena/internal/model"
)

// Manager 管理本节点的所有连接，实现 broadcast.Sender
type Manager struct {
	connections map[model.ConnID]*Connection
	mu          sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		connections: make(map[model.ConnID]*Connection),
	}
}

func (m *Manager) Add(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ID()] = conn
}

// Remove 移除连接，仅当登记的仍是同一个连接对象时生效
func (m *Manager) Remove(conn *Connection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.connections[conn.ID()]; !ok || cur != conn {
		return false
	}
	delete(m.connections, conn.ID())
	return true
}

func (m *Manager) Get(connID model.ConnID) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connections[connID]
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Send 投递已编码消息；连接不存在或已关闭时返回 broadcast.ErrUnknownConn
func (m *Manager) Send(connID model.ConnID, payload []byte) error {
	conn := m.Get(connID)
	if conn == nil {
		return broadcast.ErrUnknownConn
	}

	err := conn.Send(payload)
	if errors.Is(err, ErrConnectionClosed) {
		return broadcast.ErrUnknownConn
	}
	return err
}

// All 返回所有连接的快照
func (m *Manager) All() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	return conns
}

// Idle 返回 since 之后没有活动的连接
func (m *Manager) Idle(since time.Time) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var idle []*Connection
	for _, conn := range m.connections {
		if conn.LastActiveTime().Before(since) {
			idle = append(idle, conn)
		}
	}
	return idle
}

// CloseAll 关闭所有连接
func (m *Manager) CloseAll() {
	for _, conn := range m.All() {
		conn.Close()
	}
}
