package room

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"

	"sudooom.arena/internal/model"
)

// Binding 连接在房间内的座位
type Binding struct {
	RoomID model.RoomID
	Slot   model.Slot
}

// Presence 连接绑定的外部镜像（多节点运维查询用）
// 写入失败只记录日志，不影响房间逻辑
type Presence interface {
	Bind(ctx context.Context, conn model.ConnID, roomID model.RoomID, slot model.Slot) error
	Unbind(ctx context.Context, conn model.ConnID, roomID model.RoomID) error
	DropRoom(ctx context.Context, roomID model.RoomID) error
	Touch(ctx context.Context, roomID model.RoomID, conns []model.ConnID) error
}

// Manager 房间注册表
// 管理所有房间实例以及连接 -> 座位的绑定
//
// 使用示例：
//
//	manager := NewManager(opts, presence)
//	r := manager.Create(roomID, 4)
//	manager.Bind(connID, Binding{RoomID: roomID, Slot: 1})
//	manager.Remove(roomID)
type Manager struct {
	rooms sync.Map // roomId -> *Room

	mu       sync.RWMutex
	bindings map[model.ConnID]Binding

	opts     Options
	randMu   sync.Mutex
	presence Presence
	logger   *slog.Logger
}

// NewManager 创建房间注册表，presence 可以为 nil
func NewManager(opts Options, presence Presence) *Manager {
	return &Manager{
		bindings: make(map[model.ConnID]Binding),
		opts:     opts,
		presence: presence,
		logger:   slog.Default().With("component", "RoomManager"),
	}
}

// Create 创建房间
func (m *Manager) Create(id model.RoomID, maxPlayers int) *Room {
	r := NewRoom(id, maxPlayers, m.roomOptions())
	actual, loaded := m.rooms.LoadOrStore(id, r)
	if !loaded {
		m.logger.Info("Room created", "roomId", string(id))
	}
	return actual.(*Room)
}

// roomOptions 每个房间使用独立的随机源，种子取自注册表的随机源
func (m *Manager) roomOptions() Options {
	opts := m.opts
	if m.opts.Rand != nil {
		m.randMu.Lock()
		opts.Rand = rand.New(rand.NewSource(m.opts.Rand.Int63()))
		m.randMu.Unlock()
	}
	return opts
}

// Get 获取房间
func (m *Manager) Get(id model.RoomID) (*Room, bool) {
	val, ok := m.rooms.Load(id)
	if !ok {
		return nil, false
	}
	return val.(*Room), true
}

// Remove 销毁房间，同时清理房间内的连接绑定
func (m *Manager) Remove(id model.RoomID) bool {
	val, ok := m.rooms.LoadAndDelete(id)
	if !ok {
		return false
	}
	val.(*Room).Close()

	m.mu.Lock()
	for conn, b := range m.bindings {
		if b.RoomID == id {
			delete(m.bindings, conn)
		}
	}
	m.mu.Unlock()

	if m.presence != nil {
		if err := m.presence.DropRoom(context.Background(), id); err != nil {
			m.logger.Warn("Failed to drop room presence", "roomId", string(id), "error", err)
		}
	}

	m.logger.Info("Room removed", "roomId", string(id))
	return true
}

// Bind 绑定连接到座位，覆盖旧绑定
func (m *Manager) Bind(conn model.ConnID, b Binding) {
	m.mu.Lock()
	m.bindings[conn] = b
	m.mu.Unlock()

	if m.presence != nil {
		if err := m.presence.Bind(context.Background(), conn, b.RoomID, b.Slot); err != nil {
			m.logger.Warn("Failed to mirror binding", "connId", string(conn), "roomId", string(b.RoomID), "error", err)
		}
	}
}

// Unbind 解除连接绑定，返回原绑定
func (m *Manager) Unbind(conn model.ConnID) (Binding, bool) {
	m.mu.Lock()
	b, ok := m.bindings[conn]
	if ok {
		delete(m.bindings, conn)
	}
	m.mu.Unlock()

	if ok && m.presence != nil {
		if err := m.presence.Unbind(context.Background(), conn, b.RoomID); err != nil {
			m.logger.Warn("Failed to remove binding mirror", "connId", string(conn), "roomId", string(b.RoomID), "error", err)
		}
	}
	return b, ok
}

// Binding 查询连接绑定
func (m *Manager) Binding(conn model.ConnID) (Binding, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bindings[conn]
	return b, ok
}

// RefreshPresence 续期在线镜像的过期时间
func (m *Manager) RefreshPresence(ctx context.Context) {
	if m.presence == nil {
		return
	}

	m.mu.RLock()
	byRoom := make(map[model.RoomID][]model.ConnID)
	for conn, b := range m.bindings {
		byRoom[b.RoomID] = append(byRoom[b.RoomID], conn)
	}
	m.mu.RUnlock()

	for id, conns := range byRoom {
		if err := m.presence.Touch(ctx, id, conns); err != nil {
			m.logger.Warn("Failed to refresh presence", "roomId", string(id), "error", err)
		}
	}
}

// Connected 房间当前绑定的连接数
func (m *Manager) Connected(id model.RoomID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, b := range m.bindings {
		if b.RoomID == id {
			n++
		}
	}
	return n
}

// Count 返回当前房间数
func (m *Manager) Count() int {
	count := 0
	m.rooms.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

// PlayerCount 所有房间已占用座位总数
func (m *Manager) PlayerCount() int {
	total := 0
	m.Range(func(r *Room) bool {
		total += r.PlayerCount()
		return true
	})
	return total
}

// Range 遍历房间
func (m *Manager) Range(fn func(r *Room) bool) {
	m.rooms.Range(func(key, value any) bool {
		return fn(value.(*Room))
	})
}

// Summaries 房间列表
func (m *Manager) Summaries() []model.RoomSummary {
	list := make([]model.RoomSummary, 0)
	m.Range(func(r *Room) bool {
		list = append(list, r.Summary())
		return true
	})
	return list
}

// Shutdown 关闭所有房间
func (m *Manager) Shutdown(ctx context.Context) error {
	ids := make([]model.RoomID, 0)
	m.Range(func(r *Room) bool {
		ids = append(ids, r.ID())
		return true
	})
	for _, id := range ids {
		m.Remove(id)
	}

	m.logger.Info("RoomManager shutdown complete", "rooms", len(ids))
	return nil
}
