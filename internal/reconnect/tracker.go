package reconnect

import (
	"log/slog"
	"sync"
	"time"

	"sudooom.arena/internal/model"
)

// Record 过渡记录
// 开局时为每个在座玩家创建，断线后在宽限期内允许新连接接管同一座位
type Record struct {
	ConnID         model.ConnID
	RoomID         model.RoomID
	Slot           model.Slot
	Name           string
	StartedAt      time.Time
	DisconnectedAt time.Time // 零值表示尚未断线
}

// Disconnected 是否已断线
func (r Record) Disconnected() bool {
	return !r.DisconnectedAt.IsZero()
}

// Tracker 断线重连记录表
type Tracker struct {
	mu      sync.Mutex
	records map[model.ConnID]*Record
	logger  *slog.Logger
}

// NewTracker 创建断线重连记录表
func NewTracker() *Tracker {
	return &Tracker{
		records: make(map[model.ConnID]*Record),
		logger:  slog.Default().With("component", "ReconnectTracker"),
	}
}

// Track 登记过渡记录，同一连接重复登记时覆盖
func (t *Tracker) Track(rec Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := rec
	t.records[rec.ConnID] = &r
}

// Get 查询连接的过渡记录
func (t *Tracker) Get(connID model.ConnID) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[connID]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// MarkDisconnected 标记连接已断线，记录不存在时返回 false
func (t *Tracker) MarkDisconnected(connID model.ConnID, at time.Time) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[connID]
	if !ok {
		return Record{}, false
	}
	if r.DisconnectedAt.IsZero() {
		r.DisconnectedAt = at
	}
	return *r, true
}

// Claim 用房间 + 座位号（或昵称）认领过渡记录，成功后记录被删除
// 已断线的记录：slot > 0 时按座位匹配，否则按昵称匹配
// 旧连接仍在线的记录要求座位号和昵称同时匹配
func (t *Tracker) Claim(roomID model.RoomID, name string, slot model.Slot) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for connID, r := range t.records {
		if r.RoomID != roomID || !r.matches(name, slot) {
			continue
		}
		return t.take(connID), true
	}
	return Record{}, false
}

// ClaimSlot 按座位认领过渡记录，调用方已通过凭证确认身份
func (t *Tracker) ClaimSlot(roomID model.RoomID, slot model.Slot) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for connID, r := range t.records {
		if r.RoomID == roomID && r.Slot == slot {
			return t.take(connID), true
		}
	}
	return Record{}, false
}

func (t *Tracker) take(connID model.ConnID) Record {
	r := t.records[connID]
	delete(t.records, connID)
	t.logger.Info("Transition record claimed", "roomId", r.RoomID, "slot", r.Slot, "oldConnId", connID)
	return *r
}

func (r *Record) matches(name string, slot model.Slot) bool {
	slotOK := slot > 0 && r.Slot == slot
	nameOK := name != "" && r.Name == name
	if !r.Disconnected() {
		return slotOK && nameOK
	}
	if slot > 0 {
		return slotOK
	}
	return nameOK
}

// Remove 删除过渡记录
func (t *Tracker) Remove(connID model.ConnID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.records[connID]; !ok {
		return false
	}
	delete(t.records, connID)
	return true
}

// Expire 清理到期记录并返回
// 断线超过 grace 的记录，或创建超过 stale 的记录都会被清理
func (t *Tracker) Expire(now time.Time, grace, stale time.Duration) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []Record
	for connID, r := range t.records {
		graceOver := r.Disconnected() && now.Sub(r.DisconnectedAt) >= grace
		if graceOver || now.Sub(r.StartedAt) >= stale {
			expired = append(expired, *r)
			delete(t.records, connID)
		}
	}
	return expired
}

// DropRoom 删除房间的所有记录
func (t *Tracker) DropRoom(roomID model.RoomID) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for connID, r := range t.records {
		if r.RoomID == roomID {
			delete(t.records, connID)
			n++
		}
	}
	return n
}

// Count 当前记录数
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.records)
}
