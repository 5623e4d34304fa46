package model

import "strconv"

// RoomID 房间 ID（雪花 ID 字符串）
type RoomID string

// ConnID 连接 ID（网关分配的 UUID）
type ConnID string

// Slot 房间内座位号，从 1 开始，房间生命周期内不复用
type Slot int

// BombID 炸弹 ID，房间内自增
type BombID int64

// PowerUpID 道具 ID，房间内自增
type PowerUpID int64

// BlockID 可破坏方块 ID
type BlockID int64

func (id RoomID) String() string { return string(id) }

func (id ConnID) String() string { return string(id) }

func (s Slot) String() string { return strconv.Itoa(int(s)) }

// Sequence 房间内 ID 序列（非并发安全，由房间锁保护）
type Sequence struct {
	next int64
}

// Next 返回下一个序号
func (s *Sequence) Next() int64 {
	s.next++
	return s.next
}

// Seat 房间内座位定位（房间 + 座位号 + 昵称）
type Seat struct {
	RoomID RoomID `json:"roomId"`
	Slot   Slot   `json:"slot"`
	Name   string `json:"name"`
}
