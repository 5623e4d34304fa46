package proto

import (
	"encoding/json"

	"sudooom.arena/internal/model"
)

// Envelope 客户端收发的消息外壳
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// UpstreamMessage 网关 -> 逻辑服（NATS）
type UpstreamMessage struct {
	GatewayID string          `json:"gatewayId"`
	ConnID    model.ConnID    `json:"connId"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// DownstreamMessage 逻辑服 -> 网关（NATS），Payload 为已编码的 Envelope
type DownstreamMessage struct {
	ConnIDs []model.ConnID  `json:"connIds"`
	Payload json.RawMessage `json:"payload"`
}

// 网关内部上行事件：连接断开
const EventDisconnect = "disconnect"

// ============================================================================
// 请求
// ============================================================================

// CreateRoomRequest 创建房间
type CreateRoomRequest struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers,omitempty"`
}

// JoinRoomRequest 加入（或重连）房间
type JoinRoomRequest struct {
	RoomID      model.RoomID `json:"roomId"`
	Name        string       `json:"name"`
	PlayerID    model.Slot   `json:"playerId,omitempty"`
	ResumeToken string       `json:"resumeToken,omitempty"`
}

// MoveRequest 移动
type MoveRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlaceBombRequest 放置炸弹
type PlaceBombRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CollectPowerUpRequest 拾取道具
type CollectPowerUpRequest struct {
	PowerUpID model.PowerUpID `json:"powerUpId"`
}

// PingRequest 心跳
type PingRequest struct {
	Timestamp int64 `json:"timestamp"`
}

// ============================================================================
// 推送
// ============================================================================

// RoomJoined 创建/加入房间成功（roomCreated 与 roomJoined 共用）
type RoomJoined struct {
	RoomID         model.RoomID   `json:"roomId"`
	PlayerID       model.Slot     `json:"playerId"`
	Player         model.Player   `json:"player"`
	GameState      model.Snapshot `json:"gameState"`
	ResumeToken    string         `json:"resumeToken,omitempty"`
	IsReconnecting bool           `json:"isReconnecting"`
}

// PlayerJoined 新玩家加入
type PlayerJoined struct {
	Player  model.Player   `json:"player"`
	Players []model.Player `json:"players"`
}

// PlayerMoved 玩家移动
type PlayerMoved struct {
	PlayerID model.Slot `json:"playerId"`
	X        float64    `json:"x"`
	Y        float64    `json:"y"`
}

// BombPlaced 炸弹放置
type BombPlaced struct {
	Bomb model.Bomb `json:"bomb"`
}

// BombExploded 炸弹爆炸
type BombExploded struct {
	BombID          model.BombID    `json:"bombId"`
	Cells           []model.Cell    `json:"explosionCells"`
	DestroyedBlocks []model.Block   `json:"destroyedBlocks"`
	Players         []model.Player  `json:"players"`
	PowerUps        []model.PowerUp `json:"powerUps"`
}

// PowerUpCollected 道具被拾取
type PowerUpCollected struct {
	PlayerID  model.Slot        `json:"playerId"`
	PowerUpID model.PowerUpID   `json:"powerUpId"`
	Type      model.PowerUpType `json:"type"`
	Player    model.Player      `json:"player"`
}

// GameStarted 对局开始
type GameStarted struct {
	GameState model.Snapshot `json:"gameState"`
}

// PlayerLeft 玩家离开
type PlayerLeft struct {
	PlayerID model.Slot     `json:"playerId"`
	Players  []model.Player `json:"players"`
}

// GameOver 对局结束，Winner 为空表示平局
type GameOver struct {
	WinnerID model.Slot     `json:"winnerId,omitempty"`
	Winner   *model.Player  `json:"winner"`
	Reason   string         `json:"reason"`
	Players  []model.Player `json:"players"`
}

// Error 错误推送
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Pong 心跳回包
type Pong struct {
	Timestamp  int64 `json:"timestamp"`
	ServerTime int64 `json:"serverTime"`
}
