package model

// Phase 房间阶段，只能向前推进
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

// PowerUpType 道具类型
type PowerUpType string

const (
	PowerUpSpeed  PowerUpType = "speed"
	PowerUpBombs  PowerUpType = "bombs"
	PowerUpPower  PowerUpType = "power"
	PowerUpHealth PowerUpType = "health"
)

// PowerUpTypes 所有道具类型（掉落时均匀随机）
var PowerUpTypes = []PowerUpType{PowerUpSpeed, PowerUpBombs, PowerUpPower, PowerUpHealth}

// Cell 网格坐标（已对齐到格子）
type Cell struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Tally 玩家道具累计
type Tally struct {
	Speed float64 `json:"speed"`
	Bombs int     `json:"bombs"`
	Power int     `json:"power"`
}

// Player 玩家状态（传输对象）
type Player struct {
	ID           Slot    `json:"id"`
	ConnID       ConnID  `json:"-"`
	Name         string  `json:"name"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Health       int     `json:"health"`
	Alive        bool    `json:"alive"`
	BombCapacity int     `json:"maxBombs"`
	BombsLive    int     `json:"bombCount"`
	Power        int     `json:"bombPower"`
	PowerUps     Tally   `json:"powerUps"`
}

// Bomb 炸弹
type Bomb struct {
	ID       BombID  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Owner    Slot    `json:"playerId"`
	Power    int     `json:"power"`
	FuseMs   int64   `json:"fuseTime"`
	PlacedAt int64   `json:"placedAt"`
}

// Cell 炸弹所在格子
func (b Bomb) Cell() Cell {
	return Cell{X: b.X, Y: b.Y}
}

// PowerUp 道具
type PowerUp struct {
	ID        PowerUpID   `json:"id"`
	Type      PowerUpType `json:"type"`
	X         float64     `json:"x"`
	Y         float64     `json:"y"`
	SpawnedAt int64       `json:"spawnTime"`
}

// Block 可破坏方块
type Block struct {
	ID BlockID `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Snapshot 房间完整快照
type Snapshot struct {
	RoomID     RoomID    `json:"roomId"`
	Phase      Phase     `json:"gameState"`
	MaxPlayers int       `json:"maxPlayers"`
	Players    []Player  `json:"players"`
	Bombs      []Bomb    `json:"bombs"`
	PowerUps   []PowerUp `json:"powerUps"`
	Blocks     []Block   `json:"blocks"`
	TimeLeft   int       `json:"gameTime"`
}

// RoomSummary 房间列表项
type RoomSummary struct {
	RoomID     RoomID `json:"roomId"`
	Phase      Phase  `json:"gameState"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
}

// MatchResult 对局结果（归档用）
type MatchResult struct {
	RoomID       RoomID   `json:"roomId"`
	Winner       Slot     `json:"winner"`
	WinnerName   string   `json:"winnerName"`
	Reason       string   `json:"reason"`
	Participants []string `json:"participants"`
	StartedAt    int64    `json:"startedAt"`
	FinishedAt   int64    `json:"finishedAt"`
}
