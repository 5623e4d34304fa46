package proto

// 上行事件（客户端 -> 服务端）
const (
	EventCreateRoom     = "createRoom"
	EventJoinRoom       = "joinRoom"
	EventLeaveRoom      = "leaveRoom"
	EventPlayerMove     = "playerMove"
	EventPlaceBomb      = "placeBomb"
	EventCollectPowerUp = "collectPowerUp"
	EventPing           = "ping"
)

// 下行事件（服务端 -> 客户端）
const (
	EventRoomCreated      = "roomCreated"
	EventRoomJoined       = "roomJoined"
	EventPlayerJoined     = "playerJoined"
	EventPlayerMoved      = "playerMoved"
	EventBombPlaced       = "bombPlaced"
	EventBombExploded     = "bombExploded"
	EventPowerUpCollected = "powerUpCollected"
	EventGameStarted      = "gameStarted"
	EventGameStateUpdate  = "gameStateUpdate"
	EventPlayerLeft       = "playerLeft"
	EventGameOver         = "gameOver"
	EventError            = "error"
	EventPong             = "pong"
)

// 对局结束原因
const (
	ReasonElimination = "elimination"
	ReasonTimeUp      = "timeUp"
)
