package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"sudooom.arena/internal/model"
	"sudooom.arena/internal/proto"
	"sudooom.arena/internal/room"
)

// ErrInvalidPayload 请求体无法解析
var ErrInvalidPayload = errors.New("INVALID_PAYLOAD")

// RoomService 房间服务（由 room.Service 实现）
type RoomService interface {
	CreateRoom(ctx context.Context, conn model.ConnID, req proto.CreateRoomRequest) (proto.RoomJoined, error)
	JoinRoom(ctx context.Context, conn model.ConnID, req proto.JoinRoomRequest) (proto.RoomJoined, error)
	LeaveRoom(ctx context.Context, conn model.ConnID) error
	Disconnect(ctx context.Context, conn model.ConnID)
	Move(ctx context.Context, conn model.ConnID, x, y float64) error
	PlaceBomb(ctx context.Context, conn model.ConnID, x, y float64) error
	CollectPowerUp(ctx context.Context, conn model.ConnID, id model.PowerUpID) error
}

// Replier 回复单个连接
type Replier interface {
	Send(conn model.ConnID, event string, data any)
}

// ActionHandler 单个上行事件的处理器
type ActionHandler interface {
	Handle(ctx context.Context, conn model.ConnID, data json.RawMessage) error
}

// ActionFunc 函数形式的处理器
type ActionFunc func(ctx context.Context, conn model.ConnID, data json.RawMessage) error

// Handle 实现 ActionHandler
func (f ActionFunc) Handle(ctx context.Context, conn model.ConnID, data json.RawMessage) error {
	return f(ctx, conn, data)
}

// Dispatcher 上行事件分发器
// 按事件名找到处理器；处理器内的 panic 在这里兜底
type Dispatcher struct {
	actionHandlers map[string]ActionHandler
	service        RoomService
	replier        Replier
	now            func() time.Time
	logger         *slog.Logger
}

// NewDispatcher 创建分发器
func NewDispatcher(service RoomService, replier Replier) *Dispatcher {
	d := &Dispatcher{
		actionHandlers: make(map[string]ActionHandler),
		service:        service,
		replier:        replier,
		now:            time.Now,
		logger:         slog.Default().With("component", "Dispatcher"),
	}

	d.registerActionHandlers()

	return d
}

// registerActionHandlers 注册各事件处理器
func (d *Dispatcher) registerActionHandlers() {
	d.actionHandlers[proto.EventCreateRoom] = &CreateRoomHandler{service: d.service, logger: d.logger}
	d.actionHandlers[proto.EventJoinRoom] = &JoinRoomHandler{service: d.service, logger: d.logger}
	d.actionHandlers[proto.EventLeaveRoom] = ActionFunc(func(ctx context.Context, conn model.ConnID, _ json.RawMessage) error {
		return d.service.LeaveRoom(ctx, conn)
	})
	d.actionHandlers[proto.EventPlayerMove] = ActionFunc(d.handleMove)
	d.actionHandlers[proto.EventPlaceBomb] = ActionFunc(d.handlePlaceBomb)
	d.actionHandlers[proto.EventCollectPowerUp] = ActionFunc(d.handleCollectPowerUp)
	d.actionHandlers[proto.EventPing] = ActionFunc(d.handlePing)
}

// Dispatch 处理一条上行事件
func (d *Dispatcher) Dispatch(ctx context.Context, conn model.ConnID, event string, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Handler panic recovered",
				"event", event,
				"connId", string(conn),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	if event == proto.EventDisconnect {
		d.service.Disconnect(ctx, conn)
		return
	}

	handler, ok := d.actionHandlers[event]
	if !ok {
		d.logger.Warn("Unknown event", "event", event, "connId", string(conn))
		return
	}

	err := handler.Handle(ctx, conn, data)
	if err == nil {
		return
	}

	code, msg, surfaced := mapErrorToCodeAndMsg(err)
	if !surfaced {
		d.logger.Debug("Intent rejected", "event", event, "connId", string(conn), "error", err)
		return
	}

	d.logger.Warn("Request failed", "event", event, "connId", string(conn), "code", code, "error", err)
	d.replier.Send(conn, proto.EventError, proto.Error{Code: code, Message: msg})
}

func (d *Dispatcher) handleMove(ctx context.Context, conn model.ConnID, data json.RawMessage) error {
	var req proto.MoveRequest
	if err := decode(data, &req); err != nil {
		return room.ErrInvalidIntent
	}
	return d.service.Move(ctx, conn, req.X, req.Y)
}

func (d *Dispatcher) handlePlaceBomb(ctx context.Context, conn model.ConnID, data json.RawMessage) error {
	var req proto.PlaceBombRequest
	if err := decode(data, &req); err != nil {
		return room.ErrInvalidIntent
	}
	return d.service.PlaceBomb(ctx, conn, req.X, req.Y)
}

func (d *Dispatcher) handleCollectPowerUp(ctx context.Context, conn model.ConnID, data json.RawMessage) error {
	var req proto.CollectPowerUpRequest
	if err := decode(data, &req); err != nil {
		return room.ErrInvalidIntent
	}
	return d.service.CollectPowerUp(ctx, conn, req.PowerUpID)
}

func (d *Dispatcher) handlePing(ctx context.Context, conn model.ConnID, data json.RawMessage) error {
	var req proto.PingRequest
	_ = decode(data, &req)
	d.replier.Send(conn, proto.EventPong, proto.Pong{Timestamp: req.Timestamp, ServerTime: d.now().UnixMilli()})
	return nil
}

// CreateRoomHandler 创建房间
type CreateRoomHandler struct {
	service RoomService
	logger  *slog.Logger
}

func (h *CreateRoomHandler) Handle(ctx context.Context, conn model.ConnID, data json.RawMessage) error {
	var req proto.CreateRoomRequest
	if err := decode(data, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	resp, err := h.service.CreateRoom(ctx, conn, req)
	if err != nil {
		return err
	}

	h.logger.Info("Room created", "roomId", string(resp.RoomID), "connId", string(conn), "name", req.Name)
	return nil
}

// JoinRoomHandler 加入房间
type JoinRoomHandler struct {
	service RoomService
	logger  *slog.Logger
}

func (h *JoinRoomHandler) Handle(ctx context.Context, conn model.ConnID, data json.RawMessage) error {
	var req proto.JoinRoomRequest
	if err := decode(data, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if req.RoomID == "" {
		return fmt.Errorf("%w: roomId is required", ErrInvalidPayload)
	}

	resp, err := h.service.JoinRoom(ctx, conn, req)
	if err != nil {
		return err
	}

	h.logger.Info("Joined room",
		"roomId", string(resp.RoomID),
		"connId", string(conn),
		"slot", resp.PlayerID,
		"reconnecting", resp.IsReconnecting)
	return nil
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// mapErrorToCodeAndMsg 将 error 映射到错误码和错误消息
// 无效操作（死亡玩家、炸弹数已满等）不回复客户端
func mapErrorToCodeAndMsg(err error) (code, msg string, surfaced bool) {
	switch {
	case errors.Is(err, room.ErrInvalidIntent), errors.Is(err, room.ErrNotInRoom):
		return "INVALID_INTENT", "", false
	case errors.Is(err, room.ErrRoomNotFound):
		return "ROOM_NOT_FOUND", "Room not found", true
	case errors.Is(err, room.ErrRoomFull):
		return "ROOM_FULL", "Room is full", true
	case errors.Is(err, room.ErrRoomFinished):
		return "ROOM_FINISHED", "Game already finished", true
	case errors.Is(err, room.ErrAlreadyInRoom):
		return "ALREADY_IN_ROOM", "Already in this room", true
	case errors.Is(err, ErrInvalidPayload):
		return "INVALID_PAYLOAD", "Invalid request", true
	default:
		return "INTERNAL_ERROR", "Internal server error", true
	}
}
