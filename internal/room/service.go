package room

import (
	"context"
	"log/slog"
	"time"

	"sudooom.arena/internal/model"
	"sudooom.arena/internal/proto"
	"sudooom.arena/internal/reconnect"
)

// Tokens 断线重连凭证
type Tokens interface {
	Issue(seat model.Seat) (string, error)
	Parse(token string) (model.Seat, error)
}

// Service 房间服务
// 负责连接与房间之间的编排：创建、加入、重连、断线、离开和定期清理
type Service struct {
	rooms     *Manager
	tracker   *reconnect.Tracker
	tokens    Tokens
	newID     func() model.RoomID
	rules     model.Rules
	emitter   Emitter
	scheduler Scheduler
	now       func() time.Time
	logger    *slog.Logger
}

// NewService 创建房间服务，tokens 可以为 nil
func NewService(rooms *Manager, tracker *reconnect.Tracker, tokens Tokens, newID func() model.RoomID) *Service {
	now := rooms.opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		rooms:     rooms,
		tracker:   tracker,
		tokens:    tokens,
		newID:     newID,
		rules:     rooms.opts.Rules,
		emitter:   rooms.opts.Emitter,
		scheduler: rooms.opts.Scheduler,
		now:       now,
		logger:    slog.Default().With("component", "RoomService"),
	}
}

// Rooms 房间注册表
func (s *Service) Rooms() *Manager {
	return s.rooms
}

// CreateRoom 创建房间，创建者作为第一名玩家加入
func (s *Service) CreateRoom(ctx context.Context, conn model.ConnID, req proto.CreateRoomRequest) (proto.RoomJoined, error) {
	s.detach(ctx, conn)

	id := s.newID()
	r := s.rooms.Create(id, req.MaxPlayers)

	p, err := r.Join(conn, req.Name)
	if err != nil {
		s.rooms.Remove(id)
		return proto.RoomJoined{}, wrap("create", string(id), err)
	}
	if err := s.bind(r, conn, p.ID); err != nil {
		return proto.RoomJoined{}, wrap("create", string(id), err)
	}

	resp := s.joined(r, p, false)
	s.send(conn, proto.EventRoomCreated, resp)

	s.logger.Info("Room created", "roomId", string(id), "connId", string(conn), "maxPlayers", resp.GameState.MaxPlayers)
	return resp, nil
}

// JoinRoom 加入房间；匹配到过渡记录时按重连处理
func (s *Service) JoinRoom(ctx context.Context, conn model.ConnID, req proto.JoinRoomRequest) (proto.RoomJoined, error) {
	r, ok := s.rooms.Get(req.RoomID)
	if !ok {
		return proto.RoomJoined{}, wrap("join", string(req.RoomID), ErrRoomNotFound)
	}

	if b, ok := s.rooms.Binding(conn); ok {
		if b.RoomID == req.RoomID {
			return proto.RoomJoined{}, wrap("join", string(req.RoomID), ErrAlreadyInRoom)
		}
		s.detach(ctx, conn)
	}

	if resp, ok := s.resume(r, conn, req); ok {
		return resp, nil
	}

	p, err := r.Join(conn, req.Name)
	if err != nil {
		s.logger.Warn("Failed to join room", "roomId", string(req.RoomID), "connId", string(conn), "error", err)
		return proto.RoomJoined{}, wrap("join", string(req.RoomID), err)
	}
	if err := s.bind(r, conn, p.ID); err != nil {
		return proto.RoomJoined{}, wrap("join", string(req.RoomID), err)
	}

	resp := s.joined(r, p, false)
	s.send(conn, proto.EventRoomJoined, resp)
	return resp, nil
}

// resume 认领过渡记录并把座位重绑到新连接
// 不广播 playerJoined；对局中额外推送一次快照
func (s *Service) resume(r *Room, conn model.ConnID, req proto.JoinRoomRequest) (proto.RoomJoined, bool) {
	if seat, ok := s.seatFromToken(r, conn, req.ResumeToken); ok {
		// 凭证可信，座位还在就直接接管，不要求存在过渡记录
		s.tracker.ClaimSlot(r.ID(), seat.Slot)
		if resp, ok := s.rebind(r, conn, seat.Slot); ok {
			return resp, true
		}
	}

	rec, ok := s.tracker.Claim(r.ID(), req.Name, req.PlayerID)
	if !ok {
		return proto.RoomJoined{}, false
	}
	return s.rebind(r, conn, rec.Slot)
}

// seatFromToken 解析属于本房间的凭证
func (s *Service) seatFromToken(r *Room, conn model.ConnID, token string) (model.Seat, bool) {
	if token == "" || s.tokens == nil {
		return model.Seat{}, false
	}
	seat, err := s.tokens.Parse(token)
	if err != nil {
		s.logger.Warn("Invalid resume token", "roomId", string(r.ID()), "connId", string(conn), "error", err)
		return model.Seat{}, false
	}
	if seat.RoomID != r.ID() || seat.Slot <= 0 {
		return model.Seat{}, false
	}
	return seat, true
}

func (s *Service) rebind(r *Room, conn model.ConnID, slot model.Slot) (proto.RoomJoined, bool) {
	p, old, err := r.Rebind(slot, conn)
	if err != nil {
		s.logger.Warn("Seat to resume is gone", "roomId", string(r.ID()), "slot", slot, "error", err)
		return proto.RoomJoined{}, false
	}

	// 旧连接可能还没断开，解除它的绑定，之后它的断线事件不再生效
	s.rooms.Unbind(old)
	s.tracker.Remove(old)
	if err := s.bind(r, conn, slot); err != nil {
		return proto.RoomJoined{}, false
	}

	resp := s.joined(r, p, true)
	s.send(conn, proto.EventRoomJoined, resp)
	if resp.GameState.Phase == model.PhasePlaying {
		r.SendSnapshot(conn)
	}

	s.logger.Info("Player reconnected", "roomId", string(r.ID()), "slot", slot, "oldConnId", string(old), "connId", string(conn))
	return resp, true
}

// bind 绑定连接到座位；房间在此期间已被销毁时撤销绑定
func (s *Service) bind(r *Room, conn model.ConnID, slot model.Slot) error {
	s.rooms.Bind(conn, Binding{RoomID: r.ID(), Slot: slot})
	if r.Closed() {
		s.rooms.Unbind(conn)
		return ErrRoomNotFound
	}
	return nil
}

// LeaveRoom 主动离开房间
func (s *Service) LeaveRoom(ctx context.Context, conn model.ConnID) error {
	b, ok := s.rooms.Unbind(conn)
	if !ok {
		return ErrNotInRoom
	}
	s.tracker.Remove(conn)
	s.hardLeave(b.RoomID, conn)
	return nil
}

// Disconnect 连接断开
// 有过渡记录时保留座位，宽限期后再移除；否则立即离开
func (s *Service) Disconnect(ctx context.Context, conn model.ConnID) {
	b, ok := s.rooms.Unbind(conn)
	if !ok {
		return
	}

	if _, ok := s.tracker.MarkDisconnected(conn, s.now()); ok {
		s.logger.Info("Holding slot for reconnect", "roomId", string(b.RoomID), "slot", b.Slot, "connId", string(conn), "grace", s.rules.ReconnectGrace)
		if s.scheduler != nil {
			err := s.scheduler.After(string(b.RoomID), "reconnectTimeout", s.rules.ReconnectGrace, func(ctx context.Context) {
				s.expireTransition(conn)
			})
			if err != nil {
				s.logger.Warn("Failed to schedule reconnect timeout", "connId", string(conn), "error", err)
			}
		}
		return
	}

	s.hardLeave(b.RoomID, conn)
}

// expireTransition 宽限期结束仍未重连
func (s *Service) expireTransition(conn model.ConnID) {
	rec, ok := s.tracker.Get(conn)
	if !ok || !rec.Disconnected() {
		return
	}
	s.tracker.Remove(conn)

	s.logger.Info("Reconnect grace expired", "roomId", string(rec.RoomID), "slot", rec.Slot, "connId", string(conn))
	s.hardLeave(rec.RoomID, conn)
}

// hardLeave 移除连接对应的玩家，房间满足条件时销毁
func (s *Service) hardLeave(roomID model.RoomID, conn model.ConnID) {
	r, ok := s.rooms.Get(roomID)
	if !ok {
		return
	}
	r.LeaveConn(conn)
	s.reap(r)
}

func (s *Service) reap(r *Room) bool {
	if !r.CloseIfDestroyable(s.now(), s.rooms.Connected(r.ID())) {
		return false
	}
	s.rooms.Remove(r.ID())
	s.tracker.DropRoom(r.ID())
	return true
}

// detach 连接已在其他房间时先离开
func (s *Service) detach(ctx context.Context, conn model.ConnID) {
	if _, ok := s.rooms.Binding(conn); ok {
		_ = s.LeaveRoom(ctx, conn)
	}
}

// Move 移动
func (s *Service) Move(ctx context.Context, conn model.ConnID, x, y float64) error {
	r, b, err := s.seat(conn)
	if err != nil {
		return err
	}
	if !r.Move(b.Slot, x, y) {
		return ErrInvalidIntent
	}
	return nil
}

// PlaceBomb 放置炸弹
func (s *Service) PlaceBomb(ctx context.Context, conn model.ConnID, x, y float64) error {
	r, b, err := s.seat(conn)
	if err != nil {
		return err
	}
	if _, ok := r.PlaceBomb(b.Slot, x, y); !ok {
		return ErrInvalidIntent
	}
	return nil
}

// CollectPowerUp 拾取道具
func (s *Service) CollectPowerUp(ctx context.Context, conn model.ConnID, id model.PowerUpID) error {
	r, b, err := s.seat(conn)
	if err != nil {
		return err
	}
	if !r.CollectPowerUp(b.Slot, id) {
		return ErrInvalidIntent
	}
	return nil
}

func (s *Service) seat(conn model.ConnID) (*Room, Binding, error) {
	b, ok := s.rooms.Binding(conn)
	if !ok {
		return nil, Binding{}, ErrNotInRoom
	}
	r, ok := s.rooms.Get(b.RoomID)
	if !ok {
		return nil, Binding{}, ErrRoomNotFound
	}
	return r, b, nil
}

// Sweep 定期清理：过期道具、到期过渡记录、可销毁的房间
func (s *Service) Sweep(now time.Time) {
	for _, rec := range s.tracker.Expire(now, s.rules.ReconnectGrace, s.rules.StaleRecordAge) {
		if !rec.Disconnected() {
			continue
		}
		s.hardLeave(rec.RoomID, rec.ConnID)
	}

	var (
		expired int
		dead    []*Room
	)
	s.rooms.Range(func(r *Room) bool {
		expired += r.ExpirePowerUps(now)
		if r.CloseIfDestroyable(now, s.rooms.Connected(r.ID())) {
			dead = append(dead, r)
		}
		return true
	})

	for _, r := range dead {
		s.rooms.Remove(r.ID())
		s.tracker.DropRoom(r.ID())
	}
	s.rooms.RefreshPresence(context.Background())

	if expired > 0 || len(dead) > 0 {
		s.logger.Info("Sweep finished", "expiredPowerUps", expired, "removedRooms", len(dead), "rooms", s.rooms.Count())
	}
}

// RunSweeper 按固定间隔执行 Sweep，直到 ctx 结束
func (s *Service) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.rules.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

func (s *Service) joined(r *Room, p model.Player, reconnecting bool) proto.RoomJoined {
	resp := proto.RoomJoined{
		RoomID:         r.ID(),
		PlayerID:       p.ID,
		Player:         p,
		GameState:      r.Snapshot(),
		IsReconnecting: reconnecting,
	}
	if s.tokens != nil {
		tok, err := s.tokens.Issue(model.Seat{RoomID: r.ID(), Slot: p.ID, Name: p.Name})
		if err != nil {
			s.logger.Warn("Failed to issue resume token", "roomId", string(r.ID()), "slot", p.ID, "error", err)
		} else {
			resp.ResumeToken = tok
		}
	}
	return resp
}

func (s *Service) send(conn model.ConnID, event string, data any) {
	if s.emitter == nil {
		return
	}
	s.emitter.SendTo([]model.ConnID{conn}, event, data)
}
