package room

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"time"

	"sudooom.arena/internal/geometry"
	"sudooom.arena/internal/model"
	"sudooom.arena/internal/proto"
	"sudooom.arena/internal/reconnect"
)

// Emitter 下行事件出口
type Emitter interface {
	SendTo(conns []model.ConnID, event string, data any)
}

// Scheduler 延迟任务调度
// 任务不可取消，回调执行时需要自行校验房间状态
type Scheduler interface {
	After(target, name string, delay time.Duration, fn func(ctx context.Context)) error
}

// Tracker 开局时登记过渡记录
type Tracker interface {
	Track(rec reconnect.Record)
}

// ResultSink 对局结果归档
type ResultSink interface {
	SaveResult(ctx context.Context, result model.MatchResult) error
}

// Options 房间依赖
type Options struct {
	Rules     model.Rules
	Emitter   Emitter
	Scheduler Scheduler
	Tracker   Tracker
	Results   ResultSink
	Rand      *rand.Rand
	Now       func() time.Time
}

// outbound 待发送事件
type outbound struct {
	conns []model.ConnID
	event string
	data  any
}

// Room 单局游戏的全部可变状态
// 所有修改都在 mu 下进行，事件在修改成功后统一发出
// emitMu 覆盖修改和发送两个阶段，保证各连接收到事件的顺序与状态变化一致
type Room struct {
	emitMu sync.Mutex
	mu     sync.Mutex

	id         model.RoomID
	rules      model.Rules
	grid       geometry.Grid
	maxPlayers int
	phase      model.Phase

	players  map[model.Slot]*model.Player
	order    []model.Slot
	nextSlot model.Slot

	bombs    map[model.BombID]*model.Bomb
	powerUps map[model.PowerUpID]*model.PowerUp
	blocks   map[model.Cell]model.Block

	bombSeq    model.Sequence
	powerUpSeq model.Sequence

	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
	timeLeft   int

	autoStartPending bool
	closed           bool

	outbox []outbound
	result *model.MatchResult

	emitter   Emitter
	scheduler Scheduler
	tracker   Tracker
	results   ResultSink
	rng       *rand.Rand
	now       func() time.Time
	logger    *slog.Logger
}

// NewRoom 创建房间并生成方块布局
func NewRoom(id model.RoomID, maxPlayers int, opts Options) *Room {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(opts.Now().UnixNano()))
	}

	r := &Room{
		id:         id,
		rules:      opts.Rules,
		grid:       geometry.FromRules(opts.Rules),
		maxPlayers: opts.Rules.ClampMaxPlayers(maxPlayers),
		phase:      model.PhaseWaiting,
		players:    make(map[model.Slot]*model.Player),
		bombs:      make(map[model.BombID]*model.Bomb),
		powerUps:   make(map[model.PowerUpID]*model.PowerUp),
		blocks:     make(map[model.Cell]model.Block),
		createdAt:  opts.Now(),
		timeLeft:   int(opts.Rules.RoundDuration / time.Second),
		emitter:    opts.Emitter,
		scheduler:  opts.Scheduler,
		tracker:    opts.Tracker,
		results:    opts.Results,
		rng:        opts.Rand,
		now:        opts.Now,
		logger:     slog.Default().With("component", "Room", "roomId", string(id)),
	}

	for i, c := range geometry.LayoutBlocks(r.grid, r.rules.BlockDensity, r.rng) {
		r.blocks[c] = model.Block{ID: model.BlockID(i + 1), X: c.X, Y: c.Y}
	}

	return r
}

// ID 房间 ID
func (r *Room) ID() model.RoomID {
	return r.id
}

// apply 在锁内执行修改，解锁后发出事件
func (r *Room) apply(fn func()) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	out, result := r.locked(fn)
	r.flush(out, result)
}

// locked 执行修改并取出本次收集的事件
// fn panic 时事件留在 outbox，下一次修改开始时丢弃
func (r *Room) locked(fn func()) ([]outbound, *model.MatchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outbox = nil
	r.result = nil

	fn()

	out, result := r.outbox, r.result
	r.outbox = nil
	r.result = nil
	return out, result
}

func (r *Room) flush(out []outbound, result *model.MatchResult) {
	if r.emitter != nil {
		for _, o := range out {
			if len(o.conns) == 0 {
				continue
			}
			r.emitter.SendTo(o.conns, o.event, o.data)
		}
	}

	if result != nil && r.results != nil {
		res := *result
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.results.SaveResult(ctx, res); err != nil {
				r.logger.Warn("Failed to save match result", "error", err)
			}
		}()
	}
}

// emit 发给房间内所有玩家
func (r *Room) emit(event string, data any) {
	r.outbox = append(r.outbox, outbound{conns: r.conns(0), event: event, data: data})
}

// emitExcept 发给除 slot 以外的玩家
func (r *Room) emitExcept(slot model.Slot, event string, data any) {
	r.outbox = append(r.outbox, outbound{conns: r.conns(slot), event: event, data: data})
}

// emitTo 发给单个连接
func (r *Room) emitTo(conn model.ConnID, event string, data any) {
	r.outbox = append(r.outbox, outbound{conns: []model.ConnID{conn}, event: event, data: data})
}

func (r *Room) conns(except model.Slot) []model.ConnID {
	conns := make([]model.ConnID, 0, len(r.order))
	for _, slot := range r.order {
		if slot == except {
			continue
		}
		conns = append(conns, r.players[slot].ConnID)
	}
	return conns
}

// schedule 登记延迟任务，回调在房间关闭后不再执行
func (r *Room) schedule(name string, delay time.Duration, fn func()) {
	if r.scheduler == nil {
		return
	}
	err := r.scheduler.After(string(r.id), name, delay, func(ctx context.Context) {
		r.apply(func() {
			if r.closed {
				return
			}
			fn()
		})
	})
	if err != nil {
		r.logger.Warn("Failed to schedule room task", "task", name, "error", err)
	}
}

// Join 加入房间，分配新座位
func (r *Room) Join(conn model.ConnID, name string) (model.Player, error) {
	var (
		player model.Player
		err    error
	)
	r.apply(func() {
		player, err = r.join(conn, name)
	})
	return player, err
}

func (r *Room) join(conn model.ConnID, name string) (model.Player, error) {
	if r.closed {
		return model.Player{}, ErrRoomNotFound
	}
	if r.phase == model.PhaseFinished {
		return model.Player{}, ErrRoomFinished
	}
	if len(r.players) >= r.maxPlayers {
		return model.Player{}, ErrRoomFull
	}
	for _, slot := range r.order {
		if r.players[slot].ConnID == conn {
			return model.Player{}, ErrAlreadyInRoom
		}
	}

	r.nextSlot++
	slot := r.nextSlot
	if name == "" {
		name = fmt.Sprintf("Player %d", slot)
	}
	spawn := r.grid.SpawnPoint(slot)

	p := &model.Player{
		ID:           slot,
		ConnID:       conn,
		Name:         name,
		X:            spawn.X,
		Y:            spawn.Y,
		Health:       r.rules.MaxHealth,
		Alive:        true,
		BombCapacity: r.rules.DefaultBombs,
		Power:        r.rules.DefaultPower,
		PowerUps:     model.Tally{Speed: 1.0},
	}
	r.players[slot] = p
	r.order = append(r.order, slot)

	r.emitExcept(slot, proto.EventPlayerJoined, proto.PlayerJoined{
		Player:  *p,
		Players: r.playerList(),
	})

	if r.canStart() && !r.autoStartPending {
		r.autoStartPending = true
		r.schedule("autoStart", r.rules.AutoStartDelay, r.autoStart)
	}

	r.logger.Info("Player joined", "slot", slot, "connId", string(conn), "players", len(r.players))
	return *p, nil
}

// Leave 按座位移除玩家
func (r *Room) Leave(slot model.Slot) (model.Player, bool) {
	var (
		player model.Player
		ok     bool
	)
	r.apply(func() {
		player, ok = r.leave(slot)
	})
	return player, ok
}

// LeaveConn 按连接移除玩家，连接已被重绑时不做任何事
func (r *Room) LeaveConn(conn model.ConnID) (model.Player, bool) {
	var (
		player model.Player
		ok     bool
	)
	r.apply(func() {
		slot, found := r.slotOf(conn)
		if !found {
			return
		}
		player, ok = r.leave(slot)
	})
	return player, ok
}

func (r *Room) leave(slot model.Slot) (model.Player, bool) {
	p, ok := r.players[slot]
	if !ok {
		return model.Player{}, false
	}

	delete(r.players, slot)
	r.order = slices.DeleteFunc(r.order, func(s model.Slot) bool { return s == slot })

	r.emit(proto.EventPlayerLeft, proto.PlayerLeft{
		PlayerID: slot,
		Players:  r.playerList(),
	})
	r.logger.Info("Player left", "slot", slot, "connId", string(p.ConnID), "players", len(r.players))

	if r.phase == model.PhasePlaying {
		r.checkWin()
	}
	return *p, true
}

// Rebind 将座位绑定到新连接（断线重连），返回座位原来的连接
func (r *Room) Rebind(slot model.Slot, conn model.ConnID) (model.Player, model.ConnID, error) {
	var (
		player model.Player
		old    model.ConnID
		err    error
	)
	r.apply(func() {
		if r.closed {
			err = ErrRoomNotFound
			return
		}
		p, ok := r.players[slot]
		if !ok {
			err = ErrNotInRoom
			return
		}
		old = p.ConnID
		p.ConnID = conn
		player = *p
		r.logger.Info("Player rebound", "slot", slot, "oldConnId", string(old), "connId", string(conn))
	})
	return player, old, err
}

// SendSnapshot 向单个连接推送完整快照
func (r *Room) SendSnapshot(conn model.ConnID) {
	r.apply(func() {
		r.emitTo(conn, proto.EventGameStateUpdate, r.snapshot())
	})
}

// Move 移动玩家，坐标限制在场地边距内
func (r *Room) Move(slot model.Slot, x, y float64) bool {
	var ok bool
	r.apply(func() {
		ok = r.move(slot, x, y)
	})
	return ok
}

func (r *Room) move(slot model.Slot, x, y float64) bool {
	if r.closed || r.phase == model.PhaseFinished {
		return false
	}
	p, ok := r.players[slot]
	if !ok || !p.Alive {
		return false
	}

	p.X, p.Y = r.grid.Clamp(x, y)

	r.emitExcept(slot, proto.EventPlayerMoved, proto.PlayerMoved{PlayerID: slot, X: p.X, Y: p.Y})
	return true
}

// Snapshot 房间完整快照
func (r *Room) Snapshot() model.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshot()
}

func (r *Room) snapshot() model.Snapshot {
	return model.Snapshot{
		RoomID:     r.id,
		Phase:      r.phase,
		MaxPlayers: r.maxPlayers,
		Players:    r.playerList(),
		Bombs:      r.bombList(),
		PowerUps:   r.powerUpList(),
		Blocks:     r.blockList(),
		TimeLeft:   r.timeLeft,
	}
}

// Summary 房间列表项
func (r *Room) Summary() model.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	return model.RoomSummary{
		RoomID:     r.id,
		Phase:      r.phase,
		Players:    len(r.players),
		MaxPlayers: r.maxPlayers,
	}
}

// Phase 当前阶段
func (r *Room) Phase() model.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// PlayerCount 已占用座位数
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Player 查询座位上的玩家
func (r *Room) Player(slot model.Slot) (model.Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[slot]
	if !ok {
		return model.Player{}, false
	}
	return *p, true
}

// Destroyable 房间是否可以销毁
// 空房间且不在对局中；或已结束且没有在线连接，或结束已久
func (r *Room) Destroyable(now time.Time, connected int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.destroyable(now, connected)
}

// CloseIfDestroyable 判断和关闭在同一次加锁内完成
// 关闭之后 Join 和 Rebind 都会失败，不会有玩家进入正在销毁的房间
func (r *Room) CloseIfDestroyable(now time.Time, connected int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.destroyable(now, connected) {
		return false
	}
	r.closed = true
	return true
}

func (r *Room) destroyable(now time.Time, connected int) bool {
	if r.closed {
		return true
	}
	if len(r.players) == 0 && r.phase != model.PhasePlaying {
		return true
	}
	if r.phase == model.PhaseFinished {
		return connected == 0 || now.Sub(r.finishedAt) >= r.rules.StaleRecordAge
	}
	return false
}

// Close 标记房间已销毁，之后的延迟回调全部跳过
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// Closed 房间是否已销毁
func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Room) slotOf(conn model.ConnID) (model.Slot, bool) {
	for _, slot := range r.order {
		if r.players[slot].ConnID == conn {
			return slot, true
		}
	}
	return 0, false
}

func (r *Room) playerList() []model.Player {
	list := make([]model.Player, 0, len(r.order))
	for _, slot := range r.order {
		list = append(list, *r.players[slot])
	}
	return list
}

func (r *Room) bombList() []model.Bomb {
	list := make([]model.Bomb, 0, len(r.bombs))
	for _, b := range r.bombs {
		list = append(list, *b)
	}
	slices.SortFunc(list, func(a, b model.Bomb) int { return cmp.Compare(a.ID, b.ID) })
	return list
}

func (r *Room) powerUpList() []model.PowerUp {
	list := make([]model.PowerUp, 0, len(r.powerUps))
	for _, pu := range r.powerUps {
		list = append(list, *pu)
	}
	slices.SortFunc(list, func(a, b model.PowerUp) int { return cmp.Compare(a.ID, b.ID) })
	return list
}

func (r *Room) blockList() []model.Block {
	list := make([]model.Block, 0, len(r.blocks))
	for _, b := range r.blocks {
		list = append(list, b)
	}
	slices.SortFunc(list, func(a, b model.Block) int { return cmp.Compare(a.ID, b.ID) })
	return list
}
