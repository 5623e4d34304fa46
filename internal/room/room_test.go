package room

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.arena/internal/model"
	"sudooom.arena/internal/proto"
)

func TestJoin_AssignsSlotsAndSpawns(t *testing.T) {
	h := newHarness(t)
	r := h.newRoom(4)

	want := []model.Cell{{X: 64, Y: 64}, {X: 960, Y: 64}, {X: 64, Y: 704}, {X: 960, Y: 704}}
	for i, conn := range []model.ConnID{"c1", "c2", "c3", "c4"} {
		p, err := r.Join(conn, "")
		require.NoError(t, err)
		assert.Equal(t, model.Slot(i+1), p.ID)
		assert.Equal(t, want[i], model.Cell{X: p.X, Y: p.Y})
		assert.Equal(t, 100, p.Health)
		assert.Equal(t, 1, p.BombCapacity)
		assert.Equal(t, 2, p.Power)
		assert.True(t, p.Alive)
	}

	_, err := r.Join("c5", "late")
	assert.ErrorIs(t, err, ErrRoomFull)

	// 座位号不复用
	_, ok := r.Leave(2)
	require.True(t, ok)
	p, err := r.Join("c5", "late")
	require.NoError(t, err)
	assert.Equal(t, model.Slot(5), p.ID)
	assert.Equal(t, model.Cell{X: 64, Y: 64}, model.Cell{X: p.X, Y: p.Y})
}

func TestJoin_DuplicateConnection(t *testing.T) {
	h := newHarness(t)
	r := h.newRoom(4)

	_, err := r.Join("c1", "alice")
	require.NoError(t, err)
	_, err = r.Join("c1", "alice")
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
}

func TestJoin_BroadcastsToOthers(t *testing.T) {
	h := newHarness(t)
	r := h.newRoom(4)

	_, err := r.Join("c1", "alice")
	require.NoError(t, err)
	assert.Empty(t, h.emitter.Events(proto.EventPlayerJoined))

	_, err = r.Join("c2", "bob")
	require.NoError(t, err)

	events := h.emitter.Events(proto.EventPlayerJoined)
	require.Len(t, events, 1)
	assert.Equal(t, []model.ConnID{"c1"}, events[0].conns)
	assert.Equal(t, "bob", events[0].data.(proto.PlayerJoined).Player.Name)
}

func TestNewRoom_ClampsMaxPlayers(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		requested int
		want      int
	}{
		{requested: 0, want: 4},
		{requested: 1, want: 2},
		{requested: 3, want: 3},
		{requested: 10, want: 4},
	}
	for _, tt := range tests {
		r := NewRoom("r", tt.requested, h.opts)
		assert.Equal(t, tt.want, r.Snapshot().MaxPlayers, "requested %d", tt.requested)
	}
}

func TestNewRoom_HasBlocks(t *testing.T) {
	h := newHarness(t)
	r := NewRoom("r", 4, h.opts)

	snap := r.Snapshot()
	assert.NotEmpty(t, snap.Blocks)
	assert.Equal(t, model.PhaseWaiting, snap.Phase)
	assert.Equal(t, 120, snap.TimeLeft)
}

func TestAutoStart(t *testing.T) {
	h := newHarness(t)
	r := h.newRoom(4)

	_, _ = r.Join("c1", "alice")
	assert.Equal(t, 0, h.scheduler.Pending("autoStart"))

	_, _ = r.Join("c2", "bob")
	assert.True(t, r.CanStart())
	assert.Equal(t, 1, h.scheduler.Pending("autoStart"))

	h.scheduler.Advance(1999 * time.Millisecond)
	assert.Equal(t, model.PhaseWaiting, r.Phase())

	h.scheduler.Advance(time.Millisecond)
	assert.Equal(t, model.PhasePlaying, r.Phase())
	assert.False(t, r.CanStart())

	started := h.emitter.Events(proto.EventGameStarted)
	require.Len(t, started, 1)
	assert.ElementsMatch(t, []model.ConnID{"c1", "c2"}, started[0].conns)

	// 开局时为每个在座玩家登记过渡记录
	assert.Equal(t, 2, h.tracker.Count())
	rec, ok := h.tracker.Get("c2")
	require.True(t, ok)
	assert.Equal(t, model.Slot(2), rec.Slot)
	assert.Equal(t, "bob", rec.Name)
}

func TestAutoStart_AbortsWhenPlayerLeaves(t *testing.T) {
	h := newHarness(t)
	r := h.newRoom(4)

	_, _ = r.Join("c1", "alice")
	_, _ = r.Join("c2", "bob")
	_, ok := r.LeaveConn("c2")
	require.True(t, ok)

	h.scheduler.Advance(2 * time.Second)
	assert.Equal(t, model.PhaseWaiting, r.Phase())
	assert.Empty(t, h.emitter.Events(proto.EventGameStarted))

	// 新玩家加入后重新计时
	_, _ = r.Join("c3", "carol")
	h.scheduler.Advance(2 * time.Second)
	assert.Equal(t, model.PhasePlaying, r.Phase())
}

func TestJoin_FinishedRoomRejected(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)

	_, ok := r.Leave(2)
	require.True(t, ok)
	require.Equal(t, model.PhaseFinished, r.Phase())

	_, err := r.Join("c3", "carol")
	assert.ErrorIs(t, err, ErrRoomFinished)
}

func TestMove_Clamps(t *testing.T) {
	h := newHarness(t)
	r := h.newRoom(4)
	_, _ = r.Join("c1", "alice")
	_, _ = r.Join("c2", "bob")

	require.True(t, r.Move(1, -100, 5000))
	p, _ := r.Player(1)
	assert.Equal(t, 32.0, p.X)
	assert.Equal(t, 736.0, p.Y)

	require.True(t, r.Move(1, 300.5, 200.25))
	p, _ = r.Player(1)
	assert.Equal(t, 300.5, p.X)
	assert.Equal(t, 200.25, p.Y)

	moved := h.emitter.Events(proto.EventPlayerMoved)
	require.NotEmpty(t, moved)
	assert.Equal(t, []model.ConnID{"c2"}, moved[0].conns)
}

func TestMove_Rejected(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)

	assert.False(t, r.Move(9, 100, 100), "absent slot")

	r.players[2].Alive = false
	assert.False(t, r.Move(2, 100, 100), "dead player")
	assert.Empty(t, h.emitter.Events(proto.EventPlayerMoved))
}

func TestPlaceBomb_RequiresPlaying(t *testing.T) {
	h := newHarness(t)
	r := h.newRoom(4)
	_, _ = r.Join("c1", "alice")

	_, ok := r.PlaceBomb(1, 64, 64)
	assert.False(t, ok)
}

func TestPlaceBomb_ExplodesAtSnappedCell(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)

	for _, pos := range [][2]float64{{70, 60}, {300, 290}, {500, 420}} {
		r.players[1].X, r.players[1].Y = pos[0], pos[1]

		bomb, ok := r.PlaceBomb(1, pos[0], pos[1])
		require.True(t, ok)
		want := r.grid.Snap(pos[0], pos[1])
		assert.Equal(t, want, bomb.Cell())
		assert.Equal(t, int64(3000), bomb.FuseMs)

		h.emitter.Reset()
		h.scheduler.Advance(3 * time.Second)

		exploded := h.emitter.Events(proto.EventBombExploded)
		require.Len(t, exploded, 1)
		data := exploded[0].data.(proto.BombExploded)
		assert.Equal(t, bomb.ID, data.BombID)
		assert.Equal(t, want, data.Cells[0])

		// 恢复生命值避免淘汰
		r.players[1].Health = 100
	}
}

func TestPlaceBomb_StaysInsideArena(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)

	tests := []struct {
		name string
		x, y float64
	}{
		{name: "edge rounds outward", x: 992, y: 736},
		{name: "far outside", x: 5000, y: 5000},
		{name: "negative", x: -9000, y: 123456},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.emitter.Reset()
			r.players[1].Health = 100

			bomb, ok := r.PlaceBomb(1, tt.x, tt.y)
			require.True(t, ok)
			assert.True(t, r.grid.Inside(bomb.Cell()), "bomb at %v", bomb.Cell())

			h.scheduler.Advance(3 * time.Second)
			exploded := h.emitter.Events(proto.EventBombExploded)
			require.Len(t, exploded, 1)
			for _, c := range exploded[0].data.(proto.BombExploded).Cells {
				assert.True(t, r.grid.Inside(c), "explosion cell %v", c)
			}
		})
	}
}

func TestPlaceBomb_CapacityExceeded(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)

	_, ok := r.PlaceBomb(1, 64, 64)
	require.True(t, ok)

	_, ok = r.PlaceBomb(1, 256, 256)
	assert.False(t, ok)

	p, _ := r.Player(1)
	assert.Equal(t, 1, p.BombsLive)
	assert.LessOrEqual(t, p.BombsLive, p.BombCapacity)
	assert.Len(t, h.emitter.Events(proto.EventBombPlaced), 1)
}

func TestPlaceBomb_OccupiedCell(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)
	r.players[1].BombCapacity = 2

	_, ok := r.PlaceBomb(1, 256, 256)
	require.True(t, ok)

	_, ok = r.PlaceBomb(1, 262, 250)
	assert.False(t, ok, "same cell after snapping")

	_, ok = r.PlaceBomb(1, 320, 256)
	assert.True(t, ok, "neighbour cell")
}

func TestPlaceBomb_DeadPlayer(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)
	r.players[1].Alive = false

	_, ok := r.PlaceBomb(1, 64, 64)
	assert.False(t, ok)
}

func TestBombPowerFixedAtPlacement(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)
	r.players[1].X, r.players[1].Y = 512, 384

	bomb, ok := r.PlaceBomb(1, 512, 384)
	require.True(t, ok)
	assert.Equal(t, 2, bomb.Power)

	r.powerUps[99] = &model.PowerUp{ID: 99, Type: model.PowerUpPower, X: 512, Y: 384}
	require.True(t, r.CollectPowerUp(1, 99))
	p, _ := r.Player(1)
	assert.Equal(t, 3, p.Power)

	require.True(t, r.Detonate(bomb.ID))
	data := h.emitter.Events(proto.EventBombExploded)[0].data.(proto.BombExploded)
	assert.Len(t, data.Cells, 1+4*2)
}

func TestDetonate_OriginDamage(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)

	bomb, ok := r.PlaceBomb(1, 64, 64)
	require.True(t, ok)
	require.True(t, r.Detonate(bomb.ID))

	p, _ := r.Player(1)
	assert.Equal(t, 75, p.Health)
	assert.True(t, p.Alive)
	assert.Equal(t, 0, p.BombsLive)

	other, _ := r.Player(2)
	assert.Equal(t, 100, other.Health)
	assert.Equal(t, model.PhasePlaying, r.Phase())
}

func TestDetonate_Idempotent(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)

	bomb, ok := r.PlaceBomb(1, 64, 64)
	require.True(t, ok)

	assert.True(t, r.Detonate(bomb.ID))
	assert.False(t, r.Detonate(bomb.ID))
	assert.False(t, r.Detonate(12345))

	// 引信到期也不会再次爆炸
	h.scheduler.Advance(3 * time.Second)
	assert.Len(t, h.emitter.Events(proto.EventBombExploded), 1)

	p, _ := r.Player(1)
	assert.Equal(t, 0, p.BombsLive)
	assert.Equal(t, 75, p.Health)
}

func TestDetonate_KillsAtZeroHealth(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)
	r.players[1].Health = 25

	bomb, _ := r.PlaceBomb(1, 64, 64)
	require.True(t, r.Detonate(bomb.ID))

	p, _ := r.Player(1)
	assert.False(t, p.Alive)
	assert.Equal(t, 0, p.Health)

	// 只剩一人存活，对局结束
	assert.Equal(t, model.PhaseFinished, r.Phase())
	over := h.emitter.Events(proto.EventGameOver)
	require.Len(t, over, 1)
	assert.Equal(t, model.Slot(2), over[0].data.(proto.GameOver).WinnerID)
}

func TestDetonate_ChainReaction(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)

	r.players[1].X, r.players[1].Y = 256, 256
	r.players[2].X, r.players[2].Y = 320, 256

	first, ok := r.PlaceBomb(1, 256, 256)
	require.True(t, ok)
	second, ok := r.PlaceBomb(2, 320, 256)
	require.True(t, ok)

	require.True(t, r.Detonate(first.ID))
	assert.Equal(t, 1, h.scheduler.Pending("chain"))

	// 连锁爆炸延迟 50ms
	h.scheduler.Advance(49 * time.Millisecond)
	assert.Len(t, h.emitter.Events(proto.EventBombExploded), 1)

	h.scheduler.Advance(time.Millisecond)
	exploded := h.emitter.Events(proto.EventBombExploded)
	require.Len(t, exploded, 2)
	assert.Equal(t, second.ID, exploded[1].data.(proto.BombExploded).BombID)

	// 引信到期后不会再次爆炸，待执行任务最终清空
	h.scheduler.Advance(3 * time.Second)
	assert.Len(t, h.emitter.Events(proto.EventBombExploded), 2)
	assert.Equal(t, 0, h.scheduler.Pending("chain"))
	assert.Equal(t, 0, h.scheduler.Pending("fuse"))

	p1, _ := r.Player(1)
	p2, _ := r.Player(2)
	assert.Equal(t, 50, p1.Health)
	assert.Equal(t, 50, p2.Health)
}

func TestDetonate_ChainTerminates(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)

	// 一排相邻炸弹，任意一颗引爆都会连锁
	for i := 0; i < 8; i++ {
		id := model.BombID(r.bombSeq.Next())
		r.bombs[id] = &model.Bomb{ID: id, X: 192 + float64(i)*64, Y: 448, Owner: 1, Power: 1}
	}
	r.players[1].X, r.players[1].Y = 64, 64
	r.players[2].X, r.players[2].Y = 960, 704

	require.True(t, r.Detonate(1))
	for step := 0; step < 20 && len(r.bombs) > 0; step++ {
		before := len(r.bombs)
		h.scheduler.Advance(50 * time.Millisecond)
		assert.Less(t, len(r.bombs), before)
	}

	assert.Empty(t, r.bombs)
	assert.Len(t, h.emitter.Events(proto.EventBombExploded), 8)
	assert.Equal(t, 0, h.scheduler.Pending("chain"))
}

func TestDetonate_DestroysBlocksAndDropsPowerUps(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)
	r.rules.PowerUpChance = 1

	r.blocks[model.Cell{X: 128, Y: 64}] = model.Block{ID: 1, X: 128, Y: 64}
	r.blocks[model.Cell{X: 192, Y: 64}] = model.Block{ID: 2, X: 192, Y: 64}
	r.blocks[model.Cell{X: 512, Y: 512}] = model.Block{ID: 3, X: 512, Y: 512}

	bomb, _ := r.PlaceBomb(1, 64, 64)
	require.True(t, r.Detonate(bomb.ID))

	data := h.emitter.Events(proto.EventBombExploded)[0].data.(proto.BombExploded)

	// 第一块方块挡住爆炸，后面的方块不受影响
	require.Len(t, data.DestroyedBlocks, 1)
	assert.Equal(t, model.BlockID(1), data.DestroyedBlocks[0].ID)
	assert.NotContains(t, data.Cells, model.Cell{X: 192, Y: 64})
	assert.Len(t, r.blocks, 2)

	require.Len(t, data.PowerUps, 1)
	assert.Equal(t, 128.0, data.PowerUps[0].X)
	assert.Equal(t, 64.0, data.PowerUps[0].Y)
	assert.Contains(t, model.PowerUpTypes, data.PowerUps[0].Type)
	assert.Len(t, data.Players, 2)
}

func TestCollectPowerUp(t *testing.T) {
	tests := []struct {
		name   string
		kind   model.PowerUpType
		before func(p *model.Player)
		check  func(t *testing.T, p model.Player)
	}{
		{
			name: "speed",
			kind: model.PowerUpSpeed,
			check: func(t *testing.T, p model.Player) {
				assert.InDelta(t, 1.3, p.PowerUps.Speed, 1e-9)
			},
		},
		{
			name:   "speed capped",
			kind:   model.PowerUpSpeed,
			before: func(p *model.Player) { p.PowerUps.Speed = 1.9 },
			check: func(t *testing.T, p model.Player) {
				assert.Equal(t, 2.0, p.PowerUps.Speed)
			},
		},
		{
			name: "bombs",
			kind: model.PowerUpBombs,
			check: func(t *testing.T, p model.Player) {
				assert.Equal(t, 2, p.BombCapacity)
				assert.Equal(t, 1, p.PowerUps.Bombs)
			},
		},
		{
			name: "power",
			kind: model.PowerUpPower,
			check: func(t *testing.T, p model.Player) {
				assert.Equal(t, 3, p.Power)
				assert.Equal(t, 1, p.PowerUps.Power)
			},
		},
		{
			name:   "health",
			kind:   model.PowerUpHealth,
			before: func(p *model.Player) { p.Health = 50 },
			check: func(t *testing.T, p model.Player) {
				assert.Equal(t, 80, p.Health)
			},
		},
		{
			name:   "health capped",
			kind:   model.PowerUpHealth,
			before: func(p *model.Player) { p.Health = 90 },
			check: func(t *testing.T, p model.Player) {
				assert.Equal(t, 100, p.Health)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			r := h.playingRoom(t)
			if tt.before != nil {
				tt.before(r.players[1])
			}
			r.powerUps[7] = &model.PowerUp{ID: 7, Type: tt.kind, X: 128, Y: 64}

			require.True(t, r.CollectPowerUp(1, 7))
			p, _ := r.Player(1)
			tt.check(t, p)

			assert.Empty(t, r.Snapshot().PowerUps)
			events := h.emitter.Events(proto.EventPowerUpCollected)
			require.Len(t, events, 1)
			assert.Equal(t, tt.kind, events[0].data.(proto.PowerUpCollected).Type)
		})
	}
}

func TestCollectPowerUp_Rejected(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)
	r.powerUps[7] = &model.PowerUp{ID: 7, Type: model.PowerUpBombs}

	assert.False(t, r.CollectPowerUp(1, 8), "unknown power-up")
	assert.False(t, r.CollectPowerUp(9, 7), "absent player")

	r.players[1].Alive = false
	assert.False(t, r.CollectPowerUp(1, 7), "dead player")

	assert.Len(t, r.powerUps, 1)
	assert.Empty(t, h.emitter.Events(proto.EventPowerUpCollected))
}

func TestCheckWin(t *testing.T) {
	tests := []struct {
		name      string
		alive     []bool
		finished  bool
		winnerID  model.Slot
		hasWinner bool
	}{
		{name: "single survivor", alive: []bool{true, false, false}, finished: true, winnerID: 1, hasWinner: true},
		{name: "draw", alive: []bool{false, false, false}, finished: true},
		{name: "two alive", alive: []bool{true, true, false}, finished: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			r := h.newRoom(4)
			for _, conn := range []model.ConnID{"c1", "c2", "c3"} {
				_, err := r.Join(conn, string(conn))
				require.NoError(t, err)
			}
			require.True(t, r.Start())
			for i, alive := range tt.alive {
				r.players[model.Slot(i+1)].Alive = alive
			}

			assert.Equal(t, tt.finished, r.CheckWin())
			if !tt.finished {
				assert.Equal(t, model.PhasePlaying, r.Phase())
				return
			}

			assert.Equal(t, model.PhaseFinished, r.Phase())
			over := h.emitter.Events(proto.EventGameOver)
			require.Len(t, over, 1)
			data := over[0].data.(proto.GameOver)
			assert.Equal(t, proto.ReasonElimination, data.Reason)
			if tt.hasWinner {
				require.NotNil(t, data.Winner)
				assert.Equal(t, tt.winnerID, data.WinnerID)
			} else {
				assert.Nil(t, data.Winner)
			}

			assert.Eventually(t, func() bool { return h.results.Count() == 1 }, time.Second, 5*time.Millisecond)
		})
	}
}

func TestFinishedRoomIgnoresIntents(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)
	bomb, _ := r.PlaceBomb(1, 64, 64)

	r.players[2].Alive = false
	require.True(t, r.CheckWin())

	assert.False(t, r.Move(1, 100, 100))
	assert.False(t, r.Detonate(bomb.ID))
	_, ok := r.PlaceBomb(1, 256, 256)
	assert.False(t, ok)
	assert.False(t, r.Start())
}

func TestRoundClock(t *testing.T) {
	h := newHarness(t)
	h.opts.Rules.RoundDuration = 3 * time.Second
	r := h.playingRoom(t)
	r.players[2].Health = 50

	h.scheduler.Advance(2 * time.Second)
	assert.Equal(t, 1, r.Snapshot().TimeLeft)
	assert.Len(t, h.emitter.Events(proto.EventGameStateUpdate), 2)

	h.scheduler.Advance(time.Second)
	assert.Equal(t, model.PhaseFinished, r.Phase())

	over := h.emitter.Events(proto.EventGameOver)
	require.Len(t, over, 1)
	data := over[0].data.(proto.GameOver)
	assert.Equal(t, proto.ReasonTimeUp, data.Reason)
	assert.Equal(t, model.Slot(1), data.WinnerID)

	// 对局结束后不再计时
	h.scheduler.Advance(5 * time.Second)
	assert.Equal(t, 0, h.scheduler.Pending("roundTick"))
}

func TestRoundClock_TieIsDraw(t *testing.T) {
	h := newHarness(t)
	h.opts.Rules.RoundDuration = time.Second
	h.playingRoom(t)

	h.scheduler.Advance(time.Second)

	over := h.emitter.Events(proto.EventGameOver)
	require.Len(t, over, 1)
	assert.Nil(t, over[0].data.(proto.GameOver).Winner)
}

func TestLeaveWhilePlaying_EndsGame(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)

	p, ok := r.LeaveConn("c2")
	require.True(t, ok)
	assert.Equal(t, model.Slot(2), p.ID)

	left := h.emitter.Events(proto.EventPlayerLeft)
	require.Len(t, left, 1)
	assert.Equal(t, []model.ConnID{"c1"}, left[0].conns)

	assert.Equal(t, model.PhaseFinished, r.Phase())
	assert.Equal(t, model.Slot(1), h.emitter.Events(proto.EventGameOver)[0].data.(proto.GameOver).WinnerID)

	_, ok = r.LeaveConn("c2")
	assert.False(t, ok)
}

func TestRebind(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)

	p, old, err := r.Rebind(1, "c9")
	require.NoError(t, err)
	assert.Equal(t, model.ConnID("c9"), p.ConnID)
	assert.Equal(t, model.ConnID("c1"), old)

	// 旧连接不再对应任何座位
	_, ok := r.LeaveConn("c1")
	assert.False(t, ok)

	_, _, err = r.Rebind(7, "c10")
	assert.ErrorIs(t, err, ErrNotInRoom)
}

func TestExpirePowerUps(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)
	now := h.clock.Now()

	r.powerUps[1] = &model.PowerUp{ID: 1, SpawnedAt: now.Add(-16 * time.Second).UnixMilli()}
	r.powerUps[2] = &model.PowerUp{ID: 2, SpawnedAt: now.Add(-5 * time.Second).UnixMilli()}

	assert.Equal(t, 1, r.ExpirePowerUps(now))
	_, ok := r.powerUps[2]
	assert.True(t, ok)
}

func TestClosedRoomIgnoresDeferredWork(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)

	_, ok := r.PlaceBomb(1, 64, 64)
	require.True(t, ok)

	r.Close()
	h.scheduler.Advance(5 * time.Second)

	assert.Empty(t, h.emitter.Events(proto.EventBombExploded))
	assert.Empty(t, h.emitter.Events(proto.EventGameStateUpdate))
	assert.True(t, r.Closed())

	_, err := r.Join("c3", "carol")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestPanicEmitsNothing(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)

	assert.Panics(t, func() {
		r.apply(func() {
			r.emit(proto.EventGameStateUpdate, r.snapshot())
			panic("boom")
		})
	})
	assert.Empty(t, h.emitter.Events(proto.EventGameStateUpdate))

	// 锁已释放，房间仍可用
	assert.True(t, r.Move(1, 100, 100))
}

func TestDestroyable(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()

	empty := h.newRoom(4)
	assert.True(t, empty.Destroyable(now, 0))

	waiting := h.newRoom(4)
	_, _ = waiting.Join("c1", "alice")
	assert.False(t, waiting.Destroyable(now, 1))

	playing := h.playingRoom(t)
	assert.False(t, playing.Destroyable(now, 0), "slots held during play")

	playing.players[2].Alive = false
	playing.CheckWin()
	assert.False(t, playing.Destroyable(now, 1))
	assert.True(t, playing.Destroyable(now, 0))
	assert.True(t, playing.Destroyable(now.Add(3*time.Minute), 1))
}

func TestCloseIfDestroyable(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()

	waiting := h.newRoom(4)
	_, err := waiting.Join("c1", "alice")
	require.NoError(t, err)
	assert.False(t, waiting.CloseIfDestroyable(now, 1))
	assert.False(t, waiting.Closed())

	_, ok := waiting.LeaveConn("c1")
	require.True(t, ok)
	assert.True(t, waiting.CloseIfDestroyable(now, 0))
	assert.True(t, waiting.Closed())

	// 关闭后既不能加入也不能重绑
	_, err = waiting.Join("c2", "bob")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, _, err = waiting.Rebind(1, "c3")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestConcurrentMovesEmitInStateOrder(t *testing.T) {
	h := newHarness(t)
	r := h.playingRoom(t)

	const (
		workers = 8
		moves   = 50
	)
	for round := 0; round < 10; round++ {
		h.emitter.Reset()

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < moves; i++ {
					r.Move(1, float64(100+w*moves+i), 100)
				}
			}(w)
		}
		wg.Wait()

		// 最后一条广播必须是最终状态
		moved := h.emitter.Events(proto.EventPlayerMoved)
		require.Len(t, moved, workers*moves)
		p, _ := r.Player(1)
		assert.Equal(t, p.X, moved[len(moved)-1].data.(proto.PlayerMoved).X, "round %d", round)
	}
}
