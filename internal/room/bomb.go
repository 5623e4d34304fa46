package room

import (
	"cmp"
	"slices"

	"sudooom.arena/internal/geometry"
	"sudooom.arena/internal/model"
	"sudooom.arena/internal/proto"
)

// PlaceBomb 放置炸弹，坐标对齐到格子
// 已有炸弹的格子（半格距离内）或炸弹数已满时拒绝
func (r *Room) PlaceBomb(slot model.Slot, x, y float64) (model.Bomb, bool) {
	var (
		bomb model.Bomb
		ok   bool
	)
	r.apply(func() {
		bomb, ok = r.placeBomb(slot, x, y)
	})
	return bomb, ok
}

func (r *Room) placeBomb(slot model.Slot, x, y float64) (model.Bomb, bool) {
	if r.closed || r.phase != model.PhasePlaying {
		return model.Bomb{}, false
	}
	p, ok := r.players[slot]
	if !ok || !p.Alive || p.BombsLive >= p.BombCapacity {
		return model.Bomb{}, false
	}

	cell := r.grid.SnapInside(x, y)
	for _, b := range r.bombs {
		if geometry.Within(b.X, b.Y, cell.X, cell.Y, r.grid.Cell/2) {
			return model.Bomb{}, false
		}
	}

	b := &model.Bomb{
		ID:       model.BombID(r.bombSeq.Next()),
		X:        cell.X,
		Y:        cell.Y,
		Owner:    slot,
		Power:    p.Power,
		FuseMs:   r.rules.FuseTime.Milliseconds(),
		PlacedAt: r.now().UnixMilli(),
	}
	r.bombs[b.ID] = b
	p.BombsLive++

	id := b.ID
	r.schedule("fuse", r.rules.FuseTime, func() { r.detonate(id) })

	r.emit(proto.EventBombPlaced, proto.BombPlaced{Bomb: *b})
	return *b, true
}

// Detonate 引爆炸弹；炸弹已不存在时什么也不做
func (r *Room) Detonate(id model.BombID) bool {
	var ok bool
	r.apply(func() {
		if r.closed {
			return
		}
		ok = r.detonate(id)
	})
	return ok
}

func (r *Room) detonate(id model.BombID) bool {
	if r.phase != model.PhasePlaying {
		return false
	}
	bomb, ok := r.bombs[id]
	if !ok {
		return false
	}

	delete(r.bombs, id)
	if owner, ok := r.players[bomb.Owner]; ok && owner.BombsLive > 0 {
		owner.BombsLive--
	}

	blockSet := make(map[model.Cell]struct{}, len(r.blocks))
	for c := range r.blocks {
		blockSet[c] = struct{}{}
	}
	cells := geometry.Propagate(r.grid, bomb.Cell(), bomb.Power, blockSet)

	r.damagePlayers(cells)
	r.chainBombs(cells)
	destroyed := r.destroyBlocks(cells)

	r.emit(proto.EventBombExploded, proto.BombExploded{
		BombID:          id,
		Cells:           cells,
		DestroyedBlocks: destroyed,
		Players:         r.playerList(),
		PowerUps:        r.powerUpList(),
	})

	r.checkWin()
	return true
}

// damagePlayers 每名存活玩家在一次爆炸中最多受伤一次
func (r *Room) damagePlayers(cells []model.Cell) {
	for _, slot := range r.order {
		p := r.players[slot]
		if !p.Alive {
			continue
		}
		if !r.touches(cells, p.X, p.Y) {
			continue
		}

		p.Health -= r.rules.BlastDamage
		if p.Health <= 0 {
			p.Health = 0
			p.Alive = false
			r.logger.Info("Player eliminated", "slot", slot)
		}
	}
}

// chainBombs 波及到的炸弹延迟引爆
func (r *Room) chainBombs(cells []model.Cell) {
	for _, b := range r.bombList() {
		if !r.touches(cells, b.X, b.Y) {
			continue
		}
		id := b.ID
		r.schedule("chain", r.rules.ChainDelay, func() { r.detonate(id) })
	}
}

// destroyBlocks 移除波及到的方块，按概率掉落道具
func (r *Room) destroyBlocks(cells []model.Cell) []model.Block {
	var hit []model.Block
	for _, b := range r.blocks {
		if r.touches(cells, b.X, b.Y) {
			hit = append(hit, b)
		}
	}
	slices.SortFunc(hit, func(a, b model.Block) int { return cmp.Compare(a.ID, b.ID) })

	destroyed := make([]model.Block, 0, len(hit))
	for _, b := range hit {
		delete(r.blocks, model.Cell{X: b.X, Y: b.Y})
		destroyed = append(destroyed, b)

		if r.rng.Float64() < r.rules.PowerUpChance {
			r.spawnPowerUp(b.X, b.Y)
		}
	}
	return destroyed
}

func (r *Room) touches(cells []model.Cell, x, y float64) bool {
	for _, c := range cells {
		if geometry.Within(c.X, c.Y, x, y, r.rules.BlastRadius) {
			return true
		}
	}
	return false
}
