package room

import (
	"time"

	"sudooom.arena/internal/model"
	"sudooom.arena/internal/proto"
)

func (r *Room) spawnPowerUp(x, y float64) {
	pu := &model.PowerUp{
		ID:        model.PowerUpID(r.powerUpSeq.Next()),
		Type:      model.PowerUpTypes[r.rng.Intn(len(model.PowerUpTypes))],
		X:         x,
		Y:         y,
		SpawnedAt: r.now().UnixMilli(),
	}
	r.powerUps[pu.ID] = pu
}

// CollectPowerUp 拾取道具
func (r *Room) CollectPowerUp(slot model.Slot, id model.PowerUpID) bool {
	var ok bool
	r.apply(func() {
		ok = r.collectPowerUp(slot, id)
	})
	return ok
}

func (r *Room) collectPowerUp(slot model.Slot, id model.PowerUpID) bool {
	if r.closed || r.phase != model.PhasePlaying {
		return false
	}
	pu, ok := r.powerUps[id]
	if !ok {
		return false
	}
	p, ok := r.players[slot]
	if !ok || !p.Alive {
		return false
	}

	switch pu.Type {
	case model.PowerUpSpeed:
		p.PowerUps.Speed = min(p.PowerUps.Speed+r.rules.SpeedStep, r.rules.MaxSpeed)
	case model.PowerUpBombs:
		p.BombCapacity++
		p.PowerUps.Bombs++
	case model.PowerUpPower:
		p.Power++
		p.PowerUps.Power++
	case model.PowerUpHealth:
		p.Health = min(p.Health+r.rules.HealAmount, r.rules.MaxHealth)
	}
	delete(r.powerUps, id)

	r.emit(proto.EventPowerUpCollected, proto.PowerUpCollected{
		PlayerID:  slot,
		PowerUpID: id,
		Type:      pu.Type,
		Player:    *p,
	})
	return true
}

// ExpirePowerUps 清理超过存活时间的道具，返回清理数量
func (r *Room) ExpirePowerUps(now time.Time) int {
	n := 0
	r.apply(func() {
		cutoff := now.Add(-r.rules.PowerUpMaxAge).UnixMilli()
		for id, pu := range r.powerUps {
			if pu.SpawnedAt < cutoff {
				delete(r.powerUps, id)
				n++
			}
		}
	})
	return n
}
