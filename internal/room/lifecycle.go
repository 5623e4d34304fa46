package room

import (
	"sudooom.arena/internal/model"
	"sudooom.arena/internal/proto"
	"sudooom.arena/internal/reconnect"
)

// CanStart 等待中且至少两名玩家
func (r *Room) CanStart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canStart()
}

func (r *Room) canStart() bool {
	return r.phase == model.PhaseWaiting && len(r.players) >= r.rules.MinPlayers
}

// Start 开始对局
func (r *Room) Start() bool {
	var ok bool
	r.apply(func() {
		if r.closed {
			return
		}
		ok = r.start()
	})
	return ok
}

func (r *Room) autoStart() {
	r.autoStartPending = false
	r.start()
}

func (r *Room) start() bool {
	if !r.canStart() {
		return false
	}

	now := r.now()
	r.phase = model.PhasePlaying
	r.startedAt = now
	r.timeLeft = int(r.rules.RoundDuration.Seconds())

	if r.tracker != nil {
		for _, slot := range r.order {
			p := r.players[slot]
			r.tracker.Track(reconnect.Record{
				ConnID:    p.ConnID,
				RoomID:    r.id,
				Slot:      slot,
				Name:      p.Name,
				StartedAt: now,
			})
		}
	}

	r.emit(proto.EventGameStarted, proto.GameStarted{GameState: r.snapshot()})
	r.schedule("roundTick", r.rules.RoundTick, r.roundTick)

	r.logger.Info("Game started", "players", len(r.players))
	return true
}

// roundTick 倒计时，每秒推送一次快照
func (r *Room) roundTick() {
	if r.phase != model.PhasePlaying {
		return
	}

	r.timeLeft--
	if r.timeLeft <= 0 {
		r.timeLeft = 0
		r.finish(r.leader(), proto.ReasonTimeUp)
		return
	}

	r.emit(proto.EventGameStateUpdate, r.snapshot())
	r.schedule("roundTick", r.rules.RoundTick, r.roundTick)
}

// CheckWin 存活人数不超过 1 时结束对局
func (r *Room) CheckWin() bool {
	var finished bool
	r.apply(func() {
		if r.closed {
			return
		}
		finished = r.checkWin()
	})
	return finished
}

func (r *Room) checkWin() bool {
	if r.phase != model.PhasePlaying {
		return false
	}

	var (
		alive  int
		winner *model.Player
	)
	for _, slot := range r.order {
		if p := r.players[slot]; p.Alive {
			alive++
			winner = p
		}
	}
	if alive > 1 {
		return false
	}
	if alive == 0 {
		winner = nil
	}

	r.finish(winner, proto.ReasonElimination)
	return true
}

// leader 唯一生命值最高的存活玩家，并列时返回 nil
func (r *Room) leader() *model.Player {
	var (
		best *model.Player
		tie  bool
	)
	for _, slot := range r.order {
		p := r.players[slot]
		if !p.Alive {
			continue
		}
		switch {
		case best == nil || p.Health > best.Health:
			best, tie = p, false
		case p.Health == best.Health:
			tie = true
		}
	}
	if tie {
		return nil
	}
	return best
}

func (r *Room) finish(winner *model.Player, reason string) {
	now := r.now()
	r.phase = model.PhaseFinished
	r.finishedAt = now

	over := proto.GameOver{Reason: reason, Players: r.playerList()}
	result := &model.MatchResult{
		RoomID:     r.id,
		Reason:     reason,
		StartedAt:  r.startedAt.UnixMilli(),
		FinishedAt: now.UnixMilli(),
	}
	for _, slot := range r.order {
		result.Participants = append(result.Participants, r.players[slot].Name)
	}
	if winner != nil {
		w := *winner
		over.WinnerID = w.ID
		over.Winner = &w
		result.Winner = w.ID
		result.WinnerName = w.Name
	}

	r.emit(proto.EventGameOver, over)
	r.result = result

	r.logger.Info("Game over", "winner", result.Winner, "reason", reason)
}
