package model

import "time"

// Rules 对局规则参数
// 默认值与线上客户端保持一致，可通过规则文件覆盖
type Rules struct {
	ArenaWidth  float64 `yaml:"arena_width"`
	ArenaHeight float64 `yaml:"arena_height"`
	CellSize    float64 `yaml:"cell_size"`
	Margin      float64 `yaml:"margin"`

	DefaultMaxPlayers int `yaml:"default_max_players"`
	MinPlayers        int `yaml:"min_players"`

	AutoStartDelay time.Duration `yaml:"auto_start_delay"`
	RoundDuration  time.Duration `yaml:"round_duration"`
	RoundTick      time.Duration `yaml:"round_tick"`

	FuseTime    time.Duration `yaml:"fuse_time"`
	ChainDelay  time.Duration `yaml:"chain_delay"`
	BlastRadius float64       `yaml:"blast_radius"`
	BlastDamage int           `yaml:"blast_damage"`

	MaxHealth     int           `yaml:"max_health"`
	HealAmount    int           `yaml:"heal_amount"`
	DefaultPower  int           `yaml:"default_power"`
	DefaultBombs  int           `yaml:"default_bombs"`
	SpeedStep     float64       `yaml:"speed_step"`
	MaxSpeed      float64       `yaml:"max_speed"`
	BlockDensity  float64       `yaml:"block_density"`
	PowerUpChance float64       `yaml:"power_up_chance"`
	PowerUpMaxAge time.Duration `yaml:"power_up_max_age"`

	ReconnectGrace time.Duration `yaml:"reconnect_grace"`
	StaleRecordAge time.Duration `yaml:"stale_record_age"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

// DefaultRules 返回默认规则
func DefaultRules() Rules {
	return Rules{
		ArenaWidth:  1024,
		ArenaHeight: 768,
		CellSize:    64,
		Margin:      32,

		DefaultMaxPlayers: 4,
		MinPlayers:        2,

		AutoStartDelay: 2 * time.Second,
		RoundDuration:  120 * time.Second,
		RoundTick:      time.Second,

		FuseTime:    3000 * time.Millisecond,
		ChainDelay:  50 * time.Millisecond,
		BlastRadius: 40,
		BlastDamage: 25,

		MaxHealth:     100,
		HealAmount:    30,
		DefaultPower:  2,
		DefaultBombs:  1,
		SpeedStep:     0.3,
		MaxSpeed:      2.0,
		BlockDensity:  0.6,
		PowerUpChance: 0.3,
		PowerUpMaxAge: 15000 * time.Millisecond,

		ReconnectGrace: 30 * time.Second,
		StaleRecordAge: 120 * time.Second,
		SweepInterval:  30 * time.Second,
	}
}

// ClampMaxPlayers 将请求的人数上限限制在 [MinPlayers, DefaultMaxPlayers]
func (r Rules) ClampMaxPlayers(n int) int {
	if n <= 0 {
		return r.DefaultMaxPlayers
	}
	if n < r.MinPlayers {
		return r.MinPlayers
	}
	if n > r.DefaultMaxPlayers {
		return r.DefaultMaxPlayers
	}
	return n
}
