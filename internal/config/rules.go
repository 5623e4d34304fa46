package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sudooom.arena/internal/model"
)

// LoadRules 读取规则文件并覆盖默认规则，文件中未出现的字段保持默认值
func LoadRules(path string) (model.Rules, error) {
	rules := model.DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules 解析规则 YAML，未知字段视为错误
func ParseRules(data []byte) (model.Rules, error) {
	rules := model.DefaultRules()
	if len(bytes.TrimSpace(data)) == 0 {
		return rules, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil {
		return model.DefaultRules(), fmt.Errorf("decode rules: %w", err)
	}

	if err := validateRules(rules); err != nil {
		return model.DefaultRules(), err
	}
	return rules, nil
}

func validateRules(r model.Rules) error {
	switch {
	case r.CellSize <= 0:
		return fmt.Errorf("invalid rules: cell_size must be positive")
	case r.ArenaWidth < r.CellSize || r.ArenaHeight < r.CellSize:
		return fmt.Errorf("invalid rules: arena smaller than one cell")
	case r.MinPlayers < 1 || r.DefaultMaxPlayers < r.MinPlayers:
		return fmt.Errorf("invalid rules: player limits %d..%d", r.MinPlayers, r.DefaultMaxPlayers)
	case r.FuseTime <= 0 || r.RoundTick <= 0:
		return fmt.Errorf("invalid rules: fuse_time and round_tick must be positive")
	}
	return nil
}
