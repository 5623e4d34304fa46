package geometry

import (
	"math"
	"math/rand"

	"sudooom.arena/internal/model"
)

// LayoutBlocks 生成可破坏方块布局
// 形状固定：按格子扫描，排除出生角落附近一格和地标格子；
// 每个剩余格子以 density 的概率放置方块，随机源由调用方注入
func LayoutBlocks(g Grid, density float64, rng *rand.Rand) []model.Cell {
	excluded := make(map[model.Cell]struct{})
	for _, c := range g.Landmarks() {
		excluded[c] = struct{}{}
	}

	cells := make([]model.Cell, 0)
	for y := g.Cell; y <= g.Height-g.Cell; y += g.Cell {
		for x := g.Cell; x <= g.Width-g.Cell; x += g.Cell {
			c := model.Cell{X: x, Y: y}
			if _, ok := excluded[c]; ok {
				continue
			}
			if nearSpawn(g, c) {
				continue
			}
			if rng.Float64() < density {
				cells = append(cells, c)
			}
		}
	}
	return cells
}

// nearSpawn 格子是否落在出生角落一格范围内
func nearSpawn(g Grid, c model.Cell) bool {
	for _, s := range g.SpawnCorners() {
		if math.Abs(c.X-s.X) <= g.Cell && math.Abs(c.Y-s.Y) <= g.Cell {
			return true
		}
	}
	return false
}
