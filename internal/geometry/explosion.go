package geometry

import "sudooom.arena/internal/model"

// directions 爆炸扩散方向：上、下、左、右
var directions = [4][2]float64{
	{0, -1},
	{0, 1},
	{-1, 0},
	{1, 0},
}

// Propagate 计算爆炸波及的格子
// 原点总是包含在内；每个方向最多扩散 power 格，
// 遇到方块时包含该格并停止，越出边距时不包含并停止
func Propagate(g Grid, origin model.Cell, power int, blocks map[model.Cell]struct{}) []model.Cell {
	cells := make([]model.Cell, 0, 1+4*max(power, 0))
	cells = append(cells, origin)

	for _, d := range directions {
		for step := 1; step <= power; step++ {
			c := model.Cell{
				X: origin.X + d[0]*g.Cell*float64(step),
				Y: origin.Y + d[1]*g.Cell*float64(step),
			}
			if !g.Inside(c) {
				break
			}
			cells = append(cells, c)
			if _, blocked := blocks[c]; blocked {
				break
			}
		}
	}
	return cells
}
