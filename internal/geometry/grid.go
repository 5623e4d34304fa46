package geometry

import (
	"math"

	"sudooom.arena/internal/model"
)

// Grid 场地网格描述
type Grid struct {
	Width  float64
	Height float64
	Cell   float64
	Margin float64
}

// FromRules 根据规则构建网格
func FromRules(r model.Rules) Grid {
	return Grid{
		Width:  r.ArenaWidth,
		Height: r.ArenaHeight,
		Cell:   r.CellSize,
		Margin: r.Margin,
	}
}

// Snap 将坐标对齐到最近的格子
func (g Grid) Snap(x, y float64) model.Cell {
	return model.Cell{
		X: math.Round(x/g.Cell) * g.Cell,
		Y: math.Round(y/g.Cell) * g.Cell,
	}
}

// SnapInside 对齐到边距内最近的格子，越界坐标落到最外一圈格子
func (g Grid) SnapInside(x, y float64) model.Cell {
	c := g.Snap(g.Clamp(x, y))
	return model.Cell{
		X: clamp(c.X, math.Ceil(g.Margin/g.Cell)*g.Cell, math.Floor((g.Width-g.Margin)/g.Cell)*g.Cell),
		Y: clamp(c.Y, math.Ceil(g.Margin/g.Cell)*g.Cell, math.Floor((g.Height-g.Margin)/g.Cell)*g.Cell),
	}
}

// Clamp 将坐标限制在场地边距内
func (g Grid) Clamp(x, y float64) (float64, float64) {
	return clamp(x, g.Margin, g.Width-g.Margin), clamp(y, g.Margin, g.Height-g.Margin)
}

// Inside 判断格子是否在场地边距内
func (g Grid) Inside(c model.Cell) bool {
	return c.X >= g.Margin && c.X <= g.Width-g.Margin &&
		c.Y >= g.Margin && c.Y <= g.Height-g.Margin
}

// SpawnPoint 返回座位对应的出生点
// 1: 左上, 2: 右上, 3: 左下, 4: 右下；超过 4 的座位循环使用
func (g Grid) SpawnPoint(slot model.Slot) model.Cell {
	corners := g.SpawnCorners()
	idx := (int(slot) - 1) % len(corners)
	if idx < 0 {
		idx = 0
	}
	return corners[idx]
}

// SpawnCorners 四个出生角落
func (g Grid) SpawnCorners() []model.Cell {
	return []model.Cell{
		{X: g.Cell, Y: g.Cell},
		{X: g.Width - g.Cell, Y: g.Cell},
		{X: g.Cell, Y: g.Height - g.Cell},
		{X: g.Width - g.Cell, Y: g.Height - g.Cell},
	}
}

// Landmarks 场地中央的不可破坏地标格子
func (g Grid) Landmarks() []model.Cell {
	cx := g.Snap(g.Width/2, g.Height/2)
	return []model.Cell{
		cx,
		{X: cx.X - g.Cell, Y: cx.Y},
		{X: cx.X + g.Cell, Y: cx.Y},
		{X: cx.X, Y: cx.Y - g.Cell},
		{X: cx.X, Y: cx.Y + g.Cell},
	}
}

// Within 判断两点距离是否小于半径
func Within(ax, ay, bx, by, radius float64) bool {
	return math.Hypot(ax-bx, ay-by) < radius
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
