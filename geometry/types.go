package geometry

import (
	"encoding/json"
	"errors"
	"image"
	"math"
)

// ErrPointCount 点数不等于 4
var ErrPointCount = errors.New("需要恰好 4 个点")

// Point 浮点坐标
type Point struct {
	X, Y float64
}

// MarshalJSON 序列化为 [x, y]
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var v [2]float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	p.X, p.Y = v[0], v[1]
	return nil
}

// Quad 有序四边形 [左上, 右上, 右下, 左下]
type Quad [4]Point

// Box 轴对齐矩形
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// NewBox 由两个角点构造矩形
func NewBox(x1, y1, x2, y2 float64) Box {
	return Box{MinX: min(x1, x2), MinY: min(y1, y2), MaxX: max(x1, x2), MaxY: max(y1, y2)}
}

func (b Box) Width() float64  { return b.MaxX - b.MinX }
func (b Box) Height() float64 { return b.MaxY - b.MinY }

func (b Box) Area() float64 {
	if b.Width() <= 0 || b.Height() <= 0 {
		return 0
	}
	return b.Width() * b.Height()
}

// Translate 平移
func (b Box) Translate(dx, dy float64) Box {
	return Box{MinX: b.MinX + dx, MinY: b.MinY + dy, MaxX: b.MaxX + dx, MaxY: b.MaxY + dy}
}

// Corners 矩形四角，顺序与 Quad 一致
func (b Box) Corners() Quad {
	return Quad{
		{X: b.MinX, Y: b.MinY},
		{X: b.MaxX, Y: b.MinY},
		{X: b.MaxX, Y: b.MaxY},
		{X: b.MinX, Y: b.MaxY},
	}
}

// Rect 向外取整的像素矩形
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.MinX)), int(math.Floor(b.MinY)),
		int(math.Ceil(b.MaxX)), int(math.Ceil(b.MaxY)),
	)
}

// Points 四边形的点切片
func (q Quad) Points() []Point {
	return []Point{q[0], q[1], q[2], q[3]}
}

// Box 四边形的外接矩形
func (q Quad) Box() Box {
	return BoundingBox(q[:])
}

// Area 鞋带公式面积（绝对值）
func (q Quad) Area() float64 {
	var s float64
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		s += q[i].X*q[j].Y - q[j].X*q[i].Y
	}
	return math.Abs(s) / 2
}

// Valid 坐标有限且面积不小于 1 像素
func (q Quad) Valid() bool {
	for _, p := range q {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return false
		}
	}
	return q.Area() >= 1
}

// Translate 平移
func (q Quad) Translate(dx, dy float64) Quad {
	for i := range q {
		q[i].X += dx
		q[i].Y += dy
	}
	return q
}

// Scale 各坐标乘以 s
func (q Quad) Scale(s float64) Quad {
	for i := range q {
		q[i].X *= s
		q[i].Y *= s
	}
	return q
}

// ImagePoints 四舍五入为整数像素点
func (q Quad) ImagePoints() []image.Point {
	pts := make([]image.Point, 4)
	for i, p := range q {
		pts[i] = image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
	}
	return pts
}
