package geometry

const (
	DefaultAspectMin = 1.0
	DefaultAspectMax = 2.5
)

// BoundingBox 点集的外接矩形，空点集返回零值
func BoundingBox(pts []Point) Box {
	if len(pts) == 0 {
		return Box{}
	}
	b := Box{MinX: pts[0].X, MinY: pts[0].Y, MaxX: pts[0].X, MaxY: pts[0].Y}
	for _, p := range pts[1:] {
		b.MinX = min(b.MinX, p.X)
		b.MinY = min(b.MinY, p.Y)
		b.MaxX = max(b.MaxX, p.X)
		b.MaxY = max(b.MaxY, p.Y)
	}
	return b
}

// IoU 两个轴对齐矩形的交并比，并集为 0 时返回 0
func IoU(a, b Box) float64 {
	ix1 := max(a.MinX, b.MinX)
	iy1 := max(a.MinY, b.MinY)
	ix2 := min(a.MaxX, b.MaxX)
	iy2 := min(a.MaxY, b.MaxY)

	iw := max(0, ix2-ix1)
	ih := max(0, iy2-iy1)
	inter := iw * ih

	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// OrderPoints 将 4 个点排序为 [左上, 右上, 右下, 左下]
//
// 左上 = x+y 最小，右下 = x+y 最大，右上 = y-x 最小，左下 = y-x 最大，
// 相同取值时取先出现的点。
func OrderPoints(pts []Point) (Quad, error) {
	if len(pts) != 4 {
		return Quad{}, ErrPointCount
	}
	return extremal(pts), nil
}

// extremal 按和/差启发式从任意非空点集中挑选四个角点
func extremal(pts []Point) Quad {
	tl, br, tr, bl := 0, 0, 0, 0
	for i, p := range pts {
		s := p.X + p.Y
		d := p.Y - p.X
		if s < pts[tl].X+pts[tl].Y {
			tl = i
		}
		if s > pts[br].X+pts[br].Y {
			br = i
		}
		if d < pts[tr].Y-pts[tr].X {
			tr = i
		}
		if d > pts[bl].Y-pts[bl].X {
			bl = i
		}
	}
	return Quad{pts[tl], pts[tr], pts[br], pts[bl]}
}

// AspectRatioOK 外接矩形长短边之比是否落在 [minRatio, maxRatio] 内（闭区间）
func AspectRatioOK(poly []Point, minRatio, maxRatio float64) bool {
	b := BoundingBox(poly)
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return false
	}
	ratio := max(w, h) / min(w, h)
	return ratio >= minRatio && ratio <= maxRatio
}

// ExpandQuad 以质心为中心向外扩张 padding 比例
func ExpandQuad(q Quad, padding float64) Quad {
	if padding == 0 {
		return q
	}
	var cx, cy float64
	for _, p := range q {
		cx += p.X
		cy += p.Y
	}
	cx /= 4
	cy /= 4
	for i, p := range q {
		q[i] = Point{
			X: cx + (p.X-cx)*(1+padding),
			Y: cy + (p.Y-cy)*(1+padding),
		}
	}
	return q
}
