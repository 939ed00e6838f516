package geometry

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// PolygonToQuad 将多边形化简为有序四边形
//
// 先求凸包，再以周长 2% 为容差做多边形逼近；逼近结果恰为 4 点时直接排序返回，
// 否则从凸包中按和/差启发式挑选 4 个极值点。退化输入返回退化四边形而不报错。
func PolygonToQuad(poly []Point) Quad {
	if len(poly) == 0 {
		return Quad{}
	}

	hull := convexHull(poly)
	if len(hull) == 0 {
		return extremal(poly)
	}

	if len(hull) >= 4 {
		pv := gocv.NewPointVectorFromPoints(hull)
		defer pv.Close()

		epsilon := 0.02 * gocv.ArcLength(pv, true)
		approx := gocv.ApproxPolyDP(pv, epsilon, true)
		defer approx.Close()

		if approx.Size() == 4 {
			q, _ := OrderPoints(fromImagePoints(approx.ToPoints()))
			return q
		}
	}

	return extremal(fromImagePoints(hull))
}

// MinAreaQuad 点集凸包的最小外接旋转矩形，按 [左上, 右上, 右下, 左下] 排序
func MinAreaQuad(poly []Point) (Quad, bool) {
	hull := convexHull(poly)
	if len(hull) < 3 {
		return Quad{}, false
	}

	pv := gocv.NewPointVectorFromPoints(hull)
	defer pv.Close()

	rect := gocv.MinAreaRect2f(pv)
	if rect.Width <= 0 || rect.Height <= 0 {
		return Quad{}, false
	}

	boxPts := gocv.NewMat()
	defer boxPts.Close()
	gocv.BoxPoints2f(rect, &boxPts)
	if boxPts.Rows() != 4 {
		return Quad{}, false
	}

	pts := make([]Point, 4)
	for i := 0; i < 4; i++ {
		pts[i] = Point{X: float64(boxPts.GetFloatAt(i, 0)), Y: float64(boxPts.GetFloatAt(i, 1))}
	}
	q, err := OrderPoints(pts)
	if err != nil || !q.Valid() {
		return Quad{}, false
	}
	return q, true
}

// RegionQuad 由分割结果推导四边形：优先使用掩码多边形（化简后再用最小外接矩形拟合），
// 多边形不足 4 点时退回检测框四角
func RegionQuad(poly []Point, box Box) Quad {
	if len(poly) < 4 {
		return box.Corners()
	}

	q := PolygonToQuad(poly)
	if refined, ok := MinAreaQuad(q.Points()); ok {
		return refined
	}
	if q.Valid() {
		return q
	}
	return box.Corners()
}

func convexHull(poly []Point) []image.Point {
	pts := toImagePoints(poly)
	if len(pts) < 3 {
		return pts
	}

	pv := gocv.NewPointVectorFromPoints(pts)
	defer pv.Close()

	hull := gocv.NewMat()
	defer hull.Close()
	gocv.ConvexHull(pv, &hull, true, true)

	hv := gocv.NewPointVectorFromMat(hull)
	defer hv.Close()
	return hv.ToPoints()
}

func toImagePoints(poly []Point) []image.Point {
	pts := make([]image.Point, len(poly))
	for i, p := range poly {
		pts[i] = image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
	}
	return pts
}

func fromImagePoints(pts []image.Point) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: float64(p.X), Y: float64(p.Y)}
	}
	return out
}
