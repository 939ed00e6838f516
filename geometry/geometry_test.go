package geometry

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderPoints(t *testing.T) {
	want := Quad{{X: 10, Y: 20}, {X: 110, Y: 25}, {X: 105, Y: 80}, {X: 12, Y: 75}}

	perms := [][4]int{
		{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1}, {1, 3, 0, 2}, {2, 3, 0, 1},
	}
	for _, p := range perms {
		in := []Point{want[p[0]], want[p[1]], want[p[2]], want[p[3]]}
		got, err := OrderPoints(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "perm %v", p)
	}
}

func TestOrderPoints_Count(t *testing.T) {
	_, err := OrderPoints([]Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}})
	assert.ErrorIs(t, err, ErrPointCount)

	_, err = OrderPoints(nil)
	assert.ErrorIs(t, err, ErrPointCount)
}

func TestOrderPoints_Property(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		// 随机凸四边形：在矩形四角附近抖动
		x, y := rng.Float64()*1000, rng.Float64()*1000
		w, h := 50+rng.Float64()*400, 30+rng.Float64()*200
		j := func() float64 { return (rng.Float64() - 0.5) * min(w, h) * 0.3 }
		pts := []Point{
			{X: x + j(), Y: y + j()},
			{X: x + w + j(), Y: y + j()},
			{X: x + w + j(), Y: y + h + j()},
			{X: x + j(), Y: y + h + j()},
		}
		rng.Shuffle(len(pts), func(a, b int) { pts[a], pts[b] = pts[b], pts[a] })

		q, err := OrderPoints(pts)
		require.NoError(t, err)
		tl, tr, br, bl := q[0], q[1], q[2], q[3]
		assert.LessOrEqual(t, tl.X+tl.Y, br.X+br.Y)
		assert.LessOrEqual(t, tr.Y-tr.X, bl.Y-bl.X)
	}
}

func TestOrderPoints_TieFirstOccurrence(t *testing.T) {
	// 所有点相同时全部取第一个
	pts := []Point{{X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}}
	q, err := OrderPoints(pts)
	require.NoError(t, err)
	for _, p := range q {
		assert.Equal(t, Point{X: 5, Y: 5}, p)
	}
}

func TestIoU(t *testing.T) {
	a := NewBox(0, 0, 10, 10)
	assert.InDelta(t, 1.0, IoU(a, a), 1e-9)
	assert.InDelta(t, 0.0, IoU(a, NewBox(20, 20, 30, 30)), 1e-9)
	// 交集 50，并集 150
	assert.InDelta(t, 50.0/150.0, IoU(a, NewBox(5, 0, 15, 10)), 1e-9)
	assert.Equal(t, 0.0, IoU(Box{}, Box{}))
}

func TestAspectRatioOK(t *testing.T) {
	rect := func(w, h float64) []Point {
		return []Point{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}
	}
	tests := []struct {
		name string
		w, h float64
		want bool
	}{
		{"square", 100, 100, true},
		{"upper bound", 250, 100, true},
		{"portrait upper bound", 100, 250, true},
		{"above upper bound", 251, 100, false},
		{"typical plate", 200, 100, true},
		{"zero height", 100, 0, false},
		{"zero width", 0, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AspectRatioOK(rect(tt.w, tt.h), DefaultAspectMin, DefaultAspectMax))
		})
	}

	// 下限同样是闭区间
	assert.True(t, AspectRatioOK(rect(150, 100), 1.5, DefaultAspectMax))
	assert.False(t, AspectRatioOK(rect(149, 100), 1.5, DefaultAspectMax))
}

func TestQuadArea(t *testing.T) {
	q := NewBox(0, 0, 20, 10).Corners()
	assert.InDelta(t, 200, q.Area(), 1e-9)
	assert.True(t, q.Valid())

	var flat Quad
	assert.False(t, flat.Valid())
}

func TestExpandQuad(t *testing.T) {
	q := NewBox(0, 0, 100, 50).Corners()
	e := ExpandQuad(q, 0.1)
	assert.InDelta(t, -5, e[0].X, 1e-9)
	assert.InDelta(t, -2.5, e[0].Y, 1e-9)
	assert.InDelta(t, 105, e[2].X, 1e-9)
	assert.InDelta(t, 52.5, e[2].Y, 1e-9)
	assert.Equal(t, q, ExpandQuad(q, 0))
}
