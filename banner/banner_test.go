package banner

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red  = color.NRGBA{R: 255, A: 255}
	blue = color.NRGBA{B: 255, A: 255}
)

func newBanner(t *testing.T, w, h int) *Banner {
	b, err := New(imaging.New(w, h, red))
	require.NoError(t, err)
	return b
}

func TestApply_Dimensions(t *testing.T) {
	b := newBanner(t, 400, 50)
	src := imaging.New(800, 600, blue)

	for _, pos := range []Position{Top, Bottom} {
		opts := DefaultOptions()
		opts.Position = pos

		opts.Mode = ModeOverlay
		assert.Equal(t, src.Bounds(), b.Apply(src, opts).Bounds())

		opts.Mode = ModeFit
		assert.Equal(t, src.Bounds(), b.Apply(src, opts).Bounds())

		opts.Mode = ModeExtend
		// 400x50 缩放到 800 宽为 800x100
		assert.Equal(t, image.Rect(0, 0, 800, 700), b.Apply(src, opts).Bounds())
	}
}

func TestApply_Overlay(t *testing.T) {
	b := newBanner(t, 400, 50)
	src := imaging.New(800, 600, blue)

	out := b.Apply(src, DefaultOptions())
	assert.Equal(t, red, out.NRGBAAt(400, 550))
	assert.Equal(t, blue, out.NRGBAAt(400, 450))

	opts := DefaultOptions()
	opts.Position = Top
	out = b.Apply(src, opts)
	assert.Equal(t, red, out.NRGBAAt(400, 10))
	assert.Equal(t, blue, out.NRGBAAt(400, 590))
}

func TestApply_Opacity(t *testing.T) {
	b := newBanner(t, 400, 50)
	src := imaging.New(800, 600, blue)

	opts := DefaultOptions()
	opts.Opacity = 0.5
	px := b.Apply(src, opts).NRGBAAt(400, 550)
	assert.InDelta(t, 128, int(px.R), 2)
	assert.InDelta(t, 128, int(px.B), 2)

	opts.Opacity = 0
	assert.Equal(t, blue, b.Apply(src, opts).NRGBAAt(400, 550))
}

func TestApply_Extend(t *testing.T) {
	b := newBanner(t, 400, 50)
	src := imaging.New(800, 600, blue)

	opts := DefaultOptions()
	opts.Mode = ModeExtend
	opts.Position = Top
	out := b.Apply(src, opts)
	assert.Equal(t, red, out.NRGBAAt(10, 50))
	assert.Equal(t, blue, out.NRGBAAt(10, 100))
	assert.Equal(t, blue, out.NRGBAAt(10, 699))
}

func TestApply_Fit(t *testing.T) {
	b := newBanner(t, 400, 50)
	src := imaging.New(800, 600, blue)

	opts := DefaultOptions()
	opts.Mode = ModeFit
	opts.Background = color.NRGBA{G: 255, A: 255}
	out := b.Apply(src, opts)

	// 可用高度 500，缩放 5/6 → 666x500，水平居中
	assert.Equal(t, red, out.NRGBAAt(400, 550))
	assert.Equal(t, blue, out.NRGBAAt(400, 250))
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, out.NRGBAAt(10, 250))
}

func TestScaledHeight_Cap(t *testing.T) {
	b := newBanner(t, 100, 100)
	opts := DefaultOptions()
	assert.Equal(t, 800, b.ScaledHeight(800, 600, opts))
	opts.MaxHeightFraction = 0.25
	assert.Equal(t, 150, b.ScaledHeight(800, 600, opts))
}

func TestParse(t *testing.T) {
	m, err := ParseMode("fit")
	require.NoError(t, err)
	assert.Equal(t, ModeFit, m)
	_, err = ParseMode("stretch")
	assert.Error(t, err)

	p, err := ParsePosition("top")
	require.NoError(t, err)
	assert.Equal(t, Top, p)
	_, err = ParsePosition("left")
	assert.Error(t, err)
}
