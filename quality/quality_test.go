package quality

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/getcharzp/go-platemask/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paint(img *image.NRGBA, r image.Rectangle, fn func(x, y int) uint8) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			v := fn(x, y)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
}

func TestVerifyNoLeak(t *testing.T) {
	img := imaging.New(300, 100, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	// 区域 2：单像素棋盘，均值不变，无 Canny 边缘但 Laplacian 方差很大
	paint(img, image.Rect(100, 0, 200, 100), func(x, y int) uint8 {
		if (x+y)%2 == 0 {
			return 113
		}
		return 143
	})
	// 区域 3：8 像素黑白方块，边缘密集
	paint(img, image.Rect(200, 0, 300, 100), func(x, y int) uint8 {
		if (x/8+y/8)%2 == 0 {
			return 0
		}
		return 255
	})

	uniform := geometry.NewBox(10, 10, 90, 90).Corners()
	fine := geometry.NewBox(110, 10, 190, 90).Corners()
	blocks := geometry.NewBox(210, 10, 290, 90).Corners()

	report, err := VerifyNoLeak(img, []geometry.Quad{uniform}, DefaultThresholds())
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, "OK", report.Reason)
	require.Len(t, report.Regions, 1)
	assert.InDelta(t, 0, report.Regions[0].EdgeDensity, 1e-9)
	assert.InDelta(t, 0, report.Regions[0].TextureVariance, 1e-9)

	report, err = VerifyNoLeak(img, []geometry.Quad{uniform, fine, blocks}, DefaultThresholds())
	require.NoError(t, err)
	assert.False(t, report.OK)
	require.Len(t, report.Regions, 3)
	assert.True(t, report.Regions[0].Passed)

	assert.False(t, report.Regions[1].Passed)
	assert.Equal(t, "texture_variance", report.Regions[1].Failed)
	assert.True(t, strings.HasPrefix(report.Reason, "区域2"))

	assert.False(t, report.Regions[2].Passed)
	assert.Equal(t, "edge_density", report.Regions[2].Failed)
	assert.Equal(t, 3, report.Regions[2].Index)
}

func TestVerifyNoLeak_NoRegions(t *testing.T) {
	img := imaging.New(10, 10, color.White)
	report, err := VerifyNoLeak(img, nil, DefaultThresholds())
	require.NoError(t, err)
	assert.True(t, report.OK)
}

func TestCheckCompleteness(t *testing.T) {
	original := imaging.New(100, 100, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	paint(original, image.Rect(20, 20, 80, 80), func(x, y int) uint8 {
		if (x/6+y/6)%2 == 0 {
			return 10
		}
		return 240
	})
	masked := imaging.New(100, 100, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	region := geometry.NewBox(25, 25, 75, 75).Corners()

	c, err := CheckCompleteness(original, masked, region, DefaultThresholds())
	require.NoError(t, err)
	assert.True(t, c.Passed)
	assert.Greater(t, c.Before.EdgeDensity, 0.05)
	assert.InDelta(t, 1, c.Reduction, 1e-9)

	results, err := CheckAllRegions(original, original, []geometry.Quad{region}, DefaultThresholds())
	require.NoError(t, err)
	assert.False(t, AllPassed(results))
}
