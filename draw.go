package platemask

import (
	"image"
	"image/color"

	"github.com/getcharzp/go-platemask/detect"
	"github.com/up-zero/gotool/imageutil"
	"golang.org/x/image/draw"
)

// sourceColors 调试绘制时各来源的边框颜色
var sourceColors = map[detect.Source]color.Color{
	detect.SourceRegion:         color.RGBA{R: 0, G: 160, B: 255, A: 255},
	detect.SourceCorner:         color.RGBA{R: 0, G: 200, B: 0, A: 255},
	detect.SourceCornerTiled:    color.RGBA{R: 255, G: 160, B: 0, A: 255},
	detect.SourceRegionFallback: color.RGBA{R: 255, G: 0, B: 0, A: 255},
}

// DrawDetections 在图像副本上绘制检测框，用于调试
func DrawDetections(img image.Image, dets []detect.Detection) *image.RGBA {
	b := img.Bounds()
	tagImg := image.NewRGBA(b)
	draw.Draw(tagImg, b, img, b.Min, draw.Src)

	thickness := max(2, min(b.Dx(), b.Dy())/400)
	for _, d := range dets {
		c, ok := sourceColors[d.Source]
		if !ok {
			c = color.Black
		}
		imageutil.DrawThickRectOutline(tagImg, d.Box().Rect(), c, thickness)
	}
	return tagImg
}
