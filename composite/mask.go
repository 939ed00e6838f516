package composite

import (
	"image"
	"image/color"
	"math"

	"github.com/getcharzp/go-platemask/geometry"
	"gocv.io/x/gocv"
)

// ApplyMask 将遮挡图透视变换到 corners 围成的四边形上并与原图融合
//
// 流程：超采样光栅化得到抗锯齿覆盖率 → 可选阴影（先于遮挡图绘制）→
// 采样四边形外环的平均亮度决定遮挡图亮度系数 → 以覆盖率为权重融合。
// 四边形退化或完全落在图像外时跳过并返回 false。
func ApplyMask(dst *image.NRGBA, corners geometry.Quad, asset *Asset, opts Options) bool {
	return apply(dst, corners, asset, nil, opts)
}

// Fill 用不透明纯色填充四边形（抗锯齿边缘），不加阴影也不调整亮度
func Fill(dst *image.NRGBA, corners geometry.Quad, c color.Color, opts Options) bool {
	opts.Shadow = false
	opts.Opacity = 1
	opts.BrightFactor = 1
	opts.DimFactor = 1
	return apply(dst, corners, nil, c, opts)
}

func apply(dst *image.NRGBA, corners geometry.Quad, asset *Asset, fill color.Color, opts Options) bool {
	q, err := geometry.OrderPoints(corners.Points())
	if err != nil {
		return false
	}
	q = geometry.ExpandQuad(q, opts.Padding)
	if !q.Valid() {
		return false
	}

	m := opts.margin()
	roi := q.Box().Rect().Inset(-m).Intersect(dst.Bounds())
	if roi.Empty() {
		return false
	}
	w, h := roi.Dx(), roi.Dy()
	local := q.Translate(-float64(roi.Min.X), -float64(roi.Min.Y))

	coverage := rasterize(local, w, h, opts.Supersample, opts.EdgeBlur)
	if coverage == nil {
		return false
	}

	factor := 1.0
	if ring, ok := ringBrightness(dst, roi, coverage, opts); ok {
		if ring > opts.BrightThreshold {
			factor = opts.BrightFactor
		} else {
			factor = opts.DimFactor
		}
	}

	if opts.Shadow {
		applyShadow(dst, roi, local, opts)
	}

	var overlay []byte
	if asset != nil {
		overlay = warp(asset, local, w, h)
	} else {
		overlay = solid(fill, w, h)
	}
	if overlay == nil {
		return false
	}

	blend(dst, roi, coverage, overlay, factor, opts.Opacity)
	return true
}

// rasterize 在 ss 倍分辨率下填充四边形，面积插值缩回原尺寸后做轻微模糊，返回 [0, 1] 覆盖率
func rasterize(q geometry.Quad, w, h, ss, blur int) []float32 {
	cov := coverageMat(q, w, h, ss)
	defer cov.Close()

	if blur > 1 {
		blurred := gocv.NewMat()
		defer blurred.Close()
		gocv.GaussianBlur(cov, &blurred, image.Pt(blur, blur), 0, 0, gocv.BorderDefault)
		return toUnit(blurred.ToBytes())
	}
	return toUnit(cov.ToBytes())
}

// coverageMat 超采样光栅化，返回 w x h 的 CV8U 覆盖率矩阵
func coverageMat(q geometry.Quad, w, h, ss int) gocv.Mat {
	if ss < 1 {
		ss = 1
	}

	big := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h*ss, w*ss, gocv.MatTypeCV8U)
	defer big.Close()

	pv := gocv.NewPointsVectorFromPoints([][]image.Point{q.Scale(float64(ss)).ImagePoints()})
	defer pv.Close()
	gocv.FillPoly(&big, pv, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	small := gocv.NewMat()
	gocv.Resize(big, &small, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
	return small
}

func toUnit(data []byte) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 255
	}
	return out
}

// ringBrightness 覆盖率 > 0.5 的区域膨胀后减去自身得到外环，返回外环在原图上的平均亮度
func ringBrightness(dst *image.NRGBA, roi image.Rectangle, coverage []float32, opts Options) (float64, bool) {
	w, h := roi.Dx(), roi.Dy()
	inside := make([]byte, w*h)
	for i, c := range coverage {
		if c > 0.5 {
			inside[i] = 255
		}
	}

	binary, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, inside)
	if err != nil {
		return 0, false
	}
	defer binary.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(opts.RingSize, opts.RingSize))
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(binary, &dilated, kernel)
	grown := dilated.ToBytes()

	var sum float64
	var count int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if grown[i] == 0 || inside[i] != 0 {
				continue
			}
			off := dst.PixOffset(roi.Min.X+x, roi.Min.Y+y)
			sum += float64(dst.Pix[off]) + float64(dst.Pix[off+1]) + float64(dst.Pix[off+2])
			count++
		}
	}
	if count <= opts.RingMinPixels {
		return 0, false
	}
	return sum / float64(count*3), true
}

// applyShadow 偏移后的四边形做大核模糊，按比例压暗背景
func applyShadow(dst *image.NRGBA, roi image.Rectangle, q geometry.Quad, opts Options) {
	w, h := roi.Dx(), roi.Dy()
	shifted := q.Translate(float64(opts.ShadowOffset.X), float64(opts.ShadowOffset.Y))

	cov := coverageMat(shifted, w, h, opts.Supersample)
	defer cov.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	k := opts.ShadowBlur | 1
	gocv.GaussianBlur(cov, &blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)

	shadow := blurred.ToBytes()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := float64(shadow[y*w+x]) / 255 * opts.ShadowStrength
			if s <= 0 {
				continue
			}
			scale := 1 - s*opts.ShadowDarken
			off := dst.PixOffset(roi.Min.X+x, roi.Min.Y+y)
			for c := 0; c < 3; c++ {
				dst.Pix[off+c] = clamp(float64(dst.Pix[off+c]) * scale)
			}
		}
	}
}

// warp 透视变换遮挡图到局部坐标系，越界像素全透明，返回预乘 RGBA
func warp(asset *Asset, q geometry.Quad, w, h int) []byte {
	mw, mh := float32(asset.width-1), float32(asset.height-1)
	src := gocv.NewPoint2fVectorFromPoints([]gocv.Point2f{
		{X: 0, Y: 0}, {X: mw, Y: 0}, {X: mw, Y: mh}, {X: 0, Y: mh},
	})
	defer src.Close()

	pts := make([]gocv.Point2f, 4)
	for i, p := range q {
		pts[i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}
	dstPts := gocv.NewPoint2fVectorFromPoints(pts)
	defer dstPts.Close()

	m := gocv.GetPerspectiveTransform2f(src, dstPts)
	defer m.Close()
	if m.Empty() {
		return nil
	}

	warped := gocv.NewMat()
	defer warped.Close()
	gocv.WarpPerspectiveWithParams(asset.mat, &warped, m, image.Pt(w, h),
		gocv.InterpolationLanczos4, gocv.BorderConstant, color.RGBA{})

	return warped.ToBytes()
}

// solid 纯色的预乘 RGBA 缓冲
func solid(c color.Color, w, h int) []byte {
	if c == nil {
		c = color.White
	}
	r, g, b, a := c.RGBA()
	px := [4]byte{byte(r >> 8), byte(g >> 8), byte(b >> 8), byte(a >> 8)}
	out := make([]byte, w*h*4)
	for i := 0; i < len(out); i += 4 {
		copy(out[i:i+4], px[:])
	}
	return out
}

// blend 预乘融合：out = a*f*P + (1 - a*Pa) * bg，a = 覆盖率 * 不透明度
func blend(dst *image.NRGBA, roi image.Rectangle, coverage []float32, overlay []byte, factor, opacity float64) {
	w, h := roi.Dx(), roi.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			a := float64(coverage[i]) * opacity
			if a <= 0 {
				continue
			}
			p := overlay[i*4 : i*4+4]
			pa := float64(p[3]) / 255
			off := dst.PixOffset(roi.Min.X+x, roi.Min.Y+y)
			for c := 0; c < 3; c++ {
				v := a*factor*float64(p[c]) + (1-a*pa)*float64(dst.Pix[off+c])
				dst.Pix[off+c] = clamp(v)
			}
		}
	}
}

func clamp(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}
