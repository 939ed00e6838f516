package composite

import "image"

// Options 合成参数
type Options struct {
	Opacity float64 // 遮挡图整体不透明度 [0, 1]
	Padding float64 // 以质心向外扩张的比例，0 = 不扩张

	Supersample int // 抗锯齿超采样倍数
	EdgeBlur    int // 覆盖率的高斯核尺寸（奇数）

	Shadow         bool
	ShadowOffset   image.Point
	ShadowBlur     int     // 阴影高斯核尺寸（奇数）
	ShadowStrength float64 // 阴影覆盖率系数
	ShadowDarken   float64 // 阴影处背景最多变暗的比例

	RingSize        int     // 采样周围亮度的膨胀核尺寸
	RingMinPixels   int     // 周围像素不超过该值时不调整亮度
	BrightThreshold float64 // 周围平均亮度高于该值视为明亮
	BrightFactor    float64 // 明亮环境下遮挡图的亮度系数
	DimFactor       float64 // 其他情况下的亮度系数
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		Opacity:         1,
		Supersample:     8,
		EdgeBlur:        3,
		Shadow:          true,
		ShadowOffset:    image.Pt(8, 12),
		ShadowBlur:      41,
		ShadowStrength:  0.35,
		ShadowDarken:    0.5,
		RingSize:        40,
		RingMinPixels:   50,
		BrightThreshold: 140,
		BrightFactor:    0.85,
		DimFactor:       0.92,
	}
}

// margin 处理区域相对四边形外接矩形需要扩出的像素
func (o Options) margin() int {
	m := o.RingSize
	if o.Shadow {
		off := max(abs(o.ShadowOffset.X), abs(o.ShadowOffset.Y))
		m = max(m, o.ShadowBlur/2+off)
	}
	return m + o.EdgeBlur + 2
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
