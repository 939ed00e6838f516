package detect

import (
	"fmt"
	"image"
)

// Adapter 两个模型的统一入口
//
// 置信度阈值直接交给模型，这里不再二次过滤；角点结果宽或高小于图像短边
// MinCornerExtent 比例的视为噪声丢弃。
type Adapter struct {
	Regions         RegionDetector
	Corners         CornerDetector
	MinCornerExtent float64
}

// PredictRegion 分割检测
func (a *Adapter) PredictRegion(img image.Image, conf float64) ([]Region, error) {
	if a.Regions == nil {
		return nil, nil
	}
	regions, err := a.Regions.DetectRegions(img, conf)
	if err != nil {
		return nil, fmt.Errorf("%w: 分割模型: %v", ErrInference, err)
	}
	return regions, nil
}

// PredictCorners 角点检测（整图）
func (a *Adapter) PredictCorners(img image.Image, conf float64) ([]CornerHit, error) {
	if a.Corners == nil {
		return nil, nil
	}
	hits, err := a.Corners.DetectCorners(img, conf)
	if err != nil {
		return nil, fmt.Errorf("%w: 角点模型: %v", ErrInference, err)
	}

	b := img.Bounds()
	minExtent := float64(min(b.Dx(), b.Dy())) * a.MinCornerExtent

	kept := make([]CornerHit, 0, len(hits))
	for _, hit := range hits {
		box := hit.Box()
		if box.Width() < minExtent || box.Height() < minExtent {
			continue
		}
		kept = append(kept, hit)
	}
	return kept, nil
}
