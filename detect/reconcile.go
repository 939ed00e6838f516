package detect

import (
	"image"

	"github.com/getcharzp/go-platemask/geometry"
)

// Config 两阶段融合参数
type Config struct {
	// ConfirmIoU 角点结果与分割结果的 IoU 大于该值视为互相确认
	ConfirmIoU float64
	// NMSIoU 最终去重阈值
	NMSIoU float64
	// TileNMSIoU 分块结果之间的去重阈值
	TileNMSIoU float64

	// 候选为空且宽大于 TileTriggerW 或高大于 TileTriggerH 时分块重扫
	TileTriggerW int
	TileTriggerH int
	TileSize     int
	TileOverlap  int
	// 分块命中的最小宽高（像素）
	TileMinW float64
	TileMinH float64

	// MinCornerExtent 整图角点结果相对短边的最小尺寸比例
	MinCornerExtent float64

	// 外接框宽高比（闭区间）过滤，AspectMax <= 0 时不过滤
	AspectMin float64
	AspectMax float64
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		ConfirmIoU:      0.3,
		NMSIoU:          0.3,
		TileNMSIoU:      0.3,
		TileTriggerW:    2000,
		TileTriggerH:    1500,
		TileSize:        1200,
		TileOverlap:     300,
		TileMinW:        30,
		TileMinH:        20,
		MinCornerExtent: 0.005,
		AspectMin:       geometry.DefaultAspectMin,
		AspectMax:       geometry.DefaultAspectMax,
	}
}

// Reconciler 两阶段检测融合
type Reconciler struct {
	adapter Adapter
	cfg     Config
}

// NewReconciler 注入两个模型句柄，任意一个可以为 nil
func NewReconciler(regions RegionDetector, corners CornerDetector, cfg Config) *Reconciler {
	return &Reconciler{
		adapter: Adapter{
			Regions:         regions,
			Corners:         corners,
			MinCornerExtent: cfg.MinCornerExtent,
		},
		cfg: cfg,
	}
}

// Config 当前参数
func (r *Reconciler) Config() Config {
	return r.cfg
}

// Reconcile 运行两阶段检测并返回去重后的候选
//
//  1. 分割检测
//  2. 整图角点检测
//  3. 角点与分割按 IoU 匹配，确认的角点结果替换对应分割结果；没有任何分割结果时角点直接采纳
//  4. 未被确认的分割结果作为 region_fallback 保留
//  5. 候选仍为空且图像足够大时分块重扫
//  6. 宽高比过滤与全局 NMS
//
// 模型失败返回 ErrInference；没有车牌返回空切片而不是错误。
func (r *Reconciler) Reconcile(img image.Image, regionConf, cornerConf float64) ([]Detection, error) {
	regions, err := r.adapter.PredictRegion(img, regionConf)
	if err != nil {
		return nil, err
	}

	if r.adapter.Corners == nil {
		dets := make([]Detection, 0, len(regions))
		for _, reg := range regions {
			dets = append(dets, regionDetection(reg, SourceRegion))
		}
		return NMS(r.filterAspect(dets), r.cfg.NMSIoU), nil
	}

	hits, err := r.adapter.PredictCorners(img, cornerConf)
	if err != nil {
		return nil, err
	}

	dets := r.match(regions, hits)

	b := img.Bounds()
	candidatesEmpty := len(dets) == 0
	if candidatesEmpty && r.largeImage(b.Dx(), b.Dy()) {
		tiled, err := r.scanTiles(img, cornerConf)
		if err != nil {
			return nil, err
		}
		dets = append(dets, tiled...)
	}

	return NMS(r.filterAspect(dets), r.cfg.NMSIoU), nil
}

// filterAspect 自动旋转按过滤后的结果挑选角度
func (r *Reconciler) filterAspect(dets []Detection) []Detection {
	if r.cfg.AspectMax <= 0 {
		return dets
	}
	kept := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if geometry.AspectRatioOK(d.Corners.Points(), r.cfg.AspectMin, r.cfg.AspectMax) {
			kept = append(kept, d)
		}
	}
	return kept
}

func (r *Reconciler) match(regions []Region, hits []CornerHit) []Detection {
	noRegions := len(regions) == 0
	consumed := make([]bool, len(regions))
	var dets []Detection

	for _, hit := range hits {
		corners, err := geometry.OrderPoints(hit.Corners[:])
		if err != nil {
			continue
		}

		if noRegions {
			dets = append(dets, Detection{Corners: corners, Confidence: hit.Confidence, Source: SourceCorner})
			continue
		}

		hb := hit.Box()
		best, bestIoU := -1, 0.0
		for i, reg := range regions {
			if iou := geometry.IoU(hb, reg.Box); iou > bestIoU {
				best, bestIoU = i, iou
			}
		}
		if best < 0 || bestIoU <= r.cfg.ConfirmIoU {
			continue
		}

		consumed[best] = true
		dets = append(dets, Detection{
			Corners:    corners,
			Confidence: (hit.Confidence + regions[best].Confidence) / 2,
			Source:     SourceCorner,
		})
	}

	for i, reg := range regions {
		if !consumed[i] {
			dets = append(dets, regionDetection(reg, SourceRegionFallback))
		}
	}
	return dets
}

func (r *Reconciler) largeImage(w, h int) bool {
	return w > r.cfg.TileTriggerW || h > r.cfg.TileTriggerH
}

func regionDetection(reg Region, src Source) Detection {
	return Detection{
		Corners:    geometry.RegionQuad(reg.Polygon, reg.Box),
		Confidence: reg.Confidence,
		Source:     src,
	}
}
