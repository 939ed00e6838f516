package detect

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/getcharzp/go-platemask/geometry"
)

// TileOrigins 一维分块起点：0, step, 2*step, ... 小于 max(1, size-overlap)
func TileOrigins(size, tile, overlap int) []int {
	step := tile - overlap
	if step <= 0 {
		step = tile
	}
	limit := max(1, size-overlap)

	var origins []int
	for v := 0; v < limit; v += step {
		origins = append(origins, v)
	}
	return origins
}

// Tiles 覆盖整幅图像的分块矩形（已裁剪到图像范围内）
func Tiles(w, h, tile, overlap int) []image.Rectangle {
	var rects []image.Rectangle
	for _, y := range TileOrigins(h, tile, overlap) {
		for _, x := range TileOrigins(w, tile, overlap) {
			rects = append(rects, image.Rect(x, y, min(x+tile, w), min(y+tile, h)))
		}
	}
	return rects
}

// scanTiles 在每个分块上独立运行角点模型，结果平移回原图坐标后去重
func (r *Reconciler) scanTiles(img image.Image, conf float64) ([]Detection, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	// 两边都不超过 1.5 个分块时分块没有意义
	limit := float64(r.cfg.TileSize) * 1.5
	if float64(w) <= limit && float64(h) <= limit {
		return nil, nil
	}

	var dets []Detection
	for _, rect := range Tiles(w, h, r.cfg.TileSize, r.cfg.TileOverlap) {
		tile := imaging.Crop(img, rect.Add(b.Min))

		hits, err := r.adapter.Corners.DetectCorners(tile, conf)
		if err != nil {
			return nil, fmt.Errorf("%w: 分块 %v: %v", ErrInference, rect, err)
		}

		for _, hit := range hits {
			box := hit.Box()
			if box.Width() < r.cfg.TileMinW || box.Height() < r.cfg.TileMinH {
				continue
			}
			corners, err := geometry.OrderPoints(hit.Corners[:])
			if err != nil {
				continue
			}
			dets = append(dets, Detection{
				Corners:    corners.Translate(float64(rect.Min.X), float64(rect.Min.Y)),
				Confidence: hit.Confidence,
				Source:     SourceCornerTiled,
			})
		}
	}

	return NMS(dets, r.cfg.TileNMSIoU), nil
}
