package detect

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/getcharzp/go-platemask/geometry"
)

// rotation 逆时针旋转角度
type rotation int

var rotations = []rotation{0, 90, 270, 180}

func (rot rotation) apply(img image.Image) *image.NRGBA {
	switch rot {
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	default:
		return imaging.Clone(img)
	}
}

// unrotate 将旋转后图像中的点映射回原图（w, h 为原图尺寸）
func (rot rotation) unrotate(p geometry.Point, w, h float64) geometry.Point {
	switch rot {
	case 90:
		return geometry.Point{X: w - p.Y, Y: p.X}
	case 180:
		return geometry.Point{X: w - p.X, Y: h - p.Y}
	case 270:
		return geometry.Point{X: p.Y, Y: h - p.X}
	default:
		return p
	}
}

// ReconcileAutoRotate 依次在 0/90/270/180 度下检测，取含最高置信度结果的一组
// 并映射回原图坐标；置信度相同时保留先尝试的角度
func (r *Reconciler) ReconcileAutoRotate(img image.Image, regionConf, cornerConf float64) ([]Detection, error) {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	var best []Detection
	var bestRot rotation
	bestConf := 0.0
	for _, rot := range rotations {
		src := img
		if rot != 0 {
			src = rot.apply(img)
		}
		found, err := r.Reconcile(src, regionConf, cornerConf)
		if err != nil {
			return nil, err
		}
		for _, d := range found {
			if d.Confidence > bestConf {
				best, bestRot, bestConf = found, rot, d.Confidence
			}
		}
	}
	if bestRot == 0 {
		return best, nil
	}

	out := make([]Detection, 0, len(best))
	for _, d := range best {
		pts := make([]geometry.Point, 4)
		for i, p := range d.Corners {
			pts[i] = bestRot.unrotate(p, w, h)
		}
		corners, err := geometry.OrderPoints(pts)
		if err != nil {
			continue
		}
		d.Corners = corners
		out = append(out, d)
	}
	return out, nil
}
