package quality

import (
	"fmt"
	"image"
	"image/color"

	"github.com/getcharzp/go-platemask/geometry"
	"github.com/up-zero/gotool/imageutil"
	"gocv.io/x/gocv"
)

// Thresholds 漏遮判定阈值
type Thresholds struct {
	EdgeDensity     float64 // Canny 边缘像素占比上限
	TextureVariance float64 // Laplacian 方差上限
	CannyLow        float32
	CannyHigh       float32
}

// DefaultThresholds 默认阈值
func DefaultThresholds() Thresholds {
	return Thresholds{
		EdgeDensity:     0.05,
		TextureVariance: 500,
		CannyLow:        50,
		CannyHigh:       150,
	}
}

// Metrics 单个区域的纹理指标
type Metrics struct {
	EdgeDensity     float64 `json:"edge_density"`
	TextureVariance float64 `json:"texture_variance"`
	Pixels          int     `json:"pixels"`
}

// RegionResult 单个区域的检查结果，Index 从 1 开始
type RegionResult struct {
	Index  int    `json:"index"`
	Passed bool   `json:"passed"`
	Failed string `json:"failed,omitempty"` // edge_density | texture_variance
	Metrics
}

// Report 整张图的检查结果
type Report struct {
	OK      bool           `json:"ok"`
	Reason  string         `json:"reason"`
	Regions []RegionResult `json:"regions"`
}

// analyzer 一张图的灰度、边缘与 Laplacian，区域之间复用
type analyzer struct {
	w, h  int
	edges []byte
	lap   []float64
}

func newAnalyzer(img image.Image, th Thresholds) (*analyzer, error) {
	gray := imageutil.Grayscale(img)
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()

	pix := gray.Pix
	if gray.Stride != w {
		pix = make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(pix[y*w:(y+1)*w], gray.Pix[y*gray.Stride:])
		}
	}

	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, pix)
	if err != nil {
		return nil, fmt.Errorf("创建灰度矩阵失败: %w", err)
	}
	defer mat.Close()

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(mat, &edges, th.CannyLow, th.CannyHigh)

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(mat, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	lapData, err := lap.DataPtrFloat64()
	if err != nil {
		return nil, fmt.Errorf("读取 Laplacian 失败: %w", err)
	}

	return &analyzer{
		w:     w,
		h:     h,
		edges: edges.ToBytes(),
		lap:   append([]float64(nil), lapData...),
	}, nil
}

// measure 多边形内部的边缘密度与 Laplacian 方差（总体方差）
func (a *analyzer) measure(region geometry.Quad) Metrics {
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), a.h, a.w, gocv.MatTypeCV8U)
	defer mask.Close()

	pv := gocv.NewPointsVectorFromPoints([][]image.Point{region.ImagePoints()})
	defer pv.Close()
	gocv.FillPoly(&mask, pv, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	inside := mask.ToBytes()

	var m Metrics
	var edgePixels int
	var sum, sumSq float64
	for i, v := range inside {
		if v == 0 {
			continue
		}
		m.Pixels++
		if a.edges[i] > 0 {
			edgePixels++
		}
		sum += a.lap[i]
		sumSq += a.lap[i] * a.lap[i]
	}
	if m.Pixels == 0 {
		return m
	}

	n := float64(m.Pixels)
	mean := sum / n
	m.EdgeDensity = float64(edgePixels) / n
	m.TextureVariance = max(0, sumSq/n-mean*mean)
	return m
}

// Measure 计算单个区域的指标
func Measure(img image.Image, region geometry.Quad, th Thresholds) (Metrics, error) {
	a, err := newAnalyzer(img, th)
	if err != nil {
		return Metrics{}, err
	}
	return a.measure(region), nil
}

// VerifyNoLeak 检查遮挡后的区域内是否仍残留车牌纹理
//
// 任一区域边缘密度或纹理方差超过阈值即判为失败，Reason 给出第一个失败区域（从 1 开始）
// 与失败指标；全部通过时 Reason 为 "OK"。只负责检测与报告，不做补救。
func VerifyNoLeak(img image.Image, regions []geometry.Quad, th Thresholds) (Report, error) {
	report := Report{OK: true, Reason: "OK"}
	if len(regions) == 0 {
		return report, nil
	}

	a, err := newAnalyzer(img, th)
	if err != nil {
		return Report{}, err
	}

	for i, region := range regions {
		m := a.measure(region)
		res := RegionResult{Index: i + 1, Passed: true, Metrics: m}

		var reason string
		switch {
		case m.EdgeDensity > th.EdgeDensity:
			res.Passed, res.Failed = false, "edge_density"
			reason = fmt.Sprintf("区域%d: 边缘密度过高 (%.3f > %g)", res.Index, m.EdgeDensity, th.EdgeDensity)
		case m.TextureVariance > th.TextureVariance:
			res.Passed, res.Failed = false, "texture_variance"
			reason = fmt.Sprintf("区域%d: 纹理方差过高 (%.1f > %g)", res.Index, m.TextureVariance, th.TextureVariance)
		}

		if !res.Passed && report.OK {
			report.OK = false
			report.Reason = reason
		}
		report.Regions = append(report.Regions, res)
	}
	return report, nil
}
