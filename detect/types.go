package detect

import (
	"errors"
	"fmt"
	"image"

	"github.com/getcharzp/go-platemask/geometry"
)

var (
	// ErrModelUnavailable 模型加载或初始化失败
	ErrModelUnavailable = errors.New("模型不可用")
	// ErrInference 推理过程失败
	ErrInference = errors.New("推理失败")
)

// Source 检测结果来源
type Source int

const (
	SourceRegion         Source = iota // 仅分割模型
	SourceCorner                       // 角点模型（经分割确认或无分割结果）
	SourceCornerTiled                  // 大图分块重扫
	SourceRegionFallback               // 分割结果未被角点确认
)

var sourceNames = [...]string{"region", "corner", "corner_tiled", "region_fallback"}

func (s Source) String() string {
	if s < 0 || int(s) >= len(sourceNames) {
		return fmt.Sprintf("Source(%d)", int(s))
	}
	return sourceNames[s]
}

// MarshalText 以名称序列化
func (s Source) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(sourceNames) {
		return nil, fmt.Errorf("未知来源: %d", int(s))
	}
	return []byte(sourceNames[s]), nil
}

// UnmarshalText 由名称解析
func (s *Source) UnmarshalText(text []byte) error {
	for i, name := range sourceNames {
		if name == string(text) {
			*s = Source(i)
			return nil
		}
	}
	return fmt.Errorf("未知来源: %q", text)
}

// Detection 一个车牌候选
type Detection struct {
	Corners    geometry.Quad `json:"corners"` // [左上, 右上, 右下, 左下]
	Confidence float64       `json:"confidence"`
	Source     Source        `json:"source"`
}

// Box 由角点推导的外接矩形
func (d Detection) Box() geometry.Box {
	return d.Corners.Box()
}

// Region 分割模型输出
type Region struct {
	Polygon    []geometry.Point
	Box        geometry.Box
	Confidence float64
}

// CornerHit 角点模型输出，角点顺序为模型原始顺序
type CornerHit struct {
	Corners    [4]geometry.Point
	Confidence float64
}

// Box 角点外接矩形
func (h CornerHit) Box() geometry.Box {
	return geometry.BoundingBox(h.Corners[:])
}

// RegionDetector 分割模型；conf 以下的结果由模型自身丢弃
type RegionDetector interface {
	DetectRegions(img image.Image, conf float64) ([]Region, error)
}

// CornerDetector 角点（姿态）模型
type CornerDetector interface {
	DetectCorners(img image.Image, conf float64) ([]CornerHit, error)
}
