package platemask

import (
	"image/color"

	"github.com/getcharzp/go-platemask/banner"
	"github.com/getcharzp/go-platemask/composite"
	"github.com/getcharzp/go-platemask/detect"
	"github.com/getcharzp/go-platemask/orientation"
	"github.com/getcharzp/go-platemask/preprocess"
	"github.com/getcharzp/go-platemask/quality"
	"github.com/rs/zerolog"
)

const defaultJPEGQuality = 98

// Config 引擎配置信息
type Config struct {
	OnnxRuntimeLibPath string
	RegionModelPath    string // 为空时只使用角点模型
	CornerModelPath    string // 为空时只使用分割模型
	MaskPath           string // 为空时使用 200x100 纯白占位图
	BannerPath         string // 为空时不加载横幅

	Detect    detect.Config
	Composite composite.Options
	Banner    banner.Options // Mode/Position/Opacity 由每次调用的 Options 覆盖
	Quality   quality.Thresholds

	LowLightThreshold float64
	JPEGQuality       int
	FillColor         color.NRGBA // 填充模式与补救填充的颜色

	Logger zerolog.Logger
}

// DefaultConfig 默认配置，模型路径按运行环境推断
func DefaultConfig() Config {
	return Config{
		OnnxRuntimeLibPath: DefaultLibraryPath(),
		RegionModelPath:    DefaultRegionModelPath(),
		CornerModelPath:    DefaultCornerModelPath(),
		Detect:             detect.DefaultConfig(),
		Composite:          composite.DefaultOptions(),
		Banner:             banner.DefaultOptions(),
		Quality:            quality.DefaultThresholds(),
		LowLightThreshold:  preprocess.DefaultLowLightThreshold,
		JPEGQuality:        defaultJPEGQuality,
		FillColor:          color.NRGBA{R: 255, G: 255, B: 255, A: 255},
		Logger:             zerolog.Nop(),
	}
}

// withDefaults 零值字段回退到默认值
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Detect == (detect.Config{}) {
		c.Detect = def.Detect
	}
	if c.Composite == (composite.Options{}) {
		c.Composite = def.Composite
	}
	if c.Banner.Background == nil {
		c.Banner.Background = def.Banner.Background
	}
	if c.Quality == (quality.Thresholds{}) {
		c.Quality = def.Quality
	}
	if c.LowLightThreshold <= 0 {
		c.LowLightThreshold = def.LowLightThreshold
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = def.JPEGQuality
	}
	if c.FillColor == (color.NRGBA{}) {
		c.FillColor = def.FillColor
	}
	return c
}

// Options 单张图像的处理选项
type Options struct {
	ApplyBanner      bool
	BannerMode       banner.Mode
	BannerPosition   banner.Position
	BannerOpacity    float64
	BannerBackground color.Color // nil 时使用 Config.Banner.Background

	MaskOpacity      float64
	RegionConfidence float64
	CornerConfidence float64

	QualityCheck bool
	ForceFill    bool // 质量检查未通过时用不透明纯色重新覆盖

	FillMode           bool // 纯色填充代替遮挡图
	SkipMasking        bool // 只合成横幅
	LowLight           bool // 低照度时增强检测输入
	AutoRotate         bool // 没有结果时尝试旋转后再检测
	RestoreOrientation bool // 输出恢复为原始存储方向
	KeepMetadata       bool // JPEG 输出保留 Exif 段
}

// DefaultOptions 默认选项：遮挡图不透明，不加横幅，不做质量检查
func DefaultOptions() Options {
	return Options{
		BannerMode:       banner.ModeOverlay,
		BannerPosition:   banner.Bottom,
		BannerOpacity:    1,
		MaskOpacity:      1,
		RegionConfidence: 0.3,
		CornerConfidence: 0.2,
		KeepMetadata:     true,
	}
}

// withDefaults 零值或负数的不透明度与置信度按默认值处理，Options{} 可以直接使用
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaskOpacity <= 0 {
		o.MaskOpacity = def.MaskOpacity
	}
	if o.BannerOpacity <= 0 {
		o.BannerOpacity = def.BannerOpacity
	}
	if o.RegionConfidence <= 0 {
		o.RegionConfidence = def.RegionConfidence
	}
	if o.CornerConfidence <= 0 {
		o.CornerConfidence = def.CornerConfidence
	}
	return o
}

// Result 处理结果
type Result struct {
	Output         []byte                 `json:"-"`
	Format         string                 `json:"format"`
	DetectionCount int                    `json:"detection_count"`
	Detections     []detect.Detection     `json:"detections"`
	Masked         int                    `json:"masked"` // 实际完成合成的区域数，退化的四边形被跳过
	Quality        *quality.Report        `json:"quality,omitempty"`
	Completeness   []quality.Completeness `json:"completeness,omitempty"`
	Remediated     bool                   `json:"remediated"`
	Orientation    orientation.Tag        `json:"orientation"`
	LowLight       bool                   `json:"low_light"`
	Width          int                    `json:"width"`
	Height         int                    `json:"height"`
}
