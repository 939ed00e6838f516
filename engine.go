package platemask

import (
	"bytes"
	"fmt"
	"image"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
	"github.com/getcharzp/go-platemask/banner"
	"github.com/getcharzp/go-platemask/composite"
	"github.com/getcharzp/go-platemask/detect"
	"github.com/getcharzp/go-platemask/geometry"
	"github.com/getcharzp/go-platemask/orientation"
	"github.com/getcharzp/go-platemask/preprocess"
	"github.com/getcharzp/go-platemask/quality"
	"github.com/getcharzp/go-platemask/yolo"
	"github.com/rs/zerolog"
)

// Engine 车牌检测与遮挡引擎
//
// 模型与素材在创建时加载，之后只读；同一个 Engine 可以被顺序调用，
// 模型推理在 yolo.Engine 内部串行化。
type Engine struct {
	reconciler *detect.Reconciler
	hasModels  bool
	models     *yolo.Engine // 由 NewEngine 创建时持有，Destroy 释放
	mask       *composite.Asset
	ownsMask   bool
	banner     *banner.Banner
	cfg        Config
	log        zerolog.Logger
}

// NewEngine 加载 ONNX 模型、遮挡图与横幅
func NewEngine(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	models, err := yolo.NewEngine(yolo.Config{
		RegionModelPath:    cfg.RegionModelPath,
		CornerModelPath:    cfg.CornerModelPath,
		OnnxRuntimeLibPath: cfg.OnnxRuntimeLibPath,
	})
	if err != nil {
		return nil, err
	}
	if !models.HasRegionModel() && !models.HasCornerModel() {
		models.Destroy()
		return nil, fmt.Errorf("%w: 未配置任何模型", ErrModelUnavailable)
	}

	mask := composite.DefaultAsset()
	if cfg.MaskPath != "" {
		if mask, err = composite.LoadAsset(cfg.MaskPath); err != nil {
			models.Destroy()
			return nil, err
		}
	}

	var bnr *banner.Banner
	if cfg.BannerPath != "" {
		if bnr, err = banner.Load(cfg.BannerPath); err != nil {
			_ = mask.Close()
			models.Destroy()
			return nil, err
		}
	}

	var regions detect.RegionDetector
	if models.HasRegionModel() {
		regions = models
	}
	var corners detect.CornerDetector
	if models.HasCornerModel() {
		corners = models
	}

	e := New(regions, corners, mask, bnr, cfg)
	e.models = models
	e.ownsMask = true
	return e, nil
}

// New 使用外部持有的模型句柄与素材构造引擎，mask 为 nil 时使用默认占位图
func New(regions detect.RegionDetector, corners detect.CornerDetector, mask *composite.Asset, bnr *banner.Banner, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	owns := mask == nil
	if owns {
		mask = composite.DefaultAsset()
	}
	return &Engine{
		reconciler: detect.NewReconciler(regions, corners, cfg.Detect),
		hasModels:  regions != nil || corners != nil,
		mask:       mask,
		ownsMask:   owns,
		banner:     bnr,
		cfg:        cfg,
		log:        cfg.Logger,
	}
}

// HasModels 是否至少有一个检测模型可用
func (e *Engine) HasModels() bool {
	return e.hasModels
}

// HasBanner 是否加载了横幅
func (e *Engine) HasBanner() bool {
	return e.banner != nil
}

// Process 解码 → 方向校正 → 检测 → 遮挡 → 质量检查 → 横幅 → 方向恢复 → 编码
//
// 没有检测到车牌不是错误，此时输出等同于对方向校正后的图像直接重新编码。
func (e *Engine) Process(data []byte, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	start := time.Now()
	if opts.ApplyBanner && e.banner == nil {
		return nil, ErrBannerUnavailable
	}

	img, format, tag, err := decode(data)
	if err != nil {
		return nil, err
	}

	res := &Result{Orientation: tag, Detections: []detect.Detection{}}
	if !opts.SkipMasking {
		if err = e.maskPlates(img, opts, res); err != nil {
			return nil, err
		}
	}

	var out image.Image = img
	if opts.ApplyBanner {
		out = e.banner.Apply(img, e.bannerOptions(opts))
	}
	restored := opts.RestoreOrientation && tag != orientation.Normal
	if restored {
		out = orientation.Apply(out, orientation.Invert(tag))
	}

	res.Output, res.Format, err = e.encode(out, format, data, opts.KeepMetadata, restored)
	if err != nil {
		return nil, err
	}
	res.Width, res.Height = out.Bounds().Dx(), out.Bounds().Dy()

	e.log.Debug().
		Int("detections", res.DetectionCount).
		Int("masked", res.Masked).
		Str("format", res.Format).
		Dur("elapsed", time.Since(start)).
		Msg("处理完成")
	return res, nil
}

// Detect 只检测不遮挡，坐标为方向校正后的图像坐标
func (e *Engine) Detect(data []byte, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	img, _, tag, err := decode(data)
	if err != nil {
		return nil, err
	}
	dets, lowLight, err := e.detect(img, opts)
	if err != nil {
		return nil, err
	}
	return &Result{
		DetectionCount: len(dets),
		Detections:     dets,
		Orientation:    tag,
		LowLight:       lowLight,
		Width:          img.Bounds().Dx(),
		Height:         img.Bounds().Dy(),
	}, nil
}

// DetectImage 对已解码的正向图像运行两阶段检测
func (e *Engine) DetectImage(img image.Image, opts Options) ([]detect.Detection, error) {
	opts = opts.withDefaults()
	dets, _, err := e.detect(img, opts)
	return dets, err
}

func (e *Engine) detect(img image.Image, opts Options) ([]detect.Detection, bool, error) {
	input, lowLight := img, false
	if opts.LowLight {
		input, lowLight = preprocess.ForDetection(img, e.cfg.LowLightThreshold)
	}

	var dets []detect.Detection
	var err error
	if opts.AutoRotate {
		dets, err = e.reconciler.ReconcileAutoRotate(input, opts.RegionConfidence, opts.CornerConfidence)
	} else {
		dets, err = e.reconciler.Reconcile(input, opts.RegionConfidence, opts.CornerConfidence)
	}
	if err != nil {
		return nil, lowLight, err
	}
	if dets == nil {
		dets = []detect.Detection{}
	}
	return dets, lowLight, nil
}

// maskPlates 检测并就地遮挡 img，结果写入 res
func (e *Engine) maskPlates(img *image.NRGBA, opts Options, res *Result) error {
	dets, lowLight, err := e.detect(img, opts)
	if err != nil {
		return err
	}
	res.Detections, res.DetectionCount, res.LowLight = dets, len(dets), lowLight

	copts := e.cfg.Composite
	copts.Opacity = clampUnit(opts.MaskOpacity)

	var original *image.NRGBA
	if opts.QualityCheck && len(dets) > 0 {
		original = imaging.Clone(img)
	}

	regions := make([]geometry.Quad, 0, len(dets))
	for _, d := range dets {
		var ok bool
		if opts.FillMode {
			ok = composite.Fill(img, d.Corners, e.cfg.FillColor, copts)
		} else {
			ok = composite.ApplyMask(img, d.Corners, e.mask, copts)
		}
		if !ok {
			e.log.Warn().Str("source", d.Source.String()).Float64("confidence", d.Confidence).Msg("四边形退化，跳过")
			continue
		}
		regions = append(regions, d.Corners)
	}
	res.Masked = len(regions)

	if !opts.QualityCheck || len(regions) == 0 {
		return nil
	}

	report, err := quality.VerifyNoLeak(img, regions, e.cfg.Quality)
	if err != nil {
		return fmt.Errorf("质量检查失败: %w", err)
	}
	if !report.OK {
		e.log.Warn().Str("reason", report.Reason).Msg("质量检查未通过")
		if opts.ForceFill {
			for _, q := range regions {
				composite.Fill(img, q, e.cfg.FillColor, copts)
			}
			res.Remediated = true
			if report, err = quality.VerifyNoLeak(img, regions, e.cfg.Quality); err != nil {
				return fmt.Errorf("质量检查失败: %w", err)
			}
		}
	}
	res.Quality = &report

	// 与遮挡前对比，确认边缘确实被抹除
	if res.Completeness, err = quality.CheckAllRegions(original, img, regions, e.cfg.Quality); err != nil {
		return fmt.Errorf("质量检查失败: %w", err)
	}
	if !quality.AllPassed(res.Completeness) {
		e.log.Warn().Msg("遮挡前后边缘下降不足")
	}
	return nil
}

func (e *Engine) bannerOptions(opts Options) banner.Options {
	bo := e.cfg.Banner
	bo.Mode = opts.BannerMode
	bo.Position = opts.BannerPosition
	bo.Opacity = clampUnit(opts.BannerOpacity)
	if opts.BannerBackground != nil {
		bo.Background = opts.BannerBackground
	}
	return bo
}

// decode 解码并按 Exif Orientation 转为正向
func decode(data []byte) (*image.NRGBA, string, orientation.Tag, error) {
	if len(data) == 0 {
		return nil, "", 0, fmt.Errorf("%w: 输入为空", ErrDecode)
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if src.Bounds().Empty() {
		return nil, "", 0, fmt.Errorf("%w: 图像尺寸为 0", ErrDecode)
	}
	tag := orientation.Read(data)
	return orientation.Apply(src, tag), format, tag, nil
}

// encode 按输入格式编码，没有对应编码器的格式（webp）输出为 JPEG
func (e *Engine) encode(img image.Image, inFormat string, src []byte, keepMeta, restored bool) ([]byte, string, error) {
	format, name := outputFormat(inFormat)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(e.cfg.JPEGQuality)); err != nil {
		return nil, "", fmt.Errorf("图像编码失败: %w", err)
	}
	out := buf.Bytes()

	if keepMeta && inFormat == "jpeg" && format == imaging.JPEG {
		if seg := orientation.ExifSegment(src); seg != nil {
			// 像素已转为正向时 Orientation 需要改为 1，恢复原方向时保持不变
			if !restored {
				seg = orientation.ResetOrientation(seg)
			}
			out = orientation.InjectExif(out, seg)
		}
	}
	return out, name, nil
}

func outputFormat(in string) (imaging.Format, string) {
	switch in {
	case "png":
		return imaging.PNG, "png"
	case "gif":
		return imaging.GIF, "gif"
	case "bmp":
		return imaging.BMP, "bmp"
	case "tiff":
		return imaging.TIFF, "tiff"
	default:
		return imaging.JPEG, "jpeg"
	}
}

func clampUnit(v float64) float64 {
	return min(1, max(0, v))
}

// Destroy 释放 NewEngine 创建的模型会话与素材，外部注入的句柄由调用方释放
func (e *Engine) Destroy() {
	if e.models != nil {
		e.models.Destroy()
	}
	if e.ownsMask {
		_ = e.mask.Close()
	}
}
