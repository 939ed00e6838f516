package banner

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/getcharzp/go-platemask/internal/util"
)

// Mode 合成方式
type Mode int

const (
	ModeOverlay Mode = iota // 直接叠加，尺寸不变
	ModeExtend              // 扩展画布高度放置横幅
	ModeFit                 // 缩小原图腾出横幅空间，尺寸不变
)

var modeNames = [...]string{"overlay", "extend", "fit"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseMode 由名称解析
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if name == s {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("未知横幅模式: %q", s)
}

// Position 横幅位置
type Position int

const (
	Bottom Position = iota
	Top
)

func (p Position) String() string {
	if p == Top {
		return "top"
	}
	return "bottom"
}

// ParsePosition 由名称解析
func ParsePosition(s string) (Position, error) {
	switch s {
	case "bottom":
		return Bottom, nil
	case "top":
		return Top, nil
	}
	return 0, fmt.Errorf("未知横幅位置: %q", s)
}

// Options 合成参数
type Options struct {
	Mode     Mode
	Position Position
	Opacity  float64 // 在横幅自身 alpha 之上再乘的系数 [0, 1]
	// Background extend/fit 模式下空白区域的颜色
	Background color.Color
	// MaxHeightFraction 横幅高度上限（相对原图高度），0 = 不限制
	MaxHeightFraction float64
}

// DefaultOptions 默认参数：底部直接叠加
func DefaultOptions() Options {
	return Options{
		Mode:       ModeOverlay,
		Position:   Bottom,
		Opacity:    1,
		Background: color.White,
	}
}

// Banner 横幅图像，加载后只读
type Banner struct {
	img *image.NRGBA
}

// New 由图像构造
func New(img image.Image) (*Banner, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("横幅图像为空")
	}
	return &Banner{img: imaging.Clone(img)}, nil
}

// Load 从文件加载横幅，进程启动时调用，失败即退出
func Load(path string) (*Banner, error) {
	img, err := util.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("加载横幅失败: %w", err)
	}
	return New(img)
}

// ScaledHeight 横幅缩放到 width 宽时的高度
func (b *Banner) ScaledHeight(width, imgH int, opts Options) int {
	bw, bh := b.img.Bounds().Dx(), b.img.Bounds().Dy()
	h := int(float64(bh) * float64(width) / float64(bw))
	if opts.MaxHeightFraction > 0 {
		h = min(h, int(float64(imgH)*opts.MaxHeightFraction))
	}
	return max(1, h)
}

func (b *Banner) scaled(width, height int) *image.NRGBA {
	filter := imaging.Box
	if width > b.img.Bounds().Dx() {
		filter = imaging.Linear
	}
	return imaging.Resize(b.img, width, height, filter)
}

// Apply 按 opts 将横幅合成到 img 上，返回新图像
func (b *Banner) Apply(img image.Image, opts Options) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	bh := b.ScaledHeight(w, h, opts)
	strip := b.scaled(w, bh)

	bg := opts.Background
	if bg == nil {
		bg = color.White
	}

	switch opts.Mode {
	case ModeExtend:
		canvas := imaging.New(w, h+bh, bg)
		imgY, bannerY := 0, h
		if opts.Position == Top {
			imgY, bannerY = bh, 0
		}
		canvas = imaging.Paste(canvas, img, image.Pt(0, imgY))
		return imaging.Overlay(canvas, strip, image.Pt(0, bannerY), opts.Opacity)

	case ModeFit:
		available := h - bh
		if available <= 0 {
			available = h / 2
		}
		scale := min(1.0, float64(available)/float64(h))
		nw := max(1, int(float64(w)*scale))
		nh := max(1, int(float64(h)*scale))
		resized := imaging.Resize(img, nw, nh, imaging.Box)

		canvas := imaging.New(w, h, bg)
		x := (w - nw) / 2
		y, bannerY := (available-nh)/2, h-bh
		if opts.Position == Top {
			y, bannerY = bh+(available-nh)/2, 0
		}
		canvas = imaging.Paste(canvas, resized, image.Pt(x, y))
		return imaging.Overlay(canvas, strip, image.Pt(0, bannerY), opts.Opacity)

	default:
		bannerY := h - bh
		if opts.Position == Top {
			bannerY = 0
		}
		return imaging.Overlay(img, strip, image.Pt(0, bannerY), opts.Opacity)
	}
}
