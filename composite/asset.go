package composite

import (
	"fmt"
	"image"
	"image/color"

	"github.com/getcharzp/go-platemask/internal/util"
	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// Asset 遮挡用的占位图，加载后只读
//
// 像素以预乘 RGBA 保存，透视变换时透明边界不会把黑色混入边缘。
type Asset struct {
	width, height int
	pix           []byte
	mat           gocv.Mat
}

// NewAsset 从任意图像构造
func NewAsset(img image.Image) (*Asset, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("遮挡图为空")
	}

	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return nil, fmt.Errorf("创建遮挡图矩阵失败: %w", err)
	}

	return &Asset{
		width:  b.Dx(),
		height: b.Dy(),
		pix:    rgba.Pix,
		mat:    mat,
	}, nil
}

// LoadAsset 从文件加载遮挡图
func LoadAsset(path string) (*Asset, error) {
	img, err := util.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("加载遮挡图失败: %w", err)
	}
	return NewAsset(img)
}

// DefaultAsset 200x100 纯白占位图
func DefaultAsset() *Asset {
	img := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	asset, _ := NewAsset(img)
	return asset
}

// Size 宽高
func (a *Asset) Size() (int, int) {
	return a.width, a.height
}

// Close 释放矩阵
func (a *Asset) Close() error {
	return a.mat.Close()
}
