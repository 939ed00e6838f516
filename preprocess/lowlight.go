package preprocess

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/up-zero/gotool/imageutil"
	"gocv.io/x/gocv"
)

const (
	DefaultLowLightThreshold = 80.0
	claheClipLimit           = 2.0
	claheTileSize            = 8
	detectionGamma           = 0.8
)

// MeanBrightness 灰度均值
func MeanBrightness(img image.Image) float64 {
	gray := imageutil.Grayscale(img)
	b := gray.Bounds()
	if b.Empty() {
		return 0
	}
	var sum float64
	for y := 0; y < b.Dy(); y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+b.Dx()]
		for _, v := range row {
			sum += float64(v)
		}
	}
	return sum / float64(b.Dx()*b.Dy())
}

// IsLowLight 灰度均值低于 threshold 视为低照度
func IsLowLight(img image.Image, threshold float64) bool {
	return MeanBrightness(img) < threshold
}

// ForDetection 低照度图像做 CLAHE + gamma 校正后返回，正常图像原样返回
//
// 只用于检测输入，输出图像不做增强。
func ForDetection(img image.Image, threshold float64) (image.Image, bool) {
	if !IsLowLight(img, threshold) {
		return img, false
	}
	enhanced, err := CLAHE(img)
	if err != nil {
		return img, false
	}
	return imaging.AdjustGamma(enhanced, detectionGamma), true
}

// CLAHE 在 Lab 空间的亮度通道上做限制对比度自适应直方图均衡
func CLAHE(img image.Image) (*image.NRGBA, error) {
	src := imaging.Clone(img)
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	rgb := make([]byte, w*h*3)
	for i, j := 0, 0; i < len(src.Pix); i, j = i+4, j+3 {
		rgb[j], rgb[j+1], rgb[j+2] = src.Pix[i], src.Pix[i+1], src.Pix[i+2]
	}

	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, rgb)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(mat, &lab, gocv.ColorRGBToLab)

	channels := gocv.Split(lab)
	defer func() {
		for _, c := range channels {
			c.Close()
		}
	}()

	clahe := gocv.NewCLAHEWithParams(claheClipLimit, image.Pt(claheTileSize, claheTileSize))
	defer clahe.Close()

	l := gocv.NewMat()
	defer l.Close()
	clahe.Apply(channels[0], &l)
	l.CopyTo(&channels[0])

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(channels, &merged)

	out := gocv.NewMat()
	defer out.Close()
	gocv.CvtColor(merged, &out, gocv.ColorLabToRGB)

	data := out.ToBytes()
	for i, j := 0, 0; i < len(src.Pix); i, j = i+4, j+3 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2] = data[j], data[j+1], data[j+2]
	}
	return src, nil
}
