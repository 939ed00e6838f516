package orientation

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// Tag EXIF Orientation 取值 (1-8)
type Tag int

const (
	Normal     Tag = 1 // 原样
	FlipH      Tag = 2 // 水平翻转
	Rotate180  Tag = 3 // 旋转 180°
	FlipV      Tag = 4 // 垂直翻转
	Transpose  Tag = 5 // 沿主对角线翻转
	Rotate90CW Tag = 6 // 顺时针 90°
	Transverse Tag = 7 // 沿副对角线翻转
	Rotate90CC Tag = 8 // 逆时针 90°
)

// Valid 是否为合法取值
func (t Tag) Valid() bool {
	return t >= Normal && t <= Rotate90CC
}

// SwapsAxes 变换后宽高是否互换
func (t Tag) SwapsAxes() bool {
	return t >= Transpose && t <= Rotate90CC
}

// Read 读取图像字节中的 Orientation，缺失或无法解析时返回 Normal，不会报错
func Read(data []byte) Tag {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return Normal
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return Normal
	}
	v, err := tag.Int(0)
	if err != nil {
		return Normal
	}
	if t := Tag(v); t.Valid() {
		return t
	}
	return Normal
}

// Apply 按 Orientation 执行翻转/旋转，使图像回到正向；总是返回新图像
func Apply(img image.Image, t Tag) *image.NRGBA {
	switch t {
	case FlipH:
		return imaging.FlipH(img)
	case Rotate180:
		return imaging.Rotate180(img)
	case FlipV:
		return imaging.FlipV(img)
	case Transpose:
		return imaging.Transpose(img)
	case Rotate90CW:
		// imaging 按逆时针计角度
		return imaging.Rotate270(img)
	case Transverse:
		return imaging.Transverse(img)
	case Rotate90CC:
		return imaging.Rotate90(img)
	default:
		return imaging.Clone(img)
	}
}

// Invert 返回能撤销 Apply(t) 的取值
func Invert(t Tag) Tag {
	switch t {
	case Rotate90CW:
		return Rotate90CC
	case Rotate90CC:
		return Rotate90CW
	case FlipH, Rotate180, FlipV, Transpose, Transverse:
		return t
	default:
		return Normal
	}
}
