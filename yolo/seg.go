package yolo

import (
	"image"
	"math"

	"github.com/getcharzp/go-platemask/detect"
	"github.com/getcharzp/go-platemask/geometry"
	"gocv.io/x/gocv"
)

// postprocessSeg 解析 [1, 4+nc+32, N] 检测输出与 [1, 32, mh, mw] 掩码原型
func (e *Engine) postprocessSeg(output, protos []float32, lb letterbox, conf float64, imgW, imgH int) []detect.Region {
	channels := 4 + e.numClasses + numMaskCoeffs
	n := len(output) / channels
	if n == 0 {
		return nil
	}

	var candidates []candidate
	for i := 0; i < n; i++ {
		var score float32
		for c := 0; c < e.numClasses; c++ {
			score = max(score, output[(4+c)*n+i])
		}
		if float64(score) < conf {
			continue
		}
		candidates = append(candidates, candidate{box: decodeBox(output, n, i), score: score, index: i})
	}

	kept := nms(candidates)
	regions := make([]detect.Region, 0, len(kept))
	for _, c := range kept {
		coeffs := make([]float32, numMaskCoeffs)
		for j := range coeffs {
			coeffs[j] = output[(4+e.numClasses+j)*n+c.index]
		}

		var polygon []geometry.Point
		for _, p := range e.maskContour(coeffs, protos, c.box) {
			polygon = append(polygon, lb.toImage(float32(p.X)+0.5, float32(p.Y)+0.5, imgW, imgH))
		}

		regions = append(regions, detect.Region{
			Polygon:    polygon,
			Box:        lb.boxToImage(c.box, imgW, imgH),
			Confidence: float64(c.score),
		})
	}
	return regions
}

// maskContour 由原型系数合成掩码，上采样到网络输入尺寸并裁剪到检测框，返回最大外轮廓
func (e *Engine) maskContour(coeffs, protos []float32, box [4]float32) []image.Point {
	protoArea := len(protos) / numMaskCoeffs
	side := int(math.Sqrt(float64(protoArea)))
	if side == 0 || side*side != protoArea {
		return nil
	}

	small := gocv.NewMatWithSize(side, side, gocv.MatTypeCV32F)
	defer small.Close()
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			var v float32
			for j, k := range coeffs {
				v += k * protos[j*protoArea+y*side+x]
			}
			small.SetFloatAt(y, x, float32(1/(1+math.Exp(-float64(v)))))
		}
	}

	size := e.inputSize
	full := gocv.NewMat()
	defer full.Close()
	gocv.Resize(small, &full, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)

	probs, err := full.DataPtrFloat32()
	if err != nil {
		return nil
	}

	x1 := max(0, int(box[0]))
	y1 := max(0, int(box[1]))
	x2 := min(size, int(math.Ceil(float64(box[2]))))
	y2 := min(size, int(math.Ceil(float64(box[3]))))

	binary := make([]byte, size*size)
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			if probs[y*size+x] > 0.5 {
				binary[y*size+x] = 255
			}
		}
	}

	mask, err := gocv.NewMatFromBytes(size, size, gocv.MatTypeCV8U, binary)
	if err != nil {
		return nil
	}
	defer mask.Close()

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best, bestArea := -1, 0.0
	for i := 0; i < contours.Size(); i++ {
		if area := gocv.ContourArea(contours.At(i)); area > bestArea {
			best, bestArea = i, area
		}
	}
	if best < 0 {
		return nil
	}
	return contours.At(best).ToPoints()
}
