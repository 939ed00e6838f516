package yolo

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/getcharzp/go-platemask/detect"
	"github.com/getcharzp/go-platemask/geometry"
	"github.com/getcharzp/go-platemask/internal/onnx"
	ort "github.com/getcharzp/onnxruntime_purego"
	"github.com/up-zero/gotool/convertutil"
	"github.com/up-zero/gotool/imageutil"
)

const (
	defaultInputSize = 640
	padValue         = 114.0 / 255.0
	iouThreshold     = 0.7
	numMaskCoeffs    = 32
)

var (
	_ detect.RegionDetector = (*Engine)(nil)
	_ detect.CornerDetector = (*Engine)(nil)
)

// NewEngine 初始化引擎，只加载配置了路径的模型
func NewEngine(cfg Config) (*Engine, error) {
	oc := new(onnx.Config)
	_ = convertutil.CopyProperties(cfg, oc)

	if err := oc.New(); err != nil {
		return nil, fmt.Errorf("%w: %v", detect.ErrModelUnavailable, err)
	}

	engine := &Engine{
		inputSize:    cfg.InputSize,
		numClasses:   cfg.NumClasses,
		numKeypoints: cfg.NumKeypoints,
	}
	if engine.inputSize <= 0 {
		engine.inputSize = defaultInputSize
	}
	if engine.numClasses <= 0 {
		engine.numClasses = 1
	}
	if engine.numKeypoints <= 0 {
		engine.numKeypoints = 4
	}

	if cfg.RegionModelPath != "" {
		session, err := oc.OnnxEngine.NewSession(cfg.RegionModelPath, oc.SessionOptions)
		if err != nil {
			return nil, fmt.Errorf("%w: 创建分割会话失败: %v", detect.ErrModelUnavailable, err)
		}
		engine.regionSession = session
	}

	if cfg.CornerModelPath != "" {
		session, err := oc.OnnxEngine.NewSession(cfg.CornerModelPath, oc.SessionOptions)
		if err != nil {
			engine.Destroy()
			return nil, fmt.Errorf("%w: 创建角点会话失败: %v", detect.ErrModelUnavailable, err)
		}
		engine.cornerSession = session
	}

	return engine, nil
}

// HasRegionModel 分割模型是否已加载
func (e *Engine) HasRegionModel() bool { return e.regionSession != nil }

// HasCornerModel 角点模型是否已加载
func (e *Engine) HasCornerModel() bool { return e.cornerSession != nil }

// DetectRegions 车牌分割
func (e *Engine) DetectRegions(img image.Image, conf float64) ([]detect.Region, error) {
	if e.regionSession == nil {
		return nil, fmt.Errorf("分割模型未初始化")
	}

	inputData, lb := e.preprocess(img)
	outputs, err := e.run(e.regionSession, inputData, "output0", "output1")
	if err != nil {
		return nil, fmt.Errorf("分割推理失败: %w", err)
	}

	b := img.Bounds()
	return e.postprocessSeg(outputs[0], outputs[1], lb, conf, b.Dx(), b.Dy()), nil
}

// DetectCorners 车牌四角关键点
func (e *Engine) DetectCorners(img image.Image, conf float64) ([]detect.CornerHit, error) {
	if e.cornerSession == nil {
		return nil, fmt.Errorf("角点模型未初始化")
	}

	inputData, lb := e.preprocess(img)
	outputs, err := e.run(e.cornerSession, inputData, "output0")
	if err != nil {
		return nil, fmt.Errorf("角点推理失败: %w", err)
	}

	b := img.Bounds()
	return e.postprocessPose(outputs[0], lb, conf, b.Dx(), b.Dy()), nil
}

// run 执行一次推理并拷贝出指定输出
func (e *Engine) run(session *ort.Session, inputData []float32, names ...string) ([][]float32, error) {
	size := int64(e.inputSize)
	inputShape := []int64{1, 3, size, size}
	inputTensor, err := ort.NewTensor(inputShape, inputData)
	if err != nil {
		return nil, err
	}
	defer inputTensor.Destroy()

	inputValues := map[string]*ort.Value{
		"images": inputTensor,
	}

	e.mu.Lock()
	outputValues, err := session.Run(inputValues)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, v := range outputValues {
			v.Destroy()
		}
	}()

	results := make([][]float32, len(names))
	for i, name := range names {
		outputValue, ok := outputValues[name]
		if !ok {
			return nil, fmt.Errorf("缺少输出节点 %s", name)
		}
		outputData, err := ort.GetTensorData[float32](outputValue)
		if err != nil {
			return nil, fmt.Errorf("获取输出 %s 失败: %w", name, err)
		}
		results[i] = append([]float32(nil), outputData...)
	}
	return results, nil
}

// preprocess 等比缩放后居中填充到 inputSize x inputSize，RGB 平面排列，归一化到 [0, 1]
func (e *Engine) preprocess(img image.Image) ([]float32, letterbox) {
	size := e.inputSize
	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()

	ratio := min(float64(size)/float64(srcH), float64(size)/float64(srcW))
	newW := max(1, min(size, int(math.Round(float64(srcW)*ratio))))
	newH := max(1, min(size, int(math.Round(float64(srcH)*ratio))))
	padX := (size - newW) / 2
	padY := (size - newH) / 2

	resized := imageutil.Resize(img, newW, newH)
	rb := resized.Bounds()

	area := size * size
	data := make([]float32, 3*area)
	for i := range data {
		data[i] = padValue
	}

	for y := 0; y < newH; y++ {
		row := (y + padY) * size
		for x := 0; x < newW; x++ {
			r, g, b, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			idx := row + x + padX
			data[0*area+idx] = float32(r>>8) / 255.0
			data[1*area+idx] = float32(g>>8) / 255.0
			data[2*area+idx] = float32(b>>8) / 255.0
		}
	}

	return data, letterbox{ratio: ratio, padX: float64(padX), padY: float64(padY)}
}

// toImage 网络坐标映射回原图并裁剪到图像范围
func (lb letterbox) toImage(x, y float32, imgW, imgH int) geometry.Point {
	px := (float64(x) - lb.padX) / lb.ratio
	py := (float64(y) - lb.padY) / lb.ratio
	return geometry.Point{
		X: min(max(px, 0), float64(imgW)),
		Y: min(max(py, 0), float64(imgH)),
	}
}

func (lb letterbox) boxToImage(box [4]float32, imgW, imgH int) geometry.Box {
	p1 := lb.toImage(box[0], box[1], imgW, imgH)
	p2 := lb.toImage(box[2], box[3], imgW, imgH)
	return geometry.NewBox(p1.X, p1.Y, p2.X, p2.Y)
}

// decodeBox 读取第 i 个锚点的 cx, cy, w, h（输出为 [1, C, N] 通道优先）
func decodeBox(output []float32, n, i int) [4]float32 {
	cx := output[0*n+i]
	cy := output[1*n+i]
	w := output[2*n+i]
	h := output[3*n+i]
	return [4]float32{cx - w/2, cy - h/2, cx + w/2, cy + h/2}
}

func nms(boxes []candidate) []candidate {
	if len(boxes) == 0 {
		return nil
	}
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].score > boxes[j].score
	})

	var result []candidate
	for len(boxes) > 0 {
		current := boxes[0]
		result = append(result, current)
		boxes = boxes[1:]

		var remaining []candidate
		for _, b := range boxes {
			if calculateIOU(current, b) < iouThreshold {
				remaining = append(remaining, b)
			}
		}
		boxes = remaining
	}
	return result
}

func calculateIOU(a, b candidate) float32 {
	ix1 := max(a.box[0], b.box[0])
	iy1 := max(a.box[1], b.box[1])
	ix2 := min(a.box[2], b.box[2])
	iy2 := min(a.box[3], b.box[3])

	iw := max(0, ix2-ix1)
	ih := max(0, iy2-iy1)
	inter := iw * ih

	areaA := (a.box[2] - a.box[0]) * (a.box[3] - a.box[1])
	areaB := (b.box[2] - b.box[0]) * (b.box[3] - b.box[1])

	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func (e *Engine) Destroy() {
	if e.regionSession != nil {
		e.regionSession.Destroy()
	}
	if e.cornerSession != nil {
		e.cornerSession.Destroy()
	}
}
