package yolo

import (
	"sync"

	ort "github.com/getcharzp/onnxruntime_purego"
)

// Config YOLO 车牌模型配置信息
type Config struct {
	RegionModelPath    string // 分割模型 (YOLOv8-seg)
	CornerModelPath    string // 角点模型 (YOLOv8-pose, 4 个关键点)
	OnnxRuntimeLibPath string
	InputSize          int // 0 = 640
	NumClasses         int // 分割模型类别数，0 = 1
	NumKeypoints       int // 角点模型关键点数，0 = 4
}

// Engine YOLO 推理引擎，同一时刻只允许一次推理
type Engine struct {
	regionSession *ort.Session
	cornerSession *ort.Session
	inputSize     int
	numClasses    int
	numKeypoints  int

	mu sync.Mutex
}

// candidate 网络输入坐标系下的候选框
type candidate struct {
	box   [4]float32 // [x1, y1, x2, y2]
	score float32
	index int // 在输出张量中的锚点序号
}

// letterbox 预处理时的缩放与填充
type letterbox struct {
	ratio      float64
	padX, padY float64
}
