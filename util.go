package platemask

import (
	"fmt"
	"runtime"
)

// DefaultLibraryPath 根据运行时环境判断加载哪个 onnxruntime 库文件
func DefaultLibraryPath() string {
	baseDir := "./lib/"
	libName := "onnxruntime"

	if runtime.GOOS == "windows" {
		return baseDir + libName + ".dll"
	}

	var ext string
	switch runtime.GOOS {
	case "darwin":
		ext = "dylib"
	case "linux":
		ext = "so"
	default:
		return baseDir + libName + "_amd64.so"
	}

	// ./lib/onnxruntime_arm64.so
	return fmt.Sprintf("%s%s_%s.%s", baseDir, libName, runtime.GOARCH, ext)
}

// DefaultWeightsDir 默认模型目录
const DefaultWeightsDir = "./platemask_weights/"

// DefaultRegionModelPath 默认分割模型
func DefaultRegionModelPath() string {
	return DefaultWeightsDir + "plate_seg.onnx"
}

// DefaultCornerModelPath 默认角点模型
func DefaultCornerModelPath() string {
	return DefaultWeightsDir + "plate_pose.onnx"
}
