package platemask

import (
	"errors"

	"github.com/getcharzp/go-platemask/detect"
)

var (
	// ErrDecode 输入为空或无法解码
	ErrDecode = errors.New("图像解码失败")
	// ErrModelUnavailable 模型加载或初始化失败
	ErrModelUnavailable = detect.ErrModelUnavailable
	// ErrInference 推理运行失败
	ErrInference = detect.ErrInference
	// ErrBannerUnavailable 请求了横幅但引擎没有加载横幅
	ErrBannerUnavailable = errors.New("横幅未加载")
)
