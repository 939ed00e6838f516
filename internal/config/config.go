package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	platemask "github.com/getcharzp/go-platemask"
	"github.com/getcharzp/go-platemask/banner"
	"github.com/getcharzp/go-platemask/internal/util"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config 进程级配置，来自 .env 与环境变量
type Config struct {
	OnnxRuntimeLibPath string
	RegionModelPath    string
	CornerModelPath    string
	MaskPath           string
	BannerPath         string

	RegionConf  float64
	CornerConf  float64
	ConfirmIoU  float64
	NMSIoU      float64
	MaskOpacity float64

	BannerMode      banner.Mode
	BannerPosition  banner.Position
	BannerOpacity   float64
	BannerBG        string
	BannerMaxHeight float64

	QualityCheck bool
	LowLight     bool
	AutoRotate   bool

	LogLevel  string
	LogPretty bool

	HTTPAddr      string
	MaxUploadSize int64

	DatabaseURL string
	StorageRoot string
	S3Bucket    string
	S3Prefix    string
	AWSRegion   string
	TrackerDir  string

	ImageTimeout time.Duration
}

// Load 读取 .env（不存在时忽略）与环境变量
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	cfg := &Config{
		OnnxRuntimeLibPath: getEnv("ORT_LIB_PATH", platemask.DefaultLibraryPath()),
		RegionModelPath:    getEnv("REGION_MODEL_PATH", platemask.DefaultRegionModelPath()),
		CornerModelPath:    getEnv("CORNER_MODEL_PATH", platemask.DefaultCornerModelPath()),
		MaskPath:           getEnv("MASK_PATH", ""),
		BannerPath:         getEnv("BANNER_PATH", ""),

		RegionConf:  getFloat("REGION_CONF", 0.3),
		CornerConf:  getFloat("CORNER_CONF", 0.2),
		ConfirmIoU:  getFloat("CONFIRM_IOU", 0.3),
		NMSIoU:      getFloat("NMS_IOU", 0.3),
		MaskOpacity: getFloat("MASK_OPACITY", 1),

		BannerOpacity:   getFloat("BANNER_OPACITY", 1),
		BannerBG:        getEnv("BANNER_BG", "#FFFFFF"),
		BannerMaxHeight: getFloat("BANNER_MAX_HEIGHT", 0.25), // 横幅最多占图像高度的 1/4，0 = 不限制

		QualityCheck: getBool("QUALITY_CHECK", false),
		LowLight:     getBool("LOW_LIGHT", false),
		AutoRotate:   getBool("AUTO_ROTATE", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getBool("LOG_PRETTY", false),

		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		MaxUploadSize: int64(getInt("MAX_UPLOAD_MB", 10)) << 20,

		DatabaseURL: getEnv("DATABASE_URL", ""),
		StorageRoot: getEnv("STORAGE_ROOT", "./storage"),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3Prefix:    getEnv("S3_PREFIX", ""),
		AWSRegion:   getEnv("AWS_REGION", "ap-northeast-1"),
		TrackerDir:  getEnv("TRACKER_DIR", "./tracker"),

		ImageTimeout: getDuration("IMAGE_TIMEOUT", 2*time.Minute),
	}

	var err error
	if cfg.BannerMode, err = banner.ParseMode(getEnv("BANNER_MODE", "overlay")); err != nil {
		return nil, err
	}
	if cfg.BannerPosition, err = banner.ParsePosition(getEnv("BANNER_POSITION", "bottom")); err != nil {
		return nil, err
	}
	if _, err = util.ParseHexColor(cfg.BannerBG); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Engine 转换为引擎配置
func (c *Config) Engine(log zerolog.Logger) platemask.Config {
	ec := platemask.DefaultConfig()
	ec.OnnxRuntimeLibPath = c.OnnxRuntimeLibPath
	ec.RegionModelPath = c.RegionModelPath
	ec.CornerModelPath = c.CornerModelPath
	ec.MaskPath = c.MaskPath
	ec.BannerPath = c.BannerPath
	ec.Detect.ConfirmIoU = c.ConfirmIoU
	ec.Detect.NMSIoU = c.NMSIoU
	ec.Banner.MaxHeightFraction = c.BannerMaxHeight
	if bg, err := util.ParseHexColor(c.BannerBG); err == nil {
		ec.Banner.Background = bg
	}
	ec.Logger = log
	return ec
}

// Options 转换为默认处理选项
func (c *Config) Options() platemask.Options {
	opts := platemask.DefaultOptions()
	opts.RegionConfidence = c.RegionConf
	opts.CornerConfidence = c.CornerConf
	opts.MaskOpacity = c.MaskOpacity
	opts.BannerMode = c.BannerMode
	opts.BannerPosition = c.BannerPosition
	opts.BannerOpacity = c.BannerOpacity
	opts.QualityCheck = c.QualityCheck
	opts.LowLight = c.LowLight
	opts.AutoRotate = c.AutoRotate
	return opts
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}
