package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	platemask "github.com/getcharzp/go-platemask"
	"github.com/getcharzp/go-platemask/banner"
	"github.com/getcharzp/go-platemask/detect"
	"github.com/getcharzp/go-platemask/internal/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Processor *platemask.Engine 实现了它
type Processor interface {
	Process(data []byte, opts platemask.Options) (*platemask.Result, error)
	Detect(data []byte, opts platemask.Options) (*platemask.Result, error)
	HasModels() bool
	HasBanner() bool
}

// Server HTTP 接口
type Server struct {
	engine    Processor
	defaults  platemask.Options
	maxUpload int64
	log       zerolog.Logger
}

// New maxUpload <= 0 时为 10MB
func New(engine Processor, defaults platemask.Options, maxUpload int64, log zerolog.Logger) *Server {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Server{engine: engine, defaults: defaults, maxUpload: maxUpload, log: log}
}

// Router 注册路由
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestID(), s.accessLog())
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-Request-ID, accept, origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/health", s.health)
	r.POST("/predict", s.predict)
	r.POST("/detect", s.detect)
	r.POST("/overlay", s.overlay)
	return r
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("请求完成")
	}
}

// health 没有可用模型时返回 503
func (s *Server) health(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	if !s.engine.HasModels() {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":        status,
		"model_loaded":  s.engine.HasModels(),
		"banner_loaded": s.engine.HasBanner(),
	})
}

type detectionDTO struct {
	BBox       [4]int   `json:"bbox"` // [x, y, w, h]
	Confidence float64  `json:"confidence"`
	Polygon    [][2]int `json:"polygon"`
	Source     string   `json:"source"`
}

func toDTO(dets []detect.Detection) []detectionDTO {
	out := make([]detectionDTO, 0, len(dets))
	for _, d := range dets {
		b := d.Box().Rect()
		poly := make([][2]int, 0, 4)
		for _, p := range d.Corners.Points() {
			poly = append(poly, [2]int{int(p.X + 0.5), int(p.Y + 0.5)})
		}
		out = append(out, detectionDTO{
			BBox:       [4]int{b.Min.X, b.Min.Y, b.Dx(), b.Dy()},
			Confidence: d.Confidence,
			Polygon:    poly,
			Source:     d.Source.String(),
		})
	}
	return out
}

// predict 遮挡车牌并返回 base64 图像
func (s *Server) predict(c *gin.Context) {
	data, ok := s.readImage(c)
	if !ok {
		return
	}

	opts := s.defaults
	opts.AutoRotate = formBool(c, "auto_rotate", true)
	opts.LowLight = formBool(c, "low_light_fix", opts.LowLight)
	opts.QualityCheck = formBool(c, "quality_check", opts.QualityCheck)
	opts.ForceFill = opts.QualityCheck
	switch mode := c.DefaultPostForm("mask_mode", "fill"); mode {
	case "fill":
		opts.FillMode = true
	case "image":
		opts.FillMode = false
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mask_mode 只能是 fill 或 image: " + mode})
		return
	}

	res, err := s.engine.Process(data, opts)
	if err != nil {
		s.fail(c, err)
		return
	}

	msg := fmt.Sprintf("检测到 %d 个车牌", res.DetectionCount)
	if res.Remediated {
		msg += "，质量检查未通过，已用白色填充"
	}
	c.JSON(http.StatusOK, gin.H{
		"image":      base64.StdEncoding.EncodeToString(res.Output),
		"format":     res.Format,
		"detections": toDTO(res.Detections),
		"count":      res.DetectionCount,
		"quality":    res.Quality,
		"message":    msg,
	})
}

// detect 只返回检测结果
func (s *Server) detect(c *gin.Context) {
	data, ok := s.readImage(c)
	if !ok {
		return
	}
	opts := s.defaults
	opts.AutoRotate = formBool(c, "auto_rotate", true)
	opts.LowLight = formBool(c, "low_light_fix", opts.LowLight)

	res, err := s.engine.Detect(data, opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":      res.DetectionCount,
		"detections": toDTO(res.Detections),
		"width":      res.Width,
		"height":     res.Height,
	})
}

// overlay 合成横幅，可选同时遮挡车牌
func (s *Server) overlay(c *gin.Context) {
	if !s.engine.HasBanner() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": platemask.ErrBannerUnavailable.Error()})
		return
	}
	data, ok := s.readImage(c)
	if !ok {
		return
	}

	opts := s.defaults
	opts.ApplyBanner = true
	opts.AutoRotate = formBool(c, "auto_rotate", true)
	opts.SkipMasking = !formBool(c, "mask_plate", true)

	var err error
	if opts.BannerMode, err = banner.ParseMode(c.DefaultPostForm("mode", opts.BannerMode.String())); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if opts.BannerPosition, err = banner.ParsePosition(c.DefaultPostForm("position", opts.BannerPosition.String())); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if v := c.PostForm("opacity"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "opacity 无效: " + v})
			return
		}
		opts.BannerOpacity = min(1, max(0, f))
	}
	if v := c.PostForm("bg_color"); v != "" {
		bg, err := util.ParseHexColor(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		opts.BannerBackground = bg
	}

	res, err := s.engine.Process(data, opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"image":         base64.StdEncoding.EncodeToString(res.Output),
		"mode":          opts.BannerMode.String(),
		"position":      opts.BannerPosition.String(),
		"opacity":       opts.BannerOpacity,
		"plate_masked":  !opts.SkipMasking,
		"plates_count":  res.DetectionCount,
		"output_width":  res.Width,
		"output_height": res.Height,
	})
}

// readImage 读取 multipart 的 image 字段，失败时已写好响应
func (s *Server) readImage(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+1<<20)
	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "文件过大"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 image 字段"})
		return nil, false
	}
	if fh.Size > s.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("文件过大，最大 %dMB", s.maxUpload>>20)})
		return nil, false
	}
	if ct := fh.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "文件必须是图像"})
		return nil, false
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return data, true
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, platemask.ErrDecode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, platemask.ErrBannerUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		s.log.Error().Err(err).Str("request_id", c.GetString("request_id")).Msg("处理失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "处理失败", "details": err.Error()})
	}
}

func formBool(c *gin.Context, key string, fallback bool) bool {
	v, err := strconv.ParseBool(c.PostForm(key))
	if err != nil {
		return fallback
	}
	return v
}
