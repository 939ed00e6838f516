package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	platemask "github.com/getcharzp/go-platemask"
	"github.com/getcharzp/go-platemask/banner"
	"github.com/getcharzp/go-platemask/internal/config"
	"github.com/getcharzp/go-platemask/internal/logging"
	"github.com/getcharzp/go-platemask/internal/util"
	"github.com/getcharzp/go-platemask/orientation"
	"github.com/rs/zerolog"
)

type job struct {
	in, out string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var (
		output     string
		bannerPath string
		bannerMode string
		bannerPos  string
		regionConf float64
		cornerConf float64
		qualityChk bool
		forceFill  bool
		fill       bool
		autoRotate bool
		lowLight   bool
		debug      bool
		verbose    bool
	)
	flag.StringVar(&output, "output", "", "输出文件或目录，默认 <名称>_masked<扩展名> 或 <目录>/output")
	flag.StringVar(&bannerPath, "banner", cfg.BannerPath, "横幅图像路径，设置后合成横幅")
	flag.StringVar(&bannerMode, "banner-mode", cfg.BannerMode.String(), "横幅模式: overlay | extend | fit")
	flag.StringVar(&bannerPos, "banner-position", cfg.BannerPosition.String(), "横幅位置: bottom | top")
	flag.Float64Var(&regionConf, "seg-conf", cfg.RegionConf, "分割模型置信度阈值")
	flag.Float64Var(&cornerConf, "pose-conf", cfg.CornerConf, "角点模型置信度阈值")
	flag.BoolVar(&qualityChk, "quality", cfg.QualityCheck, "遮挡后检查车牌区域是否仍可辨认")
	flag.BoolVar(&forceFill, "force-fill", false, "质量检查未通过时用白色重新填充")
	flag.BoolVar(&fill, "fill", false, "用纯色填充代替遮挡图")
	flag.BoolVar(&autoRotate, "auto-rotate", cfg.AutoRotate, "没有结果时尝试旋转后再检测")
	flag.BoolVar(&lowLight, "low-light", cfg.LowLight, "低照度增强")
	flag.BoolVar(&debug, "debug", false, "额外输出标注了检测框的 _debug.png")
	flag.BoolVar(&verbose, "verbose", false, "输出调试日志")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "用法: platemask [选项] <图像或目录>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	log := logging.New(level, true)

	opts := cfg.Options()
	opts.RegionConfidence = regionConf
	opts.CornerConfidence = cornerConf
	opts.QualityCheck = qualityChk || forceFill
	opts.ForceFill = forceFill
	opts.FillMode = fill
	opts.AutoRotate = autoRotate
	opts.LowLight = lowLight
	opts.ApplyBanner = bannerPath != ""
	if opts.BannerMode, err = banner.ParseMode(bannerMode); err != nil {
		log.Fatal().Err(err).Send()
	}
	if opts.BannerPosition, err = banner.ParsePosition(bannerPos); err != nil {
		log.Fatal().Err(err).Send()
	}

	jobs, err := plan(flag.Arg(0), output)
	if err != nil {
		log.Fatal().Err(err).Msg("读取输入失败")
	}

	ec := cfg.Engine(log)
	ec.BannerPath = bannerPath
	engine, err := platemask.NewEngine(ec)
	if err != nil {
		log.Fatal().Err(err).Msg("创建引擎失败")
	}
	defer engine.Destroy()

	start := time.Now()
	var failed, plates int
	for _, j := range jobs {
		n, err := run(engine, j, opts, debug, log)
		if err != nil {
			failed++
			log.Error().Err(err).Str("image", j.in).Msg("处理失败")
			continue
		}
		plates += n
	}
	log.Info().
		Int("images", len(jobs)).
		Int("failed", failed).
		Int("plates", plates).
		Dur("elapsed", time.Since(start)).
		Msg("完成")
	if failed > 0 {
		os.Exit(1)
	}
}

// plan 展开输入：目录处理其中全部图像，单个文件输出到同目录
func plan(input, output string) ([]job, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if output == "" {
			ext := filepath.Ext(input)
			output = strings.TrimSuffix(input, ext) + "_masked" + ext
		}
		return []job{{in: input, out: output}}, nil
	}

	if output == "" {
		output = filepath.Join(input, "output")
	}
	files, err := util.ImageFiles(input)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("目录中没有图像: %s", input)
	}
	jobs := make([]job, 0, len(files))
	for _, f := range files {
		jobs = append(jobs, job{in: f, out: filepath.Join(output, filepath.Base(f))})
	}
	return jobs, nil
}

func run(engine *platemask.Engine, j job, opts platemask.Options, debug bool, log zerolog.Logger) (int, error) {
	data, err := os.ReadFile(j.in)
	if err != nil {
		return 0, err
	}
	res, err := engine.Process(data, opts)
	if err != nil {
		return 0, err
	}
	if res.Quality != nil && !res.Quality.OK {
		log.Warn().Str("image", j.in).Str("reason", res.Quality.Reason).Msg("质量检查未通过")
	}

	if err = os.MkdirAll(filepath.Dir(j.out), 0o755); err != nil {
		return 0, err
	}
	if err = os.WriteFile(j.out, res.Output, 0o644); err != nil {
		return 0, err
	}
	log.Info().Str("image", j.in).Str("output", j.out).Int("plates", res.DetectionCount).Msg("已处理")

	if debug {
		img, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			return 0, err
		}
		tagged := platemask.DrawDetections(orientation.Apply(img, orientation.Read(data)), res.Detections)
		path := strings.TrimSuffix(j.out, filepath.Ext(j.out)) + "_debug.png"
		if err = imaging.Save(tagged, path); err != nil {
			return 0, err
		}
	}
	return res.DetectionCount, nil
}
