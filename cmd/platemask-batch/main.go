package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	platemask "github.com/getcharzp/go-platemask"
	"github.com/getcharzp/go-platemask/internal/batch"
	"github.com/getcharzp/go-platemask/internal/config"
	"github.com/getcharzp/go-platemask/internal/intake"
	"github.com/getcharzp/go-platemask/internal/logging"
	"github.com/getcharzp/go-platemask/internal/storage"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		date    string
		restore string
	)
	flag.StringVar(&date, "date", time.Now().Format(time.DateOnly), "处理日期 YYYY-MM-DD")
	flag.StringVar(&restore, "restore", "", "从备份恢复指定 key 后退出")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("加载配置失败")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store storage.Store
	if cfg.S3Bucket != "" {
		if store, err = storage.NewS3StoreFromEnv(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix); err != nil {
			logger.Fatal().Err(err).Msg("初始化 S3 失败")
		}
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("使用 S3 存储")
	} else {
		store = storage.NewLocalStore(cfg.StorageRoot)
		logger.Info().Str("root", cfg.StorageRoot).Msg("使用本地存储")
	}

	if restore != "" {
		if err = storage.Restore(ctx, store, restore); err != nil {
			logger.Fatal().Err(err).Str("key", restore).Msg("恢复失败")
		}
		logger.Info().Str("key", restore).Msg("已从备份恢复")
		return
	}

	day, err := time.ParseInLocation(time.DateOnly, date, time.Local)
	if err != nil {
		logger.Fatal().Err(err).Msg("日期格式无效")
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("未设置 DATABASE_URL")
	}
	db, err := intake.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("连接数据库失败")
	}
	defer db.Close()

	engine, err := platemask.NewEngine(cfg.Engine(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("创建引擎失败")
	}
	defer engine.Destroy()

	// 第一张照片需要合成横幅
	opts := cfg.Options()
	opts.ApplyBanner = engine.HasBanner()
	opts.QualityCheck = true
	opts.ForceFill = true

	runner := &batch.Runner{
		Engine: engine,
		Store:  store,
		List: func(ctx context.Context, day time.Time) ([]intake.Upload, error) {
			return intake.FirstImages(ctx, db, day)
		},
		TrackerDir: cfg.TrackerDir,
		Options:    opts,
		Timeout:    cfg.ImageTimeout,
		Log:        logger,
	}
	stats, err := runner.Run(ctx, day)
	if err != nil {
		logger.Error().Err(err).Msg("批处理中断")
		os.Exit(1)
	}
	if stats.Failed > 0 {
		os.Exit(1)
	}
}
