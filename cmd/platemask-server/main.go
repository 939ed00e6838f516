package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	platemask "github.com/getcharzp/go-platemask"
	"github.com/getcharzp/go-platemask/internal/config"
	"github.com/getcharzp/go-platemask/internal/logging"
	"github.com/getcharzp/go-platemask/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("加载配置失败")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine, err := platemask.NewEngine(cfg.Engine(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("创建引擎失败")
	}
	defer engine.Destroy()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.New(engine, cfg.Options(), cfg.MaxUploadSize, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Bool("banner", engine.HasBanner()).Msg("服务启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("服务异常退出")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("关闭服务失败")
	}
	logger.Info().Msg("服务已停止")
}
