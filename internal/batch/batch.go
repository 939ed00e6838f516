package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	platemask "github.com/getcharzp/go-platemask"
	"github.com/getcharzp/go-platemask/internal/intake"
	"github.com/getcharzp/go-platemask/internal/storage"
	"github.com/getcharzp/go-platemask/internal/tracker"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrQuality 质量检查未通过且没有补救，结果不会写回
var ErrQuality = errors.New("质量检查未通过")

// Processor *platemask.Engine 实现了它
type Processor interface {
	Process(data []byte, opts platemask.Options) (*platemask.Result, error)
}

// Lister 列出某天需要处理的图像
type Lister func(ctx context.Context, day time.Time) ([]intake.Upload, error)

// Runner 每日批处理：查询 → 备份 → 处理 → 写回 → 记录
type Runner struct {
	Engine     Processor
	Store      storage.Store
	List       Lister
	TrackerDir string
	Options    platemask.Options
	Timeout    time.Duration // 单张图像的超时，0 = 不限制
	Log        zerolog.Logger
}

// Stats 一次运行的统计
type Stats struct {
	RunID      string        `json:"run_id"`
	Total      int           `json:"total"`
	Skipped    int           `json:"skipped"`
	Success    int           `json:"success"`
	Failed     int           `json:"failed"`
	Detections int           `json:"detections"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Run 处理 day 的全部图像；单张失败只记录，不中断整批
func (r *Runner) Run(ctx context.Context, day time.Time) (Stats, error) {
	start := time.Now()
	stats := Stats{RunID: uuid.NewString()}
	log := r.Log.With().Str("run", stats.RunID).Str("day", day.Format(time.DateOnly)).Logger()

	uploads, err := r.List(ctx, day)
	if err != nil {
		return stats, err
	}
	tr, err := tracker.Open(r.TrackerDir, day)
	if err != nil {
		return stats, err
	}
	if err = tr.StartRun(stats.RunID); err != nil {
		return stats, err
	}

	stats.Total = len(uploads)
	log.Info().Int("total", stats.Total).Msg("批处理开始")

	for _, u := range uploads {
		if err = ctx.Err(); err != nil {
			return stats, err
		}
		id := u.Key()
		if tr.Done(id) {
			stats.Skipped++
			continue
		}

		n, err := r.processOne(ctx, tr, u)
		if err != nil {
			stats.Failed++
			log.Error().Err(err).Str("image", id).Str("vehicle", u.Vehicle).Msg("处理失败")
			if terr := tr.Set(id, tracker.StatusError, err.Error()); terr != nil {
				log.Error().Err(terr).Str("image", id).Msg("写入记录失败")
			}
			continue
		}
		stats.Success++
		stats.Detections += n
		log.Debug().Str("image", id).Int("detections", n).Msg("处理完成")
	}

	stats.Elapsed = time.Since(start)
	log.Info().
		Int("success", stats.Success).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Int("detections", stats.Detections).
		Dur("elapsed", stats.Elapsed).
		Interface("summary", tr.Summary()).
		Msg("批处理完成")
	return stats, nil
}

func (r *Runner) processOne(ctx context.Context, tr *tracker.Tracker, u intake.Upload) (int, error) {
	id := u.Key()
	if err := tr.Add(id); err != nil {
		return 0, err
	}
	if err := tr.Set(id, tracker.StatusProcessing, ""); err != nil {
		return 0, err
	}

	// 始终从备份的原图处理，重复运行不会叠加遮挡
	backup, err := storage.Backup(ctx, r.Store, id)
	if err != nil {
		return 0, err
	}
	data, err := r.Store.Get(ctx, backup)
	if err != nil {
		return 0, err
	}

	res, err := r.process(ctx, data)
	if err != nil {
		return 0, err
	}
	if err = tr.SetDetections(id, res.DetectionCount); err != nil {
		return 0, err
	}

	note := "OK"
	switch {
	case res.Remediated && res.Quality != nil && !res.Quality.OK:
		// 纯色填充后剩下的只是填充边缘本身，小车牌上尤其明显，仍然写回
		note = "已用纯色补救，残留: " + res.Quality.Reason
		r.Log.Warn().Str("image", id).Str("reason", res.Quality.Reason).Msg("补救后仍未通过质量检查")
	case res.Quality != nil && !res.Quality.OK:
		return res.DetectionCount, fmt.Errorf("%w: %s", ErrQuality, res.Quality.Reason)
	case res.Remediated:
		note = "已用纯色补救"
	}
	if err = tr.Set(id, tracker.StatusVerified, note); err != nil {
		return 0, err
	}
	if err = r.Store.Put(ctx, id, res.Output); err != nil {
		return 0, err
	}
	if err = tr.Set(id, tracker.StatusDone, ""); err != nil {
		return 0, err
	}
	return res.DetectionCount, nil
}

// process 核心处理没有取消机制，超时后放弃结果
func (r *Runner) process(ctx context.Context, data []byte) (*platemask.Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	type outcome struct {
		res *platemask.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.Engine.Process(data, r.Options)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("处理超时: %w", ctx.Err())
	}
}
