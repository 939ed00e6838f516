package config

import (
	"image/color"
	"testing"
	"time"

	"github.com/getcharzp/go-platemask/banner"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REGION_CONF", "0.45")
	t.Setenv("BANNER_MODE", "extend")
	t.Setenv("BANNER_POSITION", "top")
	t.Setenv("BANNER_BG", "#000000")
	t.Setenv("QUALITY_CHECK", "true")
	t.Setenv("IMAGE_TIMEOUT", "30s")
	t.Setenv("MAX_UPLOAD_MB", "5")
	t.Setenv("CORNER_CONF", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 0.45, cfg.RegionConf, 1e-9)
	assert.InDelta(t, 0.2, cfg.CornerConf, 1e-9)
	assert.Equal(t, banner.ModeExtend, cfg.BannerMode)
	assert.Equal(t, banner.Top, cfg.BannerPosition)
	assert.True(t, cfg.QualityCheck)
	assert.Equal(t, 30*time.Second, cfg.ImageTimeout)
	assert.Equal(t, int64(5<<20), cfg.MaxUploadSize)

	ec := cfg.Engine(zerolog.Nop())
	assert.Equal(t, color.NRGBA{A: 255}, ec.Banner.Background)
	assert.InDelta(t, 0.25, ec.Banner.MaxHeightFraction, 1e-9)

	opts := cfg.Options()
	assert.InDelta(t, 0.45, opts.RegionConfidence, 1e-9)
	assert.Equal(t, banner.ModeExtend, opts.BannerMode)
	assert.True(t, opts.QualityCheck)
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("BANNER_MODE", "stretch")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("BANNER_MODE", "fit")
	t.Setenv("BANNER_BG", "white")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_BannerMaxHeight(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BANNER_MAX_HEIGHT", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.Engine(zerolog.Nop()).Banner.MaxHeightFraction)
}
