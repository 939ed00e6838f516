package platemask

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/getcharzp/go-platemask/banner"
	"github.com/getcharzp/go-platemask/detect"
	"github.com/getcharzp/go-platemask/geometry"
	"github.com/getcharzp/go-platemask/orientation"
	"github.com/getcharzp/go-platemask/quality"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegions struct {
	regions []detect.Region
	err     error
}

func (f *fakeRegions) DetectRegions(img image.Image, conf float64) ([]detect.Region, error) {
	return f.regions, f.err
}

type fakeCorners struct {
	hits []detect.CornerHit
	err  error
}

func (f *fakeCorners) DetectCorners(img image.Image, conf float64) ([]detect.CornerHit, error) {
	return f.hits, f.err
}

var gray = color.NRGBA{R: 110, G: 110, B: 110, A: 255}

func encode(t *testing.T, img image.Image, format imaging.Format) []byte {
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format, imaging.JPEGQuality(95)))
	return buf.Bytes()
}

// withPlate 在 box 内画黑白竖条纹模拟车牌字符
func withPlate(img *image.NRGBA, box geometry.Box) {
	r := box.Rect()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := color.NRGBA{R: 240, G: 240, B: 240, A: 255}
			if (x/6)%2 == 0 {
				c = color.NRGBA{R: 15, G: 15, B: 15, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
}

func exifSegment(tag uint16) []byte {
	var tiff bytes.Buffer
	tiff.WriteString("II")
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0x2A))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(8))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(1))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0x0112))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(3))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(1))
	_ = binary.Write(&tiff, binary.LittleEndian, tag)
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(0))

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	return append(seg, payload...)
}

func TestProcess_NoPlatesReencodesUnchanged(t *testing.T) {
	src := imaging.New(400, 300, gray)
	for x := 0; x < 400; x += 20 {
		for y := 0; y < 300; y++ {
			src.SetNRGBA(x, y, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	data := encode(t, src, imaging.JPEG)

	e := New(&fakeRegions{}, &fakeCorners{}, nil, nil, DefaultConfig())
	defer e.Destroy()

	res, err := e.Process(data, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, res.DetectionCount)
	assert.Empty(t, res.Detections)
	assert.Equal(t, "jpeg", res.Format)

	decoded, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	var want bytes.Buffer
	require.NoError(t, imaging.Encode(&want, orientation.Apply(decoded, orientation.Normal), imaging.JPEG, imaging.JPEGQuality(defaultJPEGQuality)))
	assert.Equal(t, want.Bytes(), res.Output)
}

func TestProcess_MasksConfirmedPlate(t *testing.T) {
	plate := geometry.NewBox(1800, 1400, 2200, 1600)
	src := imaging.New(4000, 3000, gray)
	withPlate(src, plate)
	data := encode(t, src, imaging.PNG)

	before, err := quality.Measure(src, plate.Corners(), quality.DefaultThresholds())
	require.NoError(t, err)
	require.Greater(t, before.EdgeDensity, 0.05)

	regions := &fakeRegions{regions: []detect.Region{{
		Polygon:    geometry.NewBox(1790, 1395, 2210, 1605).Corners().Points(),
		Box:        geometry.NewBox(1790, 1395, 2210, 1605),
		Confidence: 0.7,
	}}}
	corners := &fakeCorners{hits: []detect.CornerHit{{Corners: plate.Corners(), Confidence: 0.9}}}

	e := New(regions, corners, nil, nil, DefaultConfig())
	defer e.Destroy()

	opts := DefaultOptions()
	opts.QualityCheck = true
	res, err := e.Process(data, opts)
	require.NoError(t, err)
	require.Equal(t, 1, res.DetectionCount)
	assert.Equal(t, detect.SourceCorner, res.Detections[0].Source)
	assert.Equal(t, 1, res.Masked)
	assert.Equal(t, "png", res.Format)
	assert.Equal(t, 4000, res.Width)
	assert.Equal(t, 3000, res.Height)

	require.NotNil(t, res.Quality)
	assert.True(t, res.Quality.OK, res.Quality.Reason)
	require.Len(t, res.Completeness, 1)
	assert.True(t, res.Completeness[0].Passed)

	out, _, err := image.Decode(bytes.NewReader(res.Output))
	require.NoError(t, err)
	after, err := quality.Measure(out, res.Detections[0].Corners, quality.DefaultThresholds())
	require.NoError(t, err)
	assert.Less(t, after.EdgeDensity, 0.05)
}

func TestProcess_QualityFailureForceFill(t *testing.T) {
	plate := geometry.NewBox(100, 100, 500, 300)
	src := imaging.New(800, 500, gray)
	withPlate(src, plate)
	data := encode(t, src, imaging.PNG)

	corners := &fakeCorners{hits: []detect.CornerHit{{Corners: plate.Corners(), Confidence: 0.9}}}
	e := New(nil, corners, nil, nil, DefaultConfig())
	defer e.Destroy()

	// 半透明遮挡仍能看到条纹
	opts := DefaultOptions()
	opts.MaskOpacity = 0.3
	opts.QualityCheck = true
	res, err := e.Process(data, opts)
	require.NoError(t, err)
	require.NotNil(t, res.Quality)
	assert.False(t, res.Quality.OK)
	assert.False(t, res.Remediated)

	opts.ForceFill = true
	res, err = e.Process(data, opts)
	require.NoError(t, err)
	assert.True(t, res.Remediated)
	assert.True(t, res.Quality.OK, res.Quality.Reason)
}

func TestProcess_SmallPlateForceFill(t *testing.T) {
	plate := geometry.NewBox(100, 200, 140, 220)
	src := imaging.New(640, 480, gray)
	withPlate(src, plate)
	data := encode(t, src, imaging.PNG)

	corners := &fakeCorners{hits: []detect.CornerHit{{Corners: plate.Corners(), Confidence: 0.6}}}
	e := New(nil, corners, nil, nil, DefaultConfig())
	defer e.Destroy()

	opts := DefaultOptions()
	opts.QualityCheck = true
	opts.ForceFill = true
	res, err := e.Process(data, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Masked)
	require.NotNil(t, res.Quality)
	// 未通过时必然已经补救过
	assert.True(t, res.Quality.OK || res.Remediated, res.Quality.Reason)
	assert.NotEmpty(t, res.Output)
}

func TestProcess_ZeroOptions(t *testing.T) {
	plate := geometry.NewBox(100, 100, 500, 300)
	src := imaging.New(800, 500, gray)
	withPlate(src, plate)
	data := encode(t, src, imaging.PNG)

	corners := &fakeCorners{hits: []detect.CornerHit{{Corners: plate.Corners(), Confidence: 0.9}}}
	e := New(nil, corners, nil, nil, DefaultConfig())
	defer e.Destroy()

	// 不透明度为 0 时按不透明处理，遮挡不会“隐形”
	res, err := e.Process(data, Options{QualityCheck: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Masked)
	require.NotNil(t, res.Quality)
	assert.True(t, res.Quality.OK, res.Quality.Reason)
	assert.False(t, res.Remediated)

	opts := Options{MaskOpacity: -1, BannerOpacity: 0.4}.withDefaults()
	assert.Equal(t, 1.0, opts.MaskOpacity)
	assert.Equal(t, 0.4, opts.BannerOpacity)
	assert.Equal(t, 0.3, opts.RegionConfidence)
	assert.Equal(t, 0.2, opts.CornerConfidence)
}

func TestProcess_Errors(t *testing.T) {
	e := New(&fakeRegions{}, &fakeCorners{}, nil, nil, DefaultConfig())
	defer e.Destroy()

	_, err := e.Process(nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrDecode)
	_, err = e.Process([]byte("definitely not an image"), DefaultOptions())
	assert.ErrorIs(t, err, ErrDecode)

	opts := DefaultOptions()
	opts.ApplyBanner = true
	_, err = e.Process(encode(t, imaging.New(10, 10, gray), imaging.PNG), opts)
	assert.ErrorIs(t, err, ErrBannerUnavailable)

	broken := New(&fakeRegions{err: errors.New("session closed")}, &fakeCorners{}, nil, nil, DefaultConfig())
	_, err = broken.Process(encode(t, imaging.New(10, 10, gray), imaging.PNG), DefaultOptions())
	assert.ErrorIs(t, err, ErrInference)
}

func TestProcess_Banner(t *testing.T) {
	bnr, err := banner.New(imaging.New(400, 50, color.NRGBA{R: 255, A: 255}))
	require.NoError(t, err)
	e := New(&fakeRegions{}, &fakeCorners{}, nil, bnr, DefaultConfig())
	defer e.Destroy()

	data := encode(t, imaging.New(800, 600, gray), imaging.PNG)

	opts := DefaultOptions()
	opts.ApplyBanner = true
	for _, mode := range []banner.Mode{banner.ModeOverlay, banner.ModeFit} {
		opts.BannerMode = mode
		res, err := e.Process(data, opts)
		require.NoError(t, err)
		assert.Equal(t, 800, res.Width, mode.String())
		assert.Equal(t, 600, res.Height, mode.String())
	}

	opts.BannerMode = banner.ModeExtend
	res, err := e.Process(data, opts)
	require.NoError(t, err)
	assert.Equal(t, 800, res.Width)
	assert.Equal(t, 700, res.Height)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(res.Output))
	require.NoError(t, err)
	assert.Equal(t, 700, cfg.Height)
}

func TestProcess_Orientation(t *testing.T) {
	// 存储为 300x200，Orientation=6 表示需要顺时针旋转 90 度显示
	stored := encode(t, imaging.New(300, 200, gray), imaging.JPEG)
	data := orientation.InjectExif(stored, exifSegment(6))

	e := New(&fakeRegions{}, &fakeCorners{}, nil, nil, DefaultConfig())
	defer e.Destroy()

	res, err := e.Process(data, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, orientation.Rotate90CW, res.Orientation)
	assert.Equal(t, 200, res.Width)
	assert.Equal(t, 300, res.Height)
	assert.Equal(t, orientation.Normal, orientation.Read(res.Output))

	opts := DefaultOptions()
	opts.RestoreOrientation = true
	res, err = e.Process(data, opts)
	require.NoError(t, err)
	assert.Equal(t, 300, res.Width)
	assert.Equal(t, 200, res.Height)
	assert.Equal(t, orientation.Rotate90CW, orientation.Read(res.Output))

	opts.KeepMetadata = false
	res, err = e.Process(data, opts)
	require.NoError(t, err)
	assert.Nil(t, orientation.ExifSegment(res.Output))
}

func TestDetect(t *testing.T) {
	corners := &fakeCorners{hits: []detect.CornerHit{{Corners: geometry.NewBox(10, 10, 90, 50).Corners(), Confidence: 0.8}}}
	e := New(nil, corners, nil, nil, DefaultConfig())
	defer e.Destroy()

	res, err := e.Detect(encode(t, imaging.New(200, 100, gray), imaging.PNG), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, res.DetectionCount)
	assert.Nil(t, res.Output)
	assert.Equal(t, 200, res.Width)
}

func TestHasModels(t *testing.T) {
	assert.True(t, New(nil, &fakeCorners{}, nil, nil, DefaultConfig()).HasModels())
	assert.True(t, New(&fakeRegions{}, nil, nil, nil, DefaultConfig()).HasModels())
	assert.False(t, New(nil, nil, nil, nil, DefaultConfig()).HasModels())
}

func TestDrawDetections(t *testing.T) {
	img := imaging.New(100, 100, gray)
	dets := []detect.Detection{{Corners: geometry.NewBox(10, 10, 60, 40).Corners(), Source: detect.SourceRegionFallback}}
	out := DrawDetections(img, dets)
	assert.Equal(t, img.Bounds(), out.Bounds())
	assert.Equal(t, gray, img.NRGBAAt(10, 10))
}
