package quality

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatFrame(w, h int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
	}
	return img
}

func checkerFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var v uint8
			if (x+y)%2 == 0 {
				v = 255
			}
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

type fakeLocator struct {
	faces []image.Rectangle
	err   error
}

func (f fakeLocator) LocateFaces(image.Image) ([]image.Rectangle, error) {
	return f.faces, f.err
}

func TestScoreMetrics_Range(t *testing.T) {
	cases := []Metrics{
		{},
		{Focus: 1200, Brightness: 130, Contrast: 60, FaceAreaRatio: 0.2},
		{Focus: 0.1, Brightness: 250, Contrast: 1, FaceAreaRatio: 0.9},
		{Focus: -5, Brightness: 0, Contrast: 0, FaceAreaRatio: 0},
		{Focus: 1e12, Brightness: 1e12, Contrast: 1e12, FaceAreaRatio: 1e12},
	}
	for _, m := range cases {
		s := ScoreMetrics(m)
		assert.GreaterOrEqual(t, s, 0.0, "metrics %+v", m)
		assert.LessOrEqual(t, s, 1.0, "metrics %+v", m)
	}
}

func TestScoreMetrics_EqualMetricsScoreZero(t *testing.T) {
	assert.Zero(t, ScoreMetrics(Metrics{Focus: 7, Brightness: 7, Contrast: 7, FaceAreaRatio: 7}))
}

func TestScoreMetrics_NonFinite(t *testing.T) {
	s := ScoreMetrics(Metrics{Focus: math.NaN(), Brightness: math.Inf(1), Contrast: 10, FaceAreaRatio: math.Inf(-1)})
	assert.False(t, math.IsNaN(s))
	// only contrast survives sanitizing, so it alone carries weight
	assert.InDelta(t, DefaultWeights.Contrast, s, 1e-6)
}

func TestScoreMetrics_OnlyMaxMetricWeighted(t *testing.T) {
	s := ScoreMetrics(Metrics{Focus: 100})
	assert.InDelta(t, DefaultWeights.Focus, s, 1e-6)
}

func TestScorer_TexturedBeatsFlat(t *testing.T) {
	s := NewScorer()

	flat, err := s.Score(flatFrame(64, 48, 128))
	require.NoError(t, err)
	textured, err := s.Score(checkerFrame(64, 48))
	require.NoError(t, err)

	assert.Zero(t, flat.Metrics.Focus)
	assert.Zero(t, flat.Metrics.Contrast)
	assert.InDelta(t, 128, flat.Metrics.Brightness, 1)
	assert.InDelta(t, DefaultWeights.Brightness, flat.Score, 1e-6)

	assert.Greater(t, textured.Metrics.Focus, 1e5)
	assert.Greater(t, textured.Metrics.Contrast, 100.0)
	assert.GreaterOrEqual(t, textured.Score, DefaultWeights.Focus)
	assert.Greater(t, textured.Score, flat.Score)
}

func TestScorer_FaceAreaRatio(t *testing.T) {
	s := NewScorer(WithFaceLocator(fakeLocator{faces: []image.Rectangle{
		image.Rect(0, 0, 10, 10),
		image.Rect(50, 50, 150, 150), // clipped to the frame
	}}))

	res, err := s.Score(flatFrame(100, 100, 90))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, res.Metrics.FaceAreaRatio, 1e-9)
}

func TestScorer_LocatorErrorCountsAsNoFace(t *testing.T) {
	s := NewScorer(WithFaceLocator(fakeLocator{err: errors.New("model offline")}))

	res, err := s.Score(flatFrame(20, 20, 60))
	require.NoError(t, err)
	assert.Zero(t, res.Metrics.FaceAreaRatio)
}

func TestScorer_Downscale(t *testing.T) {
	s := NewScorer(WithMaxDimension(32))

	res, err := s.Score(flatFrame(256, 128, 200))
	require.NoError(t, err)
	assert.InDelta(t, 200, res.Metrics.Brightness, 1)
}

func TestScorer_ZeroArea(t *testing.T) {
	_, err := NewScorer().Score(image.NewRGBA(image.Rect(0, 0, 0, 10)))
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = NewScorer().Score(nil)
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestFocus_TinyFrame(t *testing.T) {
	assert.Zero(t, focus(image.NewGray(image.Rect(0, 0, 2, 2))))
}

func TestDecodeFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, checkerFrame(8, 6)))

	img, err := DecodeFrame(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 6, img.Bounds().Dy())

	_, err = DecodeFrame([]byte("not an image"))
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = DecodeFrame(nil)
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestEncodeJPEG_RoundTrip(t *testing.T) {
	data, err := EncodeJPEG(flatFrame(16, 16, 100), 90)
	require.NoError(t, err)

	img, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
}
