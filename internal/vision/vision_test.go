package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuppress(t *testing.T) {
	faces := []face{
		{box: [4]float32{0, 0, 100, 100}, score: 0.7},
		{box: [4]float32{5, 5, 105, 105}, score: 0.9},
		{box: [4]float32{300, 300, 360, 360}, score: 0.6},
	}
	kept := suppress(faces, 0.4)
	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].score)
	assert.Equal(t, float32(0.6), kept[1].score)
}

func TestIoU(t *testing.T) {
	a := [4]float32{0, 0, 10, 10}
	assert.InDelta(t, 1.0, iou(a, a), 1e-6)
	assert.InDelta(t, 0.0, iou(a, [4]float32{20, 20, 30, 30}), 1e-6)
	assert.InDelta(t, 25.0/175.0, iou(a, [4]float32{5, 5, 15, 15}), 1e-6)
}

func TestDecodeStride(t *testing.T) {
	// 2x2 cells at stride 32 on a 64px input, two anchors each.
	scores := make([]float32, 8)
	boxes := make([]float32, 32)
	scores[3] = 0.95 // cell (1,0), anchor 1
	copy(boxes[12:16], []float32{0.5, 0.5, 1, 1})

	faces := decodeStride(scores, boxes, 32, 64, 0.5, 2, 2, 128, 128)
	require.Len(t, faces, 1)
	assert.Equal(t, float32(0.95), faces[0].score)
	// anchor (32, 0): x1 = (32-16)*2, y1 clamps to 0, x2 = (32+32)*2, y2 = 32*2
	assert.Equal(t, [4]float32{32, 0, 128, 64}, faces[0].box)
}

func TestToCHW(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 128, B: 0, A: 255})
		}
	}
	out := toCHW(img, 2, 2, arcFaceMean, arcFaceStd)
	require.Len(t, out, 12)
	assert.InDelta(t, 1.0, out[0], 1e-3)
	assert.InDelta(t, 0.0039, out[4], 1e-2)
	assert.InDelta(t, -1.0, out[8], 1e-3)
}

func TestFaceRect(t *testing.T) {
	bounds := image.Rect(0, 0, 200, 100)
	r := faceRect([4]float32{10, 10, 110, 60}, bounds, 0.1)
	assert.Equal(t, image.Rect(0, 5, 120, 65), r)

	clipped := faceRect([4]float32{150, 50, 250, 150}, bounds, 0)
	assert.Equal(t, image.Rect(150, 50, 200, 100), clipped)
}

func TestL2Normalize(t *testing.T) {
	v := []float32{3, 4}
	l2Normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	l2Normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}
