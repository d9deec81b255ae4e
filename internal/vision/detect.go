package vision

import (
	"fmt"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// face is one decoded RetinaFace candidate in original image coordinates.
type face struct {
	box   [4]float32 // x1, y1, x2, y2
	score float32
}

// retinaFace runs the det_10g RetinaFace model.
type retinaFace struct {
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	outputs  []*ort.Tensor[float32]
	minScore float32
	size     int
}

var (
	featureStrides = []int{8, 16, 32}
	// det_10g output names, grouped scores / boxes / landmarks per stride.
	retinaOutputs = []string{"448", "471", "494", "451", "474", "497", "454", "477", "500"}
)

const anchorsPerCell = 2

func newRetinaFace(modelPath string, minScore float32, opts *ort.SessionOptions) (*retinaFace, error) {
	const size = 640

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputs := make([]*ort.Tensor[float32], len(retinaOutputs))
	values := make([]ort.Value, len(retinaOutputs))
	destroy := func() {
		input.Destroy()
		for _, t := range outputs {
			if t != nil {
				t.Destroy()
			}
		}
	}
	// Each group of three outputs is (scores, boxes, landmarks) with widths 1, 4, 10.
	widths := []int64{1, 4, 10}
	for i := range retinaOutputs {
		stride := int64(featureStrides[i%3])
		cells := (size / stride) * (size / stride) * anchorsPerCell
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(cells, widths[i/3]))
		if err != nil {
			destroy()
			return nil, fmt.Errorf("create output tensor %s: %w", retinaOutputs[i], err)
		}
		outputs[i] = t
		values[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, retinaOutputs,
		[]ort.Value{input}, values, opts)
	if err != nil {
		destroy()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &retinaFace{session: session, input: input, outputs: outputs, minScore: minScore, size: size}, nil
}

// run detects faces in a preprocessed CHW tensor and maps boxes back to an
// origW x origH image.
func (r *retinaFace) run(chw []float32, origW, origH int) ([]face, error) {
	copy(r.input.GetData(), chw)
	if err := r.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	var faces []face
	sx := float32(origW) / float32(r.size)
	sy := float32(origH) / float32(r.size)
	for si, stride := range featureStrides {
		scores := r.outputs[si].GetData()
		boxes := r.outputs[si+3].GetData()
		faces = append(faces, decodeStride(scores, boxes, stride, r.size, r.minScore, sx, sy, origW, origH)...)
	}
	return suppress(faces, 0.4), nil
}

// decodeStride turns anchor distances at one feature stride into boxes.
func decodeStride(scores, boxes []float32, stride, size int, minScore, sx, sy float32, origW, origH int) []face {
	var out []face
	cells := size / stride
	st := float32(stride)
	idx := 0
	for cy := 0; cy < cells; cy++ {
		for cx := 0; cx < cells; cx++ {
			for a := 0; a < anchorsPerCell; a++ {
				if s := scores[idx]; s >= minScore {
					ax, ay := float32(cx)*st, float32(cy)*st
					d := boxes[idx*4 : idx*4+4]
					out = append(out, face{
						box: [4]float32{
							clamp((ax-d[0]*st)*sx, 0, float32(origW)),
							clamp((ay-d[1]*st)*sy, 0, float32(origH)),
							clamp((ax+d[2]*st)*sx, 0, float32(origW)),
							clamp((ay+d[3]*st)*sy, 0, float32(origH)),
						},
						score: s,
					})
				}
				idx++
			}
		}
	}
	return out
}

func (r *retinaFace) close() {
	if r.session != nil {
		r.session.Destroy()
	}
	if r.input != nil {
		r.input.Destroy()
	}
	for _, t := range r.outputs {
		if t != nil {
			t.Destroy()
		}
	}
}

// suppress keeps the strongest of any faces overlapping above iouLimit and
// returns the survivors ordered by score.
func suppress(faces []face, iouLimit float32) []face {
	sort.SliceStable(faces, func(i, j int) bool { return faces[i].score > faces[j].score })

	kept := faces[:0:0]
	for _, f := range faces {
		overlap := false
		for _, k := range kept {
			if iou(f.box, k.box) > iouLimit {
				overlap = true
				break
			}
		}
		if !overlap {
			kept = append(kept, f)
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	w := math.Max(0, math.Min(float64(a[2]), float64(b[2]))-math.Max(float64(a[0]), float64(b[0])))
	h := math.Max(0, math.Min(float64(a[3]), float64(b[3]))-math.Max(float64(a[1]), float64(b[1])))
	inter := float32(w * h)

	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, lo, hi float32) float32 {
	return float32(math.Min(math.Max(float64(v), float64(lo)), float64(hi)))
}
