package vision

import (
	"fmt"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

// arcFace runs the w600k_r50 ArcFace model on 112x112 face crops.
type arcFace struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	size    int
	dim     int
}

func newArcFace(modelPath string, opts *ort.SessionOptions) (*arcFace, error) {
	const size, dim = 112, 512

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, dim))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, []string{"683"},
		[]ort.Value{input}, []ort.Value{output}, opts)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &arcFace{session: session, input: input, output: output, size: size, dim: dim}, nil
}

// run returns the L2-normalized embedding of a preprocessed CHW face crop.
func (a *arcFace) run(chw []float32) ([]float32, error) {
	copy(a.input.GetData(), chw)
	if err := a.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	emb := make([]float32, a.dim)
	copy(emb, a.output.GetData())
	l2Normalize(emb)
	return emb, nil
}

func (a *arcFace) close() {
	if a.session != nil {
		a.session.Destroy()
	}
	if a.input != nil {
		a.input.Destroy()
	}
	if a.output != nil {
		a.output.Destroy()
	}
}

func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
