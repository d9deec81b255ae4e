// Package vision runs the ONNX face models: RetinaFace detection and ArcFace
// embeddings.
package vision

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/doorgate/internal/config"
	"github.com/your-org/doorgate/internal/observability"
	"github.com/your-org/doorgate/internal/recognition"
)

// InitRuntime loads the ONNX Runtime shared library for this platform.
func InitRuntime() error {
	ort.SetSharedLibraryPath(sharedLibraryPath())
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime: %w", err)
	}
	return nil
}

func DestroyRuntime() {
	_ = ort.DestroyEnvironment()
}

func sharedLibraryPath() string {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}

// Engine owns the detection and embedding sessions. The sessions share bound
// tensors, so every inference call holds mu.
type Engine struct {
	mu       sync.Mutex
	detector *retinaFace
	embedder *arcFace
}

// NewEngine loads det_10g.onnx and w600k_r50.onnx from cfg.ModelsDir.
func NewEngine(cfg config.VisionConfig) (*Engine, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := newRetinaFace(detPath, float32(cfg.DetectionThreshold), nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := newArcFace(embPath, nil)
	if err != nil {
		det.close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	slog.Info("vision engine ready")
	return &Engine{detector: det, embedder: emb}, nil
}

func (e *Engine) detect(img image.Image) ([]face, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("zero-area image")
	}
	start := time.Now()
	chw := toCHW(img, e.detector.size, e.detector.size, detectorMean, detectorStd)
	observability.InferenceDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detector.run(chw, b.Dx(), b.Dy())
}

// Detect implements recognition.Detector.
func (e *Engine) Detect(img image.Image) ([]recognition.Detection, error) {
	faces, err := e.detect(img)
	if err != nil {
		return nil, err
	}
	out := make([]recognition.Detection, 0, len(faces))
	for _, f := range faces {
		r := faceRect(f.box, img.Bounds(), 0)
		if r.Empty() {
			continue
		}
		out = append(out, recognition.Detection{Box: r, Score: f.score})
	}
	return out, nil
}

// LocateFaces implements quality.FaceLocator.
func (e *Engine) LocateFaces(img image.Image) ([]image.Rectangle, error) {
	dets, err := e.Detect(img)
	if err != nil {
		return nil, err
	}
	rects := make([]image.Rectangle, len(dets))
	for i, d := range dets {
		rects[i] = d.Box
	}
	return rects, nil
}

// Embed implements recognition.Embedder for an already cropped face.
func (e *Engine) Embed(faceImg image.Image) ([]float32, error) {
	if faceImg.Bounds().Empty() {
		return nil, fmt.Errorf("zero-area face")
	}
	chw := toCHW(faceImg, e.embedder.size, e.embedder.size, arcFaceMean, arcFaceStd)

	start := time.Now()
	e.mu.Lock()
	emb, err := e.embedder.run(chw)
	e.mu.Unlock()
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	return emb, err
}

// EmbedBestFace detects faces in img and embeds the most confident one,
// for enrollment. It returns the embedding and the detector score.
func (e *Engine) EmbedBestFace(img image.Image) ([]float32, float32, error) {
	faces, err := e.detect(img)
	if err != nil {
		return nil, 0, fmt.Errorf("detect: %w", err)
	}
	if len(faces) == 0 {
		return nil, 0, fmt.Errorf("%w: no face in image", recognition.ErrDetection)
	}

	// faces are ordered by score
	best := faces[0]
	box := faceRect(best.box, img.Bounds(), 0)
	if box.Empty() {
		return nil, 0, fmt.Errorf("failed to crop face")
	}
	emb, err := e.Embed(recognition.FaceCrop(img, box))
	if err != nil {
		return nil, 0, fmt.Errorf("embed: %w", err)
	}
	return emb, best.score, nil
}

// Close releases the ONNX sessions.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detector != nil {
		e.detector.close()
	}
	if e.embedder != nil {
		e.embedder.close()
	}
}
