package vision

import (
	"image"

	"github.com/disintegration/imaging"
)

var (
	detectorMean = [3]float32{127.5, 127.5, 127.5}
	detectorStd  = [3]float32{128, 128, 128}
	arcFaceMean  = [3]float32{127.5, 127.5, 127.5}
	arcFaceStd   = [3]float32{127.5, 127.5, 127.5}
)

// toCHW resizes img to w x h and lays it out as normalized planar RGB.
func toCHW(img image.Image, w, h int, mean, std [3]float32) []float32 {
	resized := imaging.Resize(img, w, h, imaging.Linear)
	plane := w * h
	out := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+3]
			i := y*w + x
			out[i] = (float32(p[0]) - mean[0]) / std[0]
			out[plane+i] = (float32(p[1]) - mean[1]) / std[1]
			out[2*plane+i] = (float32(p[2]) - mean[2]) / std[2]
		}
	}
	return out
}

// faceRect converts a detector box to an integer rectangle inside bounds,
// grown by pad of its size on every side.
func faceRect(box [4]float32, bounds image.Rectangle, pad float32) image.Rectangle {
	w, h := box[2]-box[0], box[3]-box[1]
	r := image.Rect(
		int(box[0]-w*pad), int(box[1]-h*pad),
		int(box[2]+w*pad), int(box[3]+h*pad),
	)
	return r.Add(bounds.Min).Intersect(bounds)
}
