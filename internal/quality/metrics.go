package quality

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/effect"
	"github.com/lucasb-eyer/go-colorful"
)

// focus returns the variance of the 4-neighbour Laplacian over the interior of gray.
func focus(gray *image.Gray) float64 {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	px := func(x, y int) float64 {
		return float64(gray.Pix[(y-b.Min.Y)*gray.Stride+(x-b.Min.X)])
	}

	var sum, sumSq float64
	n := 0
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			lap := px(x, y-1) + px(x-1, y) + px(x+1, y) + px(x, y+1) - 4*px(x, y)
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	return variance(sum, sumSq, n)
}

// brightness returns the mean HSV value channel scaled to [0, 255].
func brightness(img image.Image) float64 {
	b := img.Bounds()
	var sum float64
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c, ok := colorful.MakeColor(img.At(x, y))
			if !ok {
				// fully transparent pixels count as black
				n++
				continue
			}
			_, _, v := c.Hsv()
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n) * 255
}

// contrast returns the standard deviation of grayscale intensity.
func contrast(gray *image.Gray) float64 {
	var sum, sumSq float64
	for _, p := range gray.Pix {
		v := float64(p)
		sum += v
		sumSq += v * v
	}
	return math.Sqrt(variance(sum, sumSq, len(gray.Pix)))
}

// faceAreaRatio returns the largest face area over the frame area.
func faceAreaRatio(faces []image.Rectangle, frame image.Rectangle) float64 {
	area := float64(frame.Dx() * frame.Dy())
	if area <= 0 {
		return 0
	}
	var largest float64
	for _, f := range faces {
		r := f.Intersect(frame)
		if a := float64(r.Dx() * r.Dy()); a > largest {
			largest = a
		}
	}
	return math.Min(1, largest/area)
}

func grayscale(img image.Image) *image.Gray {
	return effect.Grayscale(img)
}

func variance(sum, sumSq float64, n int) float64 {
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	v := sumSq/float64(n) - mean*mean
	if v < 0 {
		return 0
	}
	return v
}
