// Package quality scores how usable a single camera frame is for face
// recognition.
//
// A frame is reduced to four raw metrics:
//
//   - Focus: variance of the signed 3x3 Laplacian of the grayscale frame.
//     Sharp edges produce large second derivatives; motion blur flattens them.
//   - Brightness: mean of the HSV value channel, in [0, 255].
//   - Contrast: standard deviation of grayscale intensity.
//   - FaceAreaRatio: area of the largest detected face divided by the frame
//     area, in [0, 1]. Zero when no FaceLocator is configured.
//
// The four metrics of one frame are sanitized (NaN and infinities become 0),
// min-max normalized against each other using (x - min) / (range + 1e-9), and
// combined with the fixed weight vector {0.35, 0.15, 0.30, 0.20}. The result,
// the hybrid score, always lies in [0, 1] and is defined even when all four
// metrics are equal.
//
// Normalization is per frame, not per burst, so the hybrid score rewards a
// frame whose focus and contrast dominate its own brightness. Callers compare
// hybrid scores across frames; they should not compare raw metrics.
package quality
