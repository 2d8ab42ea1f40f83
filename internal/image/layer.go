// Package image decodes the event image and maps track points between the
// stored and displayed orientation.
package image

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"meteor-refine/pkg/geometry"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Layer is a decoded event image.
type Layer struct {
	Image   image.Image // Decoded image data
	Flipped bool        // Rows reversed relative to the stored image
}

// Decode decodes JPEG image bytes into a Layer.
func Decode(data []byte) (*Layer, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return &Layer{Image: img}, nil
}

// Width returns the image width in pixels.
func (l *Layer) Width() int {
	if l.Image == nil {
		return 0
	}
	return l.Image.Bounds().Dx()
}

// Height returns the image height in pixels.
func (l *Layer) Height() int {
	if l.Image == nil {
		return 0
	}
	return l.Image.Bounds().Dy()
}

// Size returns the image dimensions.
func (l *Layer) Size() geometry.Size {
	return geometry.NewSize(float64(l.Width()), float64(l.Height()))
}

// Bounds returns the image area in pixel coordinates.
func (l *Layer) Bounds() geometry.Rect {
	return geometry.NewRect(0, 0, float64(l.Width()), float64(l.Height()))
}

// Portrait reports whether the image is taller than it is wide.
func (l *Layer) Portrait() bool {
	return l.Height() > l.Width()
}

// Contains reports whether p lies inside the image.
func (l *Layer) Contains(p geometry.Point2D) bool {
	return l.Bounds().Contains(p)
}

// FlipVertical returns a new layer with the rows in reverse order.
func (l *Layer) FlipVertical() *Layer {
	b := l.Image.Bounds()
	dst := image.NewRGBA(b)

	// x' = x, y' = (minY + maxY) - y
	s2d := f64.Aff3{
		1, 0, 0,
		0, -1, float64(b.Min.Y + b.Max.Y),
	}
	draw.NearestNeighbor.Transform(dst, s2d, l.Image, b, draw.Src, nil)

	return &Layer{Image: dst, Flipped: !l.Flipped}
}

// MapPoint maps a point between the stored and flipped frames using the
// pixel-centre convention. It is its own inverse.
func (l *Layer) MapPoint(p geometry.Point2D) geometry.Point2D {
	return geometry.NewPoint2D(p.X, float64(l.Height()-1)-p.Y)
}

// MapPoints applies MapPoint to every point.
func (l *Layer) MapPoints(points []geometry.Point2D) []geometry.Point2D {
	out := make([]geometry.Point2D, len(points))
	for i, p := range points {
		out[i] = l.MapPoint(p)
	}
	return out
}
