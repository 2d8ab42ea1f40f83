package image

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"meteor-refine/pkg/geometry"
)

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

// twoTone is w x h, white in the top half and black in the bottom half.
func twoTone(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h/2; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return img
}

func luma(c color.Color) uint8 {
	return color.GrayModel.Convert(c).(color.Gray).Y
}

func TestDecode(t *testing.T) {
	layer, err := Decode(encodeJPEG(t, twoTone(32, 48)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if layer.Width() != 32 || layer.Height() != 48 {
		t.Errorf("size = %dx%d, want 32x48", layer.Width(), layer.Height())
	}
	if layer.Size() != geometry.NewSize(32, 48) {
		t.Errorf("Size = %+v", layer.Size())
	}
	if !layer.Portrait() {
		t.Error("32x48 should be portrait")
	}
	if !layer.Contains(geometry.NewPoint2D(10, 40)) || layer.Contains(geometry.NewPoint2D(40, 10)) {
		t.Error("Contains gave wrong answer")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not a jpeg")); err == nil {
		t.Fatal("Decode accepted garbage")
	}
}

func TestFlipVertical(t *testing.T) {
	layer := &Layer{Image: twoTone(16, 16)}
	flipped := layer.FlipVertical()

	if !flipped.Flipped {
		t.Error("Flipped not set")
	}
	if flipped.Width() != 16 || flipped.Height() != 16 {
		t.Fatalf("flipped size = %dx%d", flipped.Width(), flipped.Height())
	}
	if got := luma(flipped.Image.At(5, 0)); got != 0 {
		t.Errorf("top row after flip = %d, want black", got)
	}
	if got := luma(flipped.Image.At(5, 15)); got != 255 {
		t.Errorf("bottom row after flip = %d, want white", got)
	}
	if flipped.FlipVertical().Flipped {
		t.Error("double flip should clear Flipped")
	}
}

func TestMapPoint(t *testing.T) {
	layer := &Layer{Image: image.NewGray(image.Rect(0, 0, 10, 100))}
	p := geometry.NewPoint2D(3, 0)
	got := layer.MapPoint(p)
	if got != geometry.NewPoint2D(3, 99) {
		t.Errorf("MapPoint = %v, want {3 99}", got)
	}
	if back := layer.MapPoint(got); back != p {
		t.Errorf("MapPoint is not an involution: %v", back)
	}
	if pts := layer.MapPoints([]geometry.Point2D{{X: 1, Y: 10}}); pts[0] != geometry.NewPoint2D(1, 89) {
		t.Errorf("MapPoints = %v", pts)
	}
}
