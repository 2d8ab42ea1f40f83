package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	goimage "image"
	"image/jpeg"
	"math"
	"strings"
	"testing"

	"meteor-refine/internal/event"
	"meteor-refine/internal/track"
	"meteor-refine/pkg/geometry"
)

var key = event.Key{Date: "20160101", Time: "010203", Station: "ROVER", Camera: "CAM1"}

type stubFetcher struct {
	image  []byte
	record string
}

func (f stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if strings.HasSuffix(url, "event.txt") {
		return []byte(f.record), nil
	}
	return f.image, nil
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, goimage.NewGray(goimage.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func recordText(positions []geometry.Point2D) string {
	var pos, times, coords []string
	for i, p := range positions {
		pos = append(pos, fmt.Sprintf("%g,%g", p.X, p.Y))
		times = append(times, fmt.Sprintf("%.2f", 1451610123+float64(i)*0.04))
		coords = append(coords, "0,0")
	}
	lines := []string{"header", fmt.Sprintf("frames = %d", len(positions))}
	for i := 3; i <= 10; i++ {
		lines = append(lines, "skip")
	}
	lines = append(lines,
		"pos = "+strings.Join(pos, " "),
		"time = "+strings.Join(times, " "),
		"sky = "+strings.Join(coords, " "),
		"gno = "+strings.Join(coords, " "),
	)
	return strings.Join(lines, "\n") + "\n"
}

func newLoadedState(t *testing.T, w, h int, flip bool, positions []geometry.Point2D) *State {
	t.Helper()
	fetcher := stubFetcher{image: jpegBytes(t, w, h), record: recordText(positions)}
	s := NewState(event.NewLoader("http://archive", event.NewCache(t.TempDir()), fetcher))
	s.FlipPortrait = flip
	if err := s.LoadEvent(context.Background(), key); err != nil {
		t.Fatalf("LoadEvent: %v", err)
	}
	return s
}

var noisy = []geometry.Point2D{{X: 10, Y: 11}, {X: 20, Y: 19}, {X: 30, Y: 32}, {X: 40, Y: 39}}

func TestLoadEventEmitsAndPopulates(t *testing.T) {
	fetcher := stubFetcher{image: jpegBytes(t, 64, 48), record: recordText(noisy)}
	s := NewState(event.NewLoader("http://archive", event.NewCache(t.TempDir()), fetcher))

	var loaded *event.Record
	s.On(EventRecordLoaded, func(data interface{}) { loaded = data.(*event.Record) })

	if err := s.LoadEvent(context.Background(), key); err != nil {
		t.Fatalf("LoadEvent: %v", err)
	}
	if loaded == nil || loaded.Frames() != 4 {
		t.Fatalf("EventRecordLoaded payload = %v", loaded)
	}
	if s.Layer().Width() != 64 || s.Layer().Flipped {
		t.Errorf("layer = %dx%d flipped=%v", s.Layer().Width(), s.Layer().Height(), s.Layer().Flipped)
	}
	if got := s.Positions(); len(got) != 4 || got[2] != noisy[2] {
		t.Errorf("Positions = %v", got)
	}
	if s.Modified() {
		t.Error("fresh load reported modified")
	}
}

func TestOperationsWithoutEvent(t *testing.T) {
	s := NewState(nil)
	if _, err := s.FitTrack(); !errors.Is(err, ErrNoEvent) {
		t.Errorf("FitTrack = %v", err)
	}
	if _, err := s.SnapToTrack(); !errors.Is(err, ErrNoEvent) {
		t.Errorf("SnapToTrack = %v", err)
	}
	if err := s.Grab(0); !errors.Is(err, ErrNoEvent) {
		t.Errorf("Grab = %v", err)
	}
	if err := s.ResetPositions(); !errors.Is(err, ErrNoEvent) {
		t.Errorf("ResetPositions = %v", err)
	}
}

func TestSingleGrab(t *testing.T) {
	s := newLoadedState(t, 64, 48, false, noisy)

	if err := s.Grab(1); err != nil {
		t.Fatalf("Grab(1): %v", err)
	}
	if err := s.Grab(2); !errors.Is(err, ErrBusy) {
		t.Fatalf("Grab(2) while 1 held = %v, want ErrBusy", err)
	}
	if err := s.Drag(2, geometry.Point2D{}); !errors.Is(err, ErrNotGrabbed) {
		t.Fatalf("Drag(2) = %v, want ErrNotGrabbed", err)
	}
	if _, err := s.SnapToTrack(); !errors.Is(err, ErrBusy) {
		t.Fatalf("SnapToTrack while dragging = %v, want ErrBusy", err)
	}
	if err := s.Drag(1, geometry.NewPoint2D(21, 21)); err != nil {
		t.Fatalf("Drag(1): %v", err)
	}
	if err := s.Release(1); err != nil {
		t.Fatalf("Release(1): %v", err)
	}
	if s.Grabbed() != -1 {
		t.Errorf("Grabbed = %d after release", s.Grabbed())
	}
	if err := s.Grab(5); err == nil {
		t.Error("Grab out of range succeeded")
	}

	if got := s.Positions()[1]; got != geometry.NewPoint2D(21, 21) {
		t.Errorf("moved position = %v", got)
	}
	if got := s.Record().Positions()[1]; got != noisy[1] {
		t.Errorf("record mutated: %v", got)
	}
	if !s.Modified() {
		t.Error("Modified = false after drag")
	}
}

func TestSnapToTrack(t *testing.T) {
	s := newLoadedState(t, 64, 48, false, noisy)

	var snapped bool
	s.On(EventTrackSnapped, func(interface{}) { snapped = true })

	fit, err := s.SnapToTrack()
	if err != nil {
		t.Fatalf("SnapToTrack: %v", err)
	}
	if !snapped {
		t.Error("EventTrackSnapped not emitted")
	}
	for i, p := range s.Positions() {
		if math.Abs(p.Y-fit.At(p.X)) > 1e-9 {
			t.Errorf("marker %d %v is off the fitted line", i, p)
		}
	}

	res, err := s.Residuals()
	if err != nil {
		t.Fatalf("Residuals: %v", err)
	}
	if track.RMS(res) > 1e-9 {
		t.Errorf("RMS after snap = %v", track.RMS(res))
	}

	if err := s.ResetPositions(); err != nil {
		t.Fatalf("ResetPositions: %v", err)
	}
	if got := s.Positions(); got[0] != noisy[0] || s.Fit() != nil || s.Modified() {
		t.Errorf("after reset positions=%v fit=%v modified=%v", got, s.Fit(), s.Modified())
	}
}

func TestSnapDegenerate(t *testing.T) {
	vertical := []geometry.Point2D{{X: 5, Y: 1}, {X: 5, Y: 2}, {X: 5, Y: 3}}
	s := newLoadedState(t, 64, 48, false, vertical)
	if _, err := s.SnapToTrack(); !errors.Is(err, track.ErrDegenerateFit) {
		t.Fatalf("SnapToTrack = %v, want ErrDegenerateFit", err)
	}
	if got := s.Positions(); got[0] != vertical[0] {
		t.Errorf("failed snap changed positions: %v", got)
	}
}

func TestFlipPortrait(t *testing.T) {
	s := newLoadedState(t, 48, 64, true, noisy)

	if !s.Layer().Flipped {
		t.Fatal("portrait image not flipped")
	}
	if got, want := s.Positions()[0], geometry.NewPoint2D(10, 63-11); got != want {
		t.Errorf("display position = %v, want %v", got, want)
	}
	if got := s.ImagePositions()[0]; got != noisy[0] {
		t.Errorf("image position = %v, want %v", got, noisy[0])
	}

	fit, err := s.FitTrack()
	if err != nil {
		t.Fatalf("FitTrack: %v", err)
	}
	direct, err := track.Fit(noisy)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(fit.A-direct.A) > 1e-9 || math.Abs(fit.B-direct.B) > 1e-9 {
		t.Errorf("FitTrack = (%v, %v), want image-frame fit (%v, %v)", fit.A, fit.B, direct.A, direct.B)
	}

	if _, err := s.SnapToTrack(); err != nil {
		t.Fatalf("SnapToTrack: %v", err)
	}
	_, want, err := track.Snap(noisy)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range s.ImagePositions() {
		if !p.ApproxEqual(want[i], 1e-9) {
			t.Errorf("snapped image position %d = %v, want %v", i, p, want[i])
		}
	}
}

func TestMovePoint(t *testing.T) {
	s := newLoadedState(t, 64, 48, false, noisy)
	var changed []int
	s.On(EventPointsChanged, func(data interface{}) { changed = append(changed, data.(int)) })

	if err := s.MovePoint(3, geometry.NewPoint2D(41, 41)); err != nil {
		t.Fatalf("MovePoint: %v", err)
	}
	if len(changed) != 1 || changed[0] != 3 {
		t.Errorf("EventPointsChanged payloads = %v", changed)
	}
	if s.Grabbed() != -1 {
		t.Error("MovePoint left marker grabbed")
	}
}
