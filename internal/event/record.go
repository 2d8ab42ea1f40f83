package event

import (
	"math"
	"time"

	"meteor-refine/pkg/geometry"
)

// TrackPoint is one detected meteor position with its capture time.
type TrackPoint struct {
	Position  geometry.Point2D `json:"position"`
	Timestamp float64          `json:"timestamp"` // UNIX seconds
	Index     int              `json:"index"`     // position in the detection sequence
}

// Time converts the fractional UNIX timestamp to a time.Time.
func (p TrackPoint) Time() time.Time {
	sec, frac := math.Modf(p.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// Record is a read-only snapshot of one meteor event. Accessors return
// copies so callers cannot mutate the record.
type Record struct {
	key      Key
	image    []byte
	frames   int
	points   []TrackPoint
	sky      []geometry.Point2D
	gnomonic []geometry.Point2D
}

// Key returns the identifiers the record was loaded with. It is the zero Key
// for records produced by Parse directly.
func (r *Record) Key() Key { return r.key }

// Frames returns the frame count declared by the record.
func (r *Record) Frames() int { return r.frames }

// Image returns a copy of the event image bytes.
func (r *Record) Image() []byte {
	return append([]byte(nil), r.image...)
}

// Points returns the track points in timestamp order.
func (r *Record) Points() []TrackPoint {
	return append([]TrackPoint(nil), r.points...)
}

// Positions returns the pixel positions of the track points.
func (r *Record) Positions() []geometry.Point2D {
	out := make([]geometry.Point2D, len(r.points))
	for i, p := range r.points {
		out[i] = p.Position
	}
	return out
}

// Timestamps returns the capture time of each track point in UNIX seconds.
func (r *Record) Timestamps() []float64 {
	out := make([]float64, len(r.points))
	for i, p := range r.points {
		out[i] = p.Timestamp
	}
	return out
}

// Sky returns the sky coordinates parallel to Points.
func (r *Record) Sky() []geometry.Point2D {
	return append([]geometry.Point2D(nil), r.sky...)
}

// Gnomonic returns the gnomonic-projection coordinates parallel to Points.
func (r *Record) Gnomonic() []geometry.Point2D {
	return append([]geometry.Point2D(nil), r.gnomonic...)
}

// Start returns the first track point.
func (r *Record) Start() TrackPoint { return r.points[0] }

// End returns the last track point.
func (r *Record) End() TrackPoint { return r.points[len(r.points)-1] }

// Duration returns the time between the first and last track point.
func (r *Record) Duration() time.Duration {
	secs := r.End().Timestamp - r.Start().Timestamp
	return time.Duration(secs * float64(time.Second))
}
