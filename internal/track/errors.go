package track

import (
	"errors"
	"fmt"
)

// ErrDegenerateFit is returned when the point geometry cannot define a line:
// fewer than two points, a vertical track, or zero track length.
var ErrDegenerateFit = errors.New("degenerate track fit")

// ShapeMismatchError reports a projection called with a point set of a
// different length than the one the fit was computed from.
type ShapeMismatchError struct {
	Want int
	Got  int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("point count mismatch: fit has %d x-values, got %d points", e.Want, e.Got)
}
