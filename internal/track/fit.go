// Package track fits a straight line through meteor track points and snaps
// points onto it.
package track

import (
	"fmt"
	"math"

	"meteor-refine/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// varianceTolerance is the relative x-spread below which a fit is treated as
// vertical.
const varianceTolerance = 1e-12

// LineFit is the least-squares line y = A*x + B.
type LineFit struct {
	A float64 `json:"a"`
	B float64 `json:"b"`

	// XValues are the x-coordinates the fit was computed from, in input order.
	XValues []float64 `json:"x_values"`
}

// At returns the fitted y at x.
func (f LineFit) At(x float64) float64 {
	return f.A*x + f.B
}

// Endpoints returns the points on the line at the first and last fitted x.
func (f LineFit) Endpoints() (geometry.Point2D, geometry.Point2D) {
	if len(f.XValues) == 0 {
		return geometry.Point2D{}, geometry.Point2D{}
	}
	x0 := f.XValues[0]
	x1 := f.XValues[len(f.XValues)-1]
	return geometry.NewPoint2D(x0, f.At(x0)), geometry.NewPoint2D(x1, f.At(x1))
}

// Direction returns the unit vector from the first to the last endpoint.
func (f LineFit) Direction() (geometry.Point2D, error) {
	p0, p1 := f.Endpoints()
	v, ok := p1.Sub(p0).Normalize()
	if !ok {
		return geometry.Point2D{}, fmt.Errorf("%w: zero track length", ErrDegenerateFit)
	}
	return v, nil
}

// Fit computes the ordinary least-squares line through points.
func Fit(points []geometry.Point2D) (LineFit, error) {
	n := len(points)
	if n < 2 {
		return LineFit{}, fmt.Errorf("%w: need at least 2 points, got %d", ErrDegenerateFit, n)
	}

	xs := make([]float64, n)
	var sumX, sumSq float64
	for i, p := range points {
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			return LineFit{}, fmt.Errorf("%w: point %d is not finite", ErrDegenerateFit, i)
		}
		xs[i] = p.X
		sumX += p.X
		sumSq += p.X * p.X
	}

	mean := sumX / float64(n)
	var sxx float64
	for _, x := range xs {
		sxx += (x - mean) * (x - mean)
	}
	if sxx <= varianceTolerance*math.Max(1, sumSq) {
		return LineFit{}, fmt.Errorf("%w: x-coordinates have no spread (vertical track)", ErrDegenerateFit)
	}

	// Overdetermined system with design matrix columns [x, 1].
	A := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)
	for i, p := range points {
		A.Set(i, 0, p.X)
		A.Set(i, 1, 1)
		y.SetVec(i, p.Y)
	}

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, y); err != nil {
		return LineFit{}, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
	}

	return LineFit{
		A:       params.AtVec(0),
		B:       params.AtVec(1),
		XValues: xs,
	}, nil
}

// Project maps each point orthogonally onto the infinite line through the
// fit's endpoints. points must be the set the fit was computed from.
// Projections may fall outside the endpoints.
func Project(fit LineFit, points []geometry.Point2D) ([]geometry.Point2D, error) {
	if len(points) != len(fit.XValues) {
		return nil, &ShapeMismatchError{Want: len(fit.XValues), Got: len(points)}
	}

	v, err := fit.Direction()
	if err != nil {
		return nil, err
	}
	p0, _ := fit.Endpoints()

	out := make([]geometry.Point2D, len(points))
	for i, p := range points {
		r := p.Sub(p0).Dot(v)
		out[i] = p0.Add(v.Scale(r))
	}
	return out, nil
}

// Snap fits a line through points and projects the same points onto it.
func Snap(points []geometry.Point2D) (LineFit, []geometry.Point2D, error) {
	fit, err := Fit(points)
	if err != nil {
		return LineFit{}, nil, err
	}
	projected, err := Project(fit, points)
	if err != nil {
		return LineFit{}, nil, err
	}
	return fit, projected, nil
}

// Residuals returns the signed perpendicular distance of each point from the
// fitted line. Points to the left of the first-to-last direction are positive.
func Residuals(fit LineFit, points []geometry.Point2D) ([]float64, error) {
	v, err := fit.Direction()
	if err != nil {
		return nil, err
	}
	p0, _ := fit.Endpoints()

	res := make([]float64, len(points))
	for i, p := range points {
		res[i] = v.Cross(p.Sub(p0))
	}
	return res, nil
}

// RMS returns the root mean square of residuals, or 0 for an empty slice.
func RMS(residuals []float64) float64 {
	if len(residuals) == 0 {
		return 0
	}
	var sum float64
	for _, r := range residuals {
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(residuals)))
}
