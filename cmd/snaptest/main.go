// Command snaptest fits a line through the markers of a local event record
// and prints the snapped positions and residuals.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"meteor-refine/internal/event"
	"meteor-refine/internal/track"
)

func main() {
	path := flag.String("r", "", "Path to an event text record")
	doSnap := flag.Bool("snap", false, "Print snapped positions")
	flag.Parse()

	if *path == "" {
		fmt.Println("Usage: snaptest -r <event.txt> [-snap]")
		os.Exit(1)
	}

	f, err := os.Open(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open record: %v\n", err)
		os.Exit(1)
	}
	rec, err := event.Parse(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse %s: %v\n", *path, err)
		os.Exit(1)
	}

	fmt.Printf("=== Record: %s ===\n", *path)
	fmt.Printf("Frames: %d, duration %.3fs\n", rec.Frames(), rec.Duration().Seconds())

	positions := rec.Positions()
	fit, snapped, err := track.Snap(positions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fit failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n=== Fit ===\n")
	fmt.Printf("y = %.6f*x + %.3f (angle %.2f deg)\n", fit.A, fit.B, math.Atan(fit.A)*180/math.Pi)

	residuals, err := track.Residuals(fit, positions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Residuals failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n=== Markers ===\n")
	for i, p := range positions {
		line := fmt.Sprintf("  [%2d] (%8.2f, %8.2f) residual %+7.3f", i, p.X, p.Y, residuals[i])
		if *doSnap {
			line += fmt.Sprintf(" -> (%8.2f, %8.2f)", snapped[i].X, snapped[i].Y)
		}
		fmt.Println(line)
	}
	fmt.Printf("\nRMS residual: %.4f px\n", track.RMS(residuals))
}
