// Package main provides the entry point for the Manual Refine Track tool.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"meteor-refine/internal/app"
	"meteor-refine/internal/config"
	"meteor-refine/internal/event"
	"meteor-refine/internal/observability"
	"meteor-refine/internal/track"
	"meteor-refine/internal/version"
	"meteor-refine/pkg/geometry"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const appTitle = "Manual Refine Track"

// move is one marker edit given on the command line as "index:x,y".
type move struct {
	Index int
	To    geometry.Point2D
}

type moveList []move

func (m *moveList) String() string {
	parts := make([]string, len(*m))
	for i, mv := range *m {
		parts[i] = fmt.Sprintf("%d:%g,%g", mv.Index, mv.To.X, mv.To.Y)
	}
	return strings.Join(parts, " ")
}

func (m *moveList) Set(value string) error {
	idx, xy, ok := strings.Cut(value, ":")
	if !ok {
		return fmt.Errorf("want index:x,y, got %q", value)
	}
	i, err := strconv.Atoi(idx)
	if err != nil {
		return fmt.Errorf("marker index: %w", err)
	}
	xs, ys, ok := strings.Cut(xy, ",")
	if !ok {
		return fmt.Errorf("want index:x,y, got %q", value)
	}
	x, err := strconv.ParseFloat(xs, 64)
	if err != nil {
		return fmt.Errorf("x: %w", err)
	}
	y, err := strconv.ParseFloat(ys, 64)
	if err != nil {
		return fmt.Errorf("y: %w", err)
	}
	*m = append(*m, move{Index: i, To: geometry.NewPoint2D(x, y)})
	return nil
}

// pointReport is one marker in the JSON output.
type pointReport struct {
	Index     int              `json:"index"`
	Timestamp float64          `json:"timestamp"`
	Original  geometry.Point2D `json:"original"`
	Refined   geometry.Point2D `json:"refined"`
	Residual  *float64         `json:"residual,omitempty"`
}

type report struct {
	Key    event.Key      `json:"key"`
	Frames int            `json:"frames"`
	Image  geometry.Size  `json:"image"`
	Fit    *track.LineFit `json:"fit,omitempty"`
	RMS    *float64       `json:"rms,omitempty"`
	Points []pointReport  `json:"points"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "", "Path to YAML config file")
	date := flag.String("date", "", "Event date (e.g. 20160101)")
	evTime := flag.String("time", "", "Event time (e.g. 010203)")
	station := flag.String("station", "", "Station identifier")
	camera := flag.String("camera", "", "Camera identifier")
	baseURL := flag.String("base", "", "Override remote archive base URL")
	cacheDir := flag.String("cache", "", "Override cache directory")
	doFit := flag.Bool("fit", false, "Fit a line through the markers")
	doSnap := flag.Bool("snap", false, "Fit a line and snap every marker onto it")
	showMetrics := flag.Bool("metrics", false, "Print loader metrics to stderr on exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	var moves moveList
	flag.Var(&moves, "move", "Move a marker before fitting, as index:x,y (repeatable)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *date == "" || *evTime == "" || *station == "" || *camera == "" {
		fmt.Println("Usage: mrt -date <date> -time <time> -station <station> -camera <camera> [-move i:x,y] [-fit|-snap] [-config <file>]")
		os.Exit(1)
	}

	log.Printf("Starting %s v%s", appTitle, version.Version)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configPath, err)
		}
		cfg = loaded
	}
	if *baseURL != "" {
		cfg.Remote.BaseURL = *baseURL
	}
	if *cacheDir != "" {
		cfg.Cache.Dir = *cacheDir
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()
	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "mrt",
		Exporter:    cfg.Tracing.Exporter,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		log.Fatalf("Tracing: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewLoaderMetrics(reg)
	if err != nil {
		log.Fatalf("Metrics: %v", err)
	}

	loader := event.NewLoader(cfg.Remote.BaseURL, event.NewCache(cfg.Cache.Dir), event.NewHTTPFetcher(cfg.Timeout()))
	loader.Metrics = metrics

	state := app.NewState(loader)
	state.FlipPortrait = cfg.Image.FlipPortrait

	key := event.Key{Date: *date, Time: *evTime, Station: *station, Camera: *camera}
	runErr := run(ctx, os.Stdout, state, key, moves, *doFit, *doSnap)

	if err := shutdown(ctx); err != nil {
		log.Printf("Tracing: shutdown failed: %v", err)
	}
	if *showMetrics {
		printMetrics(reg)
	}
	if runErr != nil {
		log.Printf("%s failed: %v", key, runErr)
		os.Exit(exitCode(runErr))
	}
}

func run(ctx context.Context, out io.Writer, state *app.State, key event.Key, moves moveList, doFit, doSnap bool) error {
	if err := state.LoadEvent(ctx, key); err != nil {
		return err
	}

	// Moves are given in stored-image coordinates.
	layer := state.Layer()
	for _, mv := range moves {
		to := mv.To
		if layer.Flipped {
			to = layer.MapPoint(to)
		}
		if err := state.MovePoint(mv.Index, to); err != nil {
			return fmt.Errorf("move marker %d: %w", mv.Index, err)
		}
	}

	switch {
	case doSnap:
		if _, err := state.SnapToTrack(); err != nil {
			return err
		}
	case doFit:
		if _, err := state.FitTrack(); err != nil {
			return err
		}
	}

	return writeReport(out, state)
}

func writeReport(w io.Writer, state *app.State) error {
	rec := state.Record()
	refined := state.ImagePositions()
	points := rec.Points()

	rep := report{
		Key:    rec.Key(),
		Frames: rec.Frames(),
		Image:  state.Layer().Size(),
		Fit:    state.Fit(),
		Points: make([]pointReport, len(points)),
	}

	var residuals []float64
	if rep.Fit != nil {
		res, err := state.Residuals()
		if err != nil {
			return err
		}
		residuals = res
		rms := track.RMS(res)
		rep.RMS = &rms
	}

	for i, p := range points {
		rep.Points[i] = pointReport{
			Index:     p.Index,
			Timestamp: p.Timestamp,
			Original:  p.Position,
			Refined:   refined[i],
		}
		if residuals != nil {
			rep.Points[i].Residual = &residuals[i]
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// exitCode maps error kinds to distinct process exit codes.
func exitCode(err error) int {
	var (
		fetchErr *event.FetchError
		fsErr    *event.FilesystemError
		parseErr *event.ParseError
		shapeErr *track.ShapeMismatchError
	)
	switch {
	case errors.As(err, &fetchErr):
		return 3
	case errors.As(err, &fsErr):
		return 4
	case errors.As(err, &parseErr):
		return 5
	case errors.Is(err, track.ErrDegenerateFit), errors.As(err, &shapeErr):
		return 6
	default:
		return 1
	}
}

func printMetrics(reg prometheus.Gatherer) {
	families, err := reg.Gather()
	if err != nil {
		log.Printf("Metrics: gather failed: %v", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			var value string
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				value = strconv.FormatFloat(m.GetCounter().GetValue(), 'g', -1, 64)
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				value = fmt.Sprintf("count=%d sum=%.4fs", h.GetSampleCount(), h.GetSampleSum())
			default:
				continue
			}
			fmt.Fprintf(os.Stderr, "%s{%s} %s\n", mf.GetName(), strings.Join(labels, ","), value)
		}
	}
}
