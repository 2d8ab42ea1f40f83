package event

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"meteor-refine/pkg/geometry"
)

// Fixed line positions of the text record, 1-based.
const (
	lineFrames    = 2
	linePositions = 11
	lineTimes     = 12
	lineSky       = 13
	lineGnomonic  = 14

	// Data tokens start after a two-token label on every data line.
	dataOffset = 2

	maxLineSize = 16 << 20
)

// ParseBytes parses an event text record held in memory.
func ParseBytes(data []byte) (*Record, error) {
	return Parse(bytes.NewReader(data))
}

// Parse reads an event text record. The record is line-positional:
//
//	line 2:  token[2] is the frame count
//	line 11: token[2:] pixel positions "x,y"
//	line 12: token[2:] UNIX timestamps
//	line 13: token[2:] sky coordinates "x,y"
//	line 14: token[2:] gnomonic coordinates "x,y"
//
// Every other line is ignored. Each data line must carry exactly frame-count
// entries.
func Parse(r io.Reader) (*Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	lines := make([][]string, 0, lineGnomonic)
	for len(lines) < lineGnomonic && sc.Scan() {
		lines = append(lines, strings.Fields(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, &ParseError{Line: len(lines) + 1, Msg: "read failed", Err: err}
	}
	if len(lines) < lineGnomonic {
		return nil, &ParseError{Line: len(lines) + 1, Msg: fmt.Sprintf("record truncated: need %d lines, got %d", lineGnomonic, len(lines))}
	}
	tokens := func(line int) []string { return lines[line-1] }

	frameTokens := tokens(lineFrames)
	if len(frameTokens) <= dataOffset {
		return nil, &ParseError{Line: lineFrames, Msg: "missing frame count"}
	}
	frames, err := strconv.Atoi(frameTokens[dataOffset])
	if err != nil {
		return nil, &ParseError{Line: lineFrames, Msg: "invalid frame count", Err: err}
	}
	if frames < 1 {
		return nil, &ParseError{Line: lineFrames, Msg: fmt.Sprintf("frame count must be positive, got %d", frames)}
	}

	positions, err := parsePairs(tokens(linePositions), linePositions, frames)
	if err != nil {
		return nil, err
	}
	times, err := parseTimes(tokens(lineTimes), frames)
	if err != nil {
		return nil, err
	}
	sky, err := parsePairs(tokens(lineSky), lineSky, frames)
	if err != nil {
		return nil, err
	}
	gnomonic, err := parsePairs(tokens(lineGnomonic), lineGnomonic, frames)
	if err != nil {
		return nil, err
	}

	points := make([]TrackPoint, frames)
	for i := range points {
		points[i] = TrackPoint{Position: positions[i], Timestamp: times[i], Index: i}
	}

	return &Record{
		frames:   frames,
		points:   points,
		sky:      sky,
		gnomonic: gnomonic,
	}, nil
}

func dataTokens(toks []string, line, frames int) ([]string, error) {
	var data []string
	if len(toks) > dataOffset {
		data = toks[dataOffset:]
	}
	if len(data) != frames {
		return nil, &ParseError{Line: line, Msg: fmt.Sprintf("expected %d entries, got %d", frames, len(data))}
	}
	return data, nil
}

func parsePairs(toks []string, line, frames int) ([]geometry.Point2D, error) {
	data, err := dataTokens(toks, line, frames)
	if err != nil {
		return nil, err
	}
	out := make([]geometry.Point2D, len(data))
	for i, tok := range data {
		xs, ys, ok := strings.Cut(tok, ",")
		if !ok {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("entry %d %q is not an x,y pair", i, tok)}
		}
		x, err := strconv.ParseFloat(xs, 64)
		if err != nil {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("entry %d x", i), Err: err}
		}
		y, err := strconv.ParseFloat(ys, 64)
		if err != nil {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("entry %d y", i), Err: err}
		}
		out[i] = geometry.NewPoint2D(x, y)
	}
	return out, nil
}

func parseTimes(toks []string, frames int) ([]float64, error) {
	data, err := dataTokens(toks, lineTimes, frames)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(data))
	for i, tok := range data {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, &ParseError{Line: lineTimes, Msg: fmt.Sprintf("entry %d timestamp", i), Err: err}
		}
		if i > 0 && v < out[i-1] {
			return nil, &ParseError{Line: lineTimes, Msg: fmt.Sprintf("entry %d timestamp %v precedes %v", i, v, out[i-1])}
		}
		out[i] = v
	}
	return out, nil
}
