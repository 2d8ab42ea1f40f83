// Package app holds the session state of a refinement: the loaded event, the
// displayed image and the working copy of marker positions the user edits.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"meteor-refine/internal/event"
	"meteor-refine/internal/image"
	"meteor-refine/internal/track"
	"meteor-refine/pkg/geometry"
)

// Errors returned by State operations.
var (
	ErrNoEvent    = errors.New("no event loaded")
	ErrBusy       = errors.New("another marker is being dragged")
	ErrNotGrabbed = errors.New("marker is not grabbed")
)

// EventLoader loads event records. *event.Loader implements it.
type EventLoader interface {
	Load(ctx context.Context, key event.Key) (*event.Record, error)
}

// EventType identifies different application events.
type EventType int

const (
	EventRecordLoaded EventType = iota
	EventPointsChanged
	EventSelectionChanged
	EventTrackFitted
	EventTrackSnapped
	EventModified
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// noMarker marks that no marker is grabbed.
const noMarker = -1

// State holds the session state. The loaded Record is never modified; all
// edits apply to the working copy of positions.
type State struct {
	mu sync.RWMutex

	loader EventLoader

	// FlipPortrait displays portrait images with their rows reversed.
	FlipPortrait bool

	record    *event.Record
	layer     *image.Layer
	positions []geometry.Point2D // display frame
	grabbed   int
	fit       *track.LineFit
	modified  bool

	listeners map[EventType][]EventListener
}

// NewState creates a new session state that loads events with loader.
func NewState(loader EventLoader) *State {
	return &State{
		loader:    loader,
		grabbed:   noMarker,
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers an event listener for the specified event type.
func (s *State) On(ev EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[ev] = append(s.listeners[ev], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *State) Emit(ev EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[ev]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// LoadEvent loads the event for key and replaces the session contents.
func (s *State) LoadEvent(ctx context.Context, key event.Key) error {
	rec, err := s.loader.Load(ctx, key)
	if err != nil {
		return err
	}

	layer, err := image.Decode(rec.Image())
	if err != nil {
		return fmt.Errorf("event %s: %w", key, err)
	}

	positions := rec.Positions()
	if s.FlipPortrait && layer.Portrait() {
		layer = layer.FlipVertical()
		positions = layer.MapPoints(positions)
	}

	for i, p := range positions {
		if !layer.Contains(p) {
			log.Printf("Event %s: marker %d at (%.1f, %.1f) lies outside the %dx%d image",
				key, i, p.X, p.Y, layer.Width(), layer.Height())
		}
	}

	s.mu.Lock()
	s.record = rec
	s.layer = layer
	s.positions = positions
	s.grabbed = noMarker
	s.fit = nil
	s.modified = false
	s.mu.Unlock()

	s.Emit(EventRecordLoaded, rec)
	return nil
}

// Record returns the loaded event, or nil.
func (s *State) Record() *event.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record
}

// Layer returns the displayed image, or nil.
func (s *State) Layer() *image.Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layer
}

// Modified reports whether the working copy differs from the loaded record.
func (s *State) Modified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

// Positions returns the working copy of marker positions in display frame.
func (s *State) Positions() []geometry.Point2D {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]geometry.Point2D(nil), s.positions...)
}

// ImagePositions returns the working copy in stored-image pixel coordinates.
func (s *State) ImagePositions() []geometry.Point2D {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.imagePositionsLocked()
}

func (s *State) imagePositionsLocked() []geometry.Point2D {
	if s.layer != nil && s.layer.Flipped {
		return s.layer.MapPoints(s.positions)
	}
	return append([]geometry.Point2D(nil), s.positions...)
}

// Grabbed returns the index of the grabbed marker, or -1.
func (s *State) Grabbed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grabbed
}

// Grab selects marker i for dragging. Only one marker may be grabbed at a
// time.
func (s *State) Grab(i int) error {
	s.mu.Lock()
	if err := s.checkIndexLocked(i); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.grabbed != noMarker && s.grabbed != i {
		s.mu.Unlock()
		return ErrBusy
	}
	s.grabbed = i
	s.mu.Unlock()

	s.Emit(EventSelectionChanged, i)
	return nil
}

// Drag moves the grabbed marker i to p.
func (s *State) Drag(i int, p geometry.Point2D) error {
	s.mu.Lock()
	if err := s.checkIndexLocked(i); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.grabbed != i {
		s.mu.Unlock()
		return ErrNotGrabbed
	}
	s.positions[i] = p
	s.modified = true
	s.mu.Unlock()

	s.Emit(EventPointsChanged, i)
	return nil
}

// Release ends the drag of marker i.
func (s *State) Release(i int) error {
	s.mu.Lock()
	if s.grabbed != i {
		s.mu.Unlock()
		return ErrNotGrabbed
	}
	s.grabbed = noMarker
	s.mu.Unlock()

	s.Emit(EventSelectionChanged, noMarker)
	s.Emit(EventModified, true)
	return nil
}

// MovePoint grabs, drags and releases marker i in one step.
func (s *State) MovePoint(i int, p geometry.Point2D) error {
	if err := s.Grab(i); err != nil {
		return err
	}
	if err := s.Drag(i, p); err != nil {
		return err
	}
	return s.Release(i)
}

// FitTrack fits a line through the working copy. The fit is expressed in
// stored-image pixel coordinates.
func (s *State) FitTrack() (track.LineFit, error) {
	s.mu.Lock()
	if s.record == nil {
		s.mu.Unlock()
		return track.LineFit{}, ErrNoEvent
	}
	fit, err := track.Fit(s.imagePositionsLocked())
	if err != nil {
		s.mu.Unlock()
		return track.LineFit{}, err
	}
	s.fit = &fit
	s.mu.Unlock()

	s.Emit(EventTrackFitted, fit)
	return fit, nil
}

// SnapToTrack fits a line through the working copy and moves every marker
// onto its orthogonal projection on that line.
func (s *State) SnapToTrack() (track.LineFit, error) {
	s.mu.Lock()
	if s.record == nil {
		s.mu.Unlock()
		return track.LineFit{}, ErrNoEvent
	}
	if s.grabbed != noMarker {
		s.mu.Unlock()
		return track.LineFit{}, ErrBusy
	}

	fit, projected, err := track.Snap(s.imagePositionsLocked())
	if err != nil {
		s.mu.Unlock()
		return track.LineFit{}, err
	}
	if s.layer != nil && s.layer.Flipped {
		projected = s.layer.MapPoints(projected)
	}
	s.positions = projected
	s.fit = &fit
	s.modified = true
	s.mu.Unlock()

	log.Printf("Track: snapped %d markers to y = %.6f*x + %.3f", len(projected), fit.A, fit.B)
	s.Emit(EventTrackSnapped, fit)
	s.Emit(EventPointsChanged, noMarker)
	return fit, nil
}

// Fit returns the most recent fit, or nil.
func (s *State) Fit() *track.LineFit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fit
}

// Residuals returns the signed distance of each working position from the
// most recent fit.
func (s *State) Residuals() ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fit == nil {
		return nil, fmt.Errorf("no track fitted")
	}
	return track.Residuals(*s.fit, s.imagePositionsLocked())
}

// ResetPositions restores the working copy to the loaded record.
func (s *State) ResetPositions() error {
	s.mu.Lock()
	if s.record == nil {
		s.mu.Unlock()
		return ErrNoEvent
	}
	if s.grabbed != noMarker {
		s.mu.Unlock()
		return ErrBusy
	}
	positions := s.record.Positions()
	if s.layer != nil && s.layer.Flipped {
		positions = s.layer.MapPoints(positions)
	}
	s.positions = positions
	s.fit = nil
	s.modified = false
	s.mu.Unlock()

	s.Emit(EventPointsChanged, noMarker)
	s.Emit(EventModified, false)
	return nil
}

func (s *State) checkIndexLocked(i int) error {
	if s.record == nil {
		return ErrNoEvent
	}
	if i < 0 || i >= len(s.positions) {
		return fmt.Errorf("marker %d out of range [0, %d)", i, len(s.positions))
	}
	return nil
}
