// Package event loads meteor event records: it fetches the event image and
// text record from the remote archive, keeps them in a flat cache directory,
// and parses the text record into a read-only Record.
package event

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidKey is returned for keys that cannot name a cache file or a
// remote path.
var ErrInvalidKey = errors.New("invalid event key")

// Key identifies one event by its capture date, time, station and camera.
type Key struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	Station string `json:"station"`
	Camera  string `json:"camera"`
}

// String returns the cache key: the four identifiers concatenated.
func (k Key) String() string {
	return k.Date + k.Time + k.Station + k.Camera
}

// Validate checks that every identifier is present and safe to use as a
// path segment.
func (k Key) Validate() error {
	fields := []struct{ name, value string }{
		{"date", k.Date},
		{"time", k.Time},
		{"station", k.Station},
		{"camera", k.Camera},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidKey, f.name)
		}
		if strings.ContainsAny(f.value, `/\`) || strings.Contains(f.value, "..") {
			return fmt.Errorf("%w: %s %q contains a path separator", ErrInvalidKey, f.name, f.value)
		}
	}
	return nil
}

func (k Key) remoteDir(base string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join([]string{
		url.PathEscape(k.Date),
		url.PathEscape(k.Time),
		url.PathEscape(k.Station),
		url.PathEscape(k.Camera),
	}, "/")
}

// ImageURL returns the remote address of the event's labelled gnomonic image.
func ImageURL(base string, k Key) string {
	name := fmt.Sprintf("%s-%s%s-gnomonic-labels.jpg", k.Station, k.Date, k.Time)
	return k.remoteDir(base) + "/" + url.PathEscape(name)
}

// RecordURL returns the remote address of the event's text record.
func RecordURL(base string, k Key) string {
	return k.remoteDir(base) + "/event.txt"
}
