package event

import (
	"context"
	"fmt"
	"log"
	"time"

	"meteor-refine/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "meteor-refine/internal/event"

// Loader produces Records from the remote archive through the local cache.
// Load is safe to call concurrently for different keys. Concurrent first
// loads of the same key may both fetch; the last cache write wins.
type Loader struct {
	BaseURL string
	Cache   *Cache
	Fetcher Fetcher
	Metrics *observability.LoaderMetrics
}

// NewLoader creates a loader for the archive at baseURL.
func NewLoader(baseURL string, cache *Cache, fetcher Fetcher) *Loader {
	return &Loader{
		BaseURL: baseURL,
		Cache:   cache,
		Fetcher: fetcher,
	}
}

// Load returns the event identified by key, fetching and caching the image
// and text record if they are not cached yet. A cached event is loaded
// without network I/O.
func (l *Loader) Load(ctx context.Context, key Key) (*Record, error) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "event.Load",
		trace.WithAttributes(attribute.String("event.key", key.String())))
	defer span.End()

	rec, err := l.load(ctx, key)
	l.Metrics.ObserveLoad(start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("event.frames", rec.Frames()))
	return rec, nil
}

func (l *Loader) load(ctx context.Context, key Key) (*Record, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := l.Cache.Ensure(); err != nil {
		return nil, err
	}

	img, err := l.resource(ctx, key, ResourceImage, ImageURL(l.BaseURL, key))
	if err != nil {
		return nil, err
	}
	txt, err := l.resource(ctx, key, ResourceRecord, RecordURL(l.BaseURL, key))
	if err != nil {
		return nil, err
	}

	rec, err := ParseBytes(txt)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", l.Cache.Path(key, ResourceRecord), err)
	}
	rec.key = key
	rec.image = img

	log.Printf("Event: loaded %s (%d frames, image %d bytes)", key, rec.Frames(), len(img))
	return rec, nil
}

// resource returns the cached bytes for resource, fetching and storing them
// first when missing.
func (l *Loader) resource(ctx context.Context, key Key, resource, url string) ([]byte, error) {
	data, ok, err := l.Cache.Read(key, resource)
	if err != nil {
		return nil, err
	}
	if ok {
		l.Metrics.ObserveCacheHit(resource)
		return data, nil
	}

	_, span := otel.Tracer(tracerName).Start(ctx, "event.fetch",
		trace.WithAttributes(attribute.String("event.resource", resource), attribute.String("http.url", url)))
	data, err = l.Fetcher.Fetch(ctx, url)
	l.Metrics.ObserveFetch(resource, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, &FetchError{URL: url, Err: err}
	}
	span.End()

	if err := l.Cache.Write(key, resource, data); err != nil {
		return nil, err
	}
	log.Printf("Event cache: stored %s (%d bytes)", l.Cache.Path(key, resource), len(data))
	return data, nil
}
