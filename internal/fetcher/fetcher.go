package fetcher

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/geowidget/tilefetch/internal/repository/store"
	"github.com/geowidget/tilefetch/internal/tile"
	"github.com/geowidget/tilefetch/pkg/logger"
	"github.com/geowidget/tilefetch/pkg/metrics"
	"github.com/geowidget/tilefetch/pkg/worker"
)

// Delivery sources reported on TileImage.
const (
	SourceNetwork     = "network"
	SourceCache       = "cache"
	SourcePlaceholder = "placeholder"
)

// TileImage is a decoded tile ready for rendering. Once delivered it
// belongs to the receiver; the fetcher keeps no reference to it.
type TileImage struct {
	Coord  tile.Coord
	Bounds tile.Rect
	Image  image.Image
	// Raw holds the encoded bytes the image was decoded from.
	Raw    []byte
	Source string
}

// DeliverFunc receives each completed tile. Exactly one delivery per
// non-cancelled request; cancelled requests deliver nothing.
type DeliverFunc func(coord tile.Coord, img *TileImage)

// DecodeFunc builds a renderable image from raw encoded bytes.
type DecodeFunc func(data []byte) (image.Image, error)

// URLFunc resolves the download URL for a tile coordinate.
type URLFunc func(coord tile.Coord) string

type Options struct {
	// URL and Deliver are required.
	URL     URLFunc
	Deliver DeliverFunc

	// Decode defaults to the stdlib image registry (png, jpeg).
	Decode DecodeFunc
	// Store defaults to a disabled store.
	Store store.Store
	// Workers runs the write-through cache inserts off the completion
	// path. The fetcher creates its own single-worker pool when nil.
	Workers *worker.Pool

	UserAgent string
	Timeout   time.Duration
	// RecacheFallback re-inserts cached bytes served on the failure
	// path. A no-op under write-once semantics unless the store was
	// broken when the entry was first written.
	RecacheFallback bool
	Logger          logger.Logger
}

// Fetcher is the tile acquisition pipeline: asynchronous network fetch
// with cancellation, a persistent store used as fallback and
// write-through cache, and a delivery callback.
type Fetcher struct {
	client          *http.Client
	tracker         *Tracker
	store           store.Store
	pool            *worker.Pool
	deliver         DeliverFunc
	decode          DecodeFunc
	urlFor          URLFunc
	userAgent       string
	recacheFallback bool
	logger          logger.Logger
}

func New(opts Options) *Fetcher {
	if opts.Decode == nil {
		opts.Decode = decodeImage
	}
	if opts.Store == nil {
		opts.Store = store.NewNoopStore()
	}
	if opts.Workers == nil {
		opts.Workers = worker.NewPool(1)
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		// Peer verification stays off on purpose: tile servers with
		// self-signed or mismatched certificates are common in offline
		// and intranet deployments. Known security trade-off.
		TLSClientConfig:   &tls.Config{InsecureSkipVerify: true},
		ForceAttemptHTTP2: true,
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		tracker:         NewTracker(),
		store:           opts.Store,
		pool:            opts.Workers,
		deliver:         opts.Deliver,
		decode:          opts.Decode,
		urlFor:          opts.URL,
		userAgent:       opts.UserAgent,
		recacheFallback: opts.RecacheFallback,
		logger:          opts.Logger,
	}
}

// Request starts an asynchronous fetch for coord and returns
// immediately. A prior in-flight request for the same coordinate is
// cancelled first. Completion always delivers exactly one tile (fresh,
// cached, or placeholder) unless the request is cancelled, in which
// case nothing is delivered.
func (f *Fetcher) Request(coord tile.Coord) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{abort: cancel}

	f.tracker.Submit(coord, h)
	metrics.TileRequests.Inc()

	go f.run(ctx, coord, h)
}

// Cancel aborts the in-flight request for coord, if any. Cooperative:
// the underlying operation still completes, observes it lost its
// registration and delivers nothing.
func (f *Fetcher) Cancel(coord tile.Coord) {
	f.tracker.Cancel(coord)
}

// InFlight reports the number of outstanding requests.
func (f *Fetcher) InFlight() int {
	return f.tracker.InFlight()
}

func (f *Fetcher) run(ctx context.Context, coord tile.Coord, h *handle) {
	data, err := f.download(ctx, coord)

	// Compare-and-remove: only the operation still registered for the
	// coordinate may deliver. Anything cancelled or superseded by a
	// newer request ends here, with no delivery and no cache write.
	if !f.tracker.Complete(coord, h) {
		metrics.TileCancellations.Inc()
		f.logger.Debug("tile request cancelled", "tile", coord)
		return
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			metrics.TileCancellations.Inc()
			return
		}
		f.logger.Error("tile download failed", "tile", coord, "error", err)
		f.fallback(coord)
		return
	}

	img, err := f.decode(data)
	if err != nil {
		// Undecodable bytes are no better than no bytes.
		f.logger.Error("tile decode failed", "tile", coord, "error", err)
		f.fallback(coord)
		return
	}

	f.deliver(coord, &TileImage{
		Coord:  coord,
		Bounds: coord.Bounds(),
		Image:  img,
		Raw:    data,
		Source: SourceNetwork,
	})
	metrics.TileDeliveries.WithLabelValues(SourceNetwork).Inc()

	f.cacheAsync(coord, data)
}

func (f *Fetcher) download(ctx context.Context, coord tile.Coord) ([]byte, error) {
	url := f.urlFor(coord)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	// Prefer an intermediary's cached copy over a fresh render.
	req.Header.Set("Cache-Control", "max-stale")

	f.logger.Debug("requesting tile", "url", url)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	metrics.UpstreamLatency.Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tile body: %w", err)
	}

	return data, nil
}

// fallback resolves a failed fetch from the store, or from the
// placeholder when the store has nothing. Runs synchronously on the
// completion goroutine: the request already failed, latency no longer
// matters. Exactly one delivery either way.
func (f *Fetcher) fallback(coord tile.Coord) {
	data, ok, err := f.store.Get(storeKey(coord))
	if err != nil {
		f.logger.Warn("tile cache lookup failed", "tile", coord, "error", err)
	}

	if !ok || len(data) == 0 {
		metrics.CacheMisses.Inc()
		f.deliver(coord, &TileImage{
			Coord:  coord,
			Bounds: coord.Bounds(),
			Image:  placeholderImage(),
			Raw:    placeholderPNG(),
			Source: SourcePlaceholder,
		})
		metrics.TileDeliveries.WithLabelValues(SourcePlaceholder).Inc()
		return
	}
	metrics.CacheHits.Inc()

	img, err := f.decode(data)
	if err != nil {
		f.logger.Warn("cached tile undecodable", "tile", coord, "error", err)
		f.deliver(coord, &TileImage{
			Coord:  coord,
			Bounds: coord.Bounds(),
			Image:  placeholderImage(),
			Raw:    placeholderPNG(),
			Source: SourcePlaceholder,
		})
		metrics.TileDeliveries.WithLabelValues(SourcePlaceholder).Inc()
		return
	}

	f.deliver(coord, &TileImage{
		Coord:  coord,
		Bounds: coord.Bounds(),
		Image:  img,
		Raw:    data,
		Source: SourceCache,
	})
	metrics.TileDeliveries.WithLabelValues(SourceCache).Inc()

	if f.recacheFallback {
		f.cacheAsync(coord, data)
	}
}

// cacheAsync hands the bytes to the background pool so disk I/O never
// blocks the completion path. Fire-and-forget: a failed write is
// logged and dropped, never retried.
func (f *Fetcher) cacheAsync(coord tile.Coord, data []byte) {
	f.pool.Submit(func() {
		if err := f.store.Put(storeKey(coord), data); err != nil {
			metrics.CacheWriteFailures.Inc()
			f.logger.Warn("failed to cache tile", "tile", coord, "error", err)
		}
	})
}

func storeKey(c tile.Coord) store.Key {
	return store.Key{Zoom: c.Zoom, X: c.X, Y: c.Y}
}

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}
