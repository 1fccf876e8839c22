package fetcher

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geowidget/tilefetch/internal/repository/store"
	"github.com/geowidget/tilefetch/internal/tile"
)

func encodedTile(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(2, 2, color.RGBA{10, 120, 200, 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// collector is a delivery sink recording every TileImage it receives.
type collector struct {
	mu         sync.Mutex
	deliveries []*TileImage
	ch         chan *TileImage
}

func newCollector() *collector {
	return &collector{ch: make(chan *TileImage, 16)}
}

func (c *collector) deliver(coord tile.Coord, img *TileImage) {
	c.mu.Lock()
	c.deliveries = append(c.deliveries, img)
	c.mu.Unlock()
	c.ch <- img
}

func (c *collector) wait(t *testing.T) *TileImage {
	t.Helper()
	select {
	case img := <-c.ch:
		return img
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deliveries)
}

// countingStore wraps a Store and counts Put calls.
type countingStore struct {
	store.Store
	mu   sync.Mutex
	puts int
}

func (s *countingStore) Put(k store.Key, data []byte) error {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return s.Store.Put(k, data)
}

func (s *countingStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func urlFor(srv *httptest.Server) URLFunc {
	return func(c tile.Coord) string {
		return fmt.Sprintf("%s/%d/%d/%d.png", srv.URL, c.Zoom, c.X, c.Y)
	}
}

func TestRequestSuccessDeliversAndWritesThrough(t *testing.T) {
	data := encodedTile(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	col := newCollector()
	f := New(Options{URL: urlFor(srv), Deliver: col.deliver, Store: st})

	coord := tile.Coord{Zoom: 3, X: 1, Y: 2}
	f.Request(coord)

	img := col.wait(t)
	assert.Equal(t, coord, img.Coord)
	assert.Equal(t, SourceNetwork, img.Source)
	assert.Equal(t, data, img.Raw)
	require.NotNil(t, img.Image)
	assert.Equal(t, 8, img.Image.Bounds().Dx())
	assert.Equal(t, coord.Bounds(), img.Bounds)

	// The write-through insert runs on the background pool.
	require.Eventually(t, func() bool {
		got, ok, _ := st.Get(store.Key{Zoom: 3, X: 1, Y: 2})
		return ok && bytes.Equal(got, data)
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, f.InFlight())
	assert.Equal(t, 1, col.count())
}

func TestRequestFailureNoCacheDeliversPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	col := newCollector()
	f := New(Options{URL: urlFor(srv), Deliver: col.deliver, Store: st})

	coord := tile.Coord{Zoom: 5, X: 0, Y: 0}
	f.Request(coord)

	img := col.wait(t)
	assert.Equal(t, SourcePlaceholder, img.Source)
	require.NotNil(t, img.Image)
	assert.Equal(t, tile.Size, img.Image.Bounds().Dx())

	decoded, err := png.Decode(bytes.NewReader(img.Raw))
	require.NoError(t, err)
	assert.Equal(t, tile.Size, decoded.Bounds().Dx())

	// The placeholder is never cached.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, st.Len())
	assert.Equal(t, 1, col.count())
}

func TestRequestFailureDeliversCachedFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cached := encodedTile(t)
	st := store.NewMemoryStore()
	coord := tile.Coord{Zoom: 4, X: 2, Y: 3}
	require.NoError(t, st.Put(store.Key{Zoom: 4, X: 2, Y: 3}, cached))

	col := newCollector()
	f := New(Options{URL: urlFor(srv), Deliver: col.deliver, Store: st})

	f.Request(coord)

	img := col.wait(t)
	assert.Equal(t, SourceCache, img.Source)
	assert.Equal(t, cached, img.Raw)
	require.NotNil(t, img.Image)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, col.count())
}

func TestRecacheFallbackToggle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cached := encodedTile(t)
	coord := tile.Coord{Zoom: 6, X: 5, Y: 5}

	for _, tc := range []struct {
		name     string
		recache  bool
		wantPuts int
	}{
		{name: "recache enabled", recache: true, wantPuts: 1},
		{name: "recache disabled", recache: false, wantPuts: 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			st := &countingStore{Store: store.NewMemoryStore()}
			require.NoError(t, st.Store.Put(store.Key{Zoom: 6, X: 5, Y: 5}, cached))

			col := newCollector()
			f := New(Options{
				URL:             urlFor(srv),
				Deliver:         col.deliver,
				Store:           st,
				RecacheFallback: tc.recache,
			})

			f.Request(coord)
			img := col.wait(t)
			assert.Equal(t, SourceCache, img.Source)

			if tc.wantPuts > 0 {
				require.Eventually(t, func() bool {
					return st.putCount() == tc.wantPuts
				}, 2*time.Second, 10*time.Millisecond)
			} else {
				time.Sleep(100 * time.Millisecond)
				assert.Equal(t, 0, st.putCount())
			}
		})
	}
}

func TestCancelBeforeCompletionDeliversNothing(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	data := encodedTile(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.Write(data)
	}))
	defer srv.Close()
	defer close(release)

	st := &countingStore{Store: store.NewMemoryStore()}
	col := newCollector()
	f := New(Options{URL: urlFor(srv), Deliver: col.deliver, Store: st})

	coord := tile.Coord{Zoom: 9, X: 100, Y: 200}
	f.Request(coord)
	<-started

	f.Cancel(coord)
	assert.Equal(t, 0, f.InFlight())

	// The aborted operation completes cooperatively; give it room to
	// misbehave before asserting it did not.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, col.count())
	assert.Equal(t, 0, st.putCount())
}

func TestDuplicateRequestDeliversOnce(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	data := encodedTile(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.Write(data)
	}))
	defer srv.Close()

	st := &countingStore{Store: store.NewMemoryStore()}
	col := newCollector()
	f := New(Options{URL: urlFor(srv), Deliver: col.deliver, Store: st})

	coord := tile.Coord{Zoom: 8, X: 7, Y: 7}
	f.Request(coord)
	<-started
	// Second request for the same coordinate pre-empts the first.
	f.Request(coord)
	assert.Equal(t, 1, f.InFlight())

	close(release)

	img := col.wait(t)
	assert.Equal(t, SourceNetwork, img.Source)

	// The superseded handler must not produce a second delivery or a
	// duplicate cache write.
	require.Eventually(t, func() bool {
		return st.putCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, col.count())
	assert.Equal(t, 1, st.putCount())
	assert.Equal(t, 0, f.InFlight())
}

func TestUndecodableResponseFallsBackToPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not an image"))
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	col := newCollector()
	f := New(Options{URL: urlFor(srv), Deliver: col.deliver, Store: st})

	f.Request(tile.Coord{Zoom: 2, X: 1, Y: 1})

	img := col.wait(t)
	assert.Equal(t, SourcePlaceholder, img.Source)

	// Garbage bytes never reach the store.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, st.Len())
	assert.Equal(t, 1, col.count())
}

func TestRequestSendsConfiguredHeaders(t *testing.T) {
	data := encodedTile(t)
	var gotUA, gotCC string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCC = r.Header.Get("Cache-Control")
		w.Write(data)
	}))
	defer srv.Close()

	col := newCollector()
	f := New(Options{
		URL:       urlFor(srv),
		Deliver:   col.deliver,
		UserAgent: "tilefetch-test/1.0",
	})

	f.Request(tile.Coord{Zoom: 1, X: 0, Y: 0})
	col.wait(t)

	assert.Equal(t, "tilefetch-test/1.0", gotUA)
	assert.Equal(t, "max-stale", gotCC)
}
