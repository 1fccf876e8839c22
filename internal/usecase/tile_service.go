package usecase

import (
	"context"
	"sync"

	"github.com/geowidget/tilefetch/internal/fetcher"
	"github.com/geowidget/tilefetch/internal/tile"
	"github.com/geowidget/tilefetch/pkg/logger"
)

// Requester is the asynchronous side of the fetch pipeline.
type Requester interface {
	Request(coord tile.Coord)
	Cancel(coord tile.Coord)
}

// TileService bridges the asynchronous pipeline to request/response
// callers. Concurrent GetTile calls for the same coordinate share one
// in-flight request; when the last waiter gives up, the request is
// cancelled.
type TileService struct {
	mu      sync.Mutex
	waiters map[tile.Coord][]chan *fetcher.TileImage
	req     Requester
	logger  logger.Logger
}

func NewTileService(l logger.Logger) *TileService {
	return &TileService{
		waiters: make(map[tile.Coord][]chan *fetcher.TileImage),
		logger:  l,
	}
}

// Bind attaches the pipeline. Must be called before GetTile; the
// two-step construction exists because the pipeline's delivery sink is
// this service's Deliver method.
func (s *TileService) Bind(r Requester) {
	s.req = r
}

// Deliver is the pipeline's delivery sink. Wakes every waiter
// registered for the coordinate.
func (s *TileService) Deliver(coord tile.Coord, img *fetcher.TileImage) {
	s.mu.Lock()
	chans := s.waiters[coord]
	delete(s.waiters, coord)
	s.mu.Unlock()

	for _, ch := range chans {
		ch <- img
	}
}

// GetTile requests coord and blocks until the pipeline delivers or ctx
// expires.
func (s *TileService) GetTile(ctx context.Context, coord tile.Coord) (*fetcher.TileImage, error) {
	ch := make(chan *fetcher.TileImage, 1)

	s.mu.Lock()
	first := len(s.waiters[coord]) == 0
	s.waiters[coord] = append(s.waiters[coord], ch)
	s.mu.Unlock()

	// One in-flight request serves all waiters for the coordinate.
	if first {
		s.req.Request(coord)
	}

	select {
	case img := <-ch:
		return img, nil
	case <-ctx.Done():
		s.drop(coord, ch)
		s.logger.Debug("tile wait abandoned", "tile", coord, "error", ctx.Err())
		return nil, ctx.Err()
	}
}

// drop removes one abandoned waiter and cancels the request when no
// waiters remain.
func (s *TileService) drop(coord tile.Coord, ch chan *fetcher.TileImage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws := s.waiters[coord]
	for i, c := range ws {
		if c == ch {
			s.waiters[coord] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(s.waiters[coord]) == 0 {
		delete(s.waiters, coord)
		// Cancelled while still holding mu: a delivery racing with a
		// new caller must not slip between the emptiness check and the
		// cancellation, or the fresh request would be cancelled out
		// from under its waiters. Cancel only takes the tracker lock,
		// so no lock cycle.
		s.req.Cancel(coord)
	}
}
