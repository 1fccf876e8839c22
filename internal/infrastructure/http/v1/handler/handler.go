package handler

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/geowidget/tilefetch/internal/fetcher"
	"github.com/geowidget/tilefetch/internal/tile"
)

// TileGetter is the synchronous tile facade the handler serves from.
type TileGetter interface {
	GetTile(ctx context.Context, coord tile.Coord) (*fetcher.TileImage, error)
}

type Handler struct {
	validate *validator.Validate
	tiles    TileGetter
	timeout  time.Duration
}

func NewHandler(v *validator.Validate, tiles TileGetter, timeout time.Duration) *Handler {
	return &Handler{
		validate: v,
		tiles:    tiles,
		timeout:  timeout,
	}
}
