package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/geowidget/tilefetch/internal/tile"
	"github.com/geowidget/tilefetch/pkg/logger"
)

type tileParams struct {
	Z int `validate:"min=0,max=22"`
	X int `validate:"min=0"`
	Y int `validate:"min=0"`
}

func (h *Handler) Tile(c *gin.Context) {
	log, _ := c.Get("logger")
	l := log.(logger.Logger)

	strX := c.Param("x")
	strY := c.Param("y")
	strZ := c.Param("z")

	z, err := strconv.Atoi(strZ)
	if err != nil {
		l.Warn("invalid z parameter", "z", strZ, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "z should be integer",
		})
		return
	}

	x, err := strconv.Atoi(strX)
	if err != nil {
		l.Warn("invalid x parameter", "x", strX, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "x should be integer",
		})
		return
	}

	y, err := strconv.Atoi(strY)
	if err != nil {
		l.Warn("invalid y parameter", "y", strY, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "y should be integer",
		})
		return
	}

	params := tileParams{Z: z, X: x, Y: y}
	if err := h.validate.Struct(params); err != nil {
		l.Warn("tile parameters out of range", "z", z, "x", x, "y", y, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "tile coordinate out of range",
		})
		return
	}

	coord := tile.Coord{Zoom: z, X: x, Y: y}
	if !coord.Valid() {
		l.Warn("tile coordinate outside zoom level", "tile", coord)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "tile coordinate outside zoom level",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	img, err := h.tiles.GetTile(ctx, coord)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			l.Warn("tile fetch timed out", "tile", coord)
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"error": "tile fetch timed out",
			})
			return
		}
		l.Error("failed to get tile", "tile", coord, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to get tile",
		})
		return
	}

	c.Header("X-Tile-Source", img.Source)
	c.Data(http.StatusOK, "image/png", img.Raw)
}
