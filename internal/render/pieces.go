package render

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/park285/cheese-rooms/internal/game"
)

//go:embed assets/pieces/*.svg
var pieceFiles embed.FS

type pieceKey struct {
	t    game.PieceType
	c    game.Color
	size int
}

var (
	pieceCache   = map[pieceKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func pieceImage(t game.PieceType, c game.Color, size int) (image.Image, error) {
	key := pieceKey{t: t, c: c, size: size}
	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	name, err := pieceAsset(t, c)
	if err != nil {
		return nil, err
	}
	data, err := pieceFiles.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read piece asset %s: %w", name, err)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(sanitizeSVG(data)))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg %s: %w", name, err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()
	return img, nil
}

func pieceAsset(t game.PieceType, c game.Color) (string, error) {
	prefix := "w"
	if c == game.Black {
		prefix = "b"
	}
	var suffix string
	switch t {
	case game.King:
		suffix = "K"
	case game.Queen:
		suffix = "Q"
	case game.Rook:
		suffix = "R"
	case game.Bishop:
		suffix = "B"
	case game.Knight:
		suffix = "N"
	case game.Pawn:
		suffix = "P"
	default:
		return "", fmt.Errorf("unknown piece type %q", t)
	}
	return "assets/pieces/" + prefix + suffix + ".svg", nil
}

// oksvg is strict about whitespace inside style values.
func sanitizeSVG(svg []byte) []byte {
	fixed := bytes.ReplaceAll(svg, []byte("fill: #"), []byte("fill:#"))
	fixed = bytes.ReplaceAll(fixed, []byte("stroke: #"), []byte("stroke:#"))
	return bytes.ReplaceAll(fixed, []byte("stop-color: #"), []byte("stop-color:#"))
}
