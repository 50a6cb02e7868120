package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/cheese-rooms/internal/game"
)

const (
	squareSize   = 64
	boardSize    = squareSize * 8
	sideMargin   = 28
	topMargin    = 84
	bottomMargin = 28

	// Width and Height are the PNG dimensions.
	Width  = boardSize + sideMargin*2
	Height = boardSize + topMargin + bottomMargin
)

// Highlight marks the last move.
type Highlight struct {
	From game.Square
	To   game.Square
}

type Options struct {
	Header    string
	Turn      string
	Highlight *Highlight
}

// Renderer draws boards as PNG. The zero value is ready to use.
type Renderer struct{}

func New() *Renderer { return &Renderer{} }

// PNG draws board with rank 8 at the top.
func (r *Renderer) PNG(ctx context.Context, board game.Board, opts Options) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	origin := image.Point{X: sideMargin, Y: topMargin}
	boardRect := image.Rect(origin.X, origin.Y, origin.X+boardSize, origin.Y+boardSize)
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	drawHUD(img, opts, boardRect)
	drawSquares(img, origin)
	drawHighlight(img, board, opts.Highlight, origin)
	if err := drawPieces(img, board, origin); err != nil {
		return nil, err
	}
	drawCoordinates(img, origin)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	backgroundColor    = color.RGBA{22, 24, 36, 255}
	lightSquare        = color.RGBA{233, 207, 163, 255}
	darkSquare         = color.RGBA{187, 136, 96, 255}
	whiteMoveFill      = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	blackMoveArrow     = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	neutralMoveArrow   = color.NRGBA{R: 182, G: 184, B: 190, A: 140}
	hudPanelColor      = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudTurnPanelColor  = color.NRGBA{R: 40, G: 44, B: 64, A: 245}
	hudTextPrimary     = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudTurnTextColor   = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	coordinateTextTint = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

func face() font.Face { return basicfont.Face7x13 }

// squareRect maps a board square to pixels; row 7 is drawn first.
func squareRect(sq game.Square, origin image.Point) image.Rectangle {
	x := origin.X + sq.Col*squareSize
	y := origin.Y + (7-sq.Row)*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func squareColor(sq game.Square) color.Color {
	if (sq.Row+sq.Col)%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func drawSquares(dst imagedraw.Image, origin image.Point) {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			sq := game.Square{Row: row, Col: col}
			imagedraw.Draw(dst, squareRect(sq, origin), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
		}
	}
}

func drawPieces(dst imagedraw.Image, board game.Board, origin image.Point) error {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			p := board[row][col]
			if p == nil {
				continue
			}
			pimg, err := pieceImage(p.Type, p.Color, squareSize)
			if err != nil {
				return err
			}
			imagedraw.Draw(dst, squareRect(game.Square{Row: row, Col: col}, origin), pimg, image.Point{}, imagedraw.Over)
		}
	}
	return nil
}

// drawHighlight fills both squares for a white move and draws an arrow for a
// black one, so spectators can tell who just moved.
func drawHighlight(img *image.RGBA, board game.Board, h *Highlight, origin image.Point) {
	if h == nil || !h.From.Valid() || !h.To.Valid() {
		return
	}
	mover, ok := moverColor(board, h)
	switch {
	case ok && mover == game.White:
		fillRect(img, squareRect(h.From, origin), whiteMoveFill)
		fillRect(img, squareRect(h.To, origin), whiteMoveFill)
	case ok && mover == game.Black:
		drawArrow(img, squareRect(h.From, origin), squareRect(h.To, origin), blackMoveArrow)
	default:
		drawArrow(img, squareRect(h.From, origin), squareRect(h.To, origin), neutralMoveArrow)
	}
}

func moverColor(board game.Board, h *Highlight) (game.Color, bool) {
	if p := board.At(h.To); p != nil {
		return p.Color, true
	}
	if p := board.At(h.From); p != nil {
		return p.Color, true
	}
	return "", false
}

func drawHUD(img *image.RGBA, opts Options, boardRect image.Rectangle) {
	const (
		titleTop    = 14
		titleHeight = 30
		turnHeight  = 24
		gapToBoard  = 10
		radius      = 10
		paddingX    = 16
	)
	f := face()
	drawer := &font.Drawer{Dst: img, Face: f}

	title := strings.TrimSpace(opts.Header)
	if title == "" {
		title = "Chess room"
	}
	turn := strings.TrimSpace(opts.Turn)

	titleRect := image.Rect(boardRect.Min.X, titleTop, boardRect.Max.X, titleTop+titleHeight)
	drawRoundedPanel(img, titleRect, radius, hudPanelColor)
	drawCenteredString(drawer, titleRect, truncate(f, title, titleRect.Dx()-paddingX*2), hudTextPrimary)

	if turn == "" {
		return
	}
	width := drawer.MeasureString(turn).Round() + paddingX*2
	if width > boardRect.Dx() {
		width = boardRect.Dx()
	}
	left := boardRect.Min.X + (boardRect.Dx()-width)/2
	turnRect := image.Rect(left, boardRect.Min.Y-gapToBoard-turnHeight, left+width, boardRect.Min.Y-gapToBoard)
	drawRoundedPanel(img, turnRect, radius, hudTurnPanelColor)
	drawCenteredString(drawer, turnRect, truncate(f, turn, width-paddingX*2), hudTurnTextColor)
}

func drawCoordinates(dst imagedraw.Image, origin image.Point) {
	f := face()
	drawer := &font.Drawer{Dst: dst, Face: f, Src: image.NewUniform(coordinateTextTint)}
	ascent := f.Metrics().Ascent.Ceil()
	for i := 0; i < 8; i++ {
		// ranks down the left edge, files along the bottom
		rankY := origin.Y + (7-i)*squareSize + squareSize/2 + ascent/2
		drawCenteredText(drawer, string(rune('1'+i)), origin.X-sideMargin/2, rankY)
		fileX := origin.X + i*squareSize + squareSize/2
		drawCenteredText(drawer, string(rune('a'+i)), fileX, origin.Y+boardSize+ascent+4)
	}
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	if text == "" {
		return
	}
	m := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+m.Ascent.Ceil()-m.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func truncate(f font.Face, text string, maxWidth int) string {
	drawer := font.Drawer{Face: f}
	if maxWidth <= 0 || drawer.MeasureString(text).Round() <= maxWidth {
		return text
	}
	const ellipsis = "..."
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		if c := string(runes) + ellipsis; drawer.MeasureString(c).Round() <= maxWidth {
			return c
		}
	}
	return ellipsis
}
