package game

import (
	"fmt"
	"time"
)

// Color identifies a side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// PieceType is the lowercase piece name used on the wire.
type PieceType string

const (
	Pawn   PieceType = "pawn"
	Knight PieceType = "knight"
	Bishop PieceType = "bishop"
	Rook   PieceType = "rook"
	Queen  PieceType = "queen"
	King   PieceType = "king"
)

// ValidPromotion reports whether t may replace a pawn on the last rank.
func ValidPromotion(t PieceType) bool {
	switch t {
	case Queen, Rook, Bishop, Knight:
		return true
	}
	return false
}

type Piece struct {
	Type     PieceType `json:"type"`
	Color    Color     `json:"color"`
	HasMoved bool      `json:"hasMoved"`
}

// Square is a board coordinate. Row 0 is white's back rank, col 0 is the a-file.
type Square struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (s Square) Valid() bool { return s.Row >= 0 && s.Row < 8 && s.Col >= 0 && s.Col < 8 }

// String renders algebraic notation, e.g. e2.
func (s Square) String() string {
	if !s.Valid() {
		return fmt.Sprintf("(%d,%d)", s.Row, s.Col)
	}
	return string([]byte{byte('a' + s.Col), byte('1' + s.Row)})
}

// ParseSquare is the inverse of Square.String.
func ParseSquare(s string) (Square, error) {
	if len(s) != 2 {
		return Square{}, fmt.Errorf("bad square %q", s)
	}
	sq := Square{Row: int(s[1] - '1'), Col: int(s[0] - 'a')}
	if !sq.Valid() {
		return Square{}, fmt.Errorf("bad square %q", s)
	}
	return sq, nil
}

// Move is a requested relocation. Piece is the client's hint and is never trusted.
type Move struct {
	From      Square
	To        Square
	Piece     PieceType
	Promotion PieceType
}

// UCI renders the move in long algebraic form. The promotion suffix is only
// added when promote is true.
func (m Move) UCI(promote bool) string {
	s := m.From.String() + m.To.String()
	if promote {
		switch m.Promotion {
		case Knight:
			s += "n"
		case Bishop:
			s += "b"
		case Rook:
			s += "r"
		default:
			s += "q"
		}
	}
	return s
}

// HistoryEntry records one applied move.
type HistoryEntry struct {
	From      Square    `json:"from"`
	To        Square    `json:"to"`
	Piece     PieceType `json:"piece,omitempty"`
	Promotion PieceType `json:"promotion,omitempty"`
	Player    string    `json:"player"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is the check/terminal summary as last computed by an Engine.
type Status struct {
	Check     bool `json:"check"`
	Checkmate bool `json:"checkmate"`
	Stalemate bool `json:"stalemate"`
	// Draw marks an automatic draw other than stalemate (repetition, bare kings).
	Draw bool `json:"-"`
}

// Terminal reports whether play has ended on the board.
func (s Status) Terminal() bool { return s.Checkmate || s.Stalemate || s.Draw }

type SideRights struct {
	KingSide  bool `json:"kingSide"`
	QueenSide bool `json:"queenSide"`
}

type CastlingRights struct {
	White SideRights `json:"white"`
	Black SideRights `json:"black"`
}
