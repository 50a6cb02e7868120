package game

import (
	"fmt"
	"strings"
)

// Board is indexed [row][col]; a nil cell is empty.
type Board [8][8]*Piece

var backRank = [8]PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

// InitialBoard returns the standard starting position.
func InitialBoard() Board {
	var b Board
	for col := 0; col < 8; col++ {
		b[0][col] = &Piece{Type: backRank[col], Color: White}
		b[1][col] = &Piece{Type: Pawn, Color: White}
		b[6][col] = &Piece{Type: Pawn, Color: Black}
		b[7][col] = &Piece{Type: backRank[col], Color: Black}
	}
	return b
}

func (b *Board) At(sq Square) *Piece {
	if !sq.Valid() {
		return nil
	}
	return b[sq.Row][sq.Col]
}

// Clone deep-copies every piece.
func (b Board) Clone() Board {
	var out Board
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			if p := b[r][c]; p != nil {
				cp := *p
				out[r][c] = &cp
			}
		}
	}
	return out
}

// Count returns the number of occupied squares.
func (b Board) Count() int {
	n := 0
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			if b[r][c] != nil {
				n++
			}
		}
	}
	return n
}

var fenLetters = map[PieceType]byte{Pawn: 'p', Knight: 'n', Bishop: 'b', Rook: 'r', Queen: 'q', King: 'k'}

// Placement renders the piece-placement field of a FEN record.
func (b Board) Placement() string {
	var sb strings.Builder
	for r := 7; r >= 0; r-- {
		empty := 0
		for c := 0; c < 8; c++ {
			p := b[r][c]
			if p == nil {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			ch := fenLetters[p.Type]
			if p.Color == White {
				ch -= 'a' - 'A'
			}
			sb.WriteByte(ch)
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if r > 0 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

// ParsePlacement reads a FEN piece-placement field. Every piece comes back with HasMoved unset.
func ParsePlacement(field string) (Board, error) {
	var b Board
	ranks := strings.Split(field, "/")
	if len(ranks) != 8 {
		return b, fmt.Errorf("placement %q: want 8 ranks, got %d", field, len(ranks))
	}
	for i, rank := range ranks {
		row := 7 - i
		col := 0
		for j := 0; j < len(rank); j++ {
			ch := rank[j]
			if ch >= '1' && ch <= '8' {
				col += int(ch - '0')
				continue
			}
			color := Black
			lower := ch
			if ch >= 'A' && ch <= 'Z' {
				color = White
				lower = ch + ('a' - 'A')
			}
			var pt PieceType
			for t, l := range fenLetters {
				if l == lower {
					pt = t
				}
			}
			if pt == "" || col > 7 {
				return b, fmt.Errorf("placement %q: bad rank %q", field, rank)
			}
			b[row][col] = &Piece{Type: pt, Color: color}
			col++
		}
		if col != 8 {
			return b, fmt.Errorf("placement %q: rank %q has %d files", field, rank, col)
		}
	}
	return b, nil
}

// State is the mutable game owned by a single room.
type State struct {
	Board     Board
	Turn      Color
	History   []HistoryEntry
	Status    Status
	Castling  CastlingRights
	EnPassant *Square
	// Line holds every applied move in UCI form, used to replay the game.
	Line []string
}

func NewState() *State {
	all := SideRights{KingSide: true, QueenSide: true}
	return &State{
		Board:    InitialBoard(),
		Turn:     White,
		History:  []HistoryEntry{},
		Castling: CastlingRights{White: all, Black: all},
	}
}

// HistoryCopy returns a detached copy of the move list.
func (s *State) HistoryCopy() []HistoryEntry {
	out := make([]HistoryEntry, len(s.History))
	copy(out, s.History)
	return out
}
