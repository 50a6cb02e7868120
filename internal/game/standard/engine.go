// Package standard implements full chess rules on top of corentings/chess.
package standard

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-rooms/internal/game"
)

// Engine replays the room's UCI line on every call; games are short enough
// that keeping a parallel library game in sync is not worth the coupling.
type Engine struct{}

func New() *Engine { return &Engine{} }

func (*Engine) Name() string { return "standard" }

func (e *Engine) IsLegal(st *game.State, mv game.Move) bool {
	_, err := e.play(st, mv)
	return err == nil
}

func (e *Engine) Apply(st *game.State, mv game.Move) error {
	g, err := e.play(st, mv)
	if err != nil {
		return err
	}
	fields := strings.Fields(g.FEN())
	if len(fields) < 4 {
		return fmt.Errorf("unexpected fen %q", g.FEN())
	}
	board, err := game.ParsePlacement(fields[0])
	if err != nil {
		return err
	}
	carryMoved(&board, &st.Board, mv)

	uci := mv.UCI(isPromotion(st, mv))
	st.Board = board
	st.Line = append(st.Line, uci)
	st.Turn = game.White
	if fields[1] == "b" {
		st.Turn = game.Black
	}
	st.Castling = parseCastling(fields[2])
	st.EnPassant = nil
	if fields[3] != "-" {
		if sq, perr := game.ParseSquare(fields[3]); perr == nil {
			st.EnPassant = &sq
		}
	}
	st.Status = statusOf(g)
	return nil
}

func (e *Engine) Status(st *game.State) game.Status {
	g, err := replay(st.Line)
	if err != nil {
		return game.Status{}
	}
	return statusOf(g)
}

// play validates mv against the replayed position and returns the game with mv applied.
func (e *Engine) play(st *game.State, mv game.Move) (*nchess.Game, error) {
	if st == nil || !mv.From.Valid() || !mv.To.Valid() {
		return nil, game.ErrIllegal
	}
	p := st.Board.At(mv.From)
	if p == nil || p.Color != st.Turn {
		return nil, game.ErrIllegal
	}
	g, err := replay(st.Line)
	if err != nil {
		return nil, err
	}
	if err := g.PushNotationMove(mv.UCI(isPromotion(st, mv)), nchess.UCINotation{}, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrIllegal, err)
	}
	return g, nil
}

func replay(line []string) (*nchess.Game, error) {
	g := nchess.NewGame()
	for _, uci := range line {
		if err := g.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay %q: %w", uci, err)
		}
	}
	return g, nil
}

func isPromotion(st *game.State, mv game.Move) bool {
	p := st.Board.At(mv.From)
	return p != nil && p.Type == game.Pawn && (mv.To.Row == 0 || mv.To.Row == 7)
}

func statusOf(g *nchess.Game) game.Status {
	var s game.Status
	if moves := g.Moves(); len(moves) > 0 {
		s.Check = moves[len(moves)-1].HasTag(nchess.Check)
	}
	if g.Outcome() == nchess.NoOutcome {
		return s
	}
	switch g.Method() {
	case nchess.Checkmate:
		s.Checkmate = true
	case nchess.Stalemate:
		s.Stalemate = true
	default:
		s.Draw = g.Outcome() == nchess.Draw
	}
	return s
}

// carryMoved restores HasMoved for pieces that sat still; anything that
// landed on a square this move is marked as moved.
func carryMoved(next, prev *game.Board, mv game.Move) {
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			p := next[r][c]
			if p == nil {
				continue
			}
			old := prev[r][c]
			touched := (r == mv.From.Row && c == mv.From.Col) || (r == mv.To.Row && c == mv.To.Col)
			if old != nil && !touched && old.Type == p.Type && old.Color == p.Color {
				p.HasMoved = old.HasMoved
				continue
			}
			p.HasMoved = true
		}
	}
}

func parseCastling(field string) game.CastlingRights {
	return game.CastlingRights{
		White: game.SideRights{KingSide: strings.Contains(field, "K"), QueenSide: strings.Contains(field, "Q")},
		Black: game.SideRights{KingSide: strings.Contains(field, "k"), QueenSide: strings.Contains(field, "q")},
	}
}
