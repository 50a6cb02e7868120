package game

import "errors"

// ErrIllegal is returned by Engine.Apply when the move is rejected.
var ErrIllegal = errors.New("illegal move")

// Engine decides legality and owns the board mutation for one move.
// Apply must leave the state untouched when it returns an error.
type Engine interface {
	Name() string
	IsLegal(st *State, mv Move) bool
	Apply(st *State, mv Move) error
	Status(st *State) Status
}

// Permissive accepts any destination for a piece owned by the side to move.
// It never detects check, mate or stalemate.
type Permissive struct{}

func (Permissive) Name() string { return "permissive" }

func (Permissive) IsLegal(st *State, mv Move) bool {
	if st == nil || !mv.From.Valid() || !mv.To.Valid() {
		return false
	}
	p := st.Board.At(mv.From)
	return p != nil && p.Color == st.Turn
}

func (e Permissive) Apply(st *State, mv Move) error {
	if !e.IsLegal(st, mv) {
		return ErrIllegal
	}
	p := st.Board[mv.From.Row][mv.From.Col]
	st.Board[mv.To.Row][mv.To.Col] = p
	st.Board[mv.From.Row][mv.From.Col] = nil

	promoted := false
	if p.Type == Pawn && (mv.To.Row == 0 || mv.To.Row == 7) {
		promo := mv.Promotion
		if promo == "" {
			promo = Queen
		}
		p.Type = promo
		promoted = true
	}
	st.Line = append(st.Line, mv.UCI(promoted))
	st.Turn = st.Turn.Opponent()
	st.Status = e.Status(st)
	return nil
}

func (Permissive) Status(*State) Status { return Status{} }
