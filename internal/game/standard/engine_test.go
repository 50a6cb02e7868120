package standard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-rooms/internal/game"
)

func uciMove(t *testing.T, s string) game.Move {
	t.Helper()
	from, err := game.ParseSquare(s[:2])
	require.NoError(t, err)
	to, err := game.ParseSquare(s[2:4])
	require.NoError(t, err)
	return game.Move{From: from, To: to}
}

func play(t *testing.T, e *Engine, st *game.State, moves ...string) {
	t.Helper()
	for _, m := range moves {
		require.NoError(t, e.Apply(st, uciMove(t, m)), "move %s", m)
	}
}

func TestFoolsMate(t *testing.T) {
	e := New()
	st := game.NewState()
	play(t, e, st, "f2f3", "e7e5", "g2g4", "d8h4")

	assert.True(t, st.Status.Check)
	assert.True(t, st.Status.Checkmate)
	assert.False(t, st.Status.Stalemate)
	assert.True(t, st.Status.Terminal())
	assert.Equal(t, game.White, st.Turn)
	assert.Equal(t, &game.Piece{Type: game.Queen, Color: game.Black, HasMoved: true}, st.Board[3][7])
	assert.Equal(t, st.Status, e.Status(st))
}

func TestRejectsIllegalWithoutMutation(t *testing.T) {
	e := New()
	st := game.NewState()
	before := st.Board.Placement()

	assert.False(t, e.IsLegal(st, uciMove(t, "e2e5")))
	assert.ErrorIs(t, e.Apply(st, uciMove(t, "e2e5")), game.ErrIllegal)
	assert.ErrorIs(t, e.Apply(st, uciMove(t, "e7e5")), game.ErrIllegal, "black cannot move first")
	assert.ErrorIs(t, e.Apply(st, uciMove(t, "e4e5")), game.ErrIllegal, "empty square")

	assert.Equal(t, before, st.Board.Placement())
	assert.Equal(t, game.White, st.Turn)
	assert.Empty(t, st.Line)
}

func TestTracksEnPassantAndHasMoved(t *testing.T) {
	e := New()
	st := game.NewState()
	play(t, e, st, "e2e4")

	require.NotNil(t, st.EnPassant)
	assert.Equal(t, "e3", st.EnPassant.String())
	assert.True(t, st.Board[3][4].HasMoved)
	assert.False(t, st.Board[1][3].HasMoved)
	assert.Equal(t, game.Black, st.Turn)
	assert.False(t, st.Status.Check)
}

func TestCastlingUpdatesRights(t *testing.T) {
	e := New()
	st := game.NewState()
	play(t, e, st, "e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "g8f6", "e1g1")

	assert.Equal(t, game.King, st.Board[0][6].Type)
	assert.Equal(t, game.Rook, st.Board[0][5].Type)
	assert.True(t, st.Board[0][5].HasMoved)
	assert.Nil(t, st.Board[0][7])
	assert.False(t, st.Castling.White.KingSide)
	assert.False(t, st.Castling.White.QueenSide)
	assert.True(t, st.Castling.Black.KingSide)
}
