package room

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-rooms/internal/game"
	"github.com/park285/cheese-rooms/internal/game/standard"
	"github.com/park285/cheese-rooms/internal/roomcode"
	"github.com/park285/cheese-rooms/pkg/protocol"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *recordingHub) {
	t.Helper()
	hub := newRecordingHub()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewManager(hub, opts...), hub
}

// startGame creates a room for "ann" and seats "bo" as black.
func startGame(t *testing.T, m *Manager) string {
	t.Helper()
	code, err := m.Create(context.Background(), "ann", "Ann")
	require.NoError(t, err)
	role, err := m.Join("bo", code, "Bo")
	require.NoError(t, err)
	require.Equal(t, RoleBlack, role)
	return code
}

func move(fr, fc, tr, tc int) protocol.MovePayload {
	return protocol.MovePayload{FromRow: fr, FromCol: fc, ToRow: tr, ToCol: tc}
}

func TestCreateAssignsWhiteAndWaiting(t *testing.T) {
	m, hub := newTestManager(t)
	code, err := m.Create(context.Background(), "ann", "Ann")
	require.NoError(t, err)
	assert.True(t, roomcode.Valid(code))

	r, ok := m.store.Get(code)
	require.True(t, ok)
	assert.Equal(t, PhaseWaiting, r.Phase)
	require.Len(t, r.Participants, 1)
	assert.Equal(t, Participant{Handle: "ann", Name: "Ann", Color: game.White}, r.Participants[0])

	e, ok := m.registry.Get("ann")
	require.True(t, ok)
	assert.Equal(t, Entry{Code: code, Role: RoleWhite, Name: "Ann"}, e)

	s, ok := hub.last("ann", protocol.EventRoomCreated)
	require.True(t, ok)
	assert.False(t, s.Room)
	assert.Equal(t, protocol.RoomCreated{RoomCode: code, Color: game.White}, s.Payload)
}

func TestCreateCodesAreUnique(t *testing.T) {
	m, _ := newTestManager(t)
	seen := map[string]bool{}
	for i := 0; i < 300; i++ {
		code, err := m.Create(context.Background(), fmt.Sprintf("h%d", i), "P")
		require.NoError(t, err)
		require.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
	assert.Equal(t, 300, m.Stats().Rooms)
}

func TestCreateRetriesOnCollision(t *testing.T) {
	seq := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	i := 0
	alloc := roomcode.NewAllocator(nil).WithGenerator(func() (string, error) { c := seq[i]; i++; return c, nil })
	m, _ := newTestManager(t, WithAllocator(alloc))

	first, err := m.Create(context.Background(), "a", "A")
	require.NoError(t, err)
	second, err := m.Create(context.Background(), "b", "B")
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first)
	assert.Equal(t, "BBBBBB", second)
}

func TestCreateTwiceFromSameConnectionRejected(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Create(context.Background(), "ann", "Ann")
	require.NoError(t, err)
	_, err = m.Create(context.Background(), "ann", "Ann")
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
	assert.Equal(t, 1, m.Stats().Rooms)
}

func TestJoinSecondPlayerStartsGame(t *testing.T) {
	m, hub := newTestManager(t)
	code := startGame(t, m)

	r, _ := m.store.Get(code)
	assert.Equal(t, PhaseActive, r.Phase)
	require.Len(t, r.Participants, 2)
	assert.Equal(t, game.Black, r.Participants[1].Color)

	assert.Equal(t, []string{protocol.EventJoinedRoom, protocol.EventGameStarted, protocol.EventGameStateUpdate}, hub.events("bo"))
	assert.Equal(t, []string{protocol.EventRoomCreated, protocol.EventOpponentJoined, protocol.EventGameStarted, protocol.EventGameStateUpdate}, hub.events("ann"))

	oj, _ := hub.last("ann", protocol.EventOpponentJoined)
	assert.Equal(t, protocol.OpponentJoined{OpponentName: "Bo"}, oj.Payload)

	a, _ := hub.last("ann", protocol.EventGameStateUpdate)
	b, _ := hub.last("bo", protocol.EventGameStateUpdate)
	assert.Equal(t, a.Payload, b.Payload, "both players see the same snapshot")
	snap := a.Payload.(protocol.GameStateUpdate)
	assert.Equal(t, game.White, snap.CurrentPlayer)
	assert.Empty(t, snap.MoveHistory)
	assert.Nil(t, snap.Check)
}

func TestJoinFullRoomBecomesSpectator(t *testing.T) {
	m, hub := newTestManager(t)
	code := startGame(t, m)
	require.NoError(t, m.MakeMove("ann", move(1, 4, 3, 4)))

	for i := 0; i < 3; i++ {
		h := fmt.Sprintf("spec%d", i)
		role, err := m.Join(h, code, "Watcher")
		require.NoError(t, err)
		assert.Equal(t, RoleSpectator, role)
		assert.Equal(t, []string{protocol.EventJoinedAsSpectator, protocol.EventGameStateUpdate}, hub.events(h))

		s, _ := hub.last(h, protocol.EventGameStateUpdate)
		snap := s.Payload.(protocol.GameStateUpdate)
		assert.Len(t, snap.MoveHistory, 1)
		assert.Equal(t, game.Black, snap.CurrentPlayer)
	}
	r, _ := m.store.Get(code)
	assert.Len(t, r.Participants, 2)
	assert.Len(t, r.Spectators, 3)
	assert.Equal(t, PhaseActive, r.Phase)
}

func TestJoinUnknownRoom(t *testing.T) {
	m, hub := newTestManager(t)
	n := hub.mark()
	_, err := m.Join("bo", "NOPE00", "Bo")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	out := hub.since(n)
	require.Len(t, out, 1)
	assert.Equal(t, protocol.EventJoinFailed, out[0].Event)
	assert.Equal(t, []string{"bo"}, out[0].Recipients)
	assert.Equal(t, protocol.JoinFailed{Message: "Room not found"}, out[0].Payload)
	_, registered := m.registry.Get("bo")
	assert.False(t, registered)
	assert.Zero(t, m.Stats().Rooms)
}

func TestMoveWrongTurnHasNoSideEffects(t *testing.T) {
	m, hub := newTestManager(t)
	code := startGame(t, m)
	r, _ := m.store.Get(code)
	before := r.Game.Board.Placement()

	n := hub.mark()
	err := m.MakeMove("bo", move(6, 4, 4, 4))
	assert.ErrorIs(t, err, ErrNotYourTurn)

	out := hub.since(n)
	require.Len(t, out, 1)
	assert.Equal(t, protocol.EventInvalidMove, out[0].Event)
	assert.Equal(t, []string{"bo"}, out[0].Recipients)
	assert.Equal(t, before, r.Game.Board.Placement())
	assert.Equal(t, game.White, r.Game.Turn)
	assert.Empty(t, r.Game.History)
}

func TestMoveOfOpponentPieceRejected(t *testing.T) {
	m, hub := newTestManager(t)
	code := startGame(t, m)
	r, _ := m.store.Get(code)

	n := hub.mark()
	assert.ErrorIs(t, m.MakeMove("ann", move(6, 4, 4, 4)), ErrIllegalMove)
	assert.ErrorIs(t, m.MakeMove("ann", move(4, 4, 5, 4)), ErrIllegalMove, "empty square")
	out := hub.since(n)
	require.Len(t, out, 2)
	for _, s := range out {
		assert.Equal(t, protocol.EventInvalidMove, s.Event)
		assert.Equal(t, protocol.InvalidMove{Message: "Invalid move"}, s.Payload)
		assert.Equal(t, []string{"ann"}, s.Recipients)
	}
	assert.Equal(t, game.White, r.Game.Turn)
	assert.Empty(t, r.Game.Line)
}

func TestMoveBeforeOpponentJoinsRejected(t *testing.T) {
	m, hub := newTestManager(t)
	code, err := m.Create(context.Background(), "ann", "Ann")
	require.NoError(t, err)
	assert.ErrorIs(t, m.MakeMove("ann", move(1, 4, 3, 4)), ErrNotActive)
	s, ok := hub.last("ann", protocol.EventInvalidMove)
	require.True(t, ok)
	assert.Equal(t, protocol.InvalidMove{Message: "The game is not in progress"}, s.Payload)
	r, _ := m.store.Get(code)
	assert.Nil(t, r.Game.Board[3][4])
}

func TestUnregisteredMoveIsDropped(t *testing.T) {
	m, hub := newTestManager(t)
	startGame(t, m)
	n := hub.mark()
	assert.ErrorIs(t, m.MakeMove("ghost", move(1, 4, 3, 4)), ErrNotRegistered)
	assert.Empty(t, hub.since(n))
}

func TestSpectatorCannotMove(t *testing.T) {
	m, hub := newTestManager(t)
	code := startGame(t, m)
	_, err := m.Join("eve", code, "Eve")
	require.NoError(t, err)
	n := hub.mark()
	assert.ErrorIs(t, m.MakeMove("eve", move(1, 4, 3, 4)), ErrNotYourTurn)
	out := hub.since(n)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"eve"}, out[0].Recipients)
}

func TestMovesAlternateAndAppendHistory(t *testing.T) {
	m, hub := newTestManager(t)
	code := startGame(t, m)
	r, _ := m.store.Get(code)

	require.NoError(t, m.MakeMove("ann", move(1, 4, 3, 4)))
	require.NoError(t, m.MakeMove("bo", move(6, 4, 4, 4)))
	require.NoError(t, m.MakeMove("ann", move(0, 6, 2, 5)))

	require.Len(t, r.Game.History, 3)
	assert.Equal(t, game.Black, r.Game.Turn)
	for _, h := range r.Game.History {
		assert.NotNil(t, r.Game.Board.At(h.To), "history target %v must be occupied", h.To)
	}
	assert.Equal(t, "Ann", r.Game.History[2].Player)
	assert.Equal(t, fixedNow, r.Game.History[2].Timestamp)

	mm, ok := hub.last("bo", protocol.EventMoveMade)
	require.True(t, ok)
	assert.True(t, mm.Room)
	assert.ElementsMatch(t, []string{"ann", "bo"}, mm.Recipients)
	p := mm.Payload.(protocol.MoveMade)
	assert.Equal(t, "ann", p.PlayerID)
	assert.Equal(t, "Ann", p.PlayerName)
	assert.Equal(t, game.Black, p.CurrentPlayer)
	assert.Equal(t, game.Knight, p.NewBoard[2][5].Type)
	assert.False(t, p.Check || p.Checkmate || p.Stalemate)
}

func TestPromotion(t *testing.T) {
	m, _ := newTestManager(t)
	code := startGame(t, m)
	r, _ := m.store.Get(code)

	// The default engine does not check paths, so a pawn can hop straight to the last rank.
	require.NoError(t, m.MakeMove("ann", protocol.MovePayload{FromRow: 1, FromCol: 0, ToRow: 7, ToCol: 0, Piece: "pawn", Promotion: "rook"}))
	assert.Equal(t, game.Rook, r.Game.Board[7][0].Type)
	assert.Equal(t, game.White, r.Game.Board[7][0].Color)
	assert.Equal(t, game.Rook, r.Game.History[0].Promotion)

	require.NoError(t, m.MakeMove("bo", move(6, 7, 0, 7)))
	assert.Equal(t, game.Queen, r.Game.Board[0][7].Type)
}

func TestResignReportsOpponentAndStopsPlay(t *testing.T) {
	m, hub := newTestManager(t)
	sink := &captureSink{}
	m.sinks = append(m.sinks, sink)
	code := startGame(t, m)
	require.NoError(t, m.MakeMove("ann", move(1, 4, 3, 4)))

	require.NoError(t, m.Resign("bo"))
	r, _ := m.store.Get(code)
	assert.Equal(t, PhaseFinished, r.Phase)

	ge, ok := hub.last("ann", protocol.EventGameEnded)
	require.True(t, ok)
	end := ge.Payload.(protocol.GameEnded)
	assert.Equal(t, "Bo resigned", end.Result)
	require.NotNil(t, end.Winner)
	assert.Equal(t, game.White, *end.Winner)
	require.NotNil(t, end.WinnerName)
	assert.Equal(t, "Ann", *end.WinnerName)

	assert.ErrorIs(t, m.MakeMove("ann", move(1, 3, 3, 3)), ErrNotActive)
	assert.ErrorIs(t, m.MakeMove("bo", move(6, 3, 4, 3)), ErrNotActive)

	res := sink.all()
	require.Len(t, res, 1)
	assert.Equal(t, ReasonResignation, res[0].Reason)
	assert.Equal(t, game.White, res[0].Winner)
	assert.Equal(t, "Ann", res[0].WinnerName)
	assert.Equal(t, []string{"e2e4"}, res[0].MovesUCI)
	assert.Equal(t, "Bo", res[0].BlackName)
}

func TestResignAloneHasNoWinner(t *testing.T) {
	m, hub := newTestManager(t)
	_, err := m.Create(context.Background(), "ann", "Ann")
	require.NoError(t, err)
	require.NoError(t, m.Resign("ann"))
	ge, _ := hub.last("ann", protocol.EventGameEnded)
	end := ge.Payload.(protocol.GameEnded)
	assert.Nil(t, end.Winner)
	assert.Nil(t, end.WinnerName)
}

func TestSpectatorCannotResign(t *testing.T) {
	m, _ := newTestManager(t)
	code := startGame(t, m)
	_, err := m.Join("eve", code, "Eve")
	require.NoError(t, err)
	assert.ErrorIs(t, m.Resign("eve"), ErrNotParticipant)
	r, _ := m.store.Get(code)
	assert.Equal(t, PhaseActive, r.Phase)
}

func TestDrawOfferGoesToOpponentOnly(t *testing.T) {
	m, hub := newTestManager(t)
	code := startGame(t, m)
	_, err := m.Join("eve", code, "Eve")
	require.NoError(t, err)

	n := hub.mark()
	require.NoError(t, m.OfferDraw("ann"))
	out := hub.since(n)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"bo"}, out[0].Recipients)
	assert.Equal(t, protocol.DrawOffered{PlayerName: "Ann"}, out[0].Payload)

	n = hub.mark()
	assert.ErrorIs(t, m.OfferDraw("eve"), ErrNotParticipant)
	assert.Empty(t, hub.since(n))
}

func TestDrawOfferWithoutOpponentIsNoop(t *testing.T) {
	m, hub := newTestManager(t)
	_, err := m.Create(context.Background(), "ann", "Ann")
	require.NoError(t, err)
	n := hub.mark()
	require.NoError(t, m.OfferDraw("ann"))
	assert.Empty(t, hub.since(n))
}

func TestAcceptDrawIsUnconditional(t *testing.T) {
	m, hub := newTestManager(t)
	code := startGame(t, m)
	require.NoError(t, m.OfferDraw("ann"))
	// The offering side can accept its own offer.
	require.NoError(t, m.AcceptDraw("ann"))

	r, _ := m.store.Get(code)
	assert.Equal(t, PhaseFinished, r.Phase)
	ge, ok := hub.last("bo", protocol.EventGameEnded)
	require.True(t, ok)
	assert.Equal(t, protocol.GameEnded{Result: "Draw by agreement"}, ge.Payload)
}

func TestChatUsesPayloadNameWithFallback(t *testing.T) {
	m, hub := newTestManager(t)
	startGame(t, m)

	require.NoError(t, m.Chat("bo", "Bobby", "hi"))
	s, _ := hub.last("ann", protocol.EventNewMessage)
	assert.Equal(t, protocol.NewMessage{PlayerName: "Bobby", Message: "hi", Timestamp: fixedNow}, s.Payload)

	require.NoError(t, m.Chat("bo", "", "gg"))
	s, _ = hub.last("ann", protocol.EventNewMessage)
	assert.Equal(t, "Bo", s.Payload.(protocol.NewMessage).PlayerName)

	assert.ErrorIs(t, m.Chat("ghost", "x", "y"), ErrNotRegistered)
}

func TestRequestGameStateRepliesToRequesterOnly(t *testing.T) {
	m, hub := newTestManager(t)
	startGame(t, m)
	require.NoError(t, m.MakeMove("ann", move(1, 4, 3, 4)))

	n := hub.mark()
	require.NoError(t, m.RequestGameState("bo"))
	out := hub.since(n)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"bo"}, out[0].Recipients)
	snap := out[0].Payload.(protocol.GameStateUpdate)
	assert.Len(t, snap.MoveHistory, 1)
	require.NotNil(t, snap.Check)
	assert.False(t, *snap.Check)
	require.NotNil(t, snap.CastlingRights)
}

func TestRestartResetsGameKeepsSeats(t *testing.T) {
	m, hub := newTestManager(t)
	code := startGame(t, m)
	require.NoError(t, m.MakeMove("ann", move(1, 4, 3, 4)))
	require.NoError(t, m.Resign("ann"))

	require.NoError(t, m.Restart("bo"))
	r, _ := m.store.Get(code)
	assert.Equal(t, PhaseActive, r.Phase)
	assert.Empty(t, r.Game.History)
	assert.Equal(t, game.White, r.Game.Turn)
	assert.Equal(t, []Participant{{"ann", "Ann", game.White}, {"bo", "Bo", game.Black}}, r.Participants)

	s, ok := hub.last("ann", protocol.EventGameRestarted)
	require.True(t, ok)
	gr := s.Payload.(protocol.GameRestarted)
	assert.Equal(t, game.InitialBoard(), gr.Board)
	require.NoError(t, m.MakeMove("ann", move(1, 3, 3, 3)))
}

func TestDisconnectOpponentFinishesGame(t *testing.T) {
	m, hub := newTestManager(t)
	sink := &captureSink{}
	m.sinks = append(m.sinks, sink)
	code := startGame(t, m)

	n := hub.mark()
	m.Disconnect(context.Background(), "bo")

	out := hub.since(n)
	require.Len(t, out, 2)
	assert.Equal(t, protocol.EventPlayerLeft, out[0].Event)
	assert.Equal(t, []string{"ann"}, out[0].Recipients, "departing connection is excluded")
	assert.Equal(t, protocol.PlayerLeft{PlayerName: "Bo"}, out[0].Payload)
	assert.Equal(t, protocol.EventGameEnded, out[1].Event)
	end := out[1].Payload.(protocol.GameEnded)
	assert.Equal(t, game.White, *end.Winner)
	assert.Equal(t, "Ann", *end.WinnerName)

	r, ok := m.store.Get(code)
	require.True(t, ok)
	assert.Equal(t, PhaseFinished, r.Phase)
	_, registered := m.registry.Get("bo")
	assert.False(t, registered)
	require.Len(t, sink.all(), 1)
	res := sink.all()[0]
	assert.Equal(t, ReasonAbandonment, res.Reason)
	assert.Equal(t, "Ann", res.WhiteName)
	assert.Equal(t, "Bo", res.BlackName, "departed seat is still recorded")
	assert.Equal(t, "bo", res.BlackID)
}

func TestDisconnectLastOccupantDeletesRoom(t *testing.T) {
	m, hub := newTestManager(t)
	code := startGame(t, m)
	_, err := m.Join("eve", code, "Eve")
	require.NoError(t, err)

	m.Disconnect(context.Background(), "bo")
	m.Disconnect(context.Background(), "ann")
	_, ok := m.store.Get(code)
	require.True(t, ok, "spectator keeps the room alive")

	m.Disconnect(context.Background(), "eve")
	_, ok = m.store.Get(code)
	assert.False(t, ok)
	assert.Equal(t, Stats{}, m.Stats())

	_, err = m.Join("late", code, "Late")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	s, _ := hub.last("late", protocol.EventJoinFailed)
	assert.Equal(t, protocol.JoinFailed{Message: "Room not found"}, s.Payload)
}

func TestDisconnectWaitingCreatorDeletesRoom(t *testing.T) {
	m, _ := newTestManager(t)
	code, err := m.Create(context.Background(), "ann", "Ann")
	require.NoError(t, err)
	m.Disconnect(context.Background(), "ann")
	assert.False(t, m.store.Has(code))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	m, hub := newTestManager(t)
	startGame(t, m)
	m.Disconnect(context.Background(), "bo")
	n := hub.mark()
	m.Disconnect(context.Background(), "bo")
	m.Disconnect(context.Background(), "never-seen")
	assert.Empty(t, hub.since(n))
}

func TestSpectatorLeavingDoesNotEndGame(t *testing.T) {
	m, _ := newTestManager(t)
	code := startGame(t, m)
	_, err := m.Join("eve", code, "Eve")
	require.NoError(t, err)
	m.Disconnect(context.Background(), "eve")
	r, _ := m.store.Get(code)
	assert.Equal(t, PhaseActive, r.Phase)
	assert.Empty(t, r.Spectators)
}

func TestRejoinAfterWhiteLeftTakesWhiteSeat(t *testing.T) {
	m, hub := newTestManager(t)
	code := startGame(t, m)
	m.Disconnect(context.Background(), "ann")

	role, err := m.Join("cy", code, "Cy")
	require.NoError(t, err)
	assert.Equal(t, RoleWhite, role)
	r, _ := m.store.Get(code)
	assert.Equal(t, PhaseActive, r.Phase)
	oj, ok := hub.last("bo", protocol.EventOpponentJoined)
	require.True(t, ok)
	assert.Equal(t, protocol.OpponentJoined{OpponentName: "Cy"}, oj.Payload)
}

func TestCheckmateEndsGameWithStandardEngine(t *testing.T) {
	sink := &captureSink{}
	m, hub := newTestManager(t, WithEngine(standard.New()), WithSinks(sink))
	code := startGame(t, m)

	require.NoError(t, m.MakeMove("ann", move(1, 5, 2, 5))) // f3
	require.NoError(t, m.MakeMove("bo", move(6, 4, 4, 4)))  // e5
	require.NoError(t, m.MakeMove("ann", move(1, 6, 3, 6))) // g4
	assert.ErrorIs(t, m.MakeMove("bo", move(7, 3, 3, 3)), ErrIllegalMove, "queen cannot jump her own pawn")
	require.NoError(t, m.MakeMove("bo", move(7, 3, 3, 7))) // Qh4#

	r, _ := m.store.Get(code)
	assert.Equal(t, PhaseFinished, r.Phase)
	mm, _ := hub.last("ann", protocol.EventMoveMade)
	assert.True(t, mm.Payload.(protocol.MoveMade).Checkmate)

	ge, ok := hub.last("ann", protocol.EventGameEnded)
	require.True(t, ok)
	end := ge.Payload.(protocol.GameEnded)
	assert.Equal(t, "Checkmate! Bo wins", end.Result)
	assert.Equal(t, game.Black, *end.Winner)

	res := sink.all()
	require.Len(t, res, 1)
	assert.Equal(t, ReasonCheckmate, res[0].Reason)
	assert.Equal(t, "Bo", res[0].WinnerName)
	assert.Equal(t, "standard", res[0].Engine)
	assert.Equal(t, []string{"f2f3", "e7e5", "g2g4", "d8h4"}, res[0].MovesUCI)
}

func TestDispatchRoutesEvents(t *testing.T) {
	m, hub := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Dispatch(ctx, "ann", protocol.CreateRoom{PlayerName: "Ann"}))
	rc, _ := hub.last("ann", protocol.EventRoomCreated)
	code := rc.Payload.(protocol.RoomCreated).RoomCode

	require.NoError(t, m.Dispatch(ctx, "bo", protocol.JoinRoom{RoomCode: code, PlayerName: "Bo"}))
	require.NoError(t, m.Dispatch(ctx, "ann", protocol.MakeMove{Move: move(1, 4, 3, 4)}))
	require.NoError(t, m.Dispatch(ctx, "bo", protocol.SendMessage{Message: "nice"}))
	require.NoError(t, m.Dispatch(ctx, "bo", protocol.RequestGameState{}))
	require.NoError(t, m.Dispatch(ctx, "bo", protocol.OfferDraw{}))
	require.NoError(t, m.Dispatch(ctx, "ann", protocol.AcceptDraw{}))
	require.NoError(t, m.Dispatch(ctx, "ann", protocol.RestartGame{}))
	require.NoError(t, m.Dispatch(ctx, "bo", protocol.Resign{}))

	assert.Equal(t, []string{
		protocol.EventRoomCreated, protocol.EventOpponentJoined, protocol.EventGameStarted,
		protocol.EventGameStateUpdate, protocol.EventMoveMade, protocol.EventNewMessage,
		protocol.EventDrawOffered, protocol.EventGameEnded, protocol.EventGameRestarted, protocol.EventGameEnded,
	}, hub.events("ann"))
}

// Create Ann, join Bo, e2-e4, Bo resigns.
func TestEndToEndExample(t *testing.T) {
	m, hub := newTestManager(t)
	code, err := m.Create(context.Background(), "ann", "Ann")
	require.NoError(t, err)
	role, err := m.Join("bo", code, "Bo")
	require.NoError(t, err)
	assert.Equal(t, RoleBlack, role)
	_, annStarted := hub.last("ann", protocol.EventGameStarted)
	_, boStarted := hub.last("bo", protocol.EventGameStarted)
	assert.True(t, annStarted && boStarted)

	require.NoError(t, m.MakeMove("ann", move(1, 4, 3, 4)))
	mm, _ := hub.last("bo", protocol.EventMoveMade)
	assert.Equal(t, game.Black, mm.Payload.(protocol.MoveMade).CurrentPlayer)
	r, _ := m.store.Get(code)
	assert.Len(t, r.Game.History, 1)

	require.NoError(t, m.Resign("bo"))
	ge, _ := hub.last("ann", protocol.EventGameEnded)
	end := ge.Payload.(protocol.GameEnded)
	assert.Equal(t, game.White, *end.Winner)
	assert.Equal(t, "Ann", *end.WinnerName)
	assert.Equal(t, PhaseFinished, r.Phase)
}

func TestPreviewIsDetached(t *testing.T) {
	m, _ := newTestManager(t)
	code := startGame(t, m)
	require.NoError(t, m.MakeMove("ann", move(1, 4, 3, 4)))

	p, ok := m.Preview(code)
	require.True(t, ok)
	assert.Equal(t, PhaseActive, p.Phase)
	assert.Equal(t, game.Black, p.Turn)
	assert.Equal(t, "Ann", p.White)
	assert.Equal(t, "Bo", p.Black)
	require.NotNil(t, p.Last)
	assert.Equal(t, game.Square{Row: 3, Col: 4}, p.Last.To)

	p.Board[3][4] = nil
	again, _ := m.Preview(code)
	assert.NotNil(t, again.Board[3][4])

	_, ok = m.Preview("NOPE00")
	assert.False(t, ok)
}
