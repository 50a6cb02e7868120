package room

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-rooms/internal/game"
	"github.com/park285/cheese-rooms/internal/msgcat"
	"github.com/park285/cheese-rooms/internal/obslog"
	"github.com/park285/cheese-rooms/internal/roomcode"
	"github.com/park285/cheese-rooms/pkg/protocol"
)

// Broadcaster is the transport as seen by the manager. Emits are fire-and-forget.
type Broadcaster interface {
	Emit(handle, event string, payload any)
	EmitRoom(code, event string, payload any)
	Join(handle, code string)
	Leave(handle, code string)
}

// Messages renders client-facing strings.
type Messages interface {
	Render(key string, data any) (string, error)
}

const (
	maxOpenAttempts = 3
	releaseTimeout  = 5 * time.Second
)

// Manager owns every room and applies inbound events one at a time.
type Manager struct {
	mu       sync.Mutex
	store    *Store
	registry *Registry
	out      Broadcaster
	engine   game.Engine
	codes    *roomcode.Allocator
	msgs     Messages
	sinks    []ResultSink
	now      func() time.Time
}

type Option func(*Manager)

func WithEngine(e game.Engine) Option            { return func(m *Manager) { m.engine = e } }
func WithAllocator(a *roomcode.Allocator) Option { return func(m *Manager) { m.codes = a } }
func WithMessages(msgs Messages) Option          { return func(m *Manager) { m.msgs = msgs } }
func WithClock(now func() time.Time) Option      { return func(m *Manager) { m.now = now } }

// WithSinks adds receivers for finished games.
func WithSinks(s ...ResultSink) Option {
	return func(m *Manager) { m.sinks = append(m.sinks, s...) }
}

func NewManager(out Broadcaster, opts ...Option) *Manager {
	m := &Manager{
		store:    NewStore(),
		registry: NewRegistry(),
		out:      out,
		engine:   game.Permissive{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	if m.codes == nil {
		m.codes = roomcode.NewAllocator(nil)
	}
	if m.msgs == nil {
		if cat, err := msgcat.New(msgcat.DefaultLocale, ""); err == nil {
			m.msgs = cat
		}
	}
	return m
}

// Stats is the status probe view.
type Stats struct {
	Rooms   int
	Players int
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Rooms: m.store.Len(), Players: m.registry.Len()}
}

// Preview is a detached view of one room for the board image.
type Preview struct {
	Code      string
	Phase     Phase
	Board     game.Board
	Turn      game.Color
	White     string
	Black     string
	Last      *game.HistoryEntry
	Spectator int
}

func (m *Manager) Preview(code string) (Preview, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store.Get(code)
	if !ok {
		return Preview{}, false
	}
	p := Preview{
		Code:      r.Code,
		Phase:     r.Phase,
		Board:     r.Game.Board.Clone(),
		Turn:      r.Game.Turn,
		White:     m.nameOf(r, game.White),
		Black:     m.nameOf(r, game.Black),
		Spectator: len(r.Spectators),
	}
	if n := len(r.Game.History); n > 0 {
		last := r.Game.History[n-1]
		p.Last = &last
	}
	return p, true
}

// Create opens a room with the caller as white. The code is reserved without
// holding the manager lock and checked again when the room is stored.
func (m *Manager) Create(ctx context.Context, handle, name string) (string, error) {
	if m.seated(handle) {
		m.rejectCreate(handle, "create.already_in_room", ErrAlreadyInRoom)
		return "", ErrAlreadyInRoom
	}
	for i := 0; i < maxOpenAttempts; i++ {
		code, err := m.codes.Allocate(ctx, m.roomExists)
		if err != nil {
			m.rejectCreate(handle, "create.unavailable", err)
			return "", err
		}
		err = m.open(handle, name, code)
		if err == nil {
			return code, nil
		}
		if errors.Is(err, ErrAlreadyInRoom) {
			m.release(ctx, code)
			m.rejectCreate(handle, "create.already_in_room", err)
			return "", err
		}
		// errCodeTaken: the live room keeps the reservation.
	}
	m.rejectCreate(handle, "create.unavailable", roomcode.ErrExhausted)
	return "", roomcode.ErrExhausted
}

// open seats handle in a new room under code. errCodeTaken means the code was
// reserved but a live room already holds it.
func (m *Manager) open(handle, name, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.registry.Get(handle); ok {
		return ErrAlreadyInRoom
	}
	if m.store.Has(code) {
		obslog.L().Warn("room_code_clash", zap.String("code", code))
		return errCodeTaken
	}
	now := m.now()
	r := &Session{
		Code:         code,
		Participants: []Participant{{Handle: handle, Name: name, Color: game.White}},
		Phase:        PhaseWaiting,
		Game:         game.NewState(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.store.Put(r)
	m.registry.Put(handle, Entry{Code: code, Role: RoleWhite, Name: name})
	m.out.Join(handle, code)
	m.out.Emit(handle, protocol.EventRoomCreated, protocol.RoomCreated{RoomCode: code, Color: game.White})

	obslog.L().Info("room_create", zap.String("code", code), zap.String("player_id", handle), zap.String("player_name", name))
	return nil
}

func (m *Manager) seated(handle string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.registry.Get(handle)
	return ok
}

func (m *Manager) roomExists(code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Has(code)
}

func (m *Manager) rejectCreate(handle, key string, err error) {
	m.out.Emit(handle, protocol.EventCreateFailed, protocol.CreateFailed{Message: m.text(key, nil)})
	if errors.Is(err, ErrAlreadyInRoom) {
		obslog.L().Warn("room_create_rejected", zap.String("player_id", handle), zap.Error(err))
		return
	}
	obslog.L().Error("room_code_alloc_error", zap.String("player_id", handle), zap.Error(err))
}

// release frees a reserved code. Callers must not hold m.mu.
func (m *Manager) release(ctx context.Context, code string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := m.codes.Release(ctx, code); err != nil {
		obslog.L().Warn("room_code_release_error", zap.String("code", code), zap.Error(err))
	}
}

// Join seats the caller as black, or as a spectator once both seats are taken.
func (m *Manager) Join(handle, code, name string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.registry.Get(handle); ok {
		m.out.Emit(handle, protocol.EventJoinFailed, protocol.JoinFailed{Message: m.text("join.already_in_room", nil)})
		return "", ErrAlreadyInRoom
	}
	r, ok := m.store.Get(code)
	if !ok {
		m.out.Emit(handle, protocol.EventJoinFailed, protocol.JoinFailed{Message: m.text("join.not_found", nil)})
		obslog.L().Info("room_join_failed", zap.String("code", code), zap.String("player_id", handle))
		return "", ErrRoomNotFound
	}
	r.UpdatedAt = m.now()

	if len(r.Participants) >= 2 {
		r.Spectators = append(r.Spectators, Spectator{Handle: handle, Name: name})
		m.registry.Put(handle, Entry{Code: code, Role: RoleSpectator, Name: name})
		m.out.Join(handle, code)
		m.out.Emit(handle, protocol.EventJoinedAsSpectator, protocol.JoinedAsSpectator{RoomCode: code})
		m.out.Emit(handle, protocol.EventGameStateUpdate, protocol.Snapshot(r.Game, false))
		obslog.L().Info("room_join_spectator", zap.String("code", code), zap.String("player_id", handle), zap.Int("spectators", len(r.Spectators)))
		return RoleSpectator, nil
	}

	// Normally white is seated and the joiner gets black. If white has left,
	// the joiner takes the free seat instead of duplicating a color.
	color := game.Black
	if _, seated := r.byColor(game.White); !seated {
		color = game.White
	}
	r.Participants = append(r.Participants, Participant{Handle: handle, Name: name, Color: color})
	m.registry.Put(handle, Entry{Code: code, Role: Role(color), Name: name})
	m.out.Join(handle, code)
	m.out.Emit(handle, protocol.EventJoinedRoom, protocol.JoinedRoom{RoomCode: code, Color: color})
	if len(r.Participants) < 2 {
		obslog.L().Info("room_join_player", zap.String("code", code), zap.String("player_id", handle), zap.String("color", string(color)), zap.String("reason", "queued"))
		return Role(color), nil
	}

	first := r.Participants[0]
	m.out.Emit(first.Handle, protocol.EventOpponentJoined, protocol.OpponentJoined{OpponentName: name})
	r.Phase = PhaseActive
	r.StartedAt = r.UpdatedAt
	m.out.EmitRoom(code, protocol.EventGameStarted, protocol.GameStarted{})
	m.out.EmitRoom(code, protocol.EventGameStateUpdate, protocol.Snapshot(r.Game, false))

	obslog.L().Info("room_start_game", zap.String("code", code), zap.String("white", m.nameOf(r, game.White)), zap.String("black", m.nameOf(r, game.Black)))
	return Role(color), nil
}

// MakeMove applies mv for the connection. Every rejection leaves the room untouched.
func (m *Manager) MakeMove(handle string, mv protocol.MovePayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, r, err := m.lookup(handle)
	if err != nil {
		return err
	}
	if r.Phase != PhaseActive {
		m.out.Emit(handle, protocol.EventInvalidMove, protocol.InvalidMove{Message: m.text("move.not_active", nil)})
		return ErrNotActive
	}
	color, isPlayer := e.Role.Color()
	if !isPlayer || color != r.Game.Turn {
		m.out.Emit(handle, protocol.EventInvalidMove, protocol.InvalidMove{Message: m.text("move.not_your_turn", nil)})
		return ErrNotYourTurn
	}

	gm := mv.GameMove()
	if !m.engine.IsLegal(r.Game, gm) {
		m.out.Emit(handle, protocol.EventInvalidMove, protocol.InvalidMove{Message: m.text("move.invalid", nil)})
		obslog.L().Debug("room_move_rejected", zap.String("code", r.Code), zap.String("player_id", handle), zap.String("uci", gm.UCI(false)))
		return ErrIllegalMove
	}
	if err := m.engine.Apply(r.Game, gm); err != nil {
		m.out.Emit(handle, protocol.EventInvalidMove, protocol.InvalidMove{Message: m.text("move.invalid", nil)})
		obslog.L().Warn("room_move_apply_error", zap.String("code", r.Code), zap.String("engine", m.engine.Name()), zap.Error(err))
		return ErrIllegalMove
	}

	st := r.Game.Status
	now := m.now()
	r.UpdatedAt = now
	m.out.EmitRoom(r.Code, protocol.EventMoveMade, protocol.MoveMade{
		Move:          mv,
		PlayerID:      handle,
		PlayerName:    e.Name,
		NewBoard:      r.Game.Board.Clone(),
		CurrentPlayer: r.Game.Turn,
		Check:         st.Check,
		Checkmate:     st.Checkmate,
		Stalemate:     st.Stalemate,
	})
	r.Game.History = append(r.Game.History, game.HistoryEntry{
		From:      gm.From,
		To:        gm.To,
		Piece:     game.PieceType(mv.Piece),
		Promotion: game.PieceType(mv.Promotion),
		Player:    e.Name,
		Timestamp: now,
	})

	obslog.L().Info("room_move",
		zap.String("code", r.Code),
		zap.String("player_id", handle),
		zap.String("last_uci", lastOf(r.Game.Line)),
		zap.String("turn", string(r.Game.Turn)),
		zap.Int("ply", len(r.Game.History)),
	)

	if !st.Terminal() {
		return nil
	}
	switch {
	case st.Checkmate:
		m.finish(r, ReasonCheckmate, m.text("result.checkmate", map[string]any{"Winner": e.Name}), &color, nil)
	case st.Stalemate:
		m.finish(r, ReasonStalemate, m.text("result.stalemate", nil), nil, nil)
	default:
		m.finish(r, ReasonDraw, m.text("result.draw", nil), nil, nil)
	}
	return nil
}

// Chat relays a message to the whole room. The payload name wins over the
// registered one so clients can show a nickname.
func (m *Manager) Chat(handle, playerName, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, r, err := m.lookup(handle)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(playerName)
	if name == "" {
		name = e.Name
	}
	m.out.EmitRoom(r.Code, protocol.EventNewMessage, protocol.NewMessage{PlayerName: name, Message: message, Timestamp: m.now()})
	return nil
}

// OfferDraw notifies the other participant only.
func (m *Manager) OfferDraw(handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, r, err := m.lookup(handle)
	if err != nil {
		return err
	}
	if _, ok := r.participant(handle); !ok {
		return ErrNotParticipant
	}
	opp, ok := r.other(handle)
	if !ok {
		return nil
	}
	m.out.Emit(opp.Handle, protocol.EventDrawOffered, protocol.DrawOffered{PlayerName: e.Name})
	obslog.L().Info("room_draw_offer", zap.String("code", r.Code), zap.String("player_id", handle))
	return nil
}

// AcceptDraw ends the game as a draw. It does not check that an offer is
// pending or who made it.
func (m *Manager) AcceptDraw(handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, r, err := m.lookup(handle)
	if err != nil {
		return err
	}
	m.finish(r, ReasonAgreement, m.text("result.draw_agreed", nil), nil, nil)
	return nil
}

// Resign hands the win to the other participant, if one is still seated.
func (m *Manager) Resign(handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, r, err := m.lookup(handle)
	if err != nil {
		return err
	}
	if _, ok := r.participant(handle); !ok {
		return ErrNotParticipant
	}
	var winner *game.Color
	var winnerName *string
	if opp, ok := r.other(handle); ok {
		c, n := opp.Color, opp.Name
		winner, winnerName = &c, &n
	}
	m.finish(r, ReasonResignation, m.text("result.resigned", map[string]any{"Name": e.Name}), winner, winnerName)
	return nil
}

// RequestGameState replies to the caller only.
func (m *Manager) RequestGameState(handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, r, err := m.lookup(handle)
	if err != nil {
		return err
	}
	m.out.Emit(handle, protocol.EventGameStateUpdate, protocol.Snapshot(r.Game, true))
	return nil
}

// Restart swaps in a fresh game and reopens play. Seats are kept.
func (m *Manager) Restart(handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, r, err := m.lookup(handle)
	if err != nil {
		return err
	}
	now := m.now()
	r.Game = game.NewState()
	r.Phase = PhaseActive
	r.StartedAt, r.UpdatedAt = now, now
	m.out.EmitRoom(r.Code, protocol.EventGameRestarted, protocol.GameRestarted{Board: r.Game.Board.Clone(), CurrentPlayer: r.Game.Turn})
	obslog.L().Info("room_restart", zap.String("code", r.Code), zap.String("player_id", handle))
	return nil
}

// Disconnect removes the connection from its room. Calling it twice is harmless.
func (m *Manager) Disconnect(ctx context.Context, handle string) {
	if code := m.disconnect(handle); code != "" {
		m.release(ctx, code)
	}
}

// disconnect returns the code of a room it deleted, if any.
func (m *Manager) disconnect(handle string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.registry.Get(handle)
	if !ok {
		return ""
	}
	defer m.registry.Delete(handle)

	r, ok := m.store.Get(e.Code)
	if !ok {
		m.out.Leave(handle, e.Code)
		return ""
	}
	wasActive := r.Phase == PhaseActive
	leaver, wasSeated := r.participant(handle)
	r.remove(handle)
	r.UpdatedAt = m.now()
	m.out.Leave(handle, r.Code)
	m.out.EmitRoom(r.Code, protocol.EventPlayerLeft, protocol.PlayerLeft{PlayerName: e.Name})

	var freed string
	switch {
	case r.Empty():
		m.store.Delete(r.Code)
		freed = r.Code
		obslog.L().Info("room_delete", zap.String("code", r.Code))
	case len(r.Participants) == 1 && wasActive:
		left := r.Participants[0]
		c, n := left.Color, left.Name
		var departed []Participant
		if wasSeated {
			departed = append(departed, leaver)
		}
		m.finish(r, ReasonAbandonment, m.text("result.opponent_left", nil), &c, &n, departed...)
	}
	obslog.L().Info("room_leave", zap.String("code", e.Code), zap.String("player_id", handle), zap.String("role", string(e.Role)))
	return freed
}

// Dispatch routes a decoded client event.
func (m *Manager) Dispatch(ctx context.Context, handle string, ev protocol.Inbound) error {
	switch v := ev.(type) {
	case protocol.CreateRoom:
		_, err := m.Create(ctx, handle, v.PlayerName)
		return err
	case protocol.JoinRoom:
		_, err := m.Join(handle, v.RoomCode, v.PlayerName)
		return err
	case protocol.MakeMove:
		return m.MakeMove(handle, v.Move)
	case protocol.SendMessage:
		return m.Chat(handle, v.PlayerName, v.Message)
	case protocol.OfferDraw:
		return m.OfferDraw(handle)
	case protocol.AcceptDraw:
		return m.AcceptDraw(handle)
	case protocol.Resign:
		return m.Resign(handle)
	case protocol.RequestGameState:
		return m.RequestGameState(handle)
	case protocol.RestartGame:
		return m.Restart(handle)
	}
	return protocol.ErrInvalidPayload
}

func (m *Manager) lookup(handle string) (Entry, *Session, error) {
	e, ok := m.registry.Get(handle)
	if !ok {
		return Entry{}, nil, ErrNotRegistered
	}
	r, ok := m.store.Get(e.Code)
	if !ok {
		return Entry{}, nil, ErrRoomNotFound
	}
	return e, r, nil
}

// finish moves the room to finished and announces it. Sinks only hear about
// games that were actually in progress. departed fills seats vacated by the
// event that ended the game.
func (m *Manager) finish(r *Session, reason Reason, text string, winner *game.Color, winnerName *string, departed ...Participant) {
	wasActive := r.Phase == PhaseActive
	r.Phase = PhaseFinished
	now := m.now()
	r.UpdatedAt = now
	m.out.EmitRoom(r.Code, protocol.EventGameEnded, protocol.GameEnded{Result: text, Winner: winner, WinnerName: winnerName})

	fields := []zap.Field{zap.String("code", r.Code), zap.String("reason", string(reason))}
	if winner != nil {
		fields = append(fields, zap.String("winner", string(*winner)))
	}
	obslog.L().Info("room_game_end", fields...)
	if !wasActive || len(m.sinks) == 0 {
		return
	}

	res := Result{
		Code:      r.Code,
		Reason:    reason,
		Text:      text,
		MovesUCI:  append([]string(nil), r.Game.Line...),
		Engine:    m.engine.Name(),
		StartedAt: r.StartedAt,
		EndedAt:   now,
	}
	seats := append(append([]Participant(nil), r.Participants...), departed...)
	for _, p := range seats {
		switch p.Color {
		case game.White:
			res.WhiteID, res.WhiteName = p.Handle, p.Name
		case game.Black:
			res.BlackID, res.BlackName = p.Handle, p.Name
		}
	}
	if winner != nil {
		res.Winner = *winner
		switch {
		case winnerName != nil:
			res.WinnerName = *winnerName
		default:
			res.WinnerName = m.nameOf(r, *winner)
		}
	}
	for _, s := range m.sinks {
		s.Publish(res)
	}
}

func (m *Manager) nameOf(r *Session, c game.Color) string {
	if p, ok := r.byColor(c); ok {
		return p.Name
	}
	return ""
}

func (m *Manager) text(key string, data any) string {
	if m.msgs == nil {
		return key
	}
	s, err := m.msgs.Render(key, data)
	if err != nil {
		obslog.L().Warn("msgcat_render_error", zap.String("key", key), zap.Error(err))
		return key
	}
	return s
}

func lastOf(xs []string) string {
	if len(xs) == 0 {
		return ""
	}
	return xs[len(xs)-1]
}
