package protocol

import (
	"encoding/json"
	"time"

	"github.com/park285/cheese-rooms/internal/game"
)

// Outbound event names.
const (
	EventConnected         = "connected"
	EventRoomCreated       = "room_created"
	EventCreateFailed      = "create_failed"
	EventJoinedAsSpectator = "joined_as_spectator"
	EventJoinedRoom        = "joined_room"
	EventOpponentJoined    = "opponent_joined"
	EventGameStarted       = "game_started"
	EventGameStateUpdate   = "game_state_update"
	EventMoveMade          = "move_made"
	EventInvalidMove       = "invalid_move"
	EventJoinFailed        = "join_failed"
	EventNewMessage        = "new_message"
	EventDrawOffered       = "draw_offered"
	EventGameEnded         = "game_ended"
	EventPlayerLeft        = "player_left"
	EventGameRestarted     = "game_restarted"
)

type Connected struct {
	PlayerID string `json:"playerId"`
}

type RoomCreated struct {
	RoomCode string     `json:"roomCode"`
	Color    game.Color `json:"color"`
}

type CreateFailed struct {
	Message string `json:"message"`
}

type JoinedAsSpectator struct {
	RoomCode string `json:"roomCode"`
}

type JoinedRoom struct {
	RoomCode string     `json:"roomCode"`
	Color    game.Color `json:"color"`
}

type OpponentJoined struct {
	OpponentName string `json:"opponentName"`
}

type GameStarted struct{}

// GameStateUpdate is the board snapshot. Status fields are only present on
// explicit state requests.
type GameStateUpdate struct {
	Board           game.Board           `json:"board"`
	CurrentPlayer   game.Color           `json:"currentPlayer"`
	MoveHistory     []game.HistoryEntry  `json:"moveHistory"`
	Check           *bool                `json:"check,omitempty"`
	Checkmate       *bool                `json:"checkmate,omitempty"`
	Stalemate       *bool                `json:"stalemate,omitempty"`
	CastlingRights  *game.CastlingRights `json:"castlingRights,omitempty"`
	EnPassantTarget *game.Square         `json:"enPassantTarget,omitempty"`
}

type MoveMade struct {
	Move          MovePayload `json:"move"`
	PlayerID      string      `json:"playerId"`
	PlayerName    string      `json:"playerName"`
	NewBoard      game.Board  `json:"newBoard"`
	CurrentPlayer game.Color  `json:"currentPlayer"`
	Check         bool        `json:"check"`
	Checkmate     bool        `json:"checkmate"`
	Stalemate     bool        `json:"stalemate"`
}

type InvalidMove struct {
	Message string `json:"message"`
}

type JoinFailed struct {
	Message string `json:"message"`
}

type NewMessage struct {
	PlayerName string    `json:"playerName"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

type DrawOffered struct {
	PlayerName string `json:"playerName"`
}

// GameEnded carries a null winner for draws.
type GameEnded struct {
	Result     string      `json:"result"`
	Winner     *game.Color `json:"winner"`
	WinnerName *string     `json:"winnerName,omitempty"`
}

type PlayerLeft struct {
	PlayerName string `json:"playerName"`
}

type GameRestarted struct {
	Board         game.Board `json:"board"`
	CurrentPlayer game.Color `json:"currentPlayer"`
}

// Encode wraps payload in an Envelope.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Snapshot builds the state update sent on join. Full adds status and rights.
func Snapshot(st *game.State, full bool) GameStateUpdate {
	u := GameStateUpdate{
		Board:         st.Board.Clone(),
		CurrentPlayer: st.Turn,
		MoveHistory:   st.HistoryCopy(),
	}
	if full {
		check, mate, stale := st.Status.Check, st.Status.Checkmate, st.Status.Stalemate
		rights := st.Castling
		u.Check, u.Checkmate, u.Stalemate = &check, &mate, &stale
		u.CastlingRights = &rights
		if st.EnPassant != nil {
			ep := *st.EnPassant
			u.EnPassantTarget = &ep
		}
	}
	return u
}
