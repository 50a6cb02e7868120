// Package protocol defines the JSON events exchanged over the room socket.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/cheese-rooms/internal/game"
)

// Inbound event names.
const (
	EventCreateRoom       = "create_room"
	EventJoinRoom         = "join_room"
	EventMakeMove         = "make_move"
	EventSendMessage      = "send_message"
	EventOfferDraw        = "offer_draw"
	EventAcceptDraw       = "accept_draw"
	EventResign           = "resign"
	EventRequestGameState = "request_game_state"
	EventRestartGame      = "restart_game"
)

const maxNameLen = 64
// ErrInvalidPayload wraps every decode and validation failure.
var ErrInvalidPayload = errors.New("invalid payload")

// Envelope is one websocket text frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is one of the typed client events below.
type Inbound interface {
	EventName() string
}

type CreateRoom struct {
	PlayerName string `json:"playerName"`
}

type JoinRoom struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type MakeMove struct {
	Move MovePayload `json:"move"`
}

// MovePayload is the client's move as sent and echoed back in move_made.
type MovePayload struct {
	FromRow   int    `json:"fromRow"`
	FromCol   int    `json:"fromCol"`
	ToRow     int    `json:"toRow"`
	ToCol     int    `json:"toCol"`
	Piece     string `json:"piece,omitempty"`
	Promotion string `json:"promotion,omitempty"`
}

// GameMove converts to the engine's move type; Promotion defaults to queen.
func (m MovePayload) GameMove() game.Move {
	promo := game.PieceType(m.Promotion)
	if promo == "" {
		promo = game.Queen
	}
	return game.Move{
		From:      game.Square{Row: m.FromRow, Col: m.FromCol},
		To:        game.Square{Row: m.ToRow, Col: m.ToCol},
		Piece:     game.PieceType(m.Piece),
		Promotion: promo,
	}
}

type SendMessage struct {
	PlayerName string `json:"playerName"`
	Message    string `json:"message"`
}

type OfferDraw struct{}
type AcceptDraw struct{}
type Resign struct{}
type RequestGameState struct{}
type RestartGame struct{}

func (CreateRoom) EventName() string       { return EventCreateRoom }
func (JoinRoom) EventName() string         { return EventJoinRoom }
func (MakeMove) EventName() string         { return EventMakeMove }
func (SendMessage) EventName() string      { return EventSendMessage }
func (OfferDraw) EventName() string        { return EventOfferDraw }
func (AcceptDraw) EventName() string       { return EventAcceptDraw }
func (Resign) EventName() string           { return EventResign }
func (RequestGameState) EventName() string { return EventRequestGameState }
func (RestartGame) EventName() string      { return EventRestartGame }

// wireMove uses pointers so a missing coordinate is distinguishable from 0.
type wireMove struct {
	FromRow   *int   `json:"fromRow"`
	FromCol   *int   `json:"fromCol"`
	ToRow     *int   `json:"toRow"`
	ToCol     *int   `json:"toCol"`
	Piece     string `json:"piece"`
	Promotion string `json:"promotion"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}

// Decode parses one frame into a validated Inbound event.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, invalid("envelope: %v", err)
	}
	data := env.Data
	if len(data) == 0 || string(data) == "null" {
		data = []byte("{}")
	}

	switch env.Event {
	case EventCreateRoom:
		var ev CreateRoom
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, invalid("%s: %v", env.Event, err)
		}
		name, err := cleanName(ev.PlayerName, true)
		if err != nil {
			return nil, err
		}
		ev.PlayerName = name
		return ev, nil

	case EventJoinRoom:
		var ev JoinRoom
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, invalid("%s: %v", env.Event, err)
		}
		// Codes are matched case-insensitively.
		ev.RoomCode = strings.ToUpper(strings.TrimSpace(ev.RoomCode))
		if ev.RoomCode == "" {
			return nil, invalid("join_room: roomCode required")
		}
		name, err := cleanName(ev.PlayerName, true)
		if err != nil {
			return nil, err
		}
		ev.PlayerName = name
		return ev, nil

	case EventMakeMove:
		var body struct {
			Move *wireMove `json:"move"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, invalid("%s: %v", env.Event, err)
		}
		mv, err := body.Move.validate()
		if err != nil {
			return nil, err
		}
		return MakeMove{Move: mv}, nil

	case EventSendMessage:
		var ev SendMessage
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, invalid("%s: %v", env.Event, err)
		}
		// Chat text is relayed as sent; the frame read limit bounds its size.
		ev.PlayerName = strings.TrimSpace(ev.PlayerName)
		return ev, nil

	case EventOfferDraw:
		return OfferDraw{}, nil
	case EventAcceptDraw:
		return AcceptDraw{}, nil
	case EventResign:
		return Resign{}, nil
	case EventRequestGameState:
		return RequestGameState{}, nil
	case EventRestartGame:
		return RestartGame{}, nil
	case "":
		return nil, invalid("missing event name")
	default:
		return nil, invalid("unknown event %q", env.Event)
	}
}

func cleanName(s string, required bool) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" && required {
		return "", invalid("playerName required")
	}
	if len([]rune(s)) > maxNameLen {
		return "", invalid("playerName longer than %d characters", maxNameLen)
	}
	return s, nil
}

func (w *wireMove) validate() (MovePayload, error) {
	if w == nil {
		return MovePayload{}, invalid("make_move: move required")
	}
	coords := []struct {
		name string
		v    *int
	}{{"fromRow", w.FromRow}, {"fromCol", w.FromCol}, {"toRow", w.ToRow}, {"toCol", w.ToCol}}
	for _, c := range coords {
		if c.v == nil {
			return MovePayload{}, invalid("make_move: %s required", c.name)
		}
		if *c.v < 0 || *c.v > 7 {
			return MovePayload{}, invalid("make_move: %s out of range: %d", c.name, *c.v)
		}
	}
	promo := strings.ToLower(strings.TrimSpace(w.Promotion))
	if promo != "" && !game.ValidPromotion(game.PieceType(promo)) {
		return MovePayload{}, invalid("make_move: bad promotion %q", w.Promotion)
	}
	return MovePayload{
		FromRow:   *w.FromRow,
		FromCol:   *w.FromCol,
		ToRow:     *w.ToRow,
		ToCol:     *w.ToCol,
		Piece:     strings.TrimSpace(w.Piece),
		Promotion: promo,
	}, nil
}
