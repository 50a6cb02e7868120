package room

import (
	"errors"
	"time"

	"github.com/park285/cheese-rooms/internal/game"
)

// Phase is the room lifecycle stage.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseActive   Phase = "active"
	PhaseFinished Phase = "finished"
)

// Role is a participant color or spectator.
type Role string

const (
	RoleWhite     Role = Role(game.White)
	RoleBlack     Role = Role(game.Black)
	RoleSpectator Role = "spectator"
)

func (r Role) Color() (game.Color, bool) {
	switch r {
	case RoleWhite:
		return game.White, true
	case RoleBlack:
		return game.Black, true
	}
	return "", false
}

type Participant struct {
	Handle string
	Name   string
	Color  game.Color
}

type Spectator struct {
	Handle string
	Name   string
}

// Session is one room. At most two Participants hold seats; each carries its own
// Color, so slice order says nothing about who plays white.
type Session struct {
	Code         string
	Participants []Participant
	Spectators   []Spectator
	Phase        Phase
	Game         *game.State
	CreatedAt    time.Time
	StartedAt    time.Time
	UpdatedAt    time.Time
}

func (s *Session) Empty() bool { return len(s.Participants) == 0 && len(s.Spectators) == 0 }

func (s *Session) participant(handle string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.Handle == handle {
			return p, true
		}
	}
	return Participant{}, false
}

// other returns the participant whose handle differs from handle.
func (s *Session) other(handle string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.Handle != handle {
			return p, true
		}
	}
	return Participant{}, false
}

func (s *Session) byColor(c game.Color) (Participant, bool) {
	for _, p := range s.Participants {
		if p.Color == c {
			return p, true
		}
	}
	return Participant{}, false
}

func (s *Session) remove(handle string) {
	ps := s.Participants[:0]
	for _, p := range s.Participants {
		if p.Handle != handle {
			ps = append(ps, p)
		}
	}
	s.Participants = ps
	ss := s.Spectators[:0]
	for _, sp := range s.Spectators {
		if sp.Handle != handle {
			ss = append(ss, sp)
		}
	}
	s.Spectators = ss
}

// Entry is what the registry knows about one connection.
type Entry struct {
	Code string
	Role Role
	Name string
}

// Reason classifies how a game ended.
type Reason string

const (
	ReasonCheckmate   Reason = "checkmate"
	ReasonStalemate   Reason = "stalemate"
	ReasonDraw        Reason = "draw"
	ReasonAgreement   Reason = "agreement"
	ReasonResignation Reason = "resignation"
	ReasonAbandonment Reason = "abandonment"
)

// Result is published once per active→finished transition.
type Result struct {
	Code       string     `json:"code"`
	WhiteID    string     `json:"white_id"`
	WhiteName  string     `json:"white_name"`
	BlackID    string     `json:"black_id"`
	BlackName  string     `json:"black_name"`
	Winner     game.Color `json:"winner,omitempty"`
	WinnerName string     `json:"winner_name,omitempty"`
	Reason     Reason     `json:"reason"`
	Text       string     `json:"text"`
	MovesUCI   []string   `json:"moves_uci"`
	Engine     string     `json:"engine"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    time.Time  `json:"ended_at"`
}

// ResultSink receives finished games. Publish must not block.
type ResultSink interface {
	Publish(r Result)
}

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrNotRegistered  = errors.New("connection not registered")
	ErrAlreadyInRoom  = errors.New("connection already in a room")
	ErrNotActive      = errors.New("game is not in progress")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrIllegalMove    = errors.New("illegal move")
	ErrNotParticipant = errors.New("not a participant")

	errCodeTaken = errors.New("room code held by a live room")
)
