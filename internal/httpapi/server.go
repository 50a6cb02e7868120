package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/cheese-rooms/internal/archive"
	"github.com/park285/cheese-rooms/internal/game"
	"github.com/park285/cheese-rooms/internal/obslog"
	"github.com/park285/cheese-rooms/internal/render"
	"github.com/park285/cheese-rooms/internal/room"
	"github.com/park285/cheese-rooms/internal/roomcode"
)

// Rooms is the read side of room.Manager.
type Rooms interface {
	Stats() room.Stats
	Preview(code string) (room.Preview, bool)
}

type BoardRenderer interface {
	PNG(ctx context.Context, board game.Board, opts render.Options) ([]byte, error)
}

// Games is the read side of the game archive.
type Games interface {
	Recent(ctx context.Context, limit int) ([]archive.Record, error)
}

type Server struct {
	rooms    Rooms
	renderer BoardRenderer
	games    Games
	static   fasthttp.RequestHandler
	now      func() time.Time
	srv      *fasthttp.Server
}

type Option func(*Server)

func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// WithGames enables /games/recent.
func WithGames(g Games) Option { return func(s *Server) { s.games = g } }

// WithStaticDir serves the client bundle from dir.
func WithStaticDir(dir string) Option {
	return func(s *Server) {
		if strings.TrimSpace(dir) == "" {
			return
		}
		fs := &fasthttp.FS{
			Root:               dir,
			IndexNames:         []string{"index.html"},
			GenerateIndexPages: false,
			AcceptByteRange:    true,
		}
		s.static = fs.NewRequestHandler()
	}
}

func New(rooms Rooms, renderer BoardRenderer, opts ...Option) *Server {
	s := &Server{rooms: rooms, renderer: renderer, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.srv = &fasthttp.Server{
		Handler:      s.Handle,
		Name:         "cheese-rooms",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error { return s.srv.ListenAndServe(addr) }

func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.ShutdownWithContext(ctx) }

// Handle routes one request.
func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	switch {
	case path == "/status":
		s.status(ctx)
	case path == "/games/recent" && s.games != nil:
		s.recent(ctx)
	case strings.HasPrefix(path, "/rooms/") && strings.HasSuffix(path, "/board.png"):
		code := strings.TrimSuffix(strings.TrimPrefix(path, "/rooms/"), "/board.png")
		s.board(ctx, code)
	case s.static != nil:
		s.static(ctx)
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}

type statusBody struct {
	Status    string    `json:"status"`
	Rooms     int       `json:"rooms"`
	Players   int       `json:"players"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) status(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() && !ctx.IsHead() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}
	st := s.rooms.Stats()
	writeJSON(ctx, fasthttp.StatusOK, statusBody{
		Status:    "online",
		Rooms:     st.Rooms,
		Players:   st.Players,
		Timestamp: s.now().UTC(),
	})
}

func (s *Server) board(ctx *fasthttp.RequestCtx, code string) {
	code = strings.ToUpper(code)
	if !roomcode.Valid(code) {
		ctx.Error("bad room code", fasthttp.StatusBadRequest)
		return
	}
	p, ok := s.rooms.Preview(code)
	if !ok {
		ctx.Error("room not found", fasthttp.StatusNotFound)
		return
	}
	opts := render.Options{Header: headerFor(p), Turn: turnFor(p)}
	if p.Last != nil {
		opts.Highlight = &render.Highlight{From: p.Last.From, To: p.Last.To}
	}
	png, err := s.renderer.PNG(ctx, p.Board, opts)
	if err != nil {
		obslog.L().Error("http_board_render_error", zap.String("code", code), zap.Error(err))
		ctx.Error("render failed", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("image/png")
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.SetBody(png)
}

const maxRecent = 100

type gameBody struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	White     string    `json:"white"`
	Black     string    `json:"black"`
	Result    string    `json:"result"`
	Reason    string    `json:"reason"`
	ECO       string    `json:"eco,omitempty"`
	Opening   string    `json:"opening,omitempty"`
	Moves     []string  `json:"moves"`
	PGN       string    `json:"pgn"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

func (s *Server) recent(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() && !ctx.IsHead() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}
	limit := 20
	if raw := string(ctx.QueryArgs().Peek("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			ctx.Error("bad limit", fasthttp.StatusBadRequest)
			return
		}
		limit = min(n, maxRecent)
	}
	recs, err := s.games.Recent(ctx, limit)
	if err != nil {
		obslog.L().Error("http_recent_games_error", zap.Error(err))
		ctx.Error("archive unavailable", fasthttp.StatusServiceUnavailable)
		return
	}
	out := make([]gameBody, 0, len(recs))
	for _, r := range recs {
		moves := r.MovesSAN
		if len(moves) == 0 {
			moves = r.MovesUCI
		}
		out = append(out, gameBody{
			ID:        r.ID,
			Code:      r.Code,
			White:     r.WhiteName,
			Black:     r.BlackName,
			Result:    r.PGNResult,
			Reason:    string(r.Reason),
			ECO:       r.Opening.ECO,
			Opening:   r.Opening.Title,
			Moves:     moves,
			PGN:       r.PGN,
			StartedAt: r.StartedAt,
			EndedAt:   r.EndedAt,
		})
	}
	writeJSON(ctx, fasthttp.StatusOK, out)
}

func headerFor(p room.Preview) string {
	white, black := p.White, p.Black
	if white == "" {
		white = "?"
	}
	if black == "" {
		black = "?"
	}
	return fmt.Sprintf("%s  %s vs %s", p.Code, white, black)
}

func turnFor(p room.Preview) string {
	switch p.Phase {
	case room.PhaseWaiting:
		return "waiting for opponent"
	case room.PhaseFinished:
		return "game over"
	default:
		return string(p.Turn) + " to move"
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.Error("encode failed", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
