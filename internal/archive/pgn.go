package archive

import (
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-rooms/internal/game"
	"github.com/park285/cheese-rooms/internal/room"
)

// Record is a finished game ready for storage.
type Record struct {
	ID string
	room.Result
	PGNResult string
	MovesSAN  []string
	Opening   Opening
	PGN       string
}

// NewRecord derives the PGN fields. Games played under the permissive rules
// may not replay as legal chess; their movetext falls back to UCI.
func NewRecord(res room.Result) Record {
	rec := Record{
		ID:        GameID(res),
		Result:    res,
		PGNResult: resultToken(res),
	}
	g, san, ok := replay(res.MovesUCI)
	movetext := res.MovesUCI
	if ok {
		rec.MovesSAN = san
		rec.Opening = classify(g)
		movetext = san
	}
	rec.PGN = buildPGN(res, rec.Opening, movetext, rec.PGNResult)
	return rec
}

// GameID keys one game; a room code is reused across restarts.
func GameID(res room.Result) string {
	return fmt.Sprintf("%s-%d", res.Code, res.StartedAt.UnixMilli())
}

// SANLine replays uci from the initial position and returns SAN for each move.
func SANLine(uci []string) ([]string, bool) {
	_, san, ok := replay(uci)
	return san, ok
}

func replay(uci []string) (*nchess.Game, []string, bool) {
	g := nchess.NewGame()
	out := make([]string, 0, len(uci))
	for _, u := range uci {
		pos := g.Position()
		mv, err := nchess.UCINotation{}.Decode(pos, u)
		if err != nil {
			return nil, nil, false
		}
		san := nchess.AlgebraicNotation{}.Encode(pos, mv)
		if err := g.Move(mv, nil); err != nil {
			return nil, nil, false
		}
		out = append(out, san)
	}
	return g, out, true
}

func resultToken(res room.Result) string {
	switch {
	case res.Winner == game.White:
		return "1-0"
	case res.Winner == game.Black:
		return "0-1"
	case res.Reason == room.ReasonDraw || res.Reason == room.ReasonStalemate || res.Reason == room.ReasonAgreement:
		return "1/2-1/2"
	default:
		return "*"
	}
}

func buildPGN(res room.Result, op Opening, moves []string, token string) string {
	var b strings.Builder
	date := res.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	fmt.Fprintf(&b, "[Event \"Room %s\"]\n", sanitizePGN(res.Code))
	b.WriteString("[Site \"cheese-rooms\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(res.WhiteName))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(res.BlackName))
	if res.Reason != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(string(res.Reason)))
	}
	if op.ECO != "" {
		fmt.Fprintf(&b, "[ECO \"%s\"]\n", sanitizePGN(op.ECO))
		fmt.Fprintf(&b, "[Opening \"%s\"]\n", sanitizePGN(op.Title))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", token)

	for i := 0; i < len(moves); i += 2 {
		fmt.Fprintf(&b, "%d. %s ", i/2+1, strings.TrimSpace(moves[i]))
		if i+1 < len(moves) {
			b.WriteString(strings.TrimSpace(moves[i+1]))
			b.WriteString(" ")
		}
	}
	b.WriteString(token)
	return b.String()
}

func gameColor(s string) game.Color {
	switch game.Color(s) {
	case game.White, game.Black:
		return game.Color(s)
	}
	return ""
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
