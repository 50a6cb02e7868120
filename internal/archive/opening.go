package archive

import (
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

// Opening names the deepest ECO entry the game passed through.
type Opening struct {
	ECO   string
	Title string
}

// classify returns the zero Opening when no ECO line matches.
func classify(g *nchess.Game) Opening {
	if g == nil || len(g.Moves()) == 0 {
		return Opening{}
	}
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	eco := ecoBook.Find(g.Moves())
	if eco == nil {
		return Opening{}
	}
	return Opening{ECO: eco.Code(), Title: eco.Title()}
}
