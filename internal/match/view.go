package match

import (
	"fmt"
	"strings"

	"github.com/park285/kalah-relay/internal/kalah"
)

const (
	boardTop    = "╔══╦══╦══╦══╦══╦══╦══╦══╗"
	boardMiddle = "║  ╠══╬══╬══╬══╬══╬══╣  ║"
	boardBottom = "╚══╩══╩══╩══╩══╩══╩══╩══╝"
)

// RenderBoard draws the five-line board from viewer's side: own pits on the
// bottom row left to right with the own store on the right, opponent pits
// mirrored on top with the opponent store on the left.
func RenderBoard(b kalah.Board, viewer kalah.Player) []string {
	opp := viewer.Opponent()

	var top strings.Builder
	top.WriteString("║")
	fmt.Fprintf(&top, "%2d║", b[kalah.StoreIndex(opp)])
	lo, hi := kalah.PitRange(opp)
	for i := hi; i >= lo; i-- {
		fmt.Fprintf(&top, "%2d║", b[i])
	}
	top.WriteString("←┐║")

	var bottom strings.Builder
	bottom.WriteString("║└→║")
	lo, hi = kalah.PitRange(viewer)
	for i := lo; i <= hi; i++ {
		fmt.Fprintf(&bottom, "%2d║", b[i])
	}
	fmt.Fprintf(&bottom, "%2d║", b[kalah.StoreIndex(viewer)])

	return []string{boardTop, top.String(), boardMiddle, bottom.String(), boardBottom}
}

// joinMoves formats local pit numbers as "0, 2, 3".
func joinMoves(moves []int) string {
	parts := make([]string, len(moves))
	for i, m := range moves {
		parts[i] = fmt.Sprint(m)
	}
	return strings.Join(parts, ", ")
}
