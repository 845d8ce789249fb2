package main

import (
	"errors"
	"fmt"
	"strings"
)

var errDesync = errors.New("board block cut short")

const boardLines = 5

// tracker follows the server's line stream: which seat we hold, whether a
// board block is complete, and when the match is over.
type tracker struct {
	player  int
	inBoard int
	outcome string
	done    bool
}

func (t *tracker) feed(line string) error {
	if t.inBoard > 0 {
		t.inBoard++
		want := "║"
		if t.inBoard == boardLines {
			want = "╚"
		}
		if !strings.HasPrefix(line, want) {
			return fmt.Errorf("%w: line %d is %q", errDesync, t.inBoard, line)
		}
		if t.inBoard == boardLines {
			t.inBoard = 0
		}
		return nil
	}

	switch {
	case strings.HasPrefix(line, "╔"):
		t.inBoard = 1
	case strings.HasPrefix(line, "Welcome Player "):
		var n int
		if _, err := fmt.Sscanf(line, "Welcome Player %d.", &n); err == nil {
			t.player = n
		}
	case line == "Tie!" || (strings.HasPrefix(line, "Player ") && strings.HasSuffix(line, " Wins!")):
		t.outcome = line
	case line == "Stopping match now.":
		t.done = true
	}
	return nil
}

// won reports whether the announced outcome names our seat.
func (t *tracker) won() bool {
	return t.player != 0 && t.outcome == fmt.Sprintf("Player %d Wins!", t.player)
}
