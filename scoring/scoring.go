// Package scoring judges chat messages against the active secret word and
// credits correct guesses.
package scoring

import (
	"time"

	"github.com/wfunc/drawserver/room"
	"golang.org/x/text/cases"
)

const (
	PointsPerSecond = 5
	MinPoints       = 10
)

type Result struct {
	Correct bool
	// Repeat is set when the sender was already credited this round. The
	// message is still the secret word and must not be relayed.
	Repeat bool
	Points int
}

// Matches compares text against word under Unicode case folding, with no
// trimming or other normalization.
func Matches(text, word string) bool {
	fold := cases.Fold()
	return fold.String(text) == fold.String(word)
}

// Award is max(MinPoints, secondsLeft*PointsPerSecond) where secondsLeft is
// computed from whole elapsed seconds.
func Award(secondsPerRound int, startedAt, now time.Time) int {
	elapsed := int(now.Sub(startedAt) / time.Second)
	left := secondsPerRound - elapsed
	return max(MinPoints, left*PointsPerSecond)
}

// Evaluate credits sender when text is a correct guess.
func Evaluate(r *room.Room, sender room.Player, text string, now time.Time) Result {
	if !r.RoundActive() || r.IsDrawer(sender) {
		return Result{}
	}
	if !Matches(text, r.SecretWord) {
		return Result{}
	}
	if r.Guessed[sender.UserID] {
		return Result{Correct: true, Repeat: true}
	}

	points := Award(r.SecondsPerRound, r.RoundStartedAt, now)
	r.Scoreboard[sender.UserID] += points
	r.Guessed[sender.UserID] = true
	return Result{Correct: true, Points: points}
}

// AllGuessed reports whether every non-drawer user in the room has been
// credited this round. A room with nobody left to guess never qualifies.
func AllGuessed(r *room.Room) bool {
	if !r.RoundActive() {
		return false
	}
	guessers := make(map[string]bool)
	for _, p := range r.Players {
		if !r.IsDrawer(p) {
			guessers[p.UserID] = true
		}
	}
	if len(guessers) == 0 {
		return false
	}
	for userID := range guessers {
		if !r.Guessed[userID] {
			return false
		}
	}
	return true
}
