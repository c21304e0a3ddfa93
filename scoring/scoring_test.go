package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wfunc/drawserver/room"
)

var (
	alice = room.Player{UserID: "uA", ConnID: "cA"}
	bob   = room.Player{UserID: "uB", ConnID: "cB"}
	carol = room.Player{UserID: "uC", ConnID: "cC"}
)

func playingRoom(start time.Time) *room.Room {
	return &room.Room{
		ID:              "r1",
		Players:         []room.Player{alice, bob, carol},
		Status:          room.StatusPlaying,
		RoundIndex:      1,
		SecondsPerRound: 60,
		DrawerConnID:    bob.ConnID,
		DrawerUserID:    bob.UserID,
		SecretWord:      "Jellyfish",
		RoundStartedAt:  start,
		Scoreboard:      map[string]int{},
		Guessed:         map[string]bool{},
	}
}

func TestAward(t *testing.T) {
	start := time.Unix(1000, 0)

	// 18 s elapsed leaves 42 s
	assert.Equal(t, 210, Award(60, start, start.Add(18*time.Second)))
	// fractional seconds are floored
	assert.Equal(t, 210, Award(60, start, start.Add(18*time.Second+900*time.Millisecond)))
	assert.Equal(t, 300, Award(60, start, start))
	assert.Equal(t, 10, Award(60, start, start.Add(59*time.Second)))
	assert.Equal(t, 10, Award(60, start, start.Add(90*time.Second)))
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("jellyfish", "Jellyfish"))
	assert.True(t, Matches("JELLYFISH", "jellyfish"))
	assert.False(t, Matches(" jellyfish", "jellyfish"))
	assert.False(t, Matches("jelly fish", "jellyfish"))
}

func TestEvaluate_CorrectGuess(t *testing.T) {
	start := time.Unix(1000, 0)
	r := playingRoom(start)

	res := Evaluate(r, alice, "JELLYFISH", start.Add(18*time.Second))
	assert.Equal(t, Result{Correct: true, Points: 210}, res)
	assert.Equal(t, 210, r.Scoreboard["uA"])
	assert.True(t, r.Guessed["uA"])
}

func TestEvaluate_RepeatNotScoredTwice(t *testing.T) {
	start := time.Unix(1000, 0)
	r := playingRoom(start)

	Evaluate(r, alice, "jellyfish", start.Add(time.Second))
	res := Evaluate(r, alice, "jellyfish", start.Add(2*time.Second))

	assert.True(t, res.Correct)
	assert.True(t, res.Repeat)
	assert.Equal(t, 295, r.Scoreboard["uA"])
}

func TestEvaluate_DrawerNeverScores(t *testing.T) {
	start := time.Unix(1000, 0)
	r := playingRoom(start)

	for _, text := range []string{"jellyfish", "Jellyfish", "hello"} {
		res := Evaluate(r, bob, text, start.Add(time.Second))
		assert.False(t, res.Correct, text)
	}
	// the drawer's second connection is the drawer too
	res := Evaluate(r, room.Player{UserID: "uB", ConnID: "cB2"}, "jellyfish", start)
	assert.False(t, res.Correct)
	assert.Empty(t, r.Scoreboard)
}

func TestEvaluate_NotPlaying(t *testing.T) {
	start := time.Unix(1000, 0)
	r := playingRoom(start)
	r.Status = room.StatusWaiting
	assert.False(t, Evaluate(r, alice, "jellyfish", start).Correct)

	r = playingRoom(start)
	r.SecretWord = ""
	assert.False(t, Evaluate(r, alice, "", start).Correct)
}

func TestEvaluate_WrongText(t *testing.T) {
	start := time.Unix(1000, 0)
	r := playingRoom(start)
	assert.Equal(t, Result{}, Evaluate(r, alice, "octopus", start))
	assert.Empty(t, r.Scoreboard)
}

func TestAllGuessed(t *testing.T) {
	start := time.Unix(1000, 0)
	r := playingRoom(start)

	assert.False(t, AllGuessed(r))
	Evaluate(r, alice, "jellyfish", start)
	assert.False(t, AllGuessed(r))
	Evaluate(r, carol, "jellyfish", start)
	assert.True(t, AllGuessed(r))
}

func TestAllGuessed_NoGuessers(t *testing.T) {
	r := playingRoom(time.Unix(1000, 0))
	r.Players = []room.Player{bob}
	assert.False(t, AllGuessed(r))
}
