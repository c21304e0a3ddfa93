// room/room.go
package room

import (
	"fmt"
	"time"
)

const (
	MinPlayers      = 2
	MaxPlayersLimit = 8
)

// Status is the game lifecycle state of a room.
type Status int

const (
	StatusWaiting Status = iota
	StatusPlaying
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusPlaying:
		return "playing"
	case StatusEnded:
		return "ended"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

type Visibility int

const (
	Public Visibility = iota
	Private
)

func (v Visibility) String() string {
	if v == Private {
		return "private"
	}
	return "public"
}

// ParseVisibility accepts "public", "private" or "" (public).
func ParseVisibility(s string) (Visibility, error) {
	switch s {
	case "", "public":
		return Public, nil
	case "private":
		return Private, nil
	}
	return Public, fmt.Errorf("%w: unknown visibility %q", ErrInvalidRoom, s)
}

// Player is one membership entry. A user may hold several connections.
type Player struct {
	UserID string
	ConnID string
}

// Room is a single game session. Round fields are written only by the state
// machine and the scoreboard only by scoring and the reset transition.
type Room struct {
	ID         string
	Name       string
	OwnerID    string
	Players    []Player // join order; drives drawer rotation
	MaxPlayers int
	Visibility Visibility
	CreatedAt  time.Time

	Status          Status
	RoundIndex      int
	TotalRounds     int
	SecondsPerRound int
	DrawerConnID    string
	DrawerUserID    string
	SecretWord      string
	RoundStartedAt  time.Time
	Scoreboard      map[string]int
	Guessed         map[string]bool // users credited in the current round

	// Generation changes whenever the room's timer is re-armed or cancelled.
	Generation uint64
	TimerID    int64

	sealedPassword string
}

// Summary is the lobby view of a room.
type Summary struct {
	ID          string
	Name        string
	PlayerCount int
	MaxPlayers  int
	Status      Status
	Visibility  Visibility
}

func (r *Room) GetID() string {
	return r.ID
}

func (r *Room) Summary() Summary {
	return Summary{
		ID:          r.ID,
		Name:        r.Name,
		PlayerCount: len(r.Players),
		MaxPlayers:  r.MaxPlayers,
		Status:      r.Status,
		Visibility:  r.Visibility,
	}
}

func (r *Room) IsFull() bool {
	return len(r.Players) >= r.MaxPlayers
}

// ConnIDs returns the connections of all members in join order.
func (r *Room) ConnIDs() []string {
	return r.ConnIDsExcept("")
}

func (r *Room) ConnIDsExcept(connID string) []string {
	ids := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		if p.ConnID != connID {
			ids = append(ids, p.ConnID)
		}
	}
	return ids
}

func (r *Room) Player(connID string) (Player, bool) {
	for _, p := range r.Players {
		if p.ConnID == connID {
			return p, true
		}
	}
	return Player{}, false
}

func (r *Room) HasUser(userID string) bool {
	for _, p := range r.Players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// IsDrawer matches on connection and on user, so a second connection of the
// drawer cannot guess.
func (r *Room) IsDrawer(p Player) bool {
	if r.DrawerConnID == "" && r.DrawerUserID == "" {
		return false
	}
	return p.ConnID == r.DrawerConnID || p.UserID == r.DrawerUserID
}

// RoundActive reports whether a secret word is currently in play.
func (r *Room) RoundActive() bool {
	return r.Status == StatusPlaying && r.SecretWord != ""
}

// ClearRound drops every per-round field.
func (r *Room) ClearRound() {
	r.DrawerConnID = ""
	r.DrawerUserID = ""
	r.SecretWord = ""
	r.RoundStartedAt = time.Time{}
	r.Guessed = make(map[string]bool)
}

func (r *Room) ResetScoreboard() {
	r.Scoreboard = make(map[string]int)
}

// ScoreboardCopy is safe to hand to an outbound event.
func (r *Room) ScoreboardCopy() map[string]int {
	out := make(map[string]int, len(r.Scoreboard))
	for k, v := range r.Scoreboard {
		out[k] = v
	}
	return out
}

// Winner returns the user with the strictly highest score, walking players in
// join order so ties go to whoever joined first. Empty when nobody scored.
func (r *Room) Winner() string {
	winner, best := "", 0
	for _, p := range r.Players {
		score, ok := r.Scoreboard[p.UserID]
		if ok && (winner == "" || score > best) {
			winner, best = p.UserID, score
		}
	}
	return winner
}

func (r *Room) removePlayer(connID string) (Player, bool) {
	for i, p := range r.Players {
		if p.ConnID == connID {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			return p, true
		}
	}
	return Player{}, false
}
