package state

import (
	"errors"
	"fmt"

	"github.com/wfunc/drawserver/room"
)

var (
	// ErrTransitionNotAllowed is returned when a state transition is not allowed.
	ErrTransitionNotAllowed = errors.New("state transition not allowed")

	ErrNotOwner            = errors.New("only the room owner can start the game")
	ErrInsufficientPlayers = errors.New("need at least 2 players to start")
	ErrGameInProgress      = errors.New("game already in progress")
)

// transitions is the game lifecycle: waiting -> playing -> ended -> waiting.
var transitions = map[room.Status][]room.Status{
	room.StatusWaiting: {room.StatusPlaying},
	room.StatusPlaying: {room.StatusEnded},
	room.StatusEnded:   {room.StatusWaiting},
}

func CanTransition(from, to room.Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Phase says what a timer should do when it fires.
type Phase int

const (
	PhaseKickoff Phase = iota // gameStarting -> round 1
	PhaseRound                // round countdown ran out
	PhaseAdvance              // results shown -> next round or game end
	PhaseReset                // game end shown -> waiting
)

func (p Phase) String() string {
	switch p {
	case PhaseKickoff:
		return "kickoff"
	case PhaseRound:
		return "round"
	case PhaseAdvance:
		return "advance"
	case PhaseReset:
		return "reset"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// TimerEvent is posted back to the dispatcher when a room timer fires. It is
// acted on only if the room still exists with the same generation.
type TimerEvent struct {
	RoomID     string
	Generation uint64
	Phase      Phase
}

func (m *Machine) changeStatus(r *room.Room, to room.Status) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, r.Status, to)
	}
	r.Status = to
	m.rooms.Touch()
	return nil
}
