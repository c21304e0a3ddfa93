package dispatch

import (
	"errors"

	"github.com/wfunc/drawserver/room"
	"github.com/wfunc/drawserver/state"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotIdentified  = errors.New("connection has not identified")
	ErrUnknownIntent  = errors.New("unknown message type")
)

// errorCodes maps every error a handler may return to the code sent in
// errorNotice. Anything not listed is reported as "internal".
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidRequest, "invalid_request"},
	{ErrNotIdentified, "not_identified"},
	{ErrUnknownIntent, "unknown_intent"},
	{room.ErrInvalidRoom, "invalid_room"},
	{room.ErrDuplicateRoomID, "duplicate_room_id"},
	{room.ErrRoomNotFound, "room_not_found"},
	{room.ErrRoomFull, "room_full"},
	{room.ErrInvalidPassword, "invalid_password"},
	{room.ErrAlreadyInRoom, "already_in_room"},
	{room.ErrNotInRoom, "not_in_room"},
	{state.ErrNotOwner, "not_owner"},
	{state.ErrInsufficientPlayers, "insufficient_players"},
	{state.ErrGameInProgress, "game_in_progress"},
	{state.ErrTransitionNotAllowed, "transition_not_allowed"},
}

func errorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal"
}
