package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/wfunc/drawserver/logger"
	"github.com/wfunc/drawserver/network"
	"github.com/wfunc/drawserver/presence"
	"github.com/wfunc/drawserver/room"
	"github.com/wfunc/drawserver/scoring"
)

func decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func (d *Dispatcher) identified(connID string) (presence.Presence, error) {
	p, ok := d.presences.Get(connID)
	if !ok {
		return presence.Presence{}, ErrNotIdentified
	}
	return p, nil
}

// member resolves the sender to its presence, room and membership entry.
func (d *Dispatcher) member(connID string) (presence.Presence, *room.Room, room.Player, error) {
	p, err := d.identified(connID)
	if err != nil {
		return p, nil, room.Player{}, err
	}
	r, ok := d.rooms.RoomOf(connID)
	if !ok {
		return p, nil, room.Player{}, room.ErrNotInRoom
	}
	player, _ := r.Player(connID)
	return p, r, player, nil
}

func (d *Dispatcher) profile(connID, userID string) network.UserProfile {
	if p, ok := d.presences.Get(connID); ok {
		return network.UserProfile{UserID: p.UserID, DisplayName: p.DisplayName, AvatarRef: p.AvatarRef}
	}
	return network.UserProfile{UserID: userID, DisplayName: userID}
}

func (d *Dispatcher) handleIdentify(connID string, data []byte) ([]network.Outbound, error) {
	var req network.IdentifyRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	if existing, ok := d.presences.Get(connID); ok && existing.UserID != req.UserID {
		if _, inRoom := d.rooms.RoomOf(connID); inRoom {
			return nil, fmt.Errorf("%w: cannot change identity while in a room", ErrInvalidRequest)
		}
	}
	if err := d.checkIdentity(req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		req.DisplayName = req.UserID
	}

	p := presence.Presence{ConnID: connID, UserID: req.UserID, DisplayName: req.DisplayName, AvatarRef: req.AvatarRef}
	isNew := d.presences.Identify(p)
	logger.Log.Infof("Connection %s identified as %s", connID, p.UserID)

	all := d.presences.All()
	users := make([]network.UserProfile, 0, len(all))
	var others []string
	for _, other := range all {
		users = append(users, network.UserProfile{UserID: other.UserID, DisplayName: other.DisplayName, AvatarRef: other.AvatarRef})
		if other.ConnID != connID {
			others = append(others, other.ConnID)
		}
	}

	outs := []network.Outbound{
		{To: []string{connID}, MsgID: network.MsgTypeUsersList, Payload: fitFrame(users)},
		{To: []string{connID}, MsgID: network.MsgTypeRoomListUpdated, Payload: d.roomList()},
	}
	if isNew && len(others) > 0 {
		outs = append(outs, network.Outbound{
			To:      others,
			MsgID:   network.MsgTypeUserJoined,
			Payload: network.UserProfile{UserID: p.UserID, DisplayName: p.DisplayName, AvatarRef: p.AvatarRef},
		})
	}
	return outs, nil
}

// checkIdentity bounds the profile fields that are echoed to other users.
func (d *Dispatcher) checkIdentity(req network.IdentifyRequest) error {
	switch {
	case utf8.RuneCountInString(req.UserID) > d.maxUserID:
		return fmt.Errorf("%w: userId longer than %d characters", ErrInvalidRequest, d.maxUserID)
	case utf8.RuneCountInString(req.DisplayName) > d.maxName:
		return fmt.Errorf("%w: displayName longer than %d characters", ErrInvalidRequest, d.maxName)
	case utf8.RuneCountInString(req.AvatarRef) > d.maxAvatar:
		return fmt.Errorf("%w: avatarRef longer than %d characters", ErrInvalidRequest, d.maxAvatar)
	}
	return nil
}

func (d *Dispatcher) handleCreateRoom(connID string, data []byte) ([]network.Outbound, error) {
	p, err := d.identified(connID)
	if err != nil {
		return nil, err
	}
	var req network.CreateRoomRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	visibility, err := room.ParseVisibility(req.Visibility)
	if err != nil {
		return nil, err
	}

	r, err := d.rooms.CreateRoom(room.CreateParams{
		ID:         req.ID,
		Name:       req.Name,
		Owner:      room.Player{UserID: p.UserID, ConnID: connID},
		MaxPlayers: req.MaxPlayers,
		Visibility: visibility,
		Password:   req.Password,
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Infof("User %s created room %s (%s)", p.UserID, r.ID, r.Visibility)
	return []network.Outbound{
		{To: []string{connID}, MsgID: network.MsgTypeRoomJoined, Payload: d.snapshot(r)},
	}, nil
}

func (d *Dispatcher) handleJoinRoom(connID string, data []byte) ([]network.Outbound, error) {
	p, err := d.identified(connID)
	if err != nil {
		return nil, err
	}
	var req network.JoinRoomRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	r, err := d.rooms.JoinRoom(req.ID, room.Player{UserID: p.UserID, ConnID: connID}, req.Password)
	if err != nil {
		return nil, err
	}

	logger.Log.Infof("User %s joined room %s (%d/%d)", p.UserID, r.ID, len(r.Players), r.MaxPlayers)
	return []network.Outbound{
		{To: []string{connID}, MsgID: network.MsgTypeRoomJoined, Payload: d.snapshot(r)},
		{
			To:      r.ConnIDsExcept(connID),
			MsgID:   network.MsgTypePlayerJoined,
			Payload: network.PlayerNotice{UserID: p.UserID, DisplayName: p.DisplayName, AvatarRef: p.AvatarRef, OwnerID: r.OwnerID},
		},
	}, nil
}

func (d *Dispatcher) handleLeaveRoom(connID string) ([]network.Outbound, error) {
	p, r, _, err := d.member(connID)
	if err != nil {
		return nil, err
	}
	return d.leave(r, connID, p), nil
}

func (d *Dispatcher) handleStartGame(connID string) ([]network.Outbound, error) {
	p, r, _, err := d.member(connID)
	if err != nil {
		return nil, err
	}
	outs, err := d.machine.StartGame(r, p.UserID)
	if err != nil {
		return nil, err
	}
	d.metrics.GameStarted()
	return outs, nil
}

// handleStroke checks the payload shape and relays the original bytes to the
// rest of the room. During a game only the drawer may draw.
func (d *Dispatcher) handleStroke(connID string, packet *network.Packet) ([]network.Outbound, error) {
	_, r, player, err := d.member(connID)
	if err != nil {
		return nil, err
	}
	if err := validateStroke(packet.MsgID, packet.Data); err != nil {
		return nil, err
	}
	if r.Status == room.StatusPlaying && !r.IsDrawer(player) {
		logger.Log.Debugf("Dropped stroke from non-drawer %s in room %s", player.UserID, r.ID)
		return nil, nil
	}

	to := r.ConnIDsExcept(connID)
	if len(to) == 0 {
		return nil, nil
	}
	return []network.Outbound{{To: to, MsgID: packet.MsgID, Payload: network.Raw(packet.Data)}}, nil
}

func validateStroke(msgID uint16, data []byte) error {
	switch msgID {
	case network.MsgTypeStrokeStart:
		var s network.StrokeStart
		if err := decode(data, &s); err != nil {
			return err
		}
		if s.X == nil || s.Y == nil {
			return fmt.Errorf("%w: strokeStart needs x and y", ErrInvalidRequest)
		}
		if s.Thickness < 0 {
			return fmt.Errorf("%w: negative thickness", ErrInvalidRequest)
		}
	case network.MsgTypeStrokeMove:
		var s network.StrokeMove
		if err := decode(data, &s); err != nil {
			return err
		}
		if s.X == nil || s.Y == nil {
			return fmt.Errorf("%w: strokeMove needs x and y", ErrInvalidRequest)
		}
	default:
		if len(data) > 0 && !json.Valid(data) {
			return fmt.Errorf("%w: malformed payload", ErrInvalidRequest)
		}
	}
	return nil
}

// handleChat scores correct guesses and relays everything else as chat.
func (d *Dispatcher) handleChat(connID string, data []byte) ([]network.Outbound, error) {
	p, r, player, err := d.member(connID)
	if err != nil {
		return nil, err
	}
	var req network.ChatRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidRequest)
	}
	if d.maxChatLength > 0 && utf8.RuneCountInString(req.Text) > d.maxChatLength {
		return nil, fmt.Errorf("%w: message longer than %d characters", ErrInvalidRequest, d.maxChatLength)
	}

	now := d.now()
	word := r.SecretWord
	res := scoring.Evaluate(r, player, req.Text, now)
	if res.Repeat {
		return nil, nil
	}
	if !res.Correct {
		return []network.Outbound{{
			To:      r.ConnIDs(),
			MsgID:   network.MsgTypeChatMessage,
			Payload: network.ChatMessage{UserID: p.UserID, DisplayName: p.DisplayName, Text: req.Text, Timestamp: now.UnixMilli()},
		}}, nil
	}

	d.metrics.CorrectGuess()
	logger.Log.Infof("User %s guessed the word in room %s for %d points", p.UserID, r.ID, res.Points)
	outs := []network.Outbound{{
		To:      r.ConnIDs(),
		MsgID:   network.MsgTypeCorrectGuess,
		Payload: network.CorrectGuess{UserID: p.UserID, DisplayName: p.DisplayName, PointsEarned: res.Points, Word: word},
	}}
	if scoring.AllGuessed(r) {
		outs = append(outs, d.machine.ResolveEarly(r)...)
	}
	return outs, nil
}

// snapshot is the roomJoined payload. The secret word stays out of it.
func (d *Dispatcher) snapshot(r *room.Room) network.RoomSnapshot {
	players := make([]network.UserProfile, 0, len(r.Players))
	for _, pl := range r.Players {
		players = append(players, d.profile(pl.ConnID, pl.UserID))
	}
	snap := network.RoomSnapshot{
		ID:              r.ID,
		Name:            r.Name,
		OwnerID:         r.OwnerID,
		Players:         players,
		MaxPlayers:      r.MaxPlayers,
		Visibility:      r.Visibility.String(),
		Status:          r.Status.String(),
		Round:           r.RoundIndex,
		TotalRounds:     r.TotalRounds,
		DrawerID:        r.DrawerUserID,
		SecondsPerRound: r.SecondsPerRound,
		Scoreboard:      r.ScoreboardCopy(),
	}
	if r.RoundActive() {
		snap.WordLength = utf8.RuneCountInString(r.SecretWord)
	}
	return snap
}
