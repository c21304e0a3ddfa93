package dispatch

import (
	"github.com/wfunc/drawserver/logger"
	"github.com/wfunc/drawserver/network"
	"github.com/wfunc/drawserver/presence"
	"github.com/wfunc/drawserver/room"
	"github.com/wfunc/drawserver/scoring"
)

// Disconnect drops the connection's presence and removes it from every room
// it belongs to. An unknown connection is a no-op.
func (d *Dispatcher) Disconnect(connID string) []network.Outbound {
	before := d.rooms.Version()

	p, known := d.presences.Remove(connID)
	var outs []network.Outbound
	for _, r := range d.rooms.RoomsWith(connID) {
		outs = append(outs, d.leave(r, connID, p)...)
	}
	if known {
		logger.Log.Infof("Connection %s (%s) disconnected", connID, p.UserID)
	}
	return d.withRoomList(before, outs)
}

// leave removes connID from r and settles whatever game was running.
func (d *Dispatcher) leave(r *room.Room, connID string, p presence.Presence) []network.Outbound {
	res, err := d.rooms.LeaveRoom(r.ID, connID)
	if err != nil {
		return nil
	}
	if res.Deleted {
		d.machine.Disarm(r)
		logger.Log.Infof("Room %s deleted, last player left", r.ID)
		return nil
	}

	notice := network.PlayerNotice{UserID: res.Player.UserID, DisplayName: p.DisplayName, AvatarRef: p.AvatarRef, OwnerID: r.OwnerID}
	if notice.DisplayName == "" {
		notice.DisplayName = res.Player.UserID
	}
	outs := []network.Outbound{{To: r.ConnIDs(), MsgID: network.MsgTypePlayerLeft, Payload: notice}}
	if res.OwnerChanged {
		logger.Log.Infof("Room %s ownership passed to %s", r.ID, r.OwnerID)
	}

	switch {
	case r.Status == room.StatusPlaying && len(r.Players) < room.MinPlayers:
		outs = append(outs, d.machine.EndGame(r)...)
	case res.WasDrawer:
		outs = append(outs, d.machine.DrawerLeft(r, res.Player.UserID)...)
	case scoring.AllGuessed(r):
		outs = append(outs, d.machine.ResolveEarly(r)...)
	}
	return outs
}
