// Package dispatch serializes every inbound intent, disconnect and timer
// firing through one goroutine that owns the presence and room registries.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wfunc/drawserver/broadcast"
	"github.com/wfunc/drawserver/logger"
	"github.com/wfunc/drawserver/network"
	"github.com/wfunc/drawserver/presence"
	"github.com/wfunc/drawserver/room"
	"github.com/wfunc/drawserver/state"
)

const (
	defaultInboxSize = 1024

	DefaultMaxUserIDLength      = 64
	DefaultMaxDisplayNameLength = 32
	DefaultMaxAvatarRefLength   = 512
)

// Options configures a Dispatcher. Identity field limits are in characters;
// zero selects the package default.
type Options struct {
	Rooms                *room.Manager
	Words                state.WordPicker
	Scheduler            state.Scheduler
	Settings             state.Settings
	Sink                 broadcast.Broadcaster
	Metrics              Metrics
	MaxChatLength        int
	MaxUserIDLength      int
	MaxDisplayNameLength int
	MaxAvatarRefLength   int
	InboxSize            int
	Now                  func() time.Time
}

type envelopeKind int

const (
	envelopePacket envelopeKind = iota
	envelopeDisconnect
	envelopeTimer
)

type envelope struct {
	kind   envelopeKind
	connID string
	packet *network.Packet
	timer  state.TimerEvent
}

type Dispatcher struct {
	presences     *presence.Registry
	rooms         *room.Manager
	machine       *state.Machine
	sink          broadcast.Broadcaster
	metrics       Metrics
	maxChatLength int
	maxUserID     int
	maxName       int
	maxAvatar     int
	now           func() time.Time

	inbox   chan envelope
	stopped chan struct{}
}

func New(opts Options) *Dispatcher {
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	if opts.MaxUserIDLength <= 0 {
		opts.MaxUserIDLength = DefaultMaxUserIDLength
	}
	if opts.MaxDisplayNameLength <= 0 {
		opts.MaxDisplayNameLength = DefaultMaxDisplayNameLength
	}
	if opts.MaxAvatarRefLength <= 0 {
		opts.MaxAvatarRefLength = DefaultMaxAvatarRefLength
	}

	d := &Dispatcher{
		presences:     presence.NewRegistry(),
		rooms:         opts.Rooms,
		sink:          opts.Sink,
		metrics:       opts.Metrics,
		maxChatLength: opts.MaxChatLength,
		maxUserID:     opts.MaxUserIDLength,
		maxName:       opts.MaxDisplayNameLength,
		maxAvatar:     opts.MaxAvatarRefLength,
		now:           opts.Now,
		inbox:         make(chan envelope, opts.InboxSize),
		stopped:       make(chan struct{}),
	}
	d.machine = state.NewMachine(opts.Rooms, opts.Words, opts.Scheduler, opts.Settings, d.postTimer, opts.Now)
	return d
}

// Run processes envelopes until ctx is cancelled. It must be started exactly once.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.stopped)
	logger.Log.Info("Dispatcher started")
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Dispatcher stopped")
			return ctx.Err()
		case env := <-d.inbox:
			d.process(env)
		}
	}
}

// Submit queues a packet from connID. It blocks while the inbox is full and
// returns immediately once the dispatcher has stopped.
func (d *Dispatcher) Submit(connID string, packet *network.Packet) {
	d.enqueue(envelope{kind: envelopePacket, connID: connID, packet: packet})
}

// SubmitDisconnect queues the loss of connID.
func (d *Dispatcher) SubmitDisconnect(connID string) {
	d.enqueue(envelope{kind: envelopeDisconnect, connID: connID})
}

func (d *Dispatcher) postTimer(ev state.TimerEvent) {
	d.enqueue(envelope{kind: envelopeTimer, timer: ev})
}

func (d *Dispatcher) enqueue(env envelope) {
	select {
	case d.inbox <- env:
	case <-d.stopped:
	}
}

func (d *Dispatcher) process(env envelope) {
	start := time.Now()

	var outs []network.Outbound
	switch env.kind {
	case envelopePacket:
		d.metrics.MessageReceived(env.packet.MsgID)
		outs = d.Handle(env.connID, env.packet)
	case envelopeDisconnect:
		outs = d.Disconnect(env.connID)
	case envelopeTimer:
		outs = d.Fire(env.timer)
	}

	if len(outs) > 0 && d.sink != nil {
		d.sink.Deliver(outs)
	}
	d.metrics.SetOnlinePlayers(d.presences.Len())
	d.metrics.SetActiveRooms(d.rooms.Len())
	d.metrics.ObserveProcessing(time.Since(start))
}

// Handle runs one inbound intent and returns the events it produced. Errors
// are turned into an errorNotice for the sender only.
func (d *Dispatcher) Handle(connID string, packet *network.Packet) []network.Outbound {
	before := d.rooms.Version()

	outs, err := d.route(connID, packet)
	if err != nil {
		logger.Log.Debugf("Connection %s msg %d rejected: %v", connID, packet.MsgID, err)
		return []network.Outbound{errorNotice(connID, err)}
	}
	return d.withRoomList(before, outs)
}

// Fire runs a timer firing. Stale timers produce nothing.
func (d *Dispatcher) Fire(ev state.TimerEvent) []network.Outbound {
	before := d.rooms.Version()

	outs, ok := d.machine.OnTimer(ev)
	if !ok {
		d.metrics.StaleTimer()
		logger.Log.Debugf("Dropped stale %s timer for room %s (generation %d)", ev.Phase, ev.RoomID, ev.Generation)
		return nil
	}
	return d.withRoomList(before, outs)
}

func (d *Dispatcher) route(connID string, packet *network.Packet) ([]network.Outbound, error) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		return nil, nil
	case network.MsgTypeIdentify:
		return d.handleIdentify(connID, packet.Data)
	case network.MsgTypeCreateRoom:
		return d.handleCreateRoom(connID, packet.Data)
	case network.MsgTypeJoinRoom:
		return d.handleJoinRoom(connID, packet.Data)
	case network.MsgTypeLeaveRoom:
		return d.handleLeaveRoom(connID)
	case network.MsgTypeStartGame:
		return d.handleStartGame(connID)
	case network.MsgTypeStrokeStart, network.MsgTypeStrokeMove, network.MsgTypeStrokeEnd, network.MsgTypeClearCanvas:
		return d.handleStroke(connID, packet)
	case network.MsgTypeChatOrGuess:
		return d.handleChat(connID, packet.Data)
	}
	return nil, ErrUnknownIntent
}

// withRoomList appends a room list for every lobby connection when the
// operation changed room membership or status.
func (d *Dispatcher) withRoomList(before uint64, outs []network.Outbound) []network.Outbound {
	if d.rooms.Version() == before {
		return outs
	}
	var lobby []string
	for _, p := range d.presences.All() {
		if _, inRoom := d.rooms.RoomOf(p.ConnID); !inRoom {
			lobby = append(lobby, p.ConnID)
		}
	}
	if len(lobby) == 0 {
		return outs
	}
	return append(outs, network.Outbound{To: lobby, MsgID: network.MsgTypeRoomListUpdated, Payload: d.roomList()})
}

// roomList is trimmed to what one frame can carry.
func (d *Dispatcher) roomList() []network.RoomSummary {
	sums := d.rooms.Summaries()
	list := make([]network.RoomSummary, 0, len(sums))
	for _, s := range sums {
		list = append(list, network.RoomSummary{
			ID:          s.ID,
			Name:        s.Name,
			PlayerCount: s.PlayerCount,
			MaxPlayers:  s.MaxPlayers,
			Status:      s.Status.String(),
			Visibility:  s.Visibility.String(),
		})
	}
	return fitFrame(list)
}

// fitFrame drops entries from the tail of list until its JSON encoding fits
// in a single frame.
func fitFrame[T any](list []T) []T {
	for len(list) > 0 {
		data, err := json.Marshal(list)
		if err != nil || len(data) <= network.MaxPayloadSize {
			return list
		}
		keep := len(list) * network.MaxPayloadSize / len(data)
		if keep >= len(list) {
			keep = len(list) - 1
		}
		logger.Log.Warnf("List of %d entries is %d bytes, sending the first %d", len(list), len(data), keep)
		list = list[:keep]
	}
	return list
}

func errorNotice(connID string, err error) network.Outbound {
	return network.Outbound{
		To:      []string{connID},
		MsgID:   network.MsgTypeErrorNotice,
		Payload: network.ErrorNotice{Code: errorCode(err), Message: err.Error()},
	}
}
