package state

import (
	"time"

	"github.com/wfunc/drawserver/logger"
	"github.com/wfunc/drawserver/network"
	"github.com/wfunc/drawserver/room"
)

// Settings are the grace delays between announced transitions.
type Settings struct {
	StartDelay      time.Duration
	ResultsDelay    time.Duration
	DrawerLeftDelay time.Duration
	ResetDelay      time.Duration
}

// Machine drives the game and round lifecycle of every room. All methods must
// be called from the dispatcher goroutine.
type Machine struct {
	rooms    *room.Manager
	words    WordPicker
	sched    Scheduler
	post     func(TimerEvent)
	now      func() time.Time
	settings Settings
}

// NewMachine wires the machine. post must hand a fired timer back to the
// goroutine that owns the registries; it is called from timer goroutines.
func NewMachine(rooms *room.Manager, words WordPicker, sched Scheduler, settings Settings, post func(TimerEvent), now func() time.Time) *Machine {
	return &Machine{
		rooms:    rooms,
		words:    words,
		sched:    sched,
		post:     post,
		now:      now,
		settings: settings,
	}
}

func toRoom(r *room.Room, msgID uint16, payload interface{}) network.Outbound {
	return network.Outbound{To: r.ConnIDs(), MsgID: msgID, Payload: payload}
}

// StartGame moves a waiting room to playing and arms the kickoff timer.
func (m *Machine) StartGame(r *room.Room, byUserID string) ([]network.Outbound, error) {
	if r.OwnerID != byUserID {
		return nil, ErrNotOwner
	}
	if r.Status != room.StatusWaiting {
		return nil, ErrGameInProgress
	}
	if len(r.Players) < room.MinPlayers {
		return nil, ErrInsufficientPlayers
	}
	if err := m.changeStatus(r, room.StatusPlaying); err != nil {
		return nil, err
	}

	r.ResetScoreboard()
	r.ClearRound()
	r.RoundIndex = 0
	m.arm(r, PhaseKickoff, m.settings.StartDelay)

	logger.Log.Infof("Room %s game starting with %d players", r.ID, len(r.Players))
	return []network.Outbound{
		toRoom(r, network.MsgTypeGameStarting, network.GameStarting{StartsInSeconds: int(m.settings.StartDelay / time.Second)}),
	}, nil
}

// OnTimer handles a fired timer. It reports false for a stale timer, which is
// dropped without touching the room.
func (m *Machine) OnTimer(ev TimerEvent) ([]network.Outbound, bool) {
	r, ok := m.rooms.GetRoom(ev.RoomID)
	if !ok || r.Generation != ev.Generation {
		return nil, false
	}
	r.TimerID = 0

	switch ev.Phase {
	case PhaseKickoff, PhaseAdvance:
		return m.advance(r), true
	case PhaseRound:
		logger.Log.Debugf("Room %s round %d timed out", r.ID, r.RoundIndex)
		return m.resolve(r, m.settings.ResultsDelay), true
	case PhaseReset:
		return m.reset(r), true
	}
	return nil, false
}

// ResolveEarly ends the current round because every guesser got the word.
func (m *Machine) ResolveEarly(r *room.Room) []network.Outbound {
	return m.resolve(r, m.settings.ResultsDelay)
}

// DrawerLeft resolves the round after the drawer disconnected or left.
func (m *Machine) DrawerLeft(r *room.Room, drawerUserID string) []network.Outbound {
	if !r.RoundActive() {
		return nil
	}
	outs := []network.Outbound{toRoom(r, network.MsgTypeDrawerLeft, network.DrawerLeft{UserID: drawerUserID})}
	return append(outs, m.resolve(r, m.settings.DrawerLeftDelay)...)
}

// EndGame finishes a playing room immediately, for example when too few
// players remain.
func (m *Machine) EndGame(r *room.Room) []network.Outbound {
	return m.endGame(r)
}

// Disarm cancels the room's outstanding timer and invalidates any firing
// already in flight.
func (m *Machine) Disarm(r *room.Room) {
	if r.TimerID != 0 {
		m.sched.RemoveTimer(r.TimerID)
		r.TimerID = 0
	}
	r.Generation = m.rooms.NextGeneration()
}

func (m *Machine) arm(r *room.Room, phase Phase, delay time.Duration) {
	m.Disarm(r)
	ev := TimerEvent{RoomID: r.ID, Generation: r.Generation, Phase: phase}
	post := m.post
	r.TimerID = m.sched.AddTimer(delay, 0, func() { post(ev) })
}

func (m *Machine) advance(r *room.Room) []network.Outbound {
	if r.Status != room.StatusPlaying {
		return nil
	}
	if r.RoundIndex >= r.TotalRounds {
		return m.endGame(r)
	}
	r.RoundIndex++
	return m.beginRound(r)
}

// beginRound picks the drawer from the current member list, so churn between
// rounds is reflected.
func (m *Machine) beginRound(r *room.Room) []network.Outbound {
	if len(r.Players) < room.MinPlayers {
		return m.endGame(r)
	}

	drawer := r.Players[r.RoundIndex%len(r.Players)]
	r.ClearRound()
	r.DrawerConnID = drawer.ConnID
	r.DrawerUserID = drawer.UserID
	r.SecretWord = m.words.Pick()
	r.RoundStartedAt = m.now()
	m.arm(r, PhaseRound, time.Duration(r.SecondsPerRound)*time.Second)

	logger.Log.Infof("Room %s round %d/%d started, drawer %s", r.ID, r.RoundIndex, r.TotalRounds, drawer.UserID)
	return []network.Outbound{
		{
			To:      []string{drawer.ConnID},
			MsgID:   network.MsgTypeYourTurn,
			Payload: network.YourTurn{Word: r.SecretWord, DurationSeconds: r.SecondsPerRound},
		},
		toRoom(r, network.MsgTypeRoundStart, network.RoundStart{
			Round:           r.RoundIndex,
			TotalRounds:     r.TotalRounds,
			DrawerID:        drawer.UserID,
			DurationSeconds: r.SecondsPerRound,
			WordLength:      len([]rune(r.SecretWord)),
		}),
	}
}

func (m *Machine) resolve(r *room.Room, delay time.Duration) []network.Outbound {
	if !r.RoundActive() {
		return nil
	}
	out := toRoom(r, network.MsgTypeRoundEnd, network.RoundEnd{
		Scoreboard: r.ScoreboardCopy(),
		Word:       r.SecretWord,
	})
	r.ClearRound()
	m.arm(r, PhaseAdvance, delay)
	return []network.Outbound{out}
}

func (m *Machine) endGame(r *room.Room) []network.Outbound {
	if err := m.changeStatus(r, room.StatusEnded); err != nil {
		logger.Log.Warnf("Room %s cannot end game: %v", r.ID, err)
		return nil
	}
	winner := r.Winner()
	r.ClearRound()
	m.arm(r, PhaseReset, m.settings.ResetDelay)

	logger.Log.Infof("Room %s game ended, winner %q", r.ID, winner)
	return []network.Outbound{
		toRoom(r, network.MsgTypeGameEnd, network.GameEnd{Scoreboard: r.ScoreboardCopy(), WinnerID: winner}),
	}
}

func (m *Machine) reset(r *room.Room) []network.Outbound {
	if err := m.changeStatus(r, room.StatusWaiting); err != nil {
		return nil
	}
	r.RoundIndex = 0
	r.ClearRound()
	r.ResetScoreboard()
	return []network.Outbound{toRoom(r, network.MsgTypeGameReset, struct{}{})}
}
