package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/drawserver/network"
	"github.com/wfunc/drawserver/room"
	"github.com/wfunc/drawserver/state"
)

type fakeTask struct {
	delay    time.Duration
	callback func()
}

type fakeScheduler struct {
	nextID int64
	tasks  map[int64]fakeTask
}

func (f *fakeScheduler) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	f.nextID++
	f.tasks[f.nextID] = fakeTask{delay: delay, callback: callback}
	return f.nextID
}

func (f *fakeScheduler) RemoveTimer(timerId int64) {
	delete(f.tasks, timerId)
}

type fixedWord string

func (w fixedWord) Pick() string { return string(w) }

type countingMetrics struct {
	nopMetrics
	stale, correct, games int
}

func (m *countingMetrics) StaleTimer()   { m.stale++ }
func (m *countingMetrics) CorrectGuess() { m.correct++ }
func (m *countingMetrics) GameStarted()  { m.games++ }

type harness struct {
	d       *Dispatcher
	sched   *fakeScheduler
	metrics *countingMetrics
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sched:   &fakeScheduler{tasks: make(map[int64]fakeTask)},
		metrics: &countingMetrics{},
		now:     time.Unix(1_700_000_000, 0),
	}
	rooms := room.NewRoomManager(room.NewArgon2idGate(1024, 1, 1, 16, 32), room.Defaults{MaxPlayers: 8, TotalRounds: 3, SecondsPerRound: 60})
	h.d = New(Options{
		Rooms:     rooms,
		Words:     fixedWord("apple"),
		Scheduler: h.sched,
		Settings: state.Settings{
			StartDelay:      3 * time.Second,
			ResultsDelay:    5 * time.Second,
			DrawerLeftDelay: 3 * time.Second,
			ResetDelay:      10 * time.Second,
		},
		Metrics:       h.metrics,
		MaxChatLength: 50,
		Now:           func() time.Time { return h.now },
	})
	return h
}

func packet(t *testing.T, msgID uint16, v interface{}) *network.Packet {
	t.Helper()
	var data []byte
	if v != nil {
		var err error
		data, err = json.Marshal(v)
		require.NoError(t, err)
	}
	return &network.Packet{MsgID: msgID, Data: data, Length: uint16(len(data))}
}

func (h *harness) send(t *testing.T, connID string, msgID uint16, v interface{}) []network.Outbound {
	t.Helper()
	return h.d.Handle(connID, packet(t, msgID, v))
}

func (h *harness) identify(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		outs := h.send(t, "c"+n, network.MsgTypeIdentify, network.IdentifyRequest{UserID: "u" + n, DisplayName: "Player " + n})
		require.NotEmpty(t, outs)
		require.NotEqual(t, uint16(network.MsgTypeErrorNotice), outs[0].MsgID)
	}
}

// setupRoom identifies everyone, lets the first create r1 and the rest join.
func (h *harness) setupRoom(t *testing.T, names ...string) *room.Room {
	t.Helper()
	h.identify(t, names...)
	outs := h.send(t, "c"+names[0], network.MsgTypeCreateRoom, network.CreateRoomRequest{ID: "r1", Name: "Room One"})
	require.Equal(t, uint16(network.MsgTypeRoomJoined), outs[0].MsgID)
	for _, n := range names[1:] {
		outs = h.send(t, "c"+n, network.MsgTypeJoinRoom, network.JoinRoomRequest{ID: "r1"})
		require.Equal(t, uint16(network.MsgTypeRoomJoined), outs[0].MsgID)
	}
	r, ok := h.d.rooms.GetRoom("r1")
	require.True(t, ok)
	return r
}

func (h *harness) pending(t *testing.T, r *room.Room) fakeTask {
	t.Helper()
	task, ok := h.sched.tasks[r.TimerID]
	require.True(t, ok, "room %s has no armed timer", r.ID)
	return task
}

// fire runs the room's armed timer through the inbox like a real firing.
func (h *harness) fire(t *testing.T, r *room.Room) []network.Outbound {
	t.Helper()
	id := r.TimerID
	task := h.pending(t, r)
	delete(h.sched.tasks, id)
	task.callback()
	env := <-h.d.inbox
	require.Equal(t, envelopeTimer, env.kind)
	return h.d.Fire(env.timer)
}

func ofType(outs []network.Outbound, msgID uint16) []network.Outbound {
	var found []network.Outbound
	for _, o := range outs {
		if o.MsgID == msgID {
			found = append(found, o)
		}
	}
	return found
}

func msgIDs(outs []network.Outbound) []uint16 {
	ids := make([]uint16, 0, len(outs))
	for _, o := range outs {
		ids = append(ids, o.MsgID)
	}
	return ids
}

func errorCodeOf(t *testing.T, outs []network.Outbound) string {
	t.Helper()
	require.Len(t, outs, 1)
	require.Equal(t, uint16(network.MsgTypeErrorNotice), outs[0].MsgID)
	return outs[0].Payload.(network.ErrorNotice).Code
}

func TestIdentify(t *testing.T) {
	h := newHarness(t)

	outs := h.send(t, "cA", network.MsgTypeIdentify, network.IdentifyRequest{UserID: "uA", DisplayName: "Alice"})
	assert.Equal(t, []uint16{network.MsgTypeUsersList, network.MsgTypeRoomListUpdated}, msgIDs(outs))
	assert.Equal(t, []string{"cA"}, outs[0].To)

	outs = h.send(t, "cB", network.MsgTypeIdentify, network.IdentifyRequest{UserID: "uB"})
	require.Len(t, outs, 3)
	users := outs[0].Payload.([]network.UserProfile)
	assert.Equal(t, []network.UserProfile{{UserID: "uA", DisplayName: "Alice"}, {UserID: "uB", DisplayName: "uB"}}, users)
	joined := ofType(outs, network.MsgTypeUserJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, []string{"cA"}, joined[0].To)

	// Refreshing the same identity does not re-announce.
	outs = h.send(t, "cB", network.MsgTypeIdentify, network.IdentifyRequest{UserID: "uB", DisplayName: "Bob"})
	assert.Empty(t, ofType(outs, network.MsgTypeUserJoined))
	p, _ := h.d.presences.Get("cB")
	assert.Equal(t, "Bob", p.DisplayName)
}

func TestIdentify_Invalid(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "invalid_request", errorCodeOf(t, h.send(t, "cA", network.MsgTypeIdentify, network.IdentifyRequest{UserID: "  "})))

	outs := h.d.Handle("cA", &network.Packet{MsgID: network.MsgTypeIdentify, Data: []byte("{not json")})
	assert.Equal(t, "invalid_request", errorCodeOf(t, outs))
	assert.Zero(t, h.d.presences.Len())
}

func TestIdentify_RejectsOversizedFields(t *testing.T) {
	h := newHarness(t)

	for _, req := range []network.IdentifyRequest{
		{UserID: strings.Repeat("u", DefaultMaxUserIDLength+1)},
		{UserID: "uA", DisplayName: strings.Repeat("n", 40000)},
		{UserID: "uA", AvatarRef: strings.Repeat("a", DefaultMaxAvatarRefLength+1)},
	} {
		assert.Equal(t, "invalid_request", errorCodeOf(t, h.send(t, "cA", network.MsgTypeIdentify, req)))
	}
	assert.Zero(t, h.d.presences.Len())

	// A long user id is still a valid display name when none is given.
	longID := strings.Repeat("u", DefaultMaxUserIDLength)
	outs := h.send(t, "cA", network.MsgTypeIdentify, network.IdentifyRequest{UserID: longID})
	require.Equal(t, uint16(network.MsgTypeUsersList), outs[0].MsgID)
	p, _ := h.d.presences.Get("cA")
	assert.Equal(t, longID, p.DisplayName)
}

func TestCreateRoom_RejectsOversizedNameWithoutBroadcast(t *testing.T) {
	h := newHarness(t)
	h.identify(t, "A", "L")

	outs := h.send(t, "cA", network.MsgTypeCreateRoom, network.CreateRoomRequest{ID: "r1", Name: strings.Repeat("n", 40000)})
	assert.Equal(t, "invalid_room", errorCodeOf(t, outs))

	outs = h.send(t, "cA", network.MsgTypeCreateRoom, network.CreateRoomRequest{ID: strings.Repeat("i", 40000), Name: "x"})
	assert.Equal(t, "invalid_room", errorCodeOf(t, outs))
	assert.Zero(t, h.d.rooms.Len())
}

func encodedSize(t *testing.T, payload interface{}) int {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return len(data)
}

func TestListsAreTrimmedToOneFrame(t *testing.T) {
	h := newHarness(t)
	h.identify(t, "L")

	const owners = 400
	avatar := strings.Repeat("a", DefaultMaxAvatarRefLength)
	var outs []network.Outbound
	for i := 0; i < owners; i++ {
		connID := fmt.Sprintf("c%03d", i)
		outs = h.send(t, connID, network.MsgTypeIdentify, network.IdentifyRequest{UserID: fmt.Sprintf("u%03d", i), AvatarRef: avatar})
		require.Equal(t, uint16(network.MsgTypeUsersList), outs[0].MsgID)
		outs = h.send(t, connID, network.MsgTypeCreateRoom, network.CreateRoomRequest{
			ID:   fmt.Sprintf("%060d", i),
			Name: strings.Repeat("n", room.DefaultMaxNameLength),
		})
		require.Equal(t, uint16(network.MsgTypeRoomJoined), outs[0].MsgID)
	}

	lists := ofType(outs, network.MsgTypeRoomListUpdated)
	require.Len(t, lists, 1)
	assert.Equal(t, []string{"cL"}, lists[0].To)
	rooms := lists[0].Payload.([]network.RoomSummary)
	assert.NotEmpty(t, rooms)
	assert.Less(t, len(rooms), owners)
	assert.LessOrEqual(t, encodedSize(t, rooms), network.MaxPayloadSize)
	assert.Equal(t, fmt.Sprintf("%060d", 0), rooms[0].ID)

	outs = h.send(t, "cZ", network.MsgTypeIdentify, network.IdentifyRequest{UserID: "uZ"})
	users := outs[0].Payload.([]network.UserProfile)
	assert.NotEmpty(t, users)
	assert.Less(t, len(users), owners+2)
	assert.LessOrEqual(t, encodedSize(t, users), network.MaxPayloadSize)
	assert.LessOrEqual(t, encodedSize(t, outs[1].Payload), network.MaxPayloadSize)
}

func TestIdentify_CannotSwitchUserInsideRoom(t *testing.T) {
	h := newHarness(t)
	h.setupRoom(t, "A")
	outs := h.send(t, "cA", network.MsgTypeIdentify, network.IdentifyRequest{UserID: "uZ"})
	assert.Equal(t, "invalid_request", errorCodeOf(t, outs))
}

func TestRequiresIdentify(t *testing.T) {
	h := newHarness(t)
	outs := h.send(t, "cA", network.MsgTypeCreateRoom, network.CreateRoomRequest{ID: "r1", Name: "x"})
	assert.Equal(t, "not_identified", errorCodeOf(t, outs))
	assert.Zero(t, h.d.rooms.Len())
}

func TestUnknownIntent(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "unknown_intent", errorCodeOf(t, h.send(t, "cA", 9999, nil)))
	assert.Empty(t, h.send(t, "cA", network.MsgTypeHeartbeat, nil))
}

func TestCreateAndJoin_Broadcasts(t *testing.T) {
	h := newHarness(t)
	h.identify(t, "A", "B", "L")

	outs := h.send(t, "cA", network.MsgTypeCreateRoom, network.CreateRoomRequest{ID: "r1", Name: "Room One", MaxPlayers: 4})
	assert.Equal(t, []uint16{network.MsgTypeRoomJoined, network.MsgTypeRoomListUpdated}, msgIDs(outs))
	snap := outs[0].Payload.(network.RoomSnapshot)
	assert.Equal(t, "uA", snap.OwnerID)
	assert.Equal(t, "waiting", snap.Status)
	assert.Equal(t, 4, snap.MaxPlayers)
	assert.Equal(t, []string{"cB", "cL"}, outs[1].To)

	outs = h.send(t, "cB", network.MsgTypeJoinRoom, network.JoinRoomRequest{ID: "r1"})
	assert.Equal(t, []uint16{network.MsgTypeRoomJoined, network.MsgTypePlayerJoined, network.MsgTypeRoomListUpdated}, msgIDs(outs))
	assert.Equal(t, []string{"cB"}, outs[0].To)
	assert.Len(t, outs[0].Payload.(network.RoomSnapshot).Players, 2)
	assert.Equal(t, []string{"cA"}, outs[1].To)
	assert.Equal(t, network.PlayerNotice{UserID: "uB", DisplayName: "Player B", OwnerID: "uA"}, outs[1].Payload)
	assert.Equal(t, []string{"cL"}, outs[2].To)
	list := outs[2].Payload.([]network.RoomSummary)
	assert.Equal(t, []network.RoomSummary{{ID: "r1", Name: "Room One", PlayerCount: 2, MaxPlayers: 4, Status: "waiting", Visibility: "public"}}, list)
}

func TestJoin_WrongPasswordLeavesRoomUntouched(t *testing.T) {
	h := newHarness(t)
	h.identify(t, "A", "B", "L")
	h.send(t, "cA", network.MsgTypeCreateRoom, network.CreateRoomRequest{ID: "r1", Name: "secret", Visibility: "private", Password: "hunter2"})

	outs := h.send(t, "cB", network.MsgTypeJoinRoom, network.JoinRoomRequest{ID: "r1", Password: "nope"})
	assert.Equal(t, "invalid_password", errorCodeOf(t, outs))
	r, _ := h.d.rooms.GetRoom("r1")
	assert.Len(t, r.Players, 1)

	outs = h.send(t, "cB", network.MsgTypeJoinRoom, network.JoinRoomRequest{ID: "r1", Password: "hunter2"})
	assert.Equal(t, uint16(network.MsgTypeRoomJoined), outs[0].MsgID)
}

func TestJoin_Capacity(t *testing.T) {
	h := newHarness(t)
	h.identify(t, "A", "B", "C")
	h.send(t, "cA", network.MsgTypeCreateRoom, network.CreateRoomRequest{ID: "r1", Name: "duo", MaxPlayers: 2})
	h.send(t, "cB", network.MsgTypeJoinRoom, network.JoinRoomRequest{ID: "r1"})

	outs := h.send(t, "cC", network.MsgTypeJoinRoom, network.JoinRoomRequest{ID: "r1"})
	assert.Equal(t, "room_full", errorCodeOf(t, outs))
	r, _ := h.d.rooms.GetRoom("r1")
	assert.LessOrEqual(t, len(r.Players), r.MaxPlayers)

	assert.Equal(t, "room_not_found", errorCodeOf(t, h.send(t, "cC", network.MsgTypeJoinRoom, network.JoinRoomRequest{ID: "r9"})))
}

func TestStartGame_Guards(t *testing.T) {
	h := newHarness(t)
	h.setupRoom(t, "A")
	assert.Equal(t, "insufficient_players", errorCodeOf(t, h.send(t, "cA", network.MsgTypeStartGame, nil)))

	h.identify(t, "B")
	h.send(t, "cB", network.MsgTypeJoinRoom, network.JoinRoomRequest{ID: "r1"})
	assert.Equal(t, "not_owner", errorCodeOf(t, h.send(t, "cB", network.MsgTypeStartGame, nil)))

	h.identify(t, "L")
	assert.Equal(t, "not_in_room", errorCodeOf(t, h.send(t, "cL", network.MsgTypeStartGame, nil)))
	assert.Zero(t, h.metrics.games)
}

func TestDrawerDisconnectRotatesAmongRemaining(t *testing.T) {
	h := newHarness(t)
	r := h.setupRoom(t, "A", "B", "C")

	outs := h.send(t, "cA", network.MsgTypeStartGame, nil)
	assert.Equal(t, []uint16{network.MsgTypeGameStarting}, msgIDs(outs))
	assert.Equal(t, 1, h.metrics.games)

	outs = h.fire(t, r)
	require.Equal(t, []string{"cB"}, outs[0].To)
	assert.Equal(t, 1, r.RoundIndex)
	assert.Equal(t, "uB", r.DrawerUserID)

	outs = h.d.Disconnect("cB")
	assert.Equal(t, []uint16{network.MsgTypePlayerLeft, network.MsgTypeDrawerLeft, network.MsgTypeRoundEnd}, msgIDs(outs))
	assert.Equal(t, []string{"cA", "cC"}, outs[0].To)
	assert.Equal(t, "apple", outs[2].Payload.(network.RoundEnd).Word)
	assert.Equal(t, 3*time.Second, h.pending(t, r).delay)

	// players[2 mod 2] of [A, C] is A.
	outs = h.fire(t, r)
	yourTurn := ofType(outs, network.MsgTypeYourTurn)
	require.Len(t, yourTurn, 1)
	assert.Equal(t, []string{"cA"}, yourTurn[0].To)
	assert.Equal(t, 2, r.RoundIndex)
	assert.Equal(t, "uA", r.DrawerUserID)
}

func TestCorrectGuessesResolveEarly(t *testing.T) {
	h := newHarness(t)
	r := h.setupRoom(t, "A", "B", "C")
	h.send(t, "cA", network.MsgTypeStartGame, nil)
	h.fire(t, r)
	require.Equal(t, "uB", r.DrawerUserID)

	h.now = h.now.Add(18*time.Second + 400*time.Millisecond)
	outs := h.send(t, "cA", network.MsgTypeChatOrGuess, network.ChatRequest{Text: "APPLE"})
	require.Equal(t, []uint16{network.MsgTypeCorrectGuess}, msgIDs(outs))
	assert.Equal(t, network.CorrectGuess{UserID: "uA", DisplayName: "Player A", PointsEarned: 210, Word: "apple"}, outs[0].Payload)
	assert.Equal(t, []string{"cA", "cB", "cC"}, outs[0].To)

	// A repeat of the word is swallowed.
	assert.Empty(t, h.send(t, "cA", network.MsgTypeChatOrGuess, network.ChatRequest{Text: "apple"}))
	assert.Equal(t, 210, r.Scoreboard["uA"])

	outs = h.send(t, "cC", network.MsgTypeChatOrGuess, network.ChatRequest{Text: "apple"})
	assert.Equal(t, []uint16{network.MsgTypeCorrectGuess, network.MsgTypeRoundEnd}, msgIDs(outs))
	assert.Equal(t, map[string]int{"uA": 210, "uC": 210}, outs[1].Payload.(network.RoundEnd).Scoreboard)
	assert.False(t, r.RoundActive())
	assert.Equal(t, 5*time.Second, h.pending(t, r).delay)
	assert.Equal(t, 2, h.metrics.correct)
}

func TestDrawerTextNeverScores(t *testing.T) {
	h := newHarness(t)
	r := h.setupRoom(t, "A", "B")
	h.send(t, "cA", network.MsgTypeStartGame, nil)
	h.fire(t, r)
	require.Equal(t, "uB", r.DrawerUserID)

	outs := h.send(t, "cB", network.MsgTypeChatOrGuess, network.ChatRequest{Text: "apple"})
	require.Equal(t, []uint16{network.MsgTypeChatMessage}, msgIDs(outs))
	msg := outs[0].Payload.(network.ChatMessage)
	assert.Equal(t, "uB", msg.UserID)
	assert.Equal(t, h.now.UnixMilli(), msg.Timestamp)
	assert.Empty(t, r.Scoreboard)
	assert.True(t, r.RoundActive())
}

func TestChat_WrongGuessRelayedAndLimits(t *testing.T) {
	h := newHarness(t)
	r := h.setupRoom(t, "A", "B")

	outs := h.send(t, "cA", network.MsgTypeChatOrGuess, network.ChatRequest{Text: " apple "})
	require.Equal(t, []uint16{network.MsgTypeChatMessage}, msgIDs(outs))
	assert.Equal(t, " apple ", outs[0].Payload.(network.ChatMessage).Text)
	assert.Equal(t, r.ConnIDs(), outs[0].To)

	long := make([]byte, 51)
	for i := range long {
		long[i] = 'x'
	}
	assert.Equal(t, "invalid_request", errorCodeOf(t, h.send(t, "cA", network.MsgTypeChatOrGuess, network.ChatRequest{Text: string(long)})))
	assert.Equal(t, "invalid_request", errorCodeOf(t, h.send(t, "cA", network.MsgTypeChatOrGuess, network.ChatRequest{Text: "   "})))
}

func TestNonDrawerLeavingCanResolveRound(t *testing.T) {
	h := newHarness(t)
	r := h.setupRoom(t, "A", "B", "C")
	h.send(t, "cA", network.MsgTypeStartGame, nil)
	h.fire(t, r)

	h.send(t, "cA", network.MsgTypeChatOrGuess, network.ChatRequest{Text: "apple"})
	outs := h.d.Disconnect("cC")
	assert.Equal(t, []uint16{network.MsgTypePlayerLeft, network.MsgTypeRoundEnd}, msgIDs(outs))
}

func TestPlayingRoomBelowTwoPlayersEndsGame(t *testing.T) {
	h := newHarness(t)
	r := h.setupRoom(t, "A", "B")
	h.send(t, "cA", network.MsgTypeStartGame, nil)
	h.fire(t, r)

	outs := h.send(t, "cA", network.MsgTypeLeaveRoom, nil)
	assert.Equal(t, []uint16{network.MsgTypePlayerLeft, network.MsgTypeGameEnd, network.MsgTypeRoomListUpdated}, msgIDs(outs))
	assert.Equal(t, network.PlayerNotice{UserID: "uA", DisplayName: "Player A", OwnerID: "uB"}, outs[0].Payload)
	assert.Equal(t, []string{"cA"}, outs[2].To)
	assert.Equal(t, room.StatusEnded, r.Status)

	outs = h.fire(t, r)
	assert.Equal(t, []uint16{network.MsgTypeGameReset, network.MsgTypeRoomListUpdated}, msgIDs(outs))
	assert.Equal(t, room.StatusWaiting, r.Status)
	assert.Zero(t, r.RoundIndex)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	r := h.setupRoom(t, "A", "B")
	version := h.d.rooms.Version()

	assert.Empty(t, h.d.Disconnect("ghost"))
	assert.Equal(t, version, h.d.rooms.Version())

	outs := h.d.Disconnect("cB")
	assert.Equal(t, []uint16{network.MsgTypePlayerLeft}, msgIDs(outs))
	assert.Empty(t, h.d.Disconnect("cB"))
	assert.Len(t, r.Players, 1)
}

func TestLastPlayerLeavingDeletesRoomAndTimer(t *testing.T) {
	h := newHarness(t)
	r := h.setupRoom(t, "A", "B")
	h.identify(t, "L")
	h.send(t, "cA", network.MsgTypeStartGame, nil)
	h.fire(t, r)

	h.d.Disconnect("cA")
	outs := h.d.Disconnect("cB")
	assert.Equal(t, []uint16{network.MsgTypeRoomListUpdated}, msgIDs(outs))
	assert.Empty(t, outs[0].Payload.([]network.RoomSummary))

	_, exists := h.d.rooms.GetRoom("r1")
	assert.False(t, exists)
	assert.Empty(t, h.sched.tasks)
}

func TestStaleTimerIsDroppedAndCounted(t *testing.T) {
	h := newHarness(t)
	r := h.setupRoom(t, "A", "B")
	h.send(t, "cA", network.MsgTypeStartGame, nil)
	h.fire(t, r)

	// The round timer fires while the guess that ends the round is queued.
	h.pending(t, r).callback()
	stale := <-h.d.inbox
	h.send(t, "cA", network.MsgTypeChatOrGuess, network.ChatRequest{Text: "apple"})
	require.False(t, r.RoundActive())

	assert.Empty(t, h.d.Fire(stale.timer))
	assert.Equal(t, 1, h.metrics.stale)
	assert.Equal(t, 1, r.RoundIndex)
}

func TestTimerFromDeletedRoomIgnoredAfterIDReuse(t *testing.T) {
	h := newHarness(t)
	old := h.setupRoom(t, "A", "B")
	h.send(t, "cA", network.MsgTypeStartGame, nil)

	// The kickoff fires and is queued, then both players leave.
	h.pending(t, old).callback()
	late := <-h.d.inbox
	h.d.Disconnect("cA")
	h.d.Disconnect("cB")

	h.identify(t, "C", "D")
	h.send(t, "cC", network.MsgTypeCreateRoom, network.CreateRoomRequest{ID: "r1", Name: "Again"})
	h.send(t, "cD", network.MsgTypeJoinRoom, network.JoinRoomRequest{ID: "r1"})
	outs := h.send(t, "cC", network.MsgTypeStartGame, nil)
	require.Equal(t, []uint16{network.MsgTypeGameStarting}, msgIDs(outs))
	reused, ok := h.d.rooms.GetRoom("r1")
	require.True(t, ok)

	assert.Empty(t, h.d.Fire(late.timer))
	assert.Equal(t, 1, h.metrics.stale)
	assert.Zero(t, reused.RoundIndex)
	assert.False(t, reused.RoundActive())

	// The new room's own kickoff still starts round one.
	outs = h.fire(t, reused)
	assert.Equal(t, []uint16{network.MsgTypeYourTurn, network.MsgTypeRoundStart}, msgIDs(outs))
}

func TestRoundRobinDrawers(t *testing.T) {
	h := newHarness(t)
	r := h.setupRoom(t, "A", "B", "C")
	h.send(t, "cA", network.MsgTypeStartGame, nil)

	var drawers []string
	for round := 1; round <= 3; round++ {
		outs := h.fire(t, r)
		require.Equal(t, round, r.RoundIndex)
		drawers = append(drawers, ofType(outs, network.MsgTypeRoundStart)[0].Payload.(network.RoundStart).DrawerID)
		h.fire(t, r)
	}
	assert.Equal(t, []string{"uB", "uC", "uA"}, drawers)

	outs := h.fire(t, r)
	assert.Equal(t, []uint16{network.MsgTypeGameEnd}, msgIDs(outs))
	assert.Equal(t, 3, r.RoundIndex)
}

func TestStrokeRelay(t *testing.T) {
	h := newHarness(t)
	r := h.setupRoom(t, "A", "B", "C")
	start := []byte(`{"x":1.5,"y":2,"color":"#000","thickness":3}`)

	// Anyone may doodle while waiting.
	outs := h.d.Handle("cA", &network.Packet{MsgID: network.MsgTypeStrokeStart, Data: start})
	require.Len(t, outs, 1)
	assert.Equal(t, []string{"cB", "cC"}, outs[0].To)
	assert.Equal(t, network.Raw(start), outs[0].Payload)

	outs = h.d.Handle("cA", &network.Packet{MsgID: network.MsgTypeStrokeMove, Data: []byte(`{"x":1}`)})
	assert.Equal(t, "invalid_request", errorCodeOf(t, outs))

	h.send(t, "cA", network.MsgTypeStartGame, nil)
	h.fire(t, r)
	require.Equal(t, "uB", r.DrawerUserID)

	assert.Empty(t, h.d.Handle("cA", &network.Packet{MsgID: network.MsgTypeStrokeStart, Data: start}))

	outs = h.d.Handle("cB", &network.Packet{MsgID: network.MsgTypeClearCanvas})
	require.Len(t, outs, 1)
	assert.Equal(t, uint16(network.MsgTypeClearCanvas), outs[0].MsgID)
	assert.Equal(t, []string{"cA", "cC"}, outs[0].To)
}

type recordingSink struct {
	mu   sync.Mutex
	outs []network.Outbound
}

func (s *recordingSink) Deliver(outs []network.Outbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outs = append(s.outs, outs...)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outs)
}

func TestRun_DeliversThroughSink(t *testing.T) {
	sink := &recordingSink{}
	rooms := room.NewRoomManager(room.NewArgon2idGate(1024, 1, 1, 16, 32), room.Defaults{MaxPlayers: 8, TotalRounds: 3, SecondsPerRound: 60})
	d := New(Options{Rooms: rooms, Words: fixedWord("apple"), Scheduler: &fakeScheduler{tasks: make(map[int64]fakeTask)}, Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Submit("cA", packet(t, network.MsgTypeIdentify, network.IdentifyRequest{UserID: "uA"}))
	d.SubmitDisconnect("cA")
	assert.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// Submitting after shutdown must not block.
	d.SubmitDisconnect("cB")
}
