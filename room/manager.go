package room

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultMaxIDLength   = 64
	DefaultMaxNameLength = 64
)

// Defaults are the per-game constants stamped onto every new room. Name and
// id lengths are counted in characters; zero selects the package default.
type Defaults struct {
	MaxPlayers      int
	TotalRounds     int
	SecondsPerRound int
	MaxIDLength     int
	MaxNameLength   int
}

type CreateParams struct {
	ID         string
	Name       string
	Owner      Player
	MaxPlayers int // 0 selects the default
	Visibility Visibility
	Password   string
}

// LeaveResult describes what a Leave did to the room.
type LeaveResult struct {
	Room         *Room
	Player       Player
	Deleted      bool
	WasDrawer    bool
	OwnerChanged bool
}

// Manager is the room registry. Like the presence registry it is owned by the
// dispatcher goroutine and holds no locks.
type Manager struct {
	rooms      map[string]*Room
	order      []string
	byConn     map[string]string // connID -> roomID
	gate       Gate
	defaults   Defaults
	version    uint64
	generation uint64
	now        func() time.Time
}

func NewRoomManager(gate Gate, defaults Defaults) *Manager {
	if defaults.MaxIDLength <= 0 {
		defaults.MaxIDLength = DefaultMaxIDLength
	}
	if defaults.MaxNameLength <= 0 {
		defaults.MaxNameLength = DefaultMaxNameLength
	}
	return &Manager{
		rooms:    make(map[string]*Room),
		byConn:   make(map[string]string),
		gate:     gate,
		defaults: defaults,
		now:      time.Now,
	}
}

// Version changes on every membership or status change; callers compare it
// before and after an operation to decide whether the room list is stale.
func (m *Manager) Version() uint64 {
	return m.version
}

// NextGeneration returns a value no room managed here has held before. Timer
// events carry it, so one armed for a deleted room never matches a later room
// with the same id.
func (m *Manager) NextGeneration() uint64 {
	m.generation++
	return m.generation
}

// Touch marks the room list as changed.
func (m *Manager) Touch() {
	m.version++
}

func (m *Manager) CreateRoom(p CreateParams) (*Room, error) {
	id := strings.TrimSpace(p.ID)
	name := strings.TrimSpace(p.Name)
	if id == "" || name == "" {
		return nil, fmt.Errorf("%w: id and name are required", ErrInvalidRoom)
	}
	if utf8.RuneCountInString(id) > m.defaults.MaxIDLength {
		return nil, fmt.Errorf("%w: id longer than %d characters", ErrInvalidRoom, m.defaults.MaxIDLength)
	}
	if utf8.RuneCountInString(name) > m.defaults.MaxNameLength {
		return nil, fmt.Errorf("%w: name longer than %d characters", ErrInvalidRoom, m.defaults.MaxNameLength)
	}

	maxPlayers := p.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = m.defaults.MaxPlayers
	}
	if maxPlayers < MinPlayers || maxPlayers > MaxPlayersLimit {
		return nil, fmt.Errorf("%w: max players must be between %d and %d", ErrInvalidRoom, MinPlayers, MaxPlayersLimit)
	}
	if p.Visibility == Private && p.Password == "" {
		return nil, fmt.Errorf("%w: private rooms need a password", ErrInvalidRoom)
	}
	if _, exists := m.rooms[id]; exists {
		return nil, ErrDuplicateRoomID
	}
	if _, busy := m.byConn[p.Owner.ConnID]; busy {
		return nil, ErrAlreadyInRoom
	}

	var sealed string
	if p.Visibility == Private {
		var err error
		if sealed, err = m.gate.Seal(p.Password); err != nil {
			return nil, fmt.Errorf("seal room password: %w", err)
		}
	}

	r := &Room{
		ID:              id,
		Name:            name,
		OwnerID:         p.Owner.UserID,
		Players:         []Player{p.Owner},
		MaxPlayers:      maxPlayers,
		Visibility:      p.Visibility,
		CreatedAt:       m.now(),
		Status:          StatusWaiting,
		TotalRounds:     m.defaults.TotalRounds,
		SecondsPerRound: m.defaults.SecondsPerRound,
		Scoreboard:      make(map[string]int),
		Guessed:         make(map[string]bool),
		Generation:      m.NextGeneration(),
		sealedPassword:  sealed,
	}
	m.rooms[id] = r
	m.order = append(m.order, id)
	m.byConn[p.Owner.ConnID] = id
	m.version++
	return r, nil
}

// JoinRoom appends player to the room. Failures leave the room untouched.
func (m *Manager) JoinRoom(id string, player Player, password string) (*Room, error) {
	if _, busy := m.byConn[player.ConnID]; busy {
		return nil, ErrAlreadyInRoom
	}
	r, exists := m.rooms[id]
	if !exists {
		return nil, ErrRoomNotFound
	}
	if r.IsFull() {
		return nil, ErrRoomFull
	}
	if r.Visibility == Private {
		ok, err := m.gate.Open(r.sealedPassword, password)
		if err != nil {
			return nil, fmt.Errorf("check room password: %w", err)
		}
		if !ok {
			return nil, ErrInvalidPassword
		}
	}

	r.Players = append(r.Players, player)
	m.byConn[player.ConnID] = id
	m.version++
	return r, nil
}

// LeaveRoom removes the connection from the room and deletes the room once
// it is empty. A departing drawer's connection is cleared from the round at
// once; the secret word stays so the state machine can reveal it.
func (m *Manager) LeaveRoom(id, connID string) (LeaveResult, error) {
	r, exists := m.rooms[id]
	if !exists {
		return LeaveResult{}, ErrRoomNotFound
	}
	player, ok := r.removePlayer(connID)
	if !ok {
		return LeaveResult{}, ErrNotInRoom
	}
	if m.byConn[connID] == id {
		delete(m.byConn, connID)
	}

	res := LeaveResult{Room: r, Player: player}
	if r.Status == StatusPlaying && r.DrawerConnID == connID {
		res.WasDrawer = true
		r.DrawerConnID = ""
		r.DrawerUserID = ""
	}
	if !r.HasUser(player.UserID) {
		delete(r.Scoreboard, player.UserID)
		delete(r.Guessed, player.UserID)
	}

	if len(r.Players) == 0 {
		m.removeRoom(id)
		res.Deleted = true
	} else if r.OwnerID == player.UserID && !r.HasUser(player.UserID) {
		r.OwnerID = r.Players[0].UserID
		res.OwnerChanged = true
	}

	m.version++
	return res, nil
}

func (m *Manager) removeRoom(id string) {
	delete(m.rooms, id)
	for i, rid := range m.order {
		if rid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Manager) GetRoom(id string) (*Room, bool) {
	r, exists := m.rooms[id]
	return r, exists
}

// RoomOf returns the room the connection currently belongs to.
func (m *Manager) RoomOf(connID string) (*Room, bool) {
	id, ok := m.byConn[connID]
	if !ok {
		return nil, false
	}
	return m.GetRoom(id)
}

// RoomsWith scans every room for the connection. Used by the disconnect path,
// which must not trust the index alone.
func (m *Manager) RoomsWith(connID string) []*Room {
	var out []*Room
	for _, id := range m.order {
		r := m.rooms[id]
		if _, ok := r.Player(connID); ok {
			out = append(out, r)
		}
	}
	return out
}

// Summaries lists every room in creation order.
func (m *Manager) Summaries() []Summary {
	out := make([]Summary, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.rooms[id].Summary())
	}
	return out
}

func (m *Manager) Len() int {
	return len(m.rooms)
}
