package network

// Outbound is one event addressed to an explicit set of connections.
type Outbound struct {
	To      []string
	MsgID   uint16
	Payload interface{}
}

// Raw is a payload that is already encoded and must be relayed byte for byte.
type Raw []byte

// --- inbound payloads ---

type IdentifyRequest struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
}

type CreateRoomRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers"`
	Visibility string `json:"visibility"`
	Password   string `json:"password"`
}

type JoinRoomRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

type StrokeStart struct {
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	Color     string   `json:"color"`
	Thickness float64  `json:"thickness"`
}

type StrokeMove struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type ChatRequest struct {
	Text string `json:"text"`
}

// --- outbound payloads ---

type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	Status      string `json:"status"`
	Visibility  string `json:"visibility"`
}

type UserProfile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// RoomSnapshot is the full view sent to a player entering a room. It never
// carries the secret word or the password gate.
type RoomSnapshot struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	OwnerID         string         `json:"ownerId"`
	Players         []UserProfile  `json:"players"`
	MaxPlayers      int            `json:"maxPlayers"`
	Visibility      string         `json:"visibility"`
	Status          string         `json:"status"`
	Round           int            `json:"round"`
	TotalRounds     int            `json:"totalRounds"`
	DrawerID        string         `json:"drawerId,omitempty"`
	SecondsPerRound int            `json:"secondsPerRound"`
	WordLength      int            `json:"wordLength,omitempty"`
	Scoreboard      map[string]int `json:"scoreboard"`
}

type PlayerNotice struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
	OwnerID     string `json:"ownerId,omitempty"`
}

type GameStarting struct {
	StartsInSeconds int `json:"startsInSeconds"`
}

type RoundStart struct {
	Round           int    `json:"round"`
	TotalRounds     int    `json:"totalRounds"`
	DrawerID        string `json:"drawerId"`
	DurationSeconds int    `json:"durationSeconds"`
	WordLength      int    `json:"wordLength"`
}

type YourTurn struct {
	Word            string `json:"word"`
	DurationSeconds int    `json:"durationSeconds"`
}

type CorrectGuess struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	PointsEarned int    `json:"pointsEarned"`
	Word         string `json:"word"`
}

type RoundEnd struct {
	Scoreboard map[string]int `json:"scoreboard"`
	Word       string         `json:"word"`
}

type GameEnd struct {
	Scoreboard map[string]int `json:"scoreboard"`
	WinnerID   string         `json:"winnerId,omitempty"`
}

type DrawerLeft struct {
	UserID string `json:"userId"`
}

type ChatMessage struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
	Timestamp   int64  `json:"timestamp"`
}

type ErrorNotice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
