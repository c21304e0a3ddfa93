package network

// Inbound intents.
const (
	MsgTypeHeartbeat   = 1
	MsgTypeIdentify    = 100
	MsgTypeCreateRoom  = 101
	MsgTypeJoinRoom    = 102
	MsgTypeLeaveRoom   = 103
	MsgTypeStartGame   = 110
	MsgTypeStrokeStart = 120
	MsgTypeStrokeMove  = 121
	MsgTypeStrokeEnd   = 122
	MsgTypeClearCanvas = 123
	MsgTypeChatOrGuess = 130
)

// Outbound events. Stroke relays reuse the inbound ids.
const (
	MsgTypeRoomListUpdated = 300
	MsgTypeRoomJoined      = 301
	MsgTypePlayerJoined    = 302
	MsgTypePlayerLeft      = 303
	MsgTypeUserJoined      = 304
	MsgTypeUsersList       = 305
	MsgTypeGameStarting    = 310
	MsgTypeRoundStart      = 311
	MsgTypeYourTurn        = 312
	MsgTypeCorrectGuess    = 313
	MsgTypeRoundEnd        = 314
	MsgTypeGameEnd         = 315
	MsgTypeGameReset       = 316
	MsgTypeDrawerLeft      = 317
	MsgTypeChatMessage     = 320
	MsgTypeErrorNotice     = 399
)
