package protocol

import "time"

// ExceptionPayload accompanies EXCEPTION_MESSAGE and WS_RECONNECT.
type ExceptionPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RejectedPayload accompanies ACTION_REJECTED.
type RejectedPayload struct {
	Command CommandType `json:"command"`
	Kind    string      `json:"kind"`
	Reason  string      `json:"reason"`
}

// AcceptedPayload accompanies ACTION_ACCEPTED.
type AcceptedPayload struct {
	Command CommandType `json:"command"`
}

// RoomInfo describes a room in ROOM_LIST, ROOM_JOINED and ROOM_STATE.
type RoomInfo struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Players []int64 `json:"players"`
	Ready   []int64 `json:"ready"`
	HasGame bool    `json:"has_game"`
	Seeded  bool    `json:"seeded"`
}

// RoomListPayload accompanies ROOM_LIST.
type RoomListPayload struct {
	Rooms []RoomInfo `json:"rooms"`
}

// RoomLeftPayload accompanies ROOM_LEFT.
type RoomLeftPayload struct {
	RoomID   string `json:"room_id"`
	PlayerID int64  `json:"player_id"`
}

// GameStartedPayload accompanies GAME_STARTED.
type GameStartedPayload struct {
	RoomID  string  `json:"room_id"`
	GameID  string  `json:"game_id"`
	Players []int64 `json:"players"`
	Rounds  int     `json:"rounds"`
}

// RoundStartedPayload accompanies ROUND_STARTED; it is personalised per recipient.
type RoundStartedPayload struct {
	RoomID   string    `json:"room_id"`
	GameID   string    `json:"game_id"`
	RoundID  string    `json:"round_id"`
	Number   int       `json:"number"`
	Role     string    `json:"role"`
	Deadline time.Time `json:"deadline"`
	WindowMs int64     `json:"window_ms"`
}

// RoundSettledPayload accompanies ROUND_SETTLED.
type RoundSettledPayload struct {
	RoomID         string           `json:"room_id"`
	RoundID        string           `json:"round_id"`
	Number         int              `json:"number"`
	SmugglerID     int64            `json:"smuggler_id"`
	InspectorID    int64            `json:"inspector_id"`
	Amount         int64            `json:"amount"`
	Decision       string           `json:"decision"`
	Threshold      int64            `json:"threshold"`
	SmugglerDelta  int64            `json:"smuggler_delta"`
	InspectorDelta int64            `json:"inspector_delta"`
	Outcome        string           `json:"outcome"`
	Forced         bool             `json:"forced"`
	Balances       map[string]int64 `json:"balances"`
}

// GameEndedPayload accompanies GAME_ENDED.
type GameEndedPayload struct {
	RoomID   string           `json:"room_id"`
	GameID   string           `json:"game_id"`
	Reason   string           `json:"reason"`
	Balances map[string]int64 `json:"balances"`
}
