package protocol

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
)

// CommandType names an inbound client command.
type CommandType string

const (
	CreateRoom        CommandType = "CREATE_ROOM"
	JoinRoom          CommandType = "JOIN_ROOM"
	LeaveRoom         CommandType = "LEAVE_ROOM"
	ListRooms         CommandType = "LIST_ROOMS"
	Ready             CommandType = "READY"
	Declare           CommandType = "DECLARE"
	DecidePass        CommandType = "DECIDE_PASS"
	DecideInspection  CommandType = "DECIDE_INSPECTION"
	Heartbeat         CommandType = "HEARTBEAT_PING"
	SessionHealthPing CommandType = "SESSION_HEALTH_PING"
	WSHealthPong      CommandType = "WS_HEALTH_PONG"
)

var knownCommands = map[CommandType]bool{
	CreateRoom: true, JoinRoom: true, LeaveRoom: true, ListRooms: true, Ready: true,
	Declare: true, DecidePass: true, DecideInspection: true,
	Heartbeat: true, SessionHealthPing: true, WSHealthPong: true,
}

// Command is one inbound client message.
type Command struct {
	Type      CommandType `json:"type"`
	RoomID    string      `json:"room_id,omitempty"`
	Name      string      `json:"name,omitempty"`
	Amount    int64       `json:"amount,omitempty"`
	Threshold int64       `json:"threshold,omitempty"`
}

// DecodeCommand parses a client frame.
//
// Postcondition: Returns a command with a known Type, or an error wrapping
// gameerr.ErrArgument.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, gameerr.Argumentf("malformed command: %v", err)
	}
	cmd.Type = CommandType(strings.ToUpper(strings.TrimSpace(string(cmd.Type))))
	if !knownCommands[cmd.Type] {
		return Command{}, gameerr.Argumentf("unknown command type %q", cmd.Type)
	}
	return cmd, nil
}

// Room parses the command's room id.
//
// Postcondition: Returns the id or an error wrapping gameerr.ErrArgument.
func (c Command) Room() (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.RoomID), 10, 64)
	if err != nil {
		return 0, gameerr.Argumentf("room id %q is not a valid id", c.RoomID)
	}
	return id, nil
}

// FormatID renders an identifier the way clients receive it.
func FormatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
