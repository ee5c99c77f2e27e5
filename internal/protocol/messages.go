// Package protocol defines the wire frames exchanged with game clients.
// Every frame carries an integer command id, the session token issued at
// login, and a command-specific JSON payload.
package protocol

import "encoding/json"

// Command identifies a frame's meaning. Ids are stable across releases;
// clients hardcode them.
type Command int

const (
	// CmdPing is the keepalive frame. It carries no payload and needs
	// no token; any receipt refreshes the connection's liveness.
	CmdPing Command = 0

	// Client -> server commands.
	CmdLogin         Command = 1
	CmdCreateGuest   Command = 2
	CmdLogout        Command = 3
	CmdQuickPlay     Command = 100
	CmdCreateTable   Command = 101
	CmdJoinTableByID Command = 102
	CmdTableList     Command = 103
	CmdRegisterLeave Command = 104
	CmdLeaveGame     Command = 105
	CmdPlayCard      Command = 110
	CmdChatMessage   Command = 120
	CmdChatEmoticon  Command = 121
	CmdCheatGold     Command = 130

	// Server -> client events.
	CmdGeneralInfo      Command = 200
	CmdUserInfo         Command = 201
	CmdGameInfo         Command = 202
	CmdNewUserJoinMatch Command = 203
	CmdUserLeaveMatch   Command = 204
	CmdPrepareStart     Command = 205
	CmdStartGame        Command = 206
	CmdDealCard         Command = 207
	CmdDrawCard         Command = 208
	CmdNewTurn          Command = 209
	CmdEndTrick         Command = 210
	CmdEndRound         Command = 211
	CmdEndGame          Command = 212
	CmdNapoli           Command = 213
	CmdUpdateMoney      Command = 214
	CmdJoinTableResult  Command = 215
	CmdError            Command = 500
)

// Frame is the envelope for every message in both directions.
type Frame struct {
	Cmd   Command         `json:"cmd"`
	Token string          `json:"token,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a frame for the given command.
func NewFrame(cmd Command, data interface{}) (*Frame, error) {
	if data == nil {
		return &Frame{Cmd: cmd}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{Cmd: cmd, Data: raw}, nil
}

// MustFrame is NewFrame for payload types the server controls, where a
// marshal failure is a programming error.
func MustFrame(cmd Command, data interface{}) *Frame {
	f, err := NewFrame(cmd, data)
	if err != nil {
		panic(err)
	}
	return f
}
