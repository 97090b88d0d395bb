package chat

import (
	"strconv"
	"strings"
)

// Command is the command code of the chat protocol
type Command uint16

const (
	CmdPing Command = iota + 1
	CmdEcho
	CmdNick
	CmdSay
	CmdWhisper
	CmdWho
	CmdStats
	CmdUpload
	CmdQuit
	CmdSlow
)

var commandNames = map[Command]string{
	CmdPing:    "Ping",
	CmdEcho:    "Echo",
	CmdNick:    "Nick",
	CmdSay:     "Say",
	CmdWhisper: "Whisper",
	CmdWho:     "Who",
	CmdStats:   "Stats",
	CmdUpload:  "Upload",
	CmdQuit:    "Quit",
	CmdSlow:    "Slow",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "Command(" + strconv.Itoa(int(c)) + ")"
}

// ParseCommand returns the command with the given name (case insensitive)
func ParseCommand(name string) (Command, bool) {
	for cmd, n := range commandNames {
		if strings.EqualFold(n, name) {
			return cmd, true
		}
	}
	return 0, false
}

// Result is the result code of the chat protocol
type Result uint8

const (
	ResOK Result = iota
	ResMessage
	ResError
	ResUnknown
	ResNotMapped
)

func (r Result) String() string {
	switch r {
	case ResOK:
		return "OK"
	case ResMessage:
		return "Message"
	case ResError:
		return "Error"
	case ResUnknown:
		return "Unknown"
	case ResNotMapped:
		return "NotMapped"
	default:
		return "Result(" + strconv.Itoa(int(r)) + ")"
	}
}
