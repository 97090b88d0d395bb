package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dCP/lib/chat"
	"github.com/ValentinKolb/dCP/rpc/codec"
	"github.com/ValentinKolb/dCP/rpc/common"
	"github.com/spf13/cobra"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
)

var (
	sendCmd = &cobra.Command{
		Use:   "send [command] [args...]",
		Short: "Sends a single command and prints the reply",
		Long: `Sends a single command and prints the reply.
Commands: ping, echo, nick, say, whisper, who, stats, upload, quit, slow.
A numeric command code is sent as is.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command, err := parseCommand(args[0])
			if err != nil {
				return err
			}

			reply, err := call(command, args[1:])
			if err != nil {
				return err
			}
			fmt.Println(formatReply(command, reply))
			return nil
		},
	}
	listenCmd = &cobra.Command{
		Use:   "listen",
		Short: "Joins the chat: prints messages and sends stdin lines",
		Long: `Joins the chat. Every message of the room is printed.
Lines read from stdin are sent as messages, except:
  /who              list all members
  /w <nick> <text>  whisper to a member
  /quit             leave the room`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go readInput(stop)

			inbox := chatClient.Inbox()
			for {
				select {
				case <-ctx.Done():
					return nil
				case msg, ok := <-inbox:
					if !ok {
						fmt.Println("connection closed")
						return nil
					}
					fmt.Println(formatMessage(msg))
				}
			}
		},
	}
)

// readInput sends stdin lines to the room until EOF or /quit
func readInput(stop context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var (
			command chat.Command
			args    []string
		)
		switch {
		case line == "/quit":
			command = chat.CmdQuit
		case line == "/who":
			command = chat.CmdWho
		case strings.HasPrefix(line, "/w "):
			command, args = chat.CmdWhisper, strings.Fields(line)[1:]
		default:
			command, args = chat.CmdSay, []string{line}
		}

		reply, err := call(command, args)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		if command != chat.CmdSay {
			fmt.Println(formatReply(command, reply))
		}
		if command == chat.CmdQuit {
			stop()
			return
		}
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func parseCommand(name string) (chat.Command, error) {
	if command, ok := chat.ParseCommand(name); ok {
		return command, nil
	}
	code, err := strconv.ParseUint(name, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown command %q", name)
	}
	return chat.Command(code), nil
}

// payloadFor encodes the command line arguments the way the command expects them
func payloadFor(command chat.Command, args []string) ([]codec.Payload, error) {
	switch command {
	case chat.CmdEcho, chat.CmdUpload:
		return []codec.Payload{codec.Bytes([]byte(strings.Join(args, " ")))}, nil
	case chat.CmdNick, chat.CmdSay, chat.CmdSlow:
		if len(args) == 0 {
			return nil, fmt.Errorf("%s needs an argument", command)
		}
		return []codec.Payload{codec.Strings(strings.Join(args, " "))}, nil
	case chat.CmdWhisper:
		if len(args) < 2 {
			return nil, fmt.Errorf("usage: whisper <nick> <text>")
		}
		return []codec.Payload{codec.Strings(args[0], strings.Join(args[1:], " "))}, nil
	default:
		return nil, nil
	}
}

// call sends a command and turns error results into errors
func call(command chat.Command, args []string) (*codec.Reply[chat.Result], error) {
	payloads, err := payloadFor(command, args)
	if err != nil {
		return nil, err
	}

	reply, err := chatClient.Call(command, payloads...)
	if errors.Is(err, common.ErrTimeout) {
		// not mapped commands are answered without correlation id
		if fallback := pendingFallback(); fallback != nil {
			return nil, fmt.Errorf("server answered %s", fallback.Result)
		}
	}
	if err != nil {
		return nil, err
	}

	if reply.Result == chat.ResError {
		return nil, fmt.Errorf("%s", strings.Join(readStrings(reply.Payload), " "))
	}
	return reply, nil
}

func pendingFallback() *codec.Reply[chat.Result] {
	for {
		select {
		case msg, ok := <-chatClient.Inbox():
			if !ok {
				return nil
			}
			switch msg.Result {
			case chat.ResNotMapped, chat.ResUnknown, chat.ResError:
				return msg
			}
		default:
			return nil
		}
	}
}

func readStrings(payload []byte) []string {
	s, _ := codec.ReadStrings(bytes.NewReader(payload))
	return s
}

func formatReply(command chat.Command, reply *codec.Reply[chat.Result]) string {
	switch command {
	case chat.CmdEcho, chat.CmdUpload:
		return string(reply.Payload)
	case chat.CmdStats:
		var out bytes.Buffer
		if err := json.Indent(&out, reply.Payload, "", "  "); err != nil {
			return string(reply.Payload)
		}
		return out.String()
	case chat.CmdWho:
		return strings.Join(readStrings(reply.Payload), "\n")
	default:
		parts := append([]string{reply.Result.String()}, readStrings(reply.Payload)...)
		return strings.Join(parts, " ")
	}
}

func formatMessage(msg *codec.Reply[chat.Result]) string {
	parts := readStrings(msg.Payload)
	if msg.Result == chat.ResMessage && len(parts) == 2 {
		return fmt.Sprintf("[%s] %s", parts[0], parts[1])
	}
	return fmt.Sprintf("%s %s", msg.Result, strings.Join(parts, " "))
}
