// Package cli parses herald command-line arguments.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandServe    Command = "serve"
	CommandToggle   Command = "toggle"
	CommandStart    Command = "start"
	CommandStop     Command = "stop"
	CommandCancel   Command = "cancel"
	CommandDone     Command = "done"
	CommandStatus   Command = "status"
	CommandMessages Command = "messages"
	CommandWatch    Command = "watch"
	CommandEndpoint Command = "endpoint"
	CommandEnable   Command = "enable"
	CommandDisable  Command = "disable"
	CommandDevices  Command = "devices"
	CommandDoctor   Command = "doctor"
	CommandVersion  Command = "version"
	CommandHelp     Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandServe:    {},
	CommandToggle:   {},
	CommandStart:    {},
	CommandStop:     {},
	CommandCancel:   {},
	CommandDone:     {},
	CommandStatus:   {},
	CommandMessages: {},
	CommandWatch:    {},
	CommandEndpoint: {},
	CommandEnable:   {},
	CommandDisable:  {},
	CommandDevices:  {},
	CommandDoctor:   {},
	CommandVersion:  {},
	CommandHelp:     {},
}

// acceptsArg lists commands that take one optional positional argument.
var acceptsArg = map[Command]struct{}{
	CommandEndpoint: {},
}

type Parsed struct {
	Command    Command
	Arg        string
	ConfigPath string
	JSON       bool
	ShowHelp   bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--json":
			parsed.JSON = true
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp

			rest := args[i+1:]
			if _, ok := acceptsArg[cmd]; ok && len(rest) == 1 {
				parsed.Arg = strings.TrimSpace(rest[0])
				if parsed.Arg == "" {
					return Parsed{}, fmt.Errorf("command %q argument must not be empty", arg)
				}
				return parsed, nil
			}
			if len(rest) != 0 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--json] <command>

Daemon:
  serve           Run the assistant daemon (capture, transcription, dispatch)

Voice control (requires a running daemon):
  toggle          Start listening, or stop and send when already listening
  start           Start listening
  stop            Stop listening and send the transcript
  cancel          Discard the active capture
  done            Mark the current reply as finished speaking

Presentation:
  status          Print the presence state
  messages        Print the conversation log
  watch           Stream presence updates until interrupted

Settings:
  endpoint [URL]  Print or replace the dispatch endpoint
  enable          Accept voice input
  disable         Reject voice input

Diagnostics:
  devices         List available input devices
  doctor          Run configuration and environment checks
  version         Print version information
  help            Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/herald/config.jsonc)
  --json          Print daemon responses as JSON lines
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
