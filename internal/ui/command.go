package ui

import (
	"errors"
	"strings"
)

// Command is a parsed line from the meeting input.
type Command struct {
	Name string
	Arg  string
	// Text is the whole line for plain chat.
	Text string
}

const CommandChat = "chat"

var ErrUnknownCommand = errors.New("unknown command, try /help")

var commandUsage = map[string]string{
	"admit":  "/admit <id>      let someone in from the waiting room",
	"reject": "/reject <id>     turn someone away",
	"remove": "/remove <id>     remove someone from the meeting",
	"ban":    "/ban <id>        remove someone and keep them out",
	"record": "/record on|off   start or stop recording",
	"who":    "/who             list people and waiting joiners",
	"help":   "/help            show this list",
	"quit":   "/quit            leave the meeting",
}

// HelpText lists the meeting commands.
func HelpText() string {
	order := []string{"admit", "reject", "remove", "ban", "record", "who", "help", "quit"}
	lines := make([]string, 0, len(order))
	for _, name := range order {
		lines = append(lines, commandUsage[name])
	}
	return strings.Join(lines, "\n")
}

// ParseCommand splits a slash command from chat text.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return Command{Name: CommandChat, Text: line}, nil
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	name = strings.ToLower(name)
	arg = strings.TrimSpace(arg)

	if _, ok := commandUsage[name]; !ok {
		return Command{}, ErrUnknownCommand
	}
	switch name {
	case "admit", "reject", "remove", "ban":
		if arg == "" {
			return Command{}, errors.New("usage: " + commandUsage[name])
		}
	case "record":
		arg = strings.ToLower(arg)
		if arg != "on" && arg != "off" {
			return Command{}, errors.New("usage: " + commandUsage[name])
		}
	}
	return Command{Name: name, Arg: arg}, nil
}
