// Package control implements the command channel: a closed set of run
// commands, a one-token-per-connection Unix socket server and its client.
package control

import (
	"fmt"
	"strings"

	"github.com/verte-zerg/wlsplit/internal/model"
)

// Command is one of the fixed run commands.
type Command int

const (
	Start Command = iota + 1
	Split
	Skip
	Pause
	Reset
	Quit
)

var commandNames = map[Command]string{
	Start: "start",
	Split: "split",
	Skip:  "skip",
	Pause: "pause",
	Reset: "reset",
	Quit:  "quit",
}

var commandsByName = func() map[string]Command {
	out := make(map[string]Command, len(commandNames))
	for c, name := range commandNames {
		out[name] = c
	}
	return out
}()

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// Commands lists every command in protocol order.
func Commands() []Command {
	return []Command{Start, Split, Skip, Pause, Reset, Quit}
}

// ParseCommand parses one protocol token. Surrounding whitespace is ignored;
// matching is case-sensitive and arguments are rejected.
func ParseCommand(raw string) (Command, error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return 0, fmt.Errorf("%w: empty command", model.ErrProtocol)
	}
	if strings.ContainsAny(token, " \t\r\n") {
		return 0, fmt.Errorf("%w: unexpected arguments in %q", model.ErrProtocol, token)
	}
	c, ok := commandsByName[token]
	if !ok {
		return 0, fmt.Errorf("%w: unknown command %q", model.ErrProtocol, token)
	}
	return c, nil
}

// Target is the set of transitions a command can drive.
type Target interface {
	Start() bool
	Split() bool
	Skip() bool
	Pause() bool
	Reset() bool
	Quit() bool
}

var dispatch = map[Command]func(Target) bool{
	Start: Target.Start,
	Split: Target.Split,
	Skip:  Target.Skip,
	Pause: Target.Pause,
	Reset: Target.Reset,
	Quit:  Target.Quit,
}

// Apply runs c against t and reports whether the transition applied.
func Apply(t Target, c Command) bool {
	fn, ok := dispatch[c]
	if !ok {
		return false
	}
	return fn(t)
}
