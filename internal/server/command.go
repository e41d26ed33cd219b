package server

import "strings"

// Command is one parsed protocol line.
type Command struct {
	Name string
	Args []string
}

// Rest returns the arguments joined with single spaces.
func (c Command) Rest() string {
	return strings.Join(c.Args, " ")
}

// ParseLine parses a single protocol line. Blank lines are rejected.
// Tokens are separated by single spaces; there is no quoting.
func ParseLine(line string) (Command, bool) {
	line = strings.TrimSuffix(line, "\r")
	if strings.TrimSpace(line) == "" {
		return Command{}, false
	}

	parts := strings.Split(line, " ")
	return Command{Name: parts[0], Args: parts[1:]}, true
}

// SplitChunk parses every line of a raw chunk, in order.
func SplitChunk(chunk string) []Command {
	var cmds []Command
	for _, line := range strings.Split(chunk, "\n") {
		if cmd, ok := ParseLine(line); ok {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}
