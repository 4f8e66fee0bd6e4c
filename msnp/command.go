package msnp

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
)

var ErrParseInvalidCommand = errors.New("invalid MSNP command line")

// Command is a single MSNP message: a verb, its space separated arguments
// and, for payload bearing verbs, the binary payload that follows the CRLF.
// For commands sent by the client and for replies to them the first argument
// is the transaction id. Unsolicited server commands carry none, so
// correlation is per operation and never generic.
type Command struct {
	Verb    string
	Args    []string
	Payload []byte
}

// NewCommand builds a payload-less command.
func NewCommand(verb string, args ...string) *Command {
	return &Command{Verb: verb, Args: args}
}

// NewPayloadCommand builds a command with a trailing payload. The length
// argument is not appended automatically; callers place it exactly where the
// verb expects it, as on the wire.
func NewPayloadCommand(verb string, payload []byte, args ...string) *Command {
	return &Command{Verb: verb, Args: args, Payload: payload}
}

// Arg returns the i-th argument after the verb, or "" when the command is
// too short. Matchers and classifiers index through this so that truncated
// server lines degrade to non-matches instead of panics.
func (c *Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// noTransaction lists verbs whose first argument is numeric but is not a
// transaction id: QNG carries the next ping interval, RNG a session id.
var noTransaction = map[string]bool{
	"QNG": true,
	"RNG": true,
}

// TrIDEquals reports whether the command's first argument is the decimal
// form of id. Numeric error replies also keep the transaction id there.
func (c *Command) TrIDEquals(id uint32) bool {
	if noTransaction[c.Verb] {
		return false
	}
	return c.Arg(0) == strconv.FormatUint(uint64(id), 10)
}

// Line renders the command line including the terminating CRLF.
func (c *Command) Line() string {
	var sb strings.Builder
	sb.Grow(len(c.Verb) + 16*len(c.Args) + 2)
	sb.WriteString(c.Verb)
	for _, a := range c.Args {
		sb.WriteByte(' ')
		sb.WriteString(a)
	}
	sb.WriteString("\r\n")
	return sb.String()
}

// Bytes renders the full wire form, payload included.
func (c *Command) Bytes() []byte {
	line := c.Line()
	if len(c.Payload) == 0 {
		return []byte(line)
	}
	out := make([]byte, 0, len(line)+len(c.Payload))
	out = append(out, line...)
	out = append(out, c.Payload...)
	return out
}

// String renders the command line without CRLF. Used for logging; payloads
// are intentionally left out as they may hold binary P2P data.
func (c *Command) String() string {
	line := c.Line()
	return line[:len(line)-2]
}

// ParseCommandLine parses one command line. The input may include the
// terminating CRLF. The payload, if the verb declares one, is read
// separately by the stream parser.
func ParseCommandLine(line []byte) (*Command, error) {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return nil, ErrParseInvalidCommand
	}

	fields := strings.Split(string(line), " ")
	if fields[0] == "" {
		return nil, ErrParseInvalidCommand
	}

	return &Command{Verb: fields[0], Args: fields[1:]}, nil
}
