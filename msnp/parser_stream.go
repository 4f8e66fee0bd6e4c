package msnp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
)

type parserState int

const (
	stateCommandLine = parserState(iota)
	statePayload
)

// Payload verb tables map payload bearing verbs to the argument index (after
// the verb) that declares the payload length. Which verbs carry payloads
// depends on the direction of the stream: a client sees MSG, UBX and GCF, a
// server sees MSG and UUX. UBX and UUX put the length right after the email
// or transaction id, the rest one slot later.
var (
	ClientPayloadVerbs = map[string]int{"MSG": 2, "UBX": 1, "GCF": 2}
	ServerPayloadVerbs = map[string]int{"MSG": 2, "UUX": 1}
)

// MaxPayloadLength bounds the declared payload length the stream parser will
// allocate for. The largest legitimate MSNP11 payloads are P2P chunks of a
// couple of kilobytes; anything bigger is a broken or hostile server and the
// command is skipped like any other malformed length.
const MaxPayloadLength = 64 << 10

var streamBufPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

var crlf = []byte("\r\n")

// ParserStream splits a notification or switchboard byte stream into
// commands. Payload bearing verbs extend past their CRLF by the declared
// number of bytes, so the splitter is stateful across Write calls.
type ParserStream struct {
	// PayloadVerbs selects the payload verb table for this stream
	// direction. Nil means ClientPayloadVerbs.
	PayloadVerbs map[string]int

	// runtime values
	buf        *bytes.Buffer
	state      parserState
	totalRead  int
	cmd        *Command
	payloadOff int
}

// payloadLength returns the declared payload length for payload bearing
// verbs. hasPayload is false when the verb carries no payload in this
// direction. A declared length that does not parse as a non-negative
// integer sets err, which parsing treats as a command to skip.
func (p *ParserStream) payloadLength(cmd *Command) (n int, hasPayload bool, err error) {
	verbs := p.PayloadVerbs
	if verbs == nil {
		verbs = ClientPayloadVerbs
	}

	idx, ok := verbs[cmd.Verb]
	if !ok {
		return 0, false, nil
	}

	n, err = strconv.Atoi(cmd.Arg(idx))
	if err != nil || n < 0 {
		return 0, true, ErrParseInvalidCommand
	}
	return n, true, nil
}

func (p *ParserStream) reset() {
	p.state = stateCommandLine
	p.totalRead = 0
	p.cmd = nil
	p.payloadOff = 0
}

// Reset the parser and the internal buffer.
func (p *ParserStream) Reset() {
	p.reset()
	if p.buf != nil {
		p.buf.Reset()
	}
}

// Close the parser and free the associated resources.
func (p *ParserStream) Close() {
	p.reset()
	buf := p.buf
	p.buf = nil
	if buf != nil {
		streamBufPool.Put(buf)
	}
}

// ParseStream parses a chunk of stream data and calls cb for every complete
// command. It returns ErrParseMsnpPartial when the tail of the buffer is an
// incomplete command, which on a live socket just means more reads.
func (p *ParserStream) ParseStream(data []byte, cb func(cmd *Command)) error {
	if _, err := p.Write(data); err != nil {
		return err
	}
	for p.buf.Len() > 0 {
		cmd, _, err := p.ParseNext()
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrParseMsnpPartial
		} else if err != nil {
			return err
		}
		cb(cmd)
	}
	return nil
}

// Buffer returns the internal buffer used by the parser.
// This allows inspecting the current parser state and possibly recovering the
// stream with Discard.
func (p *ParserStream) Buffer() *bytes.Buffer {
	if p.buf == nil {
		p.buf = streamBufPool.Get().(*bytes.Buffer)
		p.buf.Reset()
	}
	return p.buf
}

// Discard the specified amount of data and reset the parser.
func (p *ParserStream) Discard(n int) {
	p.reset()
	if p.buf != nil {
		_ = p.buf.Next(n)
	}
}

// Write data to the internal buffer. Must be called before ParseNext.
func (p *ParserStream) Write(data []byte) (int, error) {
	buf := p.Buffer()
	buf.Write(data)
	return len(data), nil
}

// ParseNext parses the next command from the internal buffer.
// It may return io.ErrUnexpectedEOF, indicating that more data needs to be
// written with Write.
func (p *ParserStream) ParseNext() (*Command, int, error) {
	if p.buf == nil {
		return nil, 0, io.ErrUnexpectedEOF
	}
	err := p.parseSingle()
	reset := err == nil
	cmd, n := p.cmd, p.totalRead
	if reset {
		p.reset()
	}
	return cmd, n, err
}

func (p *ParserStream) advance(n int) {
	p.totalRead += n
	_ = p.buf.Next(n)
}

func (p *ParserStream) parseSingle() error {
	if p.buf == nil {
		return io.ErrUnexpectedEOF
	}
	switch p.state {
	case stateCommandLine:
		for {
			data := p.buf.Bytes()
			idx := bytes.Index(data, crlf)
			if idx < 0 {
				return io.ErrUnexpectedEOF
			}

			cmd, err := ParseCommandLine(data[:idx])
			if err != nil {
				// Blank line. Resume at the next CRLF.
				p.advance(idx + 2)
				continue
			}

			length, hasPayload, lenErr := p.payloadLength(cmd)
			p.advance(idx + 2)
			if lenErr != nil || length > MaxPayloadLength {
				// The declared length does not parse or cannot be
				// trusted. Some servers send garbage here; skipping the
				// command keeps the stream alive, which beats tearing
				// the connection down.
				continue
			}

			if !hasPayload || length == 0 {
				p.cmd = cmd
				return nil
			}

			cmd.Payload = make([]byte, length)
			p.cmd = cmd
			p.payloadOff = 0
			p.state = statePayload
			break
		}
		fallthrough
	case statePayload:
		payload := p.cmd.Payload
		n := copy(payload[p.payloadOff:], p.buf.Bytes())
		p.advance(n)
		p.payloadOff += n

		if p.payloadOff < len(payload) {
			return io.ErrUnexpectedEOF
		}
		return nil
	default:
		return fmt.Errorf("parser is in unknown state")
	}
}
