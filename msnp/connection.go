package msnp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MatchFunc decides whether an inbound command terminates a pending
// operation. Returning (false, nil) keeps waiting, which is how interleaved
// traffic such as the SYN roster burst is skipped. Returning an error fails
// the operation with that error.
type MatchFunc func(cmd *Command) (done bool, err error)

type pendingOp struct {
	match MatchFunc
	res   chan opResult
}

type opResult struct {
	cmd *Command
	err error
}

// Connection owns one NS or SB socket: the reader goroutine feeding the
// stream parser, the write half, the transaction id counter and the table of
// operations waiting for replies.
type Connection struct {
	conn net.Conn
	log  zerolog.Logger

	trID atomic.Uint32

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  []*pendingOp
	handlers []func(cmd *Command)

	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens a TCP connection to an NS or SB and starts its reader.
func Dial(ctx context.Context, server string, port int, logger zerolog.Logger) (*Connection, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, server)
	if err != nil || len(addrs) == 0 {
		return nil, fmt.Errorf("lookup %q: %w", server, ErrResolution)
	}

	addr := net.JoinHostPort(addrs[0].IP.String(), strconv.Itoa(port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, ErrCouldNotConnectToServer)
	}

	logger.Debug().Str("raddr", addr).Msg("New connection")
	return NewConnection(conn, logger), nil
}

// NewConnection wraps an established conn and starts the reader goroutine.
// Used directly by tests with fake conns.
func NewConnection(conn net.Conn, logger zerolog.Logger) *Connection {
	c := &Connection{
		conn: conn,
		log:  logger,
		done: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// NewConnectionLogger derives the sub-logger connections are tagged with.
func NewConnectionLogger(caller string) zerolog.Logger {
	return log.Logger.With().Str("caller", caller).Logger()
}

// Done is closed once the reader has exited, whether by Close or by the
// server hanging up.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// NextTransactionID allocates the next transaction id for this socket.
// Ids start at 1; zero is reserved for unsolicited server commands.
func (c *Connection) NextTransactionID() uint32 {
	return c.trID.Add(1)
}

// OnCommand registers a sink that observes every inbound command after the
// pending operations have seen it. Sinks run on the reader goroutine and
// must not block.
func (c *Connection) OnCommand(fn func(cmd *Command)) {
	c.mu.Lock()
	c.handlers = append(c.handlers, fn)
	c.mu.Unlock()
}

// WriteCommand serializes writes to the socket. Commands enqueued from one
// goroutine reach the server in order.
func (c *Connection) WriteCommand(cmd *Command) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if WireDebug {
		c.log.Debug().Str("dir", "C").Bytes("raw", cmd.Bytes()).Msg("write")
	}

	c.log.Trace().Str("dir", "C").Msg(cmd.String())
	if _, err := c.conn.Write(cmd.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", ErrTransmitting, err)
	}
	return nil
}

// Do sends cmd and blocks until match accepts a reply, ctx is cancelled or
// the connection is lost. The matcher is registered before the write: a
// reply racing the write cannot be missed.
func (c *Connection) Do(ctx context.Context, cmd *Command, match MatchFunc) (*Command, error) {
	op := &pendingOp{
		match: match,
		res:   make(chan opResult, 1),
	}

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return nil, ErrDisconnected
	default:
	}
	c.pending = append(c.pending, op)
	c.mu.Unlock()

	if err := c.WriteCommand(cmd); err != nil {
		c.removePending(op)
		return nil, err
	}

	select {
	case res := <-op.res:
		return res.cmd, res.err
	case <-ctx.Done():
		c.removePending(op)
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrDisconnected
	}
}

func (c *Connection) removePending(op *pendingOp) {
	c.mu.Lock()
	for i, p := range c.pending {
		if p == op {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
}

// Close tears the connection down, failing every pending operation with
// ErrDisconnected. Safe to call more than once and from any goroutine.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()

		c.mu.Lock()
		pending := c.pending
		c.pending = nil
		c.mu.Unlock()

		for _, op := range pending {
			op.res <- opResult{err: ErrDisconnected}
		}
		close(c.done)
	})
	return err
}

func (c *Connection) readLoop() {
	defer c.Close()

	buf := make([]byte, TransportBufferReadSize)
	parser := ParserStream{}
	defer parser.Close()

	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
				c.log.Debug().Err(err).Msg("connection was closed")
				return
			}

			c.log.Error().Err(err).Msg("Read error")
			return
		}

		if WireDebug {
			c.log.Debug().Str("dir", "S").Bytes("raw", buf[:n]).Msg("read")
		}

		if err := parser.ParseStream(buf[:n], c.dispatch); err != nil {
			if errors.Is(err, ErrParseMsnpPartial) {
				continue
			}
			c.log.Error().Err(err).Msg("failed to parse")
			return
		}
	}
}

// dispatch offers cmd to the pending operations in registration order, then
// to the command sinks. Runs on the reader goroutine, so commands are
// observed in receive order.
func (c *Connection) dispatch(cmd *Command) {
	c.log.Trace().Str("dir", "S").Msg(cmd.String())

	c.mu.Lock()
	var resolved []*pendingOp
	var results []opResult
	kept := c.pending[:0]

	for _, op := range c.pending {
		done, err := op.match(cmd)
		if !done {
			kept = append(kept, op)
			continue
		}
		resolved = append(resolved, op)
		if err != nil {
			results = append(results, opResult{err: err})
		} else {
			results = append(results, opResult{cmd: cmd})
		}
	}
	c.pending = kept
	handlers := c.handlers
	c.mu.Unlock()

	for i, op := range resolved {
		op.res <- results[i]
	}

	for _, fn := range handlers {
		fn(cmd)
	}
}
