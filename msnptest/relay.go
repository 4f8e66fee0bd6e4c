package msnptest

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/campos02/msnp11-sdk/msnp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Relay is a minimal switchboard on 127.0.0.1:0 that bridges two clients:
// USR registers a connection under its email, MSG is acknowledged and its
// payload forwarded to the other party. Forwarded payloads are recorded per
// sender so tests can inspect the wire traffic of a P2P exchange.
type Relay struct {
	t   testing.TB
	ln  net.Listener
	log zerolog.Logger

	mu    sync.Mutex
	conns map[string]net.Conn
	sent  map[string][][]byte

	// writeMu serializes writes across both connections; the two sides of
	// a transfer run on their own goroutines.
	writeMu sync.Mutex
}

func NewRelay(t testing.TB) *Relay {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	r := &Relay{
		t:     t,
		ln:    ln,
		log:   log.Logger.With().Str("caller", "msnptest.Relay").Logger(),
		conns: make(map[string]net.Conn),
		sent:  make(map[string][][]byte),
	}
	go r.acceptLoop()
	t.Cleanup(r.Close)
	return r
}

// Host splits the listen address into the server and port arguments that the
// switchboard dialer takes.
func (r *Relay) Host() (string, int) {
	host, port, err := net.SplitHostPort(r.ln.Addr().String())
	if err != nil {
		r.t.Fatal(err)
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		r.t.Fatal(err)
	}
	return host, n
}

// Sent returns copies of the MSG payloads forwarded for email so far.
func (r *Relay) Sent(email string) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][]byte, len(r.sent[email]))
	for i, p := range r.sent[email] {
		out[i] = append([]byte(nil), p...)
	}
	return out
}

func (r *Relay) Close() {
	_ = r.ln.Close()
}

func (r *Relay) acceptLoop() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		go r.serve(conn)
	}
}

func (r *Relay) serve(conn net.Conn) {
	defer conn.Close()

	parser := &msnp.ParserStream{PayloadVerbs: msnp.ServerPayloadVerbs}
	defer parser.Close()

	var email string
	buf := make([]byte, msnp.TransportBufferReadSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}

		err = parser.ParseStream(buf[:n], func(cmd *msnp.Command) {
			switch cmd.Verb {
			case "USR":
				email = cmd.Arg(1)
				r.mu.Lock()
				r.conns[email] = conn
				r.mu.Unlock()
				r.write(conn, Key("USR", cmd.Arg(0), "OK", email, email))
			case "MSG":
				r.forward(conn, email, cmd)
			}
		})
		if err != nil && !errors.Is(err, msnp.ErrParseMsnpPartial) {
			r.log.Warn().Err(err).Msg("broken client stream")
			return
		}
	}
}

// forward acknowledges a client MSG and replays its payload to the other
// registered party as a server MSG.
func (r *Relay) forward(conn net.Conn, from string, cmd *msnp.Command) {
	r.write(conn, Key("ACK", cmd.Arg(0)))

	r.mu.Lock()
	r.sent[from] = append(r.sent[from], append([]byte(nil), cmd.Payload...))
	var peer net.Conn
	for email, c := range r.conns {
		if email != from {
			peer = c
		}
	}
	r.mu.Unlock()

	if peer == nil {
		r.log.Warn().Str("from", from).Msg("no peer to forward to")
		return
	}

	relayed := msnp.NewPayloadCommand("MSG", cmd.Payload, from, from, strconv.Itoa(len(cmd.Payload)))
	r.write(peer, string(relayed.Bytes()))
}

func (r *Relay) write(conn net.Conn, data string) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if _, err := conn.Write([]byte(data)); err != nil {
		r.log.Warn().Err(err).Msg("could not write")
	}
}
