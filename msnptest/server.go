// Package msnptest provides scripted in-process servers for integration
// style tests: a TCP server driven by an exchange table and an httptest
// Passport nexus.
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

// Exchange maps the exact wire form of a client command, payload included,
// to the ordered replies written back. Unscripted commands are ignored.
type Exchange map[string][]string

// Key renders the wire form of a payload-less client command for use as an
// exchange table key.
func Key(verb string, args ...string) string {
	return msnp.NewCommand(verb, args...).Line()
}

// PayloadKey renders the wire form of a payload bearing client command. The
// length argument is appended after args, as the client sends it.
func PayloadKey(payload []byte, verb string, args ...string) string {
	args = append(args, strconv.Itoa(len(payload)))
	return string(msnp.NewPayloadCommand(verb, payload, args...).Bytes())
}

// Server is a scripted notification or switchboard server on 127.0.0.1:0.
// Every accepted connection answers from the same exchange table.
type Server struct {
	t   testing.TB
	ln  net.Listener
	log zerolog.Logger

	mu       sync.Mutex
	exchange Exchange
}

func NewServer(t testing.TB, exchange Exchange) *Server {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	s := &Server{
		t:        t,
		ln:       ln,
		log:      log.Logger.With().Str("caller", "msnptest.Server").Logger(),
		exchange: exchange,
	}
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Host splits the listen address into the server and port arguments that
// NewClient takes.
func (s *Server) Host() (string, int) {
	host, port, err := net.SplitHostPort(s.Addr())
	if err != nil {
		s.t.Fatal(err)
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		s.t.Fatal(err)
	}
	return host, n
}

// Script adds or replaces an exchange entry while the server is running.
func (s *Server) Script(key string, replies ...string) {
	s.mu.Lock()
	s.exchange[key] = replies
	s.mu.Unlock()
}

func (s *Server) Close() {
	_ = s.ln.Close()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	// The server reads client traffic, so MSG and UUX carry payloads.
	parser := &msnp.ParserStream{PayloadVerbs: msnp.ServerPayloadVerbs}
	defer parser.Close()

	buf := make([]byte, msnp.TransportBufferReadSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}

		err = parser.ParseStream(buf[:n], func(cmd *msnp.Command) {
			s.reply(conn, cmd)
		})
		if err != nil && !errors.Is(err, msnp.ErrParseMsnpPartial) {
			s.log.Warn().Err(err).Msg("broken client stream")
			return
		}
	}
}

func (s *Server) reply(conn net.Conn, cmd *msnp.Command) {
	s.log.Trace().Str("dir", "C").Msg(cmd.String())

	s.mu.Lock()
	replies := s.exchange[string(cmd.Bytes())]
	s.mu.Unlock()

	if replies == nil {
		s.log.Trace().Msgf("unscripted: %s", cmd.String())
		return
	}

	for _, reply := range replies {
		if _, err := conn.Write([]byte(reply)); err != nil {
			s.log.Warn().Err(err).Msg("could not reply")
			return
		}
	}
}
