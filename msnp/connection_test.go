package msnp

import (
	"bufio"
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campos02/msnp11-sdk/fakes"
)

// testConn wires a fake conn to a scripted server side: the test reads what
// the connection writes from requests and feeds replies through replies.
func testConn(t *testing.T) (conn *Connection, requests *bufio.Reader, replies *io.PipeWriter) {
	t.Helper()

	serverRead, clientWrite := io.Pipe()
	clientRead, serverWrite := io.Pipe()

	fake := &fakes.TCPConn{
		Reader: clientRead,
		Writer: clientWrite,
	}

	conn = NewConnection(fake, zerolog.Nop())
	t.Cleanup(func() {
		serverWrite.Close()
		conn.Close()
	})

	return conn, bufio.NewReader(serverRead), serverWrite
}

func TestConnectionDo(t *testing.T) {
	conn, requests, replies := testConn(t)

	go func() {
		line, err := requests.ReadString('\n')
		if err != nil {
			return
		}
		if line != "PNG\r\n" {
			replies.CloseWithError(io.ErrUnexpectedEOF)
			return
		}
		// Unrelated traffic first; the matcher must skip it.
		io.WriteString(replies, "NLN NLN bob@passport.com Bob 1073741824\r\n")
		io.WriteString(replies, "QNG 60\r\n")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := conn.Do(ctx, NewCommand("PNG"), func(cmd *Command) (bool, error) {
		return cmd.Verb == "QNG", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "60", reply.Arg(0))
}

func TestConnectionDoMatcherError(t *testing.T) {
	conn, requests, replies := testConn(t)

	go func() {
		if _, err := requests.ReadString('\n'); err != nil {
			return
		}
		io.WriteString(replies, "911 5\r\n")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := conn.Do(ctx, NewCommand("SYN", "5", "0", "0"), func(cmd *Command) (bool, error) {
		if cmd.Verb == "911" {
			return true, ErrServerIsBusy
		}
		return false, nil
	})
	require.ErrorIs(t, err, ErrServerIsBusy)
}

func TestConnectionReplyBeforeRequestRead(t *testing.T) {
	conn, requests, replies := testConn(t)
	go io.Copy(io.Discard, requests)

	// The reply lands before the server has even read the request. The
	// matcher is registered before the write, so it cannot be missed.
	io.WriteString(replies, "QNG 60\r\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := conn.Do(ctx, NewCommand("PNG"), func(cmd *Command) (bool, error) {
		return cmd.Verb == "QNG", nil
	})
	require.NoError(t, err)
}

func TestConnectionServerHangsUp(t *testing.T) {
	conn, requests, replies := testConn(t)

	go func() {
		requests.ReadString('\n')
		replies.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := conn.Do(ctx, NewCommand("PNG"), func(cmd *Command) (bool, error) {
		return false, nil
	})
	require.ErrorIs(t, err, ErrDisconnected)

	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done did not fire after server hangup")
	}

	// Operations after teardown fail fast.
	_, err = conn.Do(ctx, NewCommand("PNG"), func(cmd *Command) (bool, error) {
		return false, nil
	})
	require.ErrorIs(t, err, ErrDisconnected)
}

func TestConnectionOnCommand(t *testing.T) {
	conn, _, replies := testConn(t)

	got := make(chan *Command, 8)
	conn.OnCommand(func(cmd *Command) {
		got <- cmd
	})

	io.WriteString(replies, "GTC A\r\nBLP AL\r\n")

	verbs := make([]string, 0, 2)
	for len(verbs) < 2 {
		select {
		case cmd := <-got:
			verbs = append(verbs, cmd.Verb)
		case <-time.After(5 * time.Second):
			t.Fatal("commands not delivered")
		}
	}
	assert.Equal(t, []string{"GTC", "BLP"}, verbs)
}

func TestNextTransactionID(t *testing.T) {
	conn, _, _ := testConn(t)

	// Ids start at 1; zero stays reserved for unsolicited commands.
	assert.EqualValues(t, 1, conn.NextTransactionID())
	assert.EqualValues(t, 2, conn.NextTransactionID())
	assert.EqualValues(t, 3, conn.NextTransactionID())
}
