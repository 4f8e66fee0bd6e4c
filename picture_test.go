package msnp11sdk

import (
	"bytes"
	"context"
	"testing"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campos02/msnp11-sdk/msnp"
	"github.com/campos02/msnp11-sdk/msnptest"
)

func TestParseInviteFields(t *testing.T) {
	invite := "INVITE MSNMSGR:bob@passport.com MSNSLP/1.0\r\n" +
		"To: <msnmsgr:bob@passport.com>\r\n" +
		"From: <msnmsgr:testing@example.com>\r\n" +
		"Context: dGVzdA==\r\n" +
		"\r\n"

	to, from, context_, ok := parseInviteFields([]byte(invite))
	require.True(t, ok)
	assert.Equal(t, "<msnmsgr:bob@passport.com>", to)
	assert.Equal(t, "testing@example.com", from)
	assert.Equal(t, "dGVzdA==", context_)

	_, _, _, ok = parseInviteFields([]byte("MSNSLP/1.0 200 OK\r\n\r\n"))
	assert.False(t, ok)
}

func TestSetDisplayPicture(t *testing.T) {
	nexusURL, ns, _ := testServers(t)
	client, events := testClient(t, ns)
	testLogin(t, client, nexusURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	picture := []byte("jfif bytes")
	sha, err := client.SetDisplayPicture(ctx, picture)
	require.NoError(t, err)
	assert.Equal(t, msnp.NewDisplayPictureObject(msnptest.TestEmail, picture).SHA1D, sha)

	// The picture is cached under its SHA1D, so requesting an object with
	// the same hash is served locally without a switchboard session.
	obj := msnp.NewDisplayPictureObject(msnptest.Contact, picture)
	data, err := client.RequestContactDisplayPicture(ctx, msnptest.Contact, obj.String())
	require.NoError(t, err)
	assert.Equal(t, picture, data)

	event := waitForEvent[msnp.DisplayPicture](t, events)
	assert.Equal(t, msnptest.Contact, event.Email)
	assert.Equal(t, picture, event.Data)
}

// p2pClient builds a signed-in client without a notification server; the
// display picture transfer only touches the switchboard.
func p2pClient(t *testing.T, email string) *Client {
	pictures, err := lru.New[string, []byte](8)
	require.NoError(t, err)

	return &Client{
		dialTimeout:  5 * time.Second,
		log:          zerolog.Nop(),
		events:       make(chan msnp.Event, 64),
		switchboards: make(map[string]*Switchboard),
		pictures:     pictures,
		email:        email,
		loggedIn:     true,
	}
}

func TestDisplayPictureTransfer(t *testing.T) {
	serving := p2pClient(t, msnptest.TestEmail)
	requesting := p2pClient(t, msnptest.Contact)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Three data chunks.
	picture := bytes.Repeat([]byte("jfif"), 800)
	_, err := serving.SetDisplayPicture(ctx, picture)
	require.NoError(t, err)

	relay := msnptest.NewRelay(t)
	host, port := relay.Host()

	sbServe, err := newSwitchboard(serving, host, port, "cki")
	require.NoError(t, err)
	t.Cleanup(sbServe.Disconnect)
	require.NoError(t, sbServe.login(ctx, msnptest.TestEmail))

	sbRequest, err := newSwitchboard(requesting, host, port, "cki")
	require.NoError(t, err)
	t.Cleanup(sbRequest.Disconnect)
	require.NoError(t, sbRequest.login(ctx, msnptest.Contact))

	obj := msnp.NewDisplayPictureObject(msnptest.TestEmail, picture)
	data, err := sbRequest.RequestDisplayPicture(ctx, msnptest.TestEmail, obj.String())
	require.NoError(t, err)
	assert.Equal(t, picture, data)

	cached, ok := requesting.pictures.Get(obj.SHA1D)
	require.True(t, ok)
	assert.Equal(t, picture, cached)

	event := waitForEvent[msnp.DisplayPicture](t, requesting.events)
	assert.Equal(t, msnptest.TestEmail, event.Email)
	assert.Equal(t, picture, event.Data)

	// Invite ack, 200 OK, data preparation, three chunks and the BYE ack.
	require.Eventually(t, func() bool {
		return len(relay.Sent(msnptest.TestEmail)) >= 7
	}, 5*time.Second, 10*time.Millisecond)

	// Every frame of the serving side is addressed to the requester,
	// acknowledgements included.
	for _, payload := range relay.Sent(msnptest.TestEmail) {
		assert.Contains(t, string(payload), "P2P-Dest: "+msnptest.Contact+"\r\n")
	}
}
