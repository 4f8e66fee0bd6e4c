package msnp

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInviteContext(t *testing.T) {
	obj := `<msnobj Creator="a" Size="1" Type="3" Location="PIC.tmp" Friendly="AAA=" SHA1D="x" SHA1C="y"/>`
	ctx := InviteContext(obj)

	decoded, err := base64.StdEncoding.DecodeString(ctx)
	require.NoError(t, err)
	assert.Equal(t, obj+"\x00", string(decoded))
}

func TestSessionInvite(t *testing.T) {
	session := NewDisplayPictureSession()
	obj := NewDisplayPictureObject("bob@passport.com", []byte("pic"))

	invite := session.Invite("bob@passport.com", "testing@example.com", obj.String())

	header, err := ReadBinaryHeader(invite)
	require.NoError(t, err)
	assert.Zero(t, header.SessionID)
	assert.Equal(t, session.baseIdentifier, header.Identifier)
	assert.EqualValues(t, len(invite)-BinaryHeaderSize-P2PFooterSize, header.Length)

	body := string(invite[BinaryHeaderSize : len(invite)-P2PFooterSize])
	assert.True(t, strings.HasPrefix(body, "INVITE MSNMSGR:bob@passport.com MSNSLP/1.0\r\n"))
	assert.Contains(t, body, "To: <msnmsgr:bob@passport.com>\r\n")
	assert.Contains(t, body, "From: <msnmsgr:testing@example.com>\r\n")
	assert.Contains(t, body, "EUF-GUID: "+EUFGuid+"\r\n")
	assert.Contains(t, body, "AppID: 1\r\n")
	assert.Contains(t, body, "Context: "+InviteContext(obj.String())+"\r\n")
	assert.True(t, strings.HasSuffix(body, "\x00"))
}

func TestNewSessionFromInvite(t *testing.T) {
	requester := NewDisplayPictureSession()
	obj := NewDisplayPictureObject("bob@passport.com", []byte("pic"))
	invite := requester.Invite("bob@passport.com", "testing@example.com", obj.String())

	serve, err := NewSessionFromInvite(invite[BinaryHeaderSize : len(invite)-P2PFooterSize])
	require.NoError(t, err)

	assert.Equal(t, requester.sessionID, serve.sessionID)
	assert.Equal(t, requester.branch, serve.branch)
	assert.Equal(t, requester.callID, serve.callID)

	_, err = NewSessionFromInvite([]byte("INVITE MSNMSGR:x MSNSLP/1.0\r\n\r\n"))
	require.ErrorIs(t, err, ErrSLPInvite)
}

func TestSessionIdentifierProgression(t *testing.T) {
	session := NewDisplayPictureSession()
	obj := NewDisplayPictureObject("bob@passport.com", []byte("pic"))
	header := func(payload []byte) BinaryHeader {
		h, err := ReadBinaryHeader(payload)
		require.NoError(t, err)
		return h
	}

	// Responses carry their own identifier in the ack field; the invite
	// points one past its own.
	invite := header(session.Invite("bob@passport.com", "testing@example.com", obj.String()))
	base := session.baseIdentifier
	assert.Equal(t, base, invite.Identifier)
	assert.Equal(t, base+1, invite.AckIdentifier)

	ok := header(session.OK("bob@passport.com", "testing@example.com"))
	assert.Equal(t, base+1, ok.Identifier)
	assert.Equal(t, ok.Identifier, ok.AckIdentifier)

	decline := header(session.Decline("bob@passport.com", "testing@example.com"))
	assert.Equal(t, base+1, decline.Identifier)
	assert.Equal(t, decline.Identifier, decline.AckIdentifier)

	prep := header(session.DataPreparation())
	assert.Equal(t, base+2, prep.Identifier)
	assert.Equal(t, prep.Identifier, prep.AckIdentifier)

	bye := header(session.Bye("bob@passport.com", "testing@example.com"))
	assert.Equal(t, base+4, bye.Identifier)
	assert.Equal(t, bye.Identifier, bye.AckIdentifier)

	for _, chunk := range session.Data(make([]byte, 100)) {
		h := header(chunk)
		assert.Equal(t, base+3, h.Identifier)
		assert.Equal(t, h.Identifier, h.AckIdentifier)
	}
}

func TestDataPreparation(t *testing.T) {
	session := NewDisplayPictureSession()
	prep := session.DataPreparation()

	header, err := ReadBinaryHeader(prep)
	require.NoError(t, err)
	assert.EqualValues(t, 4, header.TotalDataSize)
	assert.EqualValues(t, 4, header.Length)

	// Four zero data bytes plus the data footer.
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 1}, prep[BinaryHeaderSize:])
}

func TestDataChunking(t *testing.T) {
	session := NewDisplayPictureSession()
	session.sessionID = 11752013

	picture := make([]byte, 2*DisplayPictureChunk+100)
	for i := range picture {
		picture[i] = byte(i)
	}

	chunks := session.Data(picture)
	require.Len(t, chunks, 3)

	var reassembled []byte
	var offset uint64
	for i, chunk := range chunks {
		header, err := ReadBinaryHeader(chunk)
		require.NoError(t, err)

		assert.EqualValues(t, 11752013, header.SessionID)
		assert.Equal(t, offset, header.DataOffset)
		assert.EqualValues(t, len(picture), header.TotalDataSize)
		assert.Equal(t, P2PFlagData, header.Flag)

		body := chunk[BinaryHeaderSize : len(chunk)-P2PFooterSize]
		require.EqualValues(t, header.Length, len(body))
		if i < 2 {
			assert.Len(t, body, DisplayPictureChunk)
		} else {
			assert.Len(t, body, 100)
		}

		assert.Equal(t, []byte{0, 0, 0, 1}, chunk[len(chunk)-P2PFooterSize:])

		reassembled = append(reassembled, body...)
		offset += uint64(len(body))
	}

	assert.Equal(t, picture, reassembled)
	assert.Empty(t, session.Data(nil))
}
