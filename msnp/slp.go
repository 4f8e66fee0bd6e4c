package msnp

import (
	"encoding/base64"
	"errors"
	"math/rand"
	"strconv"
	"strings"

	guuid "github.com/google/uuid"
	uuid "github.com/satori/go.uuid"
)

// EUFGuid identifies the display picture application in SLP invites.
const EUFGuid = "{A4268EEC-FEC5-49E5-95C3-F126696BDBF6}"

var ErrSLPInvite = errors.New("could not parse P2P invite")

// DisplayPictureSession holds the identifiers of one MSNSLP display picture
// exchange: the random session id, the per-direction base identifier and the
// SIP-ish branch and call id. Identifiers derived from the base are strictly
// increasing across the session's messages.
type DisplayPictureSession struct {
	sessionID      uint32
	baseIdentifier uint32
	branch         string
	callID         string
}

// NewDisplayPictureSession starts a requester-side session. The branch and
// call id are generated by Invite.
func NewDisplayPictureSession() *DisplayPictureSession {
	return &DisplayPictureSession{
		baseIdentifier: rand.Uint32(),
	}
}

// NewSessionFromInvite starts a serve-side session from a received INVITE,
// adopting the peer's branch, call id and session id.
func NewSessionFromInvite(invite []byte) (*DisplayPictureSession, error) {
	lines := strings.Split(string(invite), "\r\n")

	find := func(prefix string) (string, bool) {
		for _, line := range lines {
			if v, ok := strings.CutPrefix(line, prefix); ok {
				return v, true
			}
		}
		return "", false
	}

	branch, ok := find("Via: MSNSLP/1.0/TLP ;branch={")
	if !ok {
		return nil, ErrSLPInvite
	}

	callID, ok := find("Call-ID: {")
	if !ok {
		return nil, ErrSLPInvite
	}

	sessionStr, ok := find("SessionID: ")
	if !ok {
		return nil, ErrSLPInvite
	}
	sessionID, err := strconv.ParseUint(strings.TrimSpace(sessionStr), 10, 32)
	if err != nil {
		return nil, ErrSLPInvite
	}

	return &DisplayPictureSession{
		sessionID:      uint32(sessionID),
		baseIdentifier: rand.Uint32(),
		branch:         strings.TrimSuffix(branch, "}"),
		callID:         strings.TrimSuffix(callID, "}"),
	}, nil
}

// SessionID returns the session id negotiated by the invite.
func (s *DisplayPictureSession) SessionID() uint32 {
	return s.sessionID
}

// InviteContext is the Context value announcing msnObject: standard base64
// of the XML plus a terminating NUL.
func InviteContext(msnObject string) string {
	return base64.StdEncoding.EncodeToString(append([]byte(msnObject), 0))
}

// Invite builds the INVITE requesting the picture described by msnObject,
// binary header and footer included. A fresh branch, call id and session id
// are generated.
func (s *DisplayPictureSession) Invite(to, from, msnObject string) []byte {
	s.branch = strings.ToUpper(uuid.Must(uuid.NewV4()).String())
	s.callID = strings.ToUpper(guuid.NewString())
	s.sessionID = rand.Uint32()

	var body strings.Builder
	body.WriteString("EUF-GUID: " + EUFGuid + "\r\n")
	body.WriteString("SessionID: " + strconv.FormatUint(uint64(s.sessionID), 10) + "\r\n")
	body.WriteString("AppID: 1\r\n")
	body.WriteString("Context: " + InviteContext(msnObject) + "\r\n\r\n\x00")

	message := s.slpMessage("INVITE MSNMSGR:"+to+" MSNSLP/1.0", to, from, 0, body.String())
	return s.control(message, s.baseIdentifier, s.baseIdentifier+1)
}

// OK builds the 200 OK accepting an invite for our session id.
func (s *DisplayPictureSession) OK(to, from string) []byte {
	var body strings.Builder
	body.WriteString("EUF-GUID: " + EUFGuid + "\r\n")
	body.WriteString("SessionID: " + strconv.FormatUint(uint64(s.sessionID), 10) + "\r\n\r\n\x00")

	message := s.slpMessage("MSNSLP/1.0 200 OK", to, from, 1, body.String())
	return s.control(message, s.baseIdentifier+1, s.baseIdentifier+1)
}

// Decline builds the 603 Decline for an invite we will not serve.
func (s *DisplayPictureSession) Decline(to, from string) []byte {
	body := "SessionID: " + strconv.FormatUint(uint64(s.sessionID), 10) + "\r\n\r\n\x00"
	message := s.slpMessage("MSNSLP/1.0 603 Decline", to, from, 1, body)
	return s.control(message, s.baseIdentifier+1, s.baseIdentifier+1)
}

// Bye builds the BYE ending the session. No reply is expected by the sender.
func (s *DisplayPictureSession) Bye(to, from string) []byte {
	message := s.slpMessage("BYE MSNMSGR:"+to+" MSNSLP/1.0", to, from, 0, "\r\n\x00")
	return s.control(message, s.baseIdentifier+4, s.baseIdentifier+4)
}

// DataPreparation builds the four zero byte message announcing the data
// transfer. Receivers trust the total size and flag, not the content.
func (s *DisplayPictureSession) DataPreparation() []byte {
	header := BinaryHeader{
		SessionID:     s.sessionID,
		Identifier:    s.baseIdentifier + 2,
		TotalDataSize: 4,
		Length:        4,
		Flag:          P2PFlagNone,
		AckIdentifier: s.baseIdentifier + 2,
	}

	out := header.Bytes()
	out = append(out, 0, 0, 0, 0)
	out = append(out, 0, 0, 0, 1)
	return out
}

// Data splits the picture into 1202 byte chunks, each a complete P2P
// message with ascending data offsets and the data footer.
func (s *DisplayPictureSession) Data(picture []byte) [][]byte {
	total := uint64(len(picture))
	var payloads [][]byte

	for offset := uint64(0); offset < total; {
		chunk := picture[offset:]
		if len(chunk) > DisplayPictureChunk {
			chunk = chunk[:DisplayPictureChunk]
		}

		header := BinaryHeader{
			SessionID:     s.sessionID,
			Identifier:    s.baseIdentifier + 3,
			DataOffset:    offset,
			TotalDataSize: total,
			Length:        uint32(len(chunk)),
			Flag:          P2PFlagData,
			AckIdentifier: s.baseIdentifier + 3,
		}

		payload := header.Bytes()
		payload = append(payload, chunk...)
		payload = append(payload, 0, 0, 0, 1)
		payloads = append(payloads, payload)

		offset += uint64(len(chunk))
	}

	return payloads
}

func (s *DisplayPictureSession) slpMessage(startLine, to, from string, cseq int, body string) string {
	var b strings.Builder
	b.WriteString(startLine + "\r\n")
	b.WriteString("To: <msnmsgr:" + to + ">\r\n")
	b.WriteString("From: <msnmsgr:" + from + ">\r\n")
	b.WriteString("Via: MSNSLP/1.0/TLP ;branch={" + s.branch + "}\r\n")
	b.WriteString("CSeq: " + strconv.Itoa(cseq) + "\r\n")
	b.WriteString("Call-ID: {" + s.callID + "}\r\n")
	b.WriteString("Max-Forwards: 0\r\n")
	b.WriteString("Content-Type: application/x-msnmsgr-sessionreqbody\r\n")
	b.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n")
	b.WriteString(body)
	return b.String()
}

// control wraps an SLP message in a session zero P2P header plus the
// control footer. Responses stamp their own identifier in the ack field;
// only the INVITE points one past it.
func (s *DisplayPictureSession) control(message string, identifier, ackIdentifier uint32) []byte {
	header := BinaryHeader{
		SessionID:     0,
		Identifier:    identifier,
		TotalDataSize: uint64(len(message)),
		Length:        uint32(len(message)),
		Flag:          P2PFlagNone,
		AckIdentifier: ackIdentifier,
	}

	out := header.Bytes()
	out = append(out, message...)
	out = append(out, 0, 0, 0, 0)
	return out
}
