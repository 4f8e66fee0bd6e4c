package msnp

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// BinaryHeaderSize is the fixed size of the header preceding every P2P body.
const BinaryHeaderSize = 48

// P2P header flags.
const (
	P2PFlagNone         uint32 = 0x00
	P2PFlagAck          uint32 = 0x02
	P2PFlagData         uint32 = 0x20
	P2PFlagDataAlt      uint32 = 0x1000020
	P2PFooterSize              = 4
	DisplayPictureChunk        = 1202
)

// BinaryHeader is the 48 byte little-endian header of a P2P message.
type BinaryHeader struct {
	SessionID     uint32
	Identifier    uint32
	DataOffset    uint64
	TotalDataSize uint64
	Length        uint32
	Flag          uint32
	AckIdentifier uint32
	AckUniqueID   uint32
	AckDataSize   uint64
}

// ReadBinaryHeader decodes the header from the start of payload.
func ReadBinaryHeader(payload []byte) (BinaryHeader, error) {
	if len(payload) < BinaryHeaderSize {
		return BinaryHeader{}, ErrBinaryHeaderReading
	}

	return BinaryHeader{
		SessionID:     binary.LittleEndian.Uint32(payload[0:4]),
		Identifier:    binary.LittleEndian.Uint32(payload[4:8]),
		DataOffset:    binary.LittleEndian.Uint64(payload[8:16]),
		TotalDataSize: binary.LittleEndian.Uint64(payload[16:24]),
		Length:        binary.LittleEndian.Uint32(payload[24:28]),
		Flag:          binary.LittleEndian.Uint32(payload[28:32]),
		AckIdentifier: binary.LittleEndian.Uint32(payload[32:36]),
		AckUniqueID:   binary.LittleEndian.Uint32(payload[36:40]),
		AckDataSize:   binary.LittleEndian.Uint64(payload[40:48]),
	}, nil
}

// Bytes encodes the header.
func (h BinaryHeader) Bytes() []byte {
	buf := make([]byte, BinaryHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.SessionID)
	binary.LittleEndian.PutUint32(buf[4:8], h.Identifier)
	binary.LittleEndian.PutUint64(buf[8:16], h.DataOffset)
	binary.LittleEndian.PutUint64(buf[16:24], h.TotalDataSize)
	binary.LittleEndian.PutUint32(buf[24:28], h.Length)
	binary.LittleEndian.PutUint32(buf[28:32], h.Flag)
	binary.LittleEndian.PutUint32(buf[32:36], h.AckIdentifier)
	binary.LittleEndian.PutUint32(buf[36:40], h.AckUniqueID)
	binary.LittleEndian.PutUint64(buf[40:48], h.AckDataSize)
	return buf
}

// P2PKind classifies an inbound P2P message for the display picture engine.
type P2PKind int

const (
	// P2PShouldAck covers the 200 OK and data preparation messages, both
	// of which the receiving side acknowledges and otherwise ignores.
	P2PShouldAck P2PKind = iota + 1
	P2PData
	P2PInvite
	P2PBye
)

// P2PMessage is an inbound application/x-msnmsgrp2p frame.
type P2PMessage struct {
	Kind        P2PKind
	Destination string
	Header      BinaryHeader

	// Binary is the header plus body as received. For P2PData the four
	// byte footer is already stripped.
	Binary []byte
}

// Body returns the bytes after the binary header.
func (m *P2PMessage) Body() []byte {
	if len(m.Binary) <= BinaryHeaderSize {
		return nil
	}
	return m.Binary[BinaryHeaderSize:]
}

// ParseP2P interprets a switchboard MSG payload as a P2P frame. It returns
// nil when the payload is not application/x-msnmsgrp2p or is too short to
// carry a header and footer.
func ParseP2P(payload []byte) *P2PMessage {
	head, _, found := bytes.Cut(payload, []byte("\r\n\r\n"))
	if !found {
		return nil
	}

	headStr := string(head)
	if !strings.Contains(headStr, ContentTypeP2P) {
		return nil
	}

	var dest string
	for _, line := range strings.Split(headStr, "\r\n") {
		if v, ok := strings.CutPrefix(line, "P2P-Dest: "); ok {
			dest = strings.TrimSpace(v)
			break
		}
	}
	if dest == "" {
		return nil
	}

	binaryPayload := payload[len(head)+4:]
	if len(binaryPayload) < BinaryHeaderSize+P2PFooterSize {
		return nil
	}

	header, err := ReadBinaryHeader(binaryPayload)
	if err != nil {
		return nil
	}

	msg := &P2PMessage{Destination: dest, Header: header, Binary: binaryPayload}
	body := binaryPayload[BinaryHeaderSize:]

	slp := string(body)
	switch {
	// The data preparation frame is recognized by its size and flag alone;
	// the four content bytes are not specified and some peers fill them.
	case header.TotalDataSize == 4 && header.Flag == P2PFlagNone,
		strings.Contains(slp, "200 OK"):
		msg.Kind = P2PShouldAck

	case header.Flag == P2PFlagData || header.Flag == P2PFlagDataAlt:
		msg.Kind = P2PData
		msg.Binary = binaryPayload[:len(binaryPayload)-P2PFooterSize]

	case strings.Contains(slp, "INVITE"):
		msg.Kind = P2PInvite

	case strings.Contains(slp, "BYE"):
		msg.Kind = P2PBye

	default:
		return nil
	}

	return msg
}

// P2PEnvelope wraps a binary P2P message in the MIME envelope carried by
// MSG <tr> D commands.
func P2PEnvelope(destination string, message []byte) []byte {
	var b bytes.Buffer
	b.Grow(len(message) + 96)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: " + ContentTypeP2P + "\r\n")
	b.WriteString("P2P-Dest: " + destination + "\r\n\r\n")
	b.Write(message)
	return b.Bytes()
}

// AcknowledgeP2P builds the control acknowledgement for a received P2P
// payload, header included. The identifier is the bitwise complement of the
// acknowledged identifier, observable on the wire and required by the
// official peer.
func AcknowledgeP2P(payload []byte) ([]byte, error) {
	header, err := ReadBinaryHeader(payload)
	if err != nil {
		return nil, err
	}

	ack := BinaryHeader{
		SessionID:     header.SessionID,
		Identifier:    ^header.Identifier,
		TotalDataSize: header.TotalDataSize,
		Flag:          P2PFlagAck,
		AckIdentifier: header.Identifier + 1,
		AckUniqueID:   header.AckUniqueID,
		AckDataSize:   header.AckDataSize,
	}

	out := ack.Bytes()
	out = append(out, 0, 0, 0, 0)
	return out, nil
}
