package msnp

import "encoding/xml"

// PersonalMessage is the status text and "now playing" line shown next to a
// contact. On the wire it is the UBX/UUX payload.
type PersonalMessage struct {
	PSM          string
	CurrentMedia string
}

type personalMessageXML struct {
	XMLName      xml.Name `xml:"Data"`
	PSM          string   `xml:"PSM"`
	CurrentMedia string   `xml:"CurrentMedia"`
}

// Payload renders the UUX payload.
func (m *PersonalMessage) Payload() ([]byte, error) {
	return xml.Marshal(personalMessageXML{PSM: m.PSM, CurrentMedia: m.CurrentMedia})
}

// ParsePersonalMessage parses a UBX payload. Servers forward whatever the
// contact's client sent, so malformed XML degrades to an empty message
// instead of failing the event.
func ParsePersonalMessage(payload []byte) PersonalMessage {
	var doc personalMessageXML
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return PersonalMessage{}
	}
	return PersonalMessage{PSM: doc.PSM, CurrentMedia: doc.CurrentMedia}
}
