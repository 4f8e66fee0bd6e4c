package msnp

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"strconv"
	"strings"
)

// MsnObject describes a binary resource, in practice a display picture,
// serialized as a self-closing <msnobj/> tag in CHG and ILN/NLN arguments
// and inside P2P invite contexts.
type MsnObject struct {
	XMLName     xml.Name `xml:"msnobj"`
	Creator     string   `xml:"Creator,attr"`
	Size        uint32   `xml:"Size,attr"`
	Type        uint16   `xml:"Type,attr"`
	Location    string   `xml:"Location,attr"`
	Friendly    string   `xml:"Friendly,attr"`
	SHA1D       string   `xml:"SHA1D,attr"`
	SHA1C       string   `xml:"SHA1C,attr,omitempty"`
	ContentType string   `xml:"contenttype,attr,omitempty"`
}

const (
	// Display picture object type and canonical attribute values used by
	// the official clients.
	displayPictureType     = 3
	displayPictureLocation = "PIC.tmp"

	// Friendly is a base64 UTF-16LE empty string.
	displayPictureFriendly = "AAA="
)

// NewDisplayPictureObject builds the MsnObject for a display picture owned
// by creator. SHA1D digests the picture bytes; SHA1C digests the canonical
// concatenation of the other attributes, both base64 standard encoded.
func NewDisplayPictureObject(creator string, picture []byte) MsnObject {
	sha1d := base64Sha1(picture)

	obj := MsnObject{
		Creator:  creator,
		Size:     uint32(len(picture)),
		Type:     displayPictureType,
		Location: displayPictureLocation,
		Friendly: displayPictureFriendly,
		SHA1D:    sha1d,
	}
	obj.SHA1C = base64Sha1([]byte(obj.sha1cInput()))
	return obj
}

func (o MsnObject) sha1cInput() string {
	return "Creator" + o.Creator +
		"Size" + strconv.FormatUint(uint64(o.Size), 10) +
		"Type" + strconv.FormatUint(uint64(o.Type), 10) +
		"Location" + o.Location +
		"Friendly" + o.Friendly +
		"SHA1D" + o.SHA1D
}

// String renders the self-closing <msnobj/> tag. Peers compare the literal
// string when validating P2P invite contexts, so the attribute order and
// form are fixed here rather than left to encoding/xml, which would emit a
// paired tag.
func (o MsnObject) String() string {
	var b strings.Builder
	b.WriteString(`<msnobj Creator="`)
	b.WriteString(o.Creator)
	b.WriteString(`" Size="`)
	b.WriteString(strconv.FormatUint(uint64(o.Size), 10))
	b.WriteString(`" Type="`)
	b.WriteString(strconv.FormatUint(uint64(o.Type), 10))
	b.WriteString(`" Location="`)
	b.WriteString(o.Location)
	b.WriteString(`" Friendly="`)
	b.WriteString(o.Friendly)
	b.WriteString(`" SHA1D="`)
	b.WriteString(o.SHA1D)
	b.WriteString(`" SHA1C="`)
	b.WriteString(o.SHA1C)
	b.WriteString(`"/>`)
	return b.String()
}

// ParseMsnObject parses an <msnobj/> string as carried in NLN or a P2P
// invite context.
func ParseMsnObject(s string) (MsnObject, error) {
	var obj MsnObject
	if err := xml.Unmarshal([]byte(s), &obj); err != nil {
		return MsnObject{}, err
	}
	return obj, nil
}

func base64Sha1(data []byte) string {
	sum := sha1.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}
