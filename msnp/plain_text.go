package msnp

import (
	"strconv"
	"strings"
)

// Content types carried in MSG payloads.
const (
	ContentTypePlainText     = "text/plain"
	ContentTypeDatacast      = "text/x-msnmsgr-datacast"
	ContentTypeControl       = "text/x-msmsgscontrol"
	ContentTypeP2P           = "application/x-msnmsgrp2p"
	ContentTypeSystemMessage = "application/x-msmsgssystemmessage"
)

// NudgePayload is the datacast body that makes the remote chat window shake.
var NudgePayload = []byte("MIME-Version: 1.0\r\nContent-Type: text/x-msnmsgr-datacast\r\n\r\nID: 1\r\n\r\n")

// TypingPayload is the control body announcing that email is typing.
func TypingPayload(email string) []byte {
	return []byte("MIME-Version: 1.0\r\nContent-Type: text/x-msmsgscontrol\r\nTypingUser: " + email + "\r\n\r\n\r\n")
}

// PlainText is an instant message with its formatting. Color is RGB hex as
// seen by the API; the wire uses BGR, converted on both paths.
type PlainText struct {
	Bold          bool
	Italic        bool
	Underline     bool
	Strikethrough bool
	Color         string
	Text          string
}

// swapRedBlue swaps the top and bottom bytes of a six digit hex color,
// converting RGB to BGR and back. The transform is its own inverse.
// Output is lowercase without leading zeros, as the official clients send.
func swapRedBlue(color string) string {
	c := strings.TrimPrefix(strings.TrimSpace(color), "#")
	for len(c) < 6 {
		c = "0" + c
	}
	if len(c) > 6 {
		return "0"
	}

	v, err := strconv.ParseUint(c, 16, 32)
	if err != nil {
		return "0"
	}

	swapped := (v&0x0000FF)<<16 | v&0x00FF00 | (v&0xFF0000)>>16
	return strconv.FormatUint(swapped, 16)
}

// Payload renders the MSG body for this message.
func (p *PlainText) Payload() []byte {
	var sb strings.Builder
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("X-MMS-IM-Format: FN=Microsoft%20Sans%20Serif; EF=")

	if p.Bold {
		sb.WriteString("B")
	}
	if p.Italic {
		sb.WriteString("I")
	}
	if p.Underline {
		sb.WriteString("U")
	}
	if p.Strikethrough {
		sb.WriteString("S")
	}

	sb.WriteString("; CO=")
	sb.WriteString(swapRedBlue(p.Color))
	sb.WriteString("; CS=1; PF=0\r\n\r\n")

	text := strings.ReplaceAll(p.Text, "\n", "\r\n")
	text = strings.ReplaceAll(text, "\r\r", "\r")
	sb.WriteString(text)

	return []byte(sb.String())
}

// ParsePlainText parses an incoming text/plain MSG body. Missing or odd
// format headers degrade to defaults; the text is everything after the
// blank line with CRLF folded to LF.
func ParsePlainText(payload []byte) PlainText {
	msg := string(payload)

	var p PlainText
	head, body, found := strings.Cut(msg, "\r\n\r\n")
	if found {
		p.Text = strings.ReplaceAll(body, "\r\n", "\n")
	}

	var format string
	for _, line := range strings.Split(head, "\r\n") {
		if strings.HasPrefix(line, "X-MMS-IM-Format: ") {
			format = strings.TrimPrefix(line, "X-MMS-IM-Format: ")
			break
		}
	}

	p.Color = "0"
	for _, field := range strings.Split(format, ";") {
		field = strings.TrimSpace(field)
		switch {
		case strings.HasPrefix(field, "EF="):
			effects := strings.TrimPrefix(field, "EF=")
			p.Bold = strings.Contains(effects, "B")
			p.Italic = strings.Contains(effects, "I")
			p.Underline = strings.Contains(effects, "U")
			p.Strikethrough = strings.Contains(effects, "S")
		case strings.HasPrefix(field, "CO="):
			p.Color = swapRedBlue(strings.TrimPrefix(field, "CO="))
		}
	}

	return p
}
