package msnp

import (
	"strconv"
	"strings"
)

// Event is an application-visible protocol notification. Concrete types are
// the structs below plus SessionAnswered in the root package; consumers
// switch on the concrete type.
type Event interface{}

// Authenticated is returned by Login when the full handshake succeeded.
type Authenticated struct{}

// RedirectedTo is returned by Login when the server turned out to be a
// dispatch server. The caller connects to the carried address and logs in
// again.
type RedirectedTo struct {
	Server string
	Port   int
}

// Disconnected is delivered once when the connection to the server is lost.
type Disconnected struct{}

// LoggedInAnotherDevice is delivered when the server closes this session
// because the account signed in elsewhere.
type LoggedInAnotherDevice struct{}

// GTC is the server-stored prompt-on-add setting, "A" or "N".
type GTC struct {
	Setting string
}

// BLP is the server-stored default list setting, "AL" or "BL".
type BLP struct {
	Setting string
}

// DisplayName is the user's own display name stored in the server.
type DisplayName struct {
	Name string
}

// Group is a contact group from the roster synchronisation.
type Group struct {
	Name string
	GUID string
}

// Contact is a roster entry outside the forward list.
type Contact struct {
	Email       string
	DisplayName string
	Lists       []List
}

// ContactInForwardList is a roster entry with the forward list bit set,
// which additionally carries the server-assigned GUID and group membership.
type ContactInForwardList struct {
	Email       string
	DisplayName string
	GUID        string
	Lists       []List
	Groups      []string
}

// PresenceUpdate reports a contact changing status while we are online.
type PresenceUpdate struct {
	Email       string
	DisplayName string
	Presence    Presence
}

// InitialPresenceUpdate reports a contact's status right after our own
// presence change, from the ILN burst.
type InitialPresenceUpdate struct {
	Email       string
	DisplayName string
	Presence    Presence
}

// PersonalMessageUpdate reports a contact's personal message change.
type PersonalMessageUpdate struct {
	Email           string
	PersonalMessage PersonalMessage
}

// ContactOffline reports a contact signing off.
type ContactOffline struct {
	Email string
}

// AddedBy reports that a third party added us to their forward list.
type AddedBy struct {
	Email       string
	DisplayName string
}

// RemovedBy reports that a third party removed us from their forward list.
type RemovedBy struct {
	Email string
}

// ServerMaintenance announces downtime in the given number of minutes.
type ServerMaintenance struct {
	Minutes int
}

// TextMessage is an instant message received in a switchboard session.
type TextMessage struct {
	SessionID string
	Email     string
	Message   PlainText
}

// Nudge is a datacast received in a switchboard session.
type Nudge struct {
	SessionID string
	Email     string
}

// TypingNotification reports that a participant is writing.
type TypingNotification struct {
	SessionID string
	Email     string
}

// ParticipantInSwitchboard reports a contact joining a session, from JOI or
// from the IRO roster on answer.
type ParticipantInSwitchboard struct {
	SessionID string
	Email     string
}

// ParticipantLeftSwitchboard reports a contact leaving a session.
type ParticipantLeftSwitchboard struct {
	SessionID string
	Email     string
}

// DisplayPicture carries a contact's display picture after a P2P transfer.
type DisplayPicture struct {
	Email string
	Data  []byte
}

// Invitation is the RNG payload: an instruction to join a switchboard. It is
// consumed by the client, which answers it and surfaces SessionAnswered, so
// applications never see it.
type Invitation struct {
	Server    string
	Port      int
	SessionID string
	CKIString string
}

// ParseInvitation extracts the switchboard invitation from an RNG command.
func ParseInvitation(cmd *Command) (Invitation, bool) {
	if cmd.Verb != "RNG" || len(cmd.Args) < 4 || cmd.Arg(2) != "CKI" {
		return Invitation{}, false
	}

	server, port := ParseAddr(cmd.Arg(1))
	return Invitation{
		Server:    server,
		Port:      port,
		SessionID: cmd.Arg(0),
		CKIString: cmd.Arg(3),
	}, true
}

// ClassifyNS converts an unsolicited notification server command into an
// application event. Replies that a pending operation correlates on and
// commands with no application meaning yield nil. Short or malformed lines
// degrade to nil, never to a panic: the bytes are server controlled.
func ClassifyNS(cmd *Command) Event {
	switch cmd.Verb {
	case "GTC":
		// With a transaction id this is a reply, not the SYN setting.
		if len(cmd.Args) < 2 {
			return GTC{Setting: cmd.Arg(0)}
		}

	case "BLP":
		if len(cmd.Args) < 2 {
			return BLP{Setting: cmd.Arg(0)}
		}

	case "PRP":
		if len(cmd.Args) < 3 && cmd.Arg(0) == "MFN" {
			return DisplayName{Name: Unescape(cmd.Arg(1))}
		}

	case "LSG":
		if len(cmd.Args) >= 2 {
			return Group{Name: Unescape(cmd.Arg(0)), GUID: cmd.Arg(1)}
		}

	case "LST":
		return classifyLST(cmd)

	case "ILN":
		// ILN <tr> <status> <email> <name> <caps> [msnobj]
		if len(cmd.Args) < 5 {
			return nil
		}
		email, presence := classifyPresence(cmd.Args[1:])
		return InitialPresenceUpdate{
			Email:       email,
			DisplayName: displayNameOrEmail(cmd.Arg(3), email),
			Presence:    presence,
		}

	case "NLN":
		// NLN <status> <email> <name> <caps> [msnobj]
		if len(cmd.Args) < 4 {
			return nil
		}
		email, presence := classifyPresence(cmd.Args)
		return PresenceUpdate{
			Email:       email,
			DisplayName: displayNameOrEmail(cmd.Arg(2), email),
			Presence:    presence,
		}

	case "UBX":
		return PersonalMessageUpdate{
			Email:           cmd.Arg(0),
			PersonalMessage: ParsePersonalMessage(cmd.Payload),
		}

	case "FLN":
		return ContactOffline{Email: cmd.Arg(0)}

	case "ADC":
		if cmd.Arg(0) == "0" && cmd.Arg(1) == "RL" {
			return AddedBy{
				Email:       strings.TrimPrefix(cmd.Arg(2), "N="),
				DisplayName: Unescape(strings.TrimPrefix(cmd.Arg(3), "F=")),
			}
		}

	case "REM":
		if cmd.Arg(0) == "0" && cmd.Arg(1) == "RL" {
			return RemovedBy{Email: strings.TrimPrefix(cmd.Arg(2), "N=")}
		}

	case "MSG":
		return classifySystemMessage(cmd)

	case "OUT":
		if cmd.Arg(0) == "OTH" {
			return LoggedInAnotherDevice{}
		}
		return Disconnected{}
	}

	return nil
}

// classifyLST decodes a SYN roster line. The GUID field is present only for
// forward list members, which shifts the bitmask position:
//
//	LST N=<email> F=<name> C=<guid> <mask> [group,group]
//	LST N=<email> F=<name> <mask>
func classifyLST(cmd *Command) Event {
	maskIdx := 2
	if len(cmd.Args) > 3 {
		maskIdx = 3
	}

	mask, err := strconv.Atoi(cmd.Arg(maskIdx))
	if err != nil {
		return nil
	}

	email := strings.TrimPrefix(cmd.Arg(0), "N=")
	name := Unescape(strings.TrimPrefix(cmd.Arg(1), "F="))
	lists := ParseListMask(mask)

	if mask&int(ForwardList) == 0 {
		return Contact{Email: email, DisplayName: name, Lists: lists}
	}

	var groups []string
	if len(cmd.Args) > 4 {
		groups = strings.Split(cmd.Arg(4), ",")
	}
	return ContactInForwardList{
		Email:       email,
		DisplayName: name,
		GUID:        strings.TrimPrefix(cmd.Arg(2), "C="),
		Lists:       lists,
		Groups:      groups,
	}
}

// classifyPresence parses the tail common to ILN and NLN, starting at the
// status argument.
func classifyPresence(args []string) (email string, presence Presence) {
	presence.Status = ParseStatus(args[0])
	email = args[1]

	if len(args) > 3 {
		presence.ClientID, _ = strconv.ParseUint(args[3], 10, 64)
	}
	if len(args) > 4 {
		presence.MsnObject = Unescape(args[4])
	}
	return email, presence
}

func displayNameOrEmail(name, email string) string {
	if decoded := Unescape(name); decoded != "" {
		return decoded
	}
	return email
}

// classifySystemMessage recognizes the Hotmail maintenance announcement.
func classifySystemMessage(cmd *Command) Event {
	if cmd.Arg(0) != "Hotmail" {
		return nil
	}

	payload := string(cmd.Payload)
	if !strings.Contains(payload, ContentTypeSystemMessage) || !strings.Contains(payload, "Type: 1") {
		return nil
	}

	for _, line := range strings.Split(payload, "\r\n") {
		if v, ok := strings.CutPrefix(line, "Arg1: "); ok {
			minutes, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil
			}
			return ServerMaintenance{Minutes: minutes}
		}
	}
	return nil
}

// ClassifySB converts an unsolicited switchboard command into an application
// event stamped with the session id. P2P frames are not application events;
// the switchboard routes those through ParseP2P instead.
func ClassifySB(cmd *Command, sessionID string) Event {
	switch cmd.Verb {
	case "MSG":
		return classifySBMessage(cmd, sessionID)

	case "JOI":
		if email := cmd.Arg(0); email != "" {
			return ParticipantInSwitchboard{SessionID: sessionID, Email: email}
		}

	case "IRO":
		// IRO <tr> <index> <total> <email> <name>
		if email := cmd.Arg(3); email != "" {
			return ParticipantInSwitchboard{SessionID: sessionID, Email: email}
		}

	case "BYE":
		if email := cmd.Arg(0); email != "" {
			return ParticipantLeftSwitchboard{SessionID: sessionID, Email: email}
		}
	}

	return nil
}

func classifySBMessage(cmd *Command, sessionID string) Event {
	// Inbound messages are MSG <email> <name> <len>; a decimal first
	// argument is an echo of our own send and carries no event.
	email := cmd.Arg(0)
	if email == "" {
		return nil
	}
	if _, err := strconv.Atoi(email); err == nil {
		return nil
	}

	payload := string(cmd.Payload)
	head, body, _ := strings.Cut(payload, "\r\n\r\n")

	switch {
	case strings.Contains(head, ContentTypePlainText):
		return TextMessage{
			SessionID: sessionID,
			Email:     email,
			Message:   ParsePlainText(cmd.Payload),
		}

	case strings.Contains(head, ContentTypeDatacast):
		if strings.TrimRight(body, "\r\n") == "ID: 1" {
			return Nudge{SessionID: sessionID, Email: email}
		}

	case strings.Contains(head, ContentTypeControl):
		for _, line := range strings.Split(head, "\r\n") {
			if user, ok := strings.CutPrefix(line, "TypingUser: "); ok {
				return TypingNotification{SessionID: sessionID, Email: strings.TrimSpace(user)}
			}
		}
	}

	return nil
}
