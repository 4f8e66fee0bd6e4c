package msnp

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itoa(n int) string {
	return strconv.Itoa(n)
}

func nsCommand(t *testing.T, wire string) *Command {
	t.Helper()
	parser := &ParserStream{}
	defer parser.Close()

	var cmds []*Command
	require.NoError(t, parser.ParseStream([]byte(wire), func(cmd *Command) {
		cmds = append(cmds, cmd)
	}))
	require.Len(t, cmds, 1)
	return cmds[0]
}

const maintenancePayload = "MIME-Version: 1.0\r\n" +
	"Content-Type: application/x-msmsgssystemmessage\r\n\r\n" +
	"Type: 1\r\nArg1: 15\r\n"

func TestClassifyNS(t *testing.T) {
	for _, c := range []struct {
		Name  string
		Wire  string
		Event Event
	}{
		{
			Name:  "GTC setting",
			Wire:  "GTC A\r\n",
			Event: GTC{Setting: "A"},
		},
		{
			Name:  "GTC reply is not an event",
			Wire:  "GTC 7 N\r\n",
			Event: nil,
		},
		{
			Name:  "BLP setting",
			Wire:  "BLP AL\r\n",
			Event: BLP{Setting: "AL"},
		},
		{
			Name:  "display name",
			Wire:  "PRP MFN My%20Name\r\n",
			Event: DisplayName{Name: "My Name"},
		},
		{
			Name:  "group",
			Wire:  "LSG Mock%20Contacts 124153dc-a695-4f6c-93e8-8e07c9775251\r\n",
			Event: Group{Name: "Mock Contacts", GUID: "124153dc-a695-4f6c-93e8-8e07c9775251"},
		},
		{
			Name: "forward list contact",
			Wire: "LST N=bob@passport.com F=Bob C=6bd736b8-dc18-44c6-ad61-8cd12d641e79 13 124153dc-a695-4f6c-93e8-8e07c9775251\r\n",
			Event: ContactInForwardList{
				Email:       "bob@passport.com",
				DisplayName: "Bob",
				GUID:        "6bd736b8-dc18-44c6-ad61-8cd12d641e79",
				Lists:       []List{ForwardList, BlockList, ReverseList},
				Groups:      []string{"124153dc-a695-4f6c-93e8-8e07c9775251"},
			},
		},
		{
			Name: "contact outside the forward list",
			Wire: "LST N=fred@passport.com F=Fred 2\r\n",
			Event: Contact{
				Email:       "fred@passport.com",
				DisplayName: "Fred",
				Lists:       []List{AllowList},
			},
		},
		{
			Name: "initial presence",
			Wire: "ILN 7 NLN bob@passport.com Bob 1073741824 %3Cmsnobj%20Creator%3D%22\r\n",
			Event: InitialPresenceUpdate{
				Email:       "bob@passport.com",
				DisplayName: "Bob",
				Presence: Presence{
					Status:    StatusOnline,
					ClientID:  1073741824,
					MsnObject: `<msnobj Creator="`,
				},
			},
		},
		{
			Name: "presence change",
			Wire: "NLN AWY bob@passport.com Bob 1073741824\r\n",
			Event: PresenceUpdate{
				Email:       "bob@passport.com",
				DisplayName: "Bob",
				Presence:    Presence{Status: StatusAway, ClientID: 1073741824},
			},
		},
		{
			Name: "personal message",
			Wire: "UBX bob@passport.com 70\r\n<Data><PSM>my msn all ducked</PSM><CurrentMedia></CurrentMedia></Data>",
			Event: PersonalMessageUpdate{
				Email:           "bob@passport.com",
				PersonalMessage: PersonalMessage{PSM: "my msn all ducked"},
			},
		},
		{
			Name:  "contact offline",
			Wire:  "FLN bob@passport.com\r\n",
			Event: ContactOffline{Email: "bob@passport.com"},
		},
		{
			Name:  "added by",
			Wire:  "ADC 0 RL N=fred@passport.com F=Fred\r\n",
			Event: AddedBy{Email: "fred@passport.com", DisplayName: "Fred"},
		},
		{
			Name:  "removed by",
			Wire:  "REM 0 RL N=fred@passport.com\r\n",
			Event: RemovedBy{Email: "fred@passport.com"},
		},
		{
			Name: "server maintenance",
			Wire: "MSG Hotmail Hotmail " + itoa(len(maintenancePayload)) + "\r\n" + maintenancePayload,
			Event: ServerMaintenance{Minutes: 15},
		},
		{
			Name:  "signed out",
			Wire:  "OUT\r\n",
			Event: Disconnected{},
		},
		{
			Name:  "signed in elsewhere",
			Wire:  "OUT OTH\r\n",
			Event: LoggedInAnotherDevice{},
		},
		{
			Name:  "replies yield nothing",
			Wire:  "QNG 60\r\n",
			Event: nil,
		},
	} {
		t.Run(c.Name, func(t *testing.T) {
			assert.Equal(t, c.Event, ClassifyNS(nsCommand(t, c.Wire)))
		})
	}
}

func TestParseInvitation(t *testing.T) {
	cmd := nsCommand(t, "RNG 11752013 127.0.0.1:1864 CKI 123456 bob@passport.com Bob\r\n")

	invitation, ok := ParseInvitation(cmd)
	require.True(t, ok)
	assert.Equal(t, Invitation{
		Server:    "127.0.0.1",
		Port:      1864,
		SessionID: "11752013",
		CKIString: "123456",
	}, invitation)

	_, ok = ParseInvitation(nsCommand(t, "RNG 11752013 127.0.0.1:1864\r\n"))
	assert.False(t, ok)

	_, ok = ParseInvitation(nsCommand(t, "QNG 60\r\n"))
	assert.False(t, ok)
}

func TestClassifySB(t *testing.T) {
	textPayload := "MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"X-MMS-IM-Format: FN=Microsoft%20Sans%20Serif; EF=B; CO=ff0000; CS=0; PF=22\r\n\r\nhello"

	for _, c := range []struct {
		Name  string
		Wire  string
		Event Event
	}{
		{
			Name: "text message",
			Wire: "MSG bob@passport.com Bob " + itoa(len(textPayload)) + "\r\n" + textPayload,
			Event: TextMessage{
				SessionID: "11752013",
				Email:     "bob@passport.com",
				Message: PlainText{
					Bold:  true,
					Color: "ff",
					Text:  "hello",
				},
			},
		},
		{
			Name:  "nudge",
			Wire:  "MSG bob@passport.com Bob " + itoa(len(NudgePayload)) + "\r\n" + string(NudgePayload),
			Event: Nudge{SessionID: "11752013", Email: "bob@passport.com"},
		},
		{
			Name: "typing notification",
			Wire: "MSG bob@passport.com Bob " + itoa(len(TypingPayload("bob@passport.com"))) + "\r\n" +
				string(TypingPayload("bob@passport.com")),
			Event: TypingNotification{SessionID: "11752013", Email: "bob@passport.com"},
		},
		{
			Name:  "own send echo is skipped",
			Wire:  "MSG 3 A " + itoa(len(textPayload)) + "\r\n" + textPayload,
			Event: nil,
		},
		{
			Name:  "participant joined",
			Wire:  "JOI bob@passport.com Bob\r\n",
			Event: ParticipantInSwitchboard{SessionID: "11752013", Email: "bob@passport.com"},
		},
		{
			Name:  "participant in answer roster",
			Wire:  "IRO 1 1 1 bob@passport.com Bob\r\n",
			Event: ParticipantInSwitchboard{SessionID: "11752013", Email: "bob@passport.com"},
		},
		{
			Name:  "participant left",
			Wire:  "BYE bob@passport.com\r\n",
			Event: ParticipantLeftSwitchboard{SessionID: "11752013", Email: "bob@passport.com"},
		},
		{
			Name:  "ack carries no event",
			Wire:  "ACK 3\r\n",
			Event: nil,
		},
	} {
		t.Run(c.Name, func(t *testing.T) {
			assert.Equal(t, c.Event, ClassifySB(nsCommand(t, c.Wire), "11752013"))
		})
	}
}
