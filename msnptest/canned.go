package msnptest

import (
	"github.com/campos02/msnp11-sdk/msnp"
)

// Accounts and tokens of the scripted session.
const (
	TestEmail = "testing@example.com"
	Contact   = "bob@passport.com"
	CKI       = "123456"
	SessionID = "11752013"
)

// ReceiveRNG is a GTC setting the scripted notification server treats as a
// trigger: it echoes the command and then rings the client.
const ReceiveRNG = "ReceiveRNG"

// NSExchange scripts a full notification server session: the login
// handshake, the roster burst, presence, personal messages, contact adds and
// a switchboard referral. sbAddr is the switchboard address handed out by
// XFR and RNG. Transaction ids follow a client that logs in first and then
// issues one more command.
func NSExchange(sbAddr string) Exchange {
	personalMessage, _ := (&msnp.PersonalMessage{PSM: "test"}).Payload()

	return Exchange{
		Key("VER", "1", "MSNP11", "CVR0"): {
			"VER 1 MSNP11\r\n",
		},
		Key("CVR", "2", "0x0409", "winnt", "10", "i386", "msnp11-sdk", "0.7", "msmsgs", TestEmail): {
			"CVR 2 1.0.0000 1.0.0000 7.0.0425\r\n",
		},
		Key("USR", "3", "TWN", "I", TestEmail): {
			"USR 3 TWN S ct=1,rver=1,wp=FS_40SEC_0_COMPACT,lc=1,id=1\r\n",
		},
		Key("USR", "4", "TWN", "S", Ticket): {
			"USR 4 OK " + TestEmail + " Testing 1 0\r\n",
		},
		Key("SYN", "5", "0", "0"): {
			"SYN 5 0 0 2 1\r\n",
			"GTC A\r\n",
			"BLP AL\r\n",
			"PRP MFN Testing\r\n",
			"LSG Mock%20Contacts 124153dc-a695-4f6c-93e8-8e07c9775251\r\n",
			"LST N=" + Contact + " F=Bob C=6bd736b8-dc18-44c6-ad61-8cd12d641e79 13 124153dc-a695-4f6c-93e8-8e07c9775251\r\n",
			"LST N=fred@passport.com F=Fred 2\r\n",
		},
		Key("GCF", "6", "Shields.xml"): {
			"GCF 6 Shields.xml 33\r\n</shield><block></block></config>",
		},
		Key("CHG", "7", "NLN", "1073741824"): {
			"CHG 7 NLN 1073741824\r\n",
			"ILN 7 NLN " + Contact + " Bob 1073741824 %3Cmsnobj%20Creator%3D%22\r\n",
			"NLN NLN " + Contact + " Bob 1073741824 %3Cmsnobj%20Creator%3D%22\r\n",
			"UBX " + Contact + " 70\r\n<Data><PSM>my msn all ducked</PSM><CurrentMedia></CurrentMedia></Data>",
		},
		PayloadKey(personalMessage, "UUX", "8"): {
			"UUX 8 0\r\n",
		},
		Key("PNG"): {
			"QNG 60\r\n",
		},
		Key("ADC", "7", "FL", "N="+Contact, "F=Bob"): {
			"ADC 7 FL N=" + Contact + " F=Bob C=6bd736b8-dc18-44c6-ad61-8cd12d641e79\r\n",
			"ADC 0 RL N=fred@passport.com F=Fred\r\n",
		},
		Key("ADC", "8", "AL", "N=fred@passport.com"): {
			"ADC 8 AL N=fred@passport.com\r\n",
		},
		Key("XFR", "7", "SB"): {
			"XFR 7 SB " + sbAddr + " CKI " + CKI + "\r\n",
		},
		Key("GTC", "7", ReceiveRNG): {
			"GTC 7 " + ReceiveRNG + "\r\n",
			"RNG " + SessionID + " " + sbAddr + " CKI " + CKI + " " + Contact + " Bob\r\n",
		},
	}
}

// SBExchange scripts a switchboard session: creating one, answering an
// invitation, calling the contact and exchanging messages. Incoming traffic
// arrives from Contact; the scripted replies to a sent message also deliver
// an incoming message, a nudge and a BYE.
func SBExchange() Exchange {
	sent := (&msnp.PlainText{Color: "0000ff", Text: "h"}).Payload()

	incomingText := PayloadKey(
		[]byte("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\nX-MMS-IM-Format: FN=Microsoft%20Sans%20Serif; EF=; CO=ff; CS=0; PF=22\r\n\r\nh"),
		"MSG", Contact, "Bob")
	incomingNudge := PayloadKey(msnp.NudgePayload, "MSG", Contact, "Bob")

	return Exchange{
		Key("USR", "1", TestEmail, CKI): {
			"USR 1 OK " + TestEmail + " Testing\r\n",
		},
		Key("ANS", "1", TestEmail, CKI, SessionID): {
			"IRO 1 1 1 " + Contact + " Bob\r\n",
			"ANS 1 OK\r\n",
			incomingText,
			incomingNudge,
			"BYE " + Contact + "\r\n",
		},
		Key("CAL", "2", Contact): {
			"CAL 2 RINGING " + SessionID + "\r\n",
			"JOI " + Contact + "\r\n",
		},
		PayloadKey(sent, "MSG", "3", "A"): {
			"ACK 3\r\n",
			incomingText,
			incomingNudge,
			"BYE " + Contact + "\r\n",
		},
		PayloadKey(sent, "MSG", "4", "A"): {
			"ACK 4\r\n",
		},
		PayloadKey(msnp.NudgePayload, "MSG", "3", "A"): {
			"ACK 3\r\n",
		},
	}
}
