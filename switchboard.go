package msnp11sdk

import (
	"context"
	"strconv"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/campos02/msnp11-sdk/msnp"
	"github.com/rs/zerolog"
)

// Switchboard is one messaging session with one or more contacts. The
// official clients create one per conversation window and leave it when the
// window closes.
type Switchboard struct {
	client *Client
	conn   *msnp.Connection
	log    zerolog.Logger

	ckiString string
	userEmail string

	sessionMu sync.RWMutex
	sessionID string

	participants mapset.Set[string]

	// holdMu buffers events classified while an incoming session is still
	// being answered, so that SessionAnswered reaches the application
	// before anything the join burst carried.
	holdMu  sync.Mutex
	holding bool
	held    []msnp.Event

	// transferMu hands the inbound P2P stream to an active display
	// picture request; outside a transfer the frames go to the serve
	// loop.
	transferMu sync.Mutex
	transfer   chan *msnp.P2PMessage

	p2p chan *msnp.P2PMessage
}

func newSwitchboard(client *Client, server string, port int, ckiString string) (*Switchboard, error) {
	logger := client.log.With().Str("caller", "Switchboard").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), client.dialTimeout)
	defer cancel()

	conn, err := msnp.Dial(ctx, server, port, logger)
	if err != nil {
		return nil, err
	}

	sb := &Switchboard{
		client:       client,
		conn:         conn,
		log:          logger,
		ckiString:    ckiString,
		participants: mapset.NewSet[string](),
		p2p:          make(chan *msnp.P2PMessage, 64),
	}

	conn.OnCommand(sb.onCommand)
	go sb.serveLoop()
	go func() {
		<-conn.Done()
		close(sb.p2p)
		client.dropSwitchboard(sb)
	}()

	return sb, nil
}

// login authenticates an outgoing session with the CKI cookie from XFR.
func (s *Switchboard) login(ctx context.Context, email string) error {
	s.userEmail = email

	trID := s.conn.NextTransactionID()
	cmd := msnp.NewCommand("USR", tr(trID), email, s.ckiString)

	_, err := s.conn.Do(ctx, cmd, func(cmd *msnp.Command) (bool, error) {
		switch cmd.Verb {
		case "USR":
			if cmd.TrIDEquals(trID) && cmd.Arg(1) == "OK" {
				return true, nil
			}
		case "911":
			if cmd.TrIDEquals(trID) {
				return true, msnp.ErrServerIsBusy
			}
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	s.participants.Add(email)
	return nil
}

// answer joins an incoming session named by an RNG invitation. The session
// id is set before ANS goes out so events in the join burst are stamped with
// it.
func (s *Switchboard) answer(ctx context.Context, email, sessionID string) error {
	s.userEmail = email

	s.sessionMu.Lock()
	s.sessionID = sessionID
	s.sessionMu.Unlock()

	trID := s.conn.NextTransactionID()
	cmd := msnp.NewCommand("ANS", tr(trID), email, s.ckiString, sessionID)

	_, err := s.conn.Do(ctx, cmd, func(cmd *msnp.Command) (bool, error) {
		switch cmd.Verb {
		case "ANS":
			if cmd.TrIDEquals(trID) && cmd.Arg(1) == "OK" {
				return true, nil
			}
		case "911":
			if cmd.TrIDEquals(trID) {
				return true, msnp.ErrServerIsBusy
			}
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	s.participants.Add(email)
	return nil
}

// Invite calls another contact into the session. The first CAL of an
// outgoing session also assigns the session id.
func (s *Switchboard) Invite(ctx context.Context, email string) error {
	trID := s.conn.NextTransactionID()
	cmd := msnp.NewCommand("CAL", tr(trID), email)

	reply, err := s.conn.Do(ctx, cmd, func(cmd *msnp.Command) (bool, error) {
		switch cmd.Verb {
		case "CAL":
			if cmd.TrIDEquals(trID) && cmd.Arg(1) == "RINGING" && cmd.Arg(2) != "" {
				return true, nil
			}
		case "208", "215":
			if cmd.TrIDEquals(trID) {
				return true, msnp.ErrInvalidContact
			}
		case "216", "217":
			if cmd.TrIDEquals(trID) {
				return true, msnp.ErrContactIsOffline
			}
		case "603":
			if cmd.TrIDEquals(trID) {
				return true, msnp.ErrServer
			}
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	s.sessionMu.Lock()
	s.sessionID = reply.Arg(2)
	s.sessionMu.Unlock()
	return nil
}

// SessionID returns the session id once CAL or ANS has resolved it.
func (s *Switchboard) SessionID() (string, error) {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	if s.sessionID == "" {
		return "", msnp.ErrCouldNotGetSessionID
	}
	return s.sessionID, nil
}

// Participants returns the current participant emails, the local user
// included.
func (s *Switchboard) Participants() []string {
	return s.participants.ToSlice()
}

// SendTextMessage sends a formatted message, waiting for the switchboard
// acknowledgement.
func (s *Switchboard) SendTextMessage(ctx context.Context, message *msnp.PlainText) error {
	return s.sendAcknowledged(ctx, message.Payload())
}

// SendNudge shakes the remote conversation window.
func (s *Switchboard) SendNudge(ctx context.Context) error {
	return s.sendAcknowledged(ctx, msnp.NudgePayload)
}

// SendTypingNotification announces that the user is writing. Unacknowledged
// by design; there is nothing to wait for.
func (s *Switchboard) SendTypingNotification() error {
	payload := msnp.TypingPayload(s.userEmail)
	trID := s.conn.NextTransactionID()
	cmd := msnp.NewPayloadCommand("MSG", payload, tr(trID), "U", strconv.Itoa(len(payload)))
	return s.conn.WriteCommand(cmd)
}

func (s *Switchboard) sendAcknowledged(ctx context.Context, payload []byte) error {
	trID := s.conn.NextTransactionID()
	cmd := msnp.NewPayloadCommand("MSG", payload, tr(trID), "A", strconv.Itoa(len(payload)))

	_, err := s.conn.Do(ctx, cmd, matchAck(trID))
	return err
}

// sendP2P wraps a binary P2P message in MSG <tr> D and waits for the
// switchboard level acknowledgement.
func (s *Switchboard) sendP2P(ctx context.Context, destination string, message []byte) error {
	payload := msnp.P2PEnvelope(destination, message)
	trID := s.conn.NextTransactionID()
	cmd := msnp.NewPayloadCommand("MSG", payload, tr(trID), "D", strconv.Itoa(len(payload)))

	_, err := s.conn.Do(ctx, cmd, matchAck(trID))
	return err
}

func matchAck(trID uint32) msnp.MatchFunc {
	return func(cmd *msnp.Command) (bool, error) {
		switch cmd.Verb {
		case "ACK":
			if cmd.TrIDEquals(trID) {
				return true, nil
			}
		case "NAK", "282":
			if cmd.TrIDEquals(trID) {
				return true, msnp.ErrMessageNotDelivered
			}
		}
		return false, nil
	}
}

// Disconnect leaves the session. The server closes the socket after OUT.
func (s *Switchboard) Disconnect() {
	_ = s.conn.WriteCommand(msnp.NewCommand("OUT"))
	s.conn.Close()
}

// onCommand runs on the SB reader goroutine: application events are stamped
// with the session id and forwarded to the client stream, P2P frames are
// routed to the active transfer or the serve loop.
func (s *Switchboard) onCommand(cmd *msnp.Command) {
	if cmd.Verb == "MSG" {
		if msg := msnp.ParseP2P(cmd.Payload); msg != nil {
			s.routeP2P(msg)
			return
		}
	}

	sessionID, _ := s.SessionID()
	event := msnp.ClassifySB(cmd, sessionID)
	if event == nil {
		return
	}

	switch e := event.(type) {
	case msnp.ParticipantInSwitchboard:
		s.participants.Add(e.Email)
	case msnp.ParticipantLeftSwitchboard:
		s.participants.Remove(e.Email)
	}

	s.deliver(event)
}

// deliver forwards an event to the client stream, or parks it while the
// session is still being answered.
func (s *Switchboard) deliver(event msnp.Event) {
	s.holdMu.Lock()
	if s.holding {
		s.held = append(s.held, event)
		s.holdMu.Unlock()
		return
	}
	s.holdMu.Unlock()
	s.client.enqueue(event)
}

func (s *Switchboard) holdEvents() {
	s.holdMu.Lock()
	s.holding = true
	s.holdMu.Unlock()
}

// releaseEvents flushes everything parked during the answer, in order.
func (s *Switchboard) releaseEvents() {
	s.holdMu.Lock()
	held := s.held
	s.held = nil
	s.holding = false
	s.holdMu.Unlock()

	for _, event := range held {
		s.client.enqueue(event)
	}
}

// discardEvents drops parked events after a failed answer.
func (s *Switchboard) discardEvents() {
	s.holdMu.Lock()
	s.held = nil
	s.holding = false
	s.holdMu.Unlock()
}

func (s *Switchboard) routeP2P(msg *msnp.P2PMessage) {
	s.transferMu.Lock()
	transfer := s.transfer
	s.transferMu.Unlock()

	sink := s.p2p
	if transfer != nil {
		sink = transfer
	}

	select {
	case sink <- msg:
	default:
		s.log.Warn().Msg("P2P queue full, dropping frame")
	}
}

func (s *Switchboard) takeP2P() chan *msnp.P2PMessage {
	ch := make(chan *msnp.P2PMessage, 64)
	s.transferMu.Lock()
	s.transfer = ch
	s.transferMu.Unlock()
	return ch
}

func (s *Switchboard) releaseP2P() {
	s.transferMu.Lock()
	s.transfer = nil
	s.transferMu.Unlock()
}
