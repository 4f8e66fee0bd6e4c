package msnp11sdk

import (
	"bytes"
	"context"
	"strings"

	"github.com/campos02/msnp11-sdk/msnp"
)

// SetDisplayPicture stores the user's display picture and returns the
// base64 SHA1 of its bytes. Scaling the image down to something like
// 200x200 beforehand is recommended. When already online the presence is
// re-announced so the new MsnObject propagates to peers.
func (c *Client) SetDisplayPicture(ctx context.Context, picture []byte) (string, error) {
	email, err := c.LocalEmail()
	if err != nil {
		return "", err
	}

	obj := msnp.NewDisplayPictureObject(email, picture)

	c.userMu.Lock()
	c.displayPicture = picture
	c.msnObject = obj.String()
	status := c.status
	c.userMu.Unlock()

	c.pictures.Add(obj.SHA1D, picture)

	if status != "" {
		if err := c.SetPresence(ctx, status); err != nil {
			return "", err
		}
	}
	return obj.SHA1D, nil
}

// RequestContactDisplayPicture fetches the picture described by a contact's
// MsnObject XML, from the cache when its SHA1D is already known, otherwise
// through a fresh switchboard session and the P2P transfer. The picture is
// also delivered as a DisplayPicture event.
func (c *Client) RequestContactDisplayPicture(ctx context.Context, email, msnObject string) ([]byte, error) {
	if obj, err := msnp.ParseMsnObject(msnObject); err == nil {
		if picture, ok := c.pictures.Get(obj.SHA1D); ok {
			c.enqueue(msnp.DisplayPicture{Email: email, Data: picture})
			return picture, nil
		}
	}

	sb, err := c.CreateSession(ctx, email)
	if err != nil {
		return nil, err
	}
	defer sb.Disconnect()

	return sb.RequestDisplayPicture(ctx, email, msnObject)
}

// RequestDisplayPicture runs the requester side of the MSNSLP display
// picture exchange within this session: INVITE, acknowledge the 200 OK and
// the data preparation message, reassemble the chunks, acknowledge the last
// one and send BYE. The reassembled picture is returned and emitted as a
// DisplayPicture event.
func (s *Switchboard) RequestDisplayPicture(ctx context.Context, email, msnObject string) ([]byte, error) {
	userEmail, err := s.client.LocalEmail()
	if err != nil {
		return nil, err
	}

	frames := s.takeP2P()
	defer s.releaseP2P()

	session := msnp.NewDisplayPictureSession()
	if err := s.sendP2P(ctx, email, session.Invite(email, userEmail, msnObject)); err != nil {
		return nil, err
	}

	var picture bytes.Buffer
	for done := false; !done; {
		var msg *msnp.P2PMessage
		select {
		case m, ok := <-frames:
			if !ok {
				return nil, msnp.ErrDisconnected
			}
			msg = m
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.conn.Done():
			return nil, msnp.ErrDisconnected
		}

		if msg.Destination != userEmail {
			continue
		}

		switch msg.Kind {
		case msnp.P2PShouldAck:
			ack, err := msnp.AcknowledgeP2P(msg.Binary)
			if err != nil {
				return nil, err
			}
			if err := s.sendP2P(ctx, email, ack); err != nil {
				return nil, err
			}

		case msnp.P2PInvite:
			// A peer inviting us mid-transfer is declined; one exchange
			// per session at a time.
			if err := s.declineInvite(ctx, msg); err != nil {
				s.log.Warn().Err(err).Msg("could not decline invite")
			}

		case msnp.P2PData:
			picture.Write(msg.Body())
			s.log.Trace().Int("received", picture.Len()).Msg("picture data")

			if uint64(picture.Len()) >= msg.Header.TotalDataSize {
				ack, err := msnp.AcknowledgeP2P(msg.Binary)
				if err != nil {
					return nil, err
				}
				if err := s.sendP2P(ctx, email, ack); err != nil {
					return nil, err
				}
				done = true
			}
		}
	}

	if err := s.sendP2P(ctx, email, session.Bye(email, userEmail)); err != nil {
		return nil, err
	}

	data := picture.Bytes()
	if obj, err := msnp.ParseMsnObject(msnObject); err == nil {
		s.client.pictures.Add(obj.SHA1D, data)
	}

	s.client.enqueue(msnp.DisplayPicture{Email: email, Data: data})
	return data, nil
}

// serveLoop is the serve side of the P2P engine: it answers display
// picture invites from peers and acknowledges their BYEs. Runs until the
// session's connection closes.
func (s *Switchboard) serveLoop() {
	for msg := range s.p2p {
		ctx, cancel := context.WithTimeout(context.Background(), s.client.dialTimeout)

		switch msg.Kind {
		case msnp.P2PInvite:
			if err := s.serveInvite(ctx, msg); err != nil {
				s.log.Warn().Err(err).Msg("could not serve display picture")
			}

		case msnp.P2PBye:
			if _, from, _, ok := parseInviteFields(msg.Body()); ok {
				if err := s.ackFrame(ctx, msg, from); err != nil {
					s.log.Warn().Err(err).Msg("could not acknowledge BYE")
				}
			}
		}

		cancel()
	}
}

func (s *Switchboard) serveInvite(ctx context.Context, msg *msnp.P2PMessage) error {
	userEmail, err := s.client.LocalEmail()
	if err != nil {
		return err
	}
	if msg.Destination != userEmail {
		return nil
	}

	to, from, context_, ok := parseInviteFields(msg.Body())
	if !ok {
		return msnp.ErrSLPInvite
	}
	if !strings.Contains(to, "msnmsgr:"+userEmail) {
		return nil
	}

	session, err := msnp.NewSessionFromInvite(msg.Body())
	if err != nil {
		return err
	}

	if err := s.ackFrame(ctx, msg, from); err != nil {
		return err
	}

	s.client.userMu.RLock()
	msnObject := s.client.msnObject
	picture := s.client.displayPicture
	s.client.userMu.RUnlock()

	// An invite for anything but our current picture is declined.
	if msnObject == "" || picture == nil || context_ != msnp.InviteContext(msnObject) {
		return s.sendP2P(ctx, from, session.Decline(from, userEmail))
	}

	if err := s.sendP2P(ctx, from, session.OK(from, userEmail)); err != nil {
		return err
	}
	if err := s.sendP2P(ctx, from, session.DataPreparation()); err != nil {
		return err
	}

	for _, chunk := range session.Data(picture) {
		if err := s.sendP2P(ctx, from, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *Switchboard) declineInvite(ctx context.Context, msg *msnp.P2PMessage) error {
	userEmail, err := s.client.LocalEmail()
	if err != nil {
		return err
	}

	_, from, _, ok := parseInviteFields(msg.Body())
	if !ok {
		return msnp.ErrSLPInvite
	}

	session, err := msnp.NewSessionFromInvite(msg.Body())
	if err != nil {
		return err
	}
	return s.sendP2P(ctx, from, session.Decline(from, userEmail))
}

// ackFrame acknowledges a peer's frame. The acknowledgement is addressed to
// the peer, not to the destination the frame itself carries.
func (s *Switchboard) ackFrame(ctx context.Context, msg *msnp.P2PMessage, peer string) error {
	ack, err := msnp.AcknowledgeP2P(msg.Binary)
	if err != nil {
		return err
	}
	return s.sendP2P(ctx, peer, ack)
}

// parseInviteFields extracts the To, From and Context values of an SLP
// invite body.
func parseInviteFields(invite []byte) (to, from, context string, ok bool) {
	for _, line := range strings.Split(string(invite), "\r\n") {
		switch {
		case strings.HasPrefix(line, "To: "):
			to = strings.TrimPrefix(line, "To: ")
		case strings.HasPrefix(line, "From: "):
			from = strings.TrimSuffix(strings.TrimPrefix(line, "From: <msnmsgr:"), ">")
		case strings.HasPrefix(line, "Context: "):
			context = strings.TrimPrefix(line, "Context: ")
		}
	}
	return to, from, context, to != "" && from != ""
}
