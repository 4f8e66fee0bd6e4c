package msnp11sdk

import (
	"context"
	"strconv"
	"strings"

	"github.com/campos02/msnp11-sdk/msnp"
)

var contactCodes = map[string]error{
	"201": msnp.ErrInvalidArgument,
	"215": msnp.ErrInvalidArgument,
	"208": msnp.ErrInvalidContact,
	"603": msnp.ErrServer,
}

// SetPresence advertises a new status. Once a display picture is set, the
// MsnObject rides along so peers can request it.
func (c *Client) SetPresence(ctx context.Context, status msnp.Status) error {
	if _, err := c.LocalEmail(); err != nil {
		return err
	}

	c.userMu.Lock()
	c.status = status
	msnObject := c.msnObject
	c.userMu.Unlock()

	args := []string{string(status), strconv.FormatUint(msnp.DefaultClientCapabilities, 10)}
	if msnObject != "" {
		args = append(args, msnp.Escape(msnObject))
	}

	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("CHG", append([]string{tr(trID)}, args...)...)

	_, err := c.ns.Do(ctx, cmd, matchReply(trID, "CHG", map[string]error{
		"201": msnp.ErrInvalidArgument,
	}))
	return err
}

// SetPersonalMessage publishes the status text and current media line.
func (c *Client) SetPersonalMessage(ctx context.Context, message *msnp.PersonalMessage) error {
	if _, err := c.LocalEmail(); err != nil {
		return err
	}

	payload, err := message.Payload()
	if err != nil {
		return err
	}

	trID := c.ns.NextTransactionID()
	cmd := msnp.NewPayloadCommand("UUX", payload, tr(trID), strconv.Itoa(len(payload)))

	_, err = c.ns.Do(ctx, cmd, matchReply(trID, "UUX", nil))
	return err
}

// SetDisplayName stores the user's own display name.
func (c *Client) SetDisplayName(ctx context.Context, name string) error {
	if _, err := c.LocalEmail(); err != nil {
		return err
	}

	encoded := msnp.Escape(name)
	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("PRP", tr(trID), "MFN", encoded)

	_, err := c.ns.Do(ctx, cmd, matchEcho(trID, "PRP", contactCodes, "MFN", encoded))
	return err
}

// SetContactDisplayName stores a custom display name for the contact with
// the given forward list GUID.
func (c *Client) SetContactDisplayName(ctx context.Context, guid, name string) error {
	if _, err := c.LocalEmail(); err != nil {
		return err
	}

	encoded := msnp.Escape(name)
	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("SBP", tr(trID), guid, "MFN", encoded)

	_, err := c.ns.Do(ctx, cmd, matchEcho(trID, "SBP", contactCodes, guid, "MFN", encoded))
	return err
}

// AddContact adds email to a list. Forward list additions carry the display
// name and return ContactInForwardList with the server assigned GUID; other
// lists return a plain Contact.
func (c *Client) AddContact(ctx context.Context, email, displayName string, list msnp.List) (msnp.Event, error) {
	if _, err := c.LocalEmail(); err != nil {
		return nil, err
	}

	trID := c.ns.NextTransactionID()

	if list == msnp.ForwardList {
		cmd := msnp.NewCommand("ADC", tr(trID), "FL", "N="+email, "F="+msnp.Escape(displayName))
		reply, err := c.ns.Do(ctx, cmd, func(cmd *msnp.Command) (bool, error) {
			if !cmd.TrIDEquals(trID) {
				return false, nil
			}
			if cmd.Verb == "ADC" && cmd.Arg(1) == "FL" && cmd.Arg(4) != "" {
				return true, nil
			}
			if err, ok := contactCodes[cmd.Verb]; ok {
				return true, err
			}
			return false, nil
		})
		if err != nil {
			return nil, err
		}

		return msnp.ContactInForwardList{
			Email:       email,
			DisplayName: displayName,
			GUID:        strings.TrimPrefix(reply.Arg(4), "C="),
			Lists:       []msnp.List{msnp.ForwardList},
			Groups:      []string{},
		}, nil
	}

	cmd := msnp.NewCommand("ADC", tr(trID), list.String(), "N="+email)
	_, err := c.ns.Do(ctx, cmd, matchEcho(trID, "ADC", contactCodes, list.String(), "N="+email))
	if err != nil {
		return nil, err
	}

	return msnp.Contact{
		Email:       email,
		DisplayName: displayName,
		Lists:       []msnp.List{list},
	}, nil
}

// RemoveContact removes email from a list other than the forward list,
// which is keyed by GUID and handled by RemoveContactFromForwardList.
func (c *Client) RemoveContact(ctx context.Context, email string, list msnp.List) error {
	if _, err := c.LocalEmail(); err != nil {
		return err
	}
	if list == msnp.ForwardList {
		return msnp.ErrInvalidArgument
	}

	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("REM", tr(trID), list.String(), email)

	_, err := c.ns.Do(ctx, cmd, matchEcho(trID, "REM", map[string]error{
		"201": msnp.ErrInvalidArgument,
		"216": msnp.ErrInvalidArgument,
		"208": msnp.ErrInvalidContact,
		"603": msnp.ErrServer,
	}, list.String(), email))
	return err
}

// RemoveContactFromForwardList removes the contact with the given GUID.
func (c *Client) RemoveContactFromForwardList(ctx context.Context, guid string) error {
	if _, err := c.LocalEmail(); err != nil {
		return err
	}

	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("REM", tr(trID), "FL", guid)

	_, err := c.ns.Do(ctx, cmd, matchEcho(trID, "REM", contactCodes, "FL", guid))
	return err
}

// BlockContact moves a contact from the allow list to the block list.
// Errors from either step surface unchanged.
func (c *Client) BlockContact(ctx context.Context, email string) error {
	if err := c.RemoveContact(ctx, email, msnp.AllowList); err != nil {
		return err
	}
	_, err := c.AddContact(ctx, email, "", msnp.BlockList)
	return err
}

// UnblockContact moves a contact from the block list back to the allow list.
func (c *Client) UnblockContact(ctx context.Context, email string) error {
	if err := c.RemoveContact(ctx, email, msnp.BlockList); err != nil {
		return err
	}
	_, err := c.AddContact(ctx, email, "", msnp.AllowList)
	return err
}

// CreateGroup creates a contact group.
func (c *Client) CreateGroup(ctx context.Context, name string) error {
	if _, err := c.LocalEmail(); err != nil {
		return err
	}

	encoded := msnp.Escape(name)
	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("ADG", tr(trID), encoded)

	_, err := c.ns.Do(ctx, cmd, matchEcho(trID, "ADG", map[string]error{
		"228": msnp.ErrInvalidArgument,
		"603": msnp.ErrServer,
	}, encoded))
	return err
}

// DeleteGroup deletes a contact group by GUID.
func (c *Client) DeleteGroup(ctx context.Context, guid string) error {
	if _, err := c.LocalEmail(); err != nil {
		return err
	}

	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("RMG", tr(trID), guid)

	_, err := c.ns.Do(ctx, cmd, matchEcho(trID, "RMG", map[string]error{
		"224": msnp.ErrInvalidArgument,
		"226": msnp.ErrInvalidArgument,
		"230": msnp.ErrInvalidArgument,
		"603": msnp.ErrServer,
	}, guid))
	return err
}

// RenameGroup renames a contact group.
func (c *Client) RenameGroup(ctx context.Context, guid, name string) error {
	if _, err := c.LocalEmail(); err != nil {
		return err
	}

	encoded := msnp.Escape(name)
	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("REG", tr(trID), guid, encoded)

	_, err := c.ns.Do(ctx, cmd, matchEcho(trID, "REG", map[string]error{
		"224": msnp.ErrInvalidArgument,
		"228": msnp.ErrInvalidArgument,
		"603": msnp.ErrServer,
	}, guid))
	return err
}

// AddContactToGroup puts the contact with the given GUID into a group.
func (c *Client) AddContactToGroup(ctx context.Context, guid, groupGUID string) error {
	if _, err := c.LocalEmail(); err != nil {
		return err
	}

	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("ADC", tr(trID), "FL", "C="+guid, groupGUID)

	_, err := c.ns.Do(ctx, cmd, matchEcho(trID, "ADC", map[string]error{
		"201": msnp.ErrInvalidArgument,
		"215": msnp.ErrInvalidArgument,
		"224": msnp.ErrInvalidArgument,
		"208": msnp.ErrInvalidContact,
		"603": msnp.ErrServer,
	}, "FL", "C="+guid, groupGUID))
	return err
}

// RemoveContactFromGroup takes the contact with the given GUID out of a
// group.
func (c *Client) RemoveContactFromGroup(ctx context.Context, guid, groupGUID string) error {
	if _, err := c.LocalEmail(); err != nil {
		return err
	}

	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("REM", tr(trID), "FL", guid, groupGUID)

	_, err := c.ns.Do(ctx, cmd, matchEcho(trID, "REM", map[string]error{
		"201": msnp.ErrInvalidArgument,
		"216": msnp.ErrInvalidArgument,
		"224": msnp.ErrInvalidArgument,
		"225": msnp.ErrInvalidArgument,
		"208": msnp.ErrInvalidContact,
		"603": msnp.ErrServer,
	}, "FL", guid, groupGUID))
	return err
}

// SetGTC stores the prompt-on-add preference, "A" or "N".
func (c *Client) SetGTC(ctx context.Context, setting string) error {
	if _, err := c.LocalEmail(); err != nil {
		return err
	}

	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("GTC", tr(trID), setting)

	_, err := c.ns.Do(ctx, cmd, matchEcho(trID, "GTC", nil, setting))
	return err
}

// SetBLP stores the default list preference, "AL" or "BL".
func (c *Client) SetBLP(ctx context.Context, setting string) error {
	if _, err := c.LocalEmail(); err != nil {
		return err
	}

	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("BLP", tr(trID), setting)

	_, err := c.ns.Do(ctx, cmd, matchEcho(trID, "BLP", nil, setting))
	return err
}
