// Package msnp11sdk is a client SDK for the MSNP11 instant messaging
// protocol. A Client owns the notification server session; switchboard
// messaging sessions are created from it on demand.
package msnp11sdk

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/campos02/msnp11-sdk/msnp"
	"github.com/campos02/msnp11-sdk/passport"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Init() {
	uuid.EnableRandPool()
}

// EventHandler receives application events. Handlers run sequentially on
// the client's event pump goroutine, in registration order.
type EventHandler func(event msnp.Event)

// SessionAnswered is emitted after an incoming switchboard invitation has
// been answered. The carried session is live and already joined.
type SessionAnswered struct {
	Switchboard *Switchboard
}

// Client is the handle for all notification server operations.
type Client struct {
	server        string
	port          int
	clientName    string
	clientVersion string
	httpClient    *http.Client
	dialTimeout   time.Duration
	cacheSize     int
	log           zerolog.Logger

	ns *msnp.Connection

	events   chan msnp.Event
	eventsMu sync.Mutex
	closed   bool

	handlersMu sync.Mutex
	handlers   []EventHandler

	// userMu guards the login state shared between command senders and
	// the P2P serve side.
	userMu         sync.RWMutex
	email          string
	displayPicture []byte
	msnObject      string
	status         msnp.Status
	loggedIn       bool

	sbMu         sync.Mutex
	switchboards map[string]*Switchboard

	pictures *lru.Cache[string, []byte]
}

type ClientOption func(c *Client) error

// WithClientLogger allows customizing client logger
func WithClientLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) error {
		c.log = logger
		return nil
	}
}

// WithClientName sets the product name sent in CVR.
func WithClientName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithClientVersion sets the product version sent in CVR.
func WithClientVersion(version string) ClientOption {
	return func(c *Client) error {
		c.clientVersion = version
		return nil
	}
}

// WithDialTimeout bounds the NS and SB TCP connects.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.dialTimeout = d
		return nil
	}
}

// WithHTTPClient overrides the HTTP client used for the Passport handshake.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) error {
		c.httpClient = client
		return nil
	}
}

// WithPictureCacheSize sets the capacity of the display picture cache.
func WithPictureCacheSize(n int) ClientOption {
	return func(c *Client) error {
		c.cacheSize = n
		return nil
	}
}

// NewClient connects to the notification server and starts the reader and
// event pump. Call Login next.
func NewClient(server string, port int, options ...ClientOption) (*Client, error) {
	c := &Client{
		server:        server,
		port:          port,
		clientName:    "msnp11-sdk",
		clientVersion: "0.7",
		httpClient:    http.DefaultClient,
		dialTimeout:   30 * time.Second,
		cacheSize:     64,
		log:           log.Logger.With().Str("caller", "Client").Logger(),
		events:        make(chan msnp.Event, 64),
		switchboards:  make(map[string]*Switchboard),
	}

	for _, o := range options {
		if err := o(c); err != nil {
			return nil, err
		}
	}

	pictures, err := lru.New[string, []byte](c.cacheSize)
	if err != nil {
		return nil, err
	}
	c.pictures = pictures

	ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	defer cancel()

	ns, err := msnp.Dial(ctx, server, port, c.log)
	if err != nil {
		return nil, err
	}
	c.ns = ns

	ns.OnCommand(c.onNSCommand)
	go c.pumpEvents()
	go c.watchDisconnect()

	return c, nil
}

// AddEventHandler registers a handler for the application event stream.
func (c *Client) AddEventHandler(handler EventHandler) {
	c.handlersMu.Lock()
	c.handlers = append(c.handlers, handler)
	c.handlersMu.Unlock()
}

// LocalEmail returns the signed-in account, or ErrNotLoggedIn before Login.
func (c *Client) LocalEmail() (string, error) {
	c.userMu.RLock()
	defer c.userMu.RUnlock()
	if !c.loggedIn {
		return "", msnp.ErrNotLoggedIn
	}
	return c.email, nil
}

// Login drives the MSNP11 handshake: VER, CVR, USR TWN I, the Passport
// exchange, USR TWN S, SYN and GCF, then starts the keep-alive loop.
//
// Against a dispatch server this returns RedirectedTo instead of
// Authenticated; the caller creates a new client for the carried address
// and logs in again. This connection is closed in that case.
func (c *Client) Login(ctx context.Context, email, password, nexusURL string) (msnp.Event, error) {
	if err := c.ver(ctx); err != nil {
		return nil, err
	}
	if err := c.cvr(ctx, email); err != nil {
		return nil, err
	}

	authString, redirect, err := c.usrTwnI(ctx, email)
	if err != nil {
		return nil, err
	}
	if redirect != nil {
		c.Disconnect()
		return *redirect, nil
	}

	auth, err := passport.NewAuth(nexusURL, passport.WithHTTPClient(c.httpClient))
	if err != nil {
		return nil, err
	}
	ticket, err := auth.Token(ctx, email, password, authString)
	if err != nil {
		return nil, err
	}

	if err := c.usrTwnS(ctx, ticket); err != nil {
		return nil, err
	}
	if err := c.syn(ctx); err != nil {
		return nil, err
	}
	if err := c.gcf(ctx); err != nil {
		return nil, err
	}

	c.userMu.Lock()
	c.email = email
	c.loggedIn = true
	c.userMu.Unlock()

	go c.keepAlive()
	c.log.Info().Str("email", email).Msg("logged in")
	return msnp.Authenticated{}, nil
}

func (c *Client) ver(ctx context.Context) error {
	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("VER", tr(trID), msnp.ProtocolVersion, "CVR0")

	reply, err := c.ns.Do(ctx, cmd, matchReply(trID, "VER", nil))
	if err != nil {
		return err
	}

	if reply.Arg(1) != msnp.ProtocolVersion {
		return msnp.ErrProtocolNotSupported
	}
	return nil
}

func (c *Client) cvr(ctx context.Context, email string) error {
	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("CVR", tr(trID), "0x0409", "winnt", "10", "i386",
		c.clientName, c.clientVersion, "msmsgs", email)

	_, err := c.ns.Do(ctx, cmd, matchReply(trID, "CVR", map[string]error{
		"420": msnp.ErrServer,
		"710": msnp.ErrServer,
		"731": msnp.ErrServer,
	}))
	return err
}

// usrTwnI asks for the Passport challenge. A dispatch server replies with
// XFR NS instead, reported through redirect.
func (c *Client) usrTwnI(ctx context.Context, email string) (authString string, redirect *msnp.RedirectedTo, err error) {
	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("USR", tr(trID), "TWN", "I", email)

	reply, err := c.ns.Do(ctx, cmd, func(cmd *msnp.Command) (bool, error) {
		switch cmd.Verb {
		case "USR":
			if cmd.TrIDEquals(trID) && cmd.Arg(1) == "TWN" && cmd.Arg(2) == "S" && cmd.Arg(3) != "" {
				return true, nil
			}
		case "XFR":
			if cmd.TrIDEquals(trID) && cmd.Arg(1) == "NS" {
				return true, nil
			}
		case "500", "601":
			if cmd.TrIDEquals(trID) {
				return true, msnp.ErrServer
			}
		case "911", "931":
			if cmd.TrIDEquals(trID) {
				return true, msnp.ErrServerIsBusy
			}
		}
		return false, nil
	})
	if err != nil {
		return "", nil, err
	}

	if reply.Verb == "XFR" {
		server, port := msnp.ParseAddr(reply.Arg(2))
		return "", &msnp.RedirectedTo{Server: server, Port: port}, nil
	}
	return reply.Arg(3), nil, nil
}

func (c *Client) usrTwnS(ctx context.Context, ticket string) error {
	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("USR", tr(trID), "TWN", "S", ticket)

	_, err := c.ns.Do(ctx, cmd, func(cmd *msnp.Command) (bool, error) {
		switch cmd.Verb {
		case "USR":
			if cmd.TrIDEquals(trID) && cmd.Arg(1) == "OK" {
				return true, nil
			}
		case "500", "910", "921":
			if cmd.TrIDEquals(trID) {
				return true, msnp.ErrServer
			}
		case "911", "923", "928":
			if cmd.TrIDEquals(trID) {
				return true, msnp.ErrServerIsBusy
			}
		}
		return false, nil
	})
	return err
}

// syn requests the roster. The GTC, BLP, PRP, LSG and LST burst that
// follows the reply streams through the classifier as events.
func (c *Client) syn(ctx context.Context) error {
	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("SYN", tr(trID), "0", "0")

	_, err := c.ns.Do(ctx, cmd, matchReply(trID, "SYN", map[string]error{
		"603": msnp.ErrServer,
	}))
	return err
}

func (c *Client) gcf(ctx context.Context) error {
	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("GCF", tr(trID), "Shields.xml")

	// The shield configuration payload is acknowledged and discarded.
	_, err := c.ns.Do(ctx, cmd, matchReply(trID, "GCF", nil))
	return err
}

// keepAlive pings until the connection dies. The QNG interval dictates the
// pace; a reply that does not parse falls back to 50 seconds and a hostile
// small interval is clamped to 5 so the loop cannot spin.
func (c *Client) keepAlive() {
	for {
		reply, err := c.ns.Do(context.Background(), msnp.NewCommand("PNG"),
			func(cmd *msnp.Command) (bool, error) {
				return cmd.Verb == "QNG", nil
			})
		if err != nil {
			return
		}

		seconds, err := strconv.Atoi(reply.Arg(0))
		if err != nil {
			seconds = 50
		}
		if seconds < 5 {
			seconds = 5
		}

		select {
		case <-time.After(time.Duration(seconds) * time.Second):
		case <-c.ns.Done():
			return
		}
	}
}

// onNSCommand runs on the NS reader goroutine: it classifies unsolicited
// commands into events and intercepts switchboard invitations.
func (c *Client) onNSCommand(cmd *msnp.Command) {
	if invitation, ok := msnp.ParseInvitation(cmd); ok {
		go c.answerInvitation(invitation)
		return
	}

	event := msnp.ClassifyNS(cmd)
	if event == nil {
		return
	}

	switch event.(type) {
	case msnp.Disconnected:
		// A bare OUT; the teardown path emits the single Disconnected
		// event once the reader exits.
		c.ns.Close()
	case msnp.LoggedInAnotherDevice:
		c.enqueue(event)
		c.ns.Close()
	default:
		c.enqueue(event)
	}
}

// answerInvitation joins the switchboard named by an RNG and surfaces the
// live session.
func (c *Client) answerInvitation(invitation msnp.Invitation) {
	email, err := c.LocalEmail()
	if err != nil {
		c.log.Warn().Msg("switchboard invitation before login")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	defer cancel()

	sb, err := newSwitchboard(c, invitation.Server, invitation.Port, invitation.CKIString)
	if err != nil {
		c.log.Error().Err(err).Msg("could not reach switchboard")
		return
	}

	// Events classified while ANS is in flight are parked so that
	// SessionAnswered is the first thing the application sees of this
	// session.
	sb.holdEvents()
	if err := sb.answer(ctx, email, invitation.SessionID); err != nil {
		c.log.Error().Err(err).Msg("could not answer switchboard invitation")
		sb.discardEvents()
		sb.Disconnect()
		return
	}

	c.registerSwitchboard(sb)
	c.enqueue(SessionAnswered{Switchboard: sb})
	sb.releaseEvents()
}

// CreateSession opens a switchboard session and invites email into it.
func (c *Client) CreateSession(ctx context.Context, email string) (*Switchboard, error) {
	userEmail, err := c.LocalEmail()
	if err != nil {
		return nil, err
	}

	trID := c.ns.NextTransactionID()
	cmd := msnp.NewCommand("XFR", tr(trID), "SB")

	reply, err := c.ns.Do(ctx, cmd, func(cmd *msnp.Command) (bool, error) {
		switch cmd.Verb {
		case "XFR":
			if cmd.TrIDEquals(trID) && cmd.Arg(1) == "SB" && cmd.Arg(3) == "CKI" {
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
		return nil, err
	}

	server, port := msnp.ParseAddr(reply.Arg(2))
	sb, err := newSwitchboard(c, server, port, reply.Arg(4))
	if err != nil {
		return nil, err
	}

	if err := sb.login(ctx, userEmail); err != nil {
		sb.Disconnect()
		return nil, err
	}
	if err := sb.Invite(ctx, email); err != nil {
		sb.Disconnect()
		return nil, err
	}

	c.registerSwitchboard(sb)
	return sb, nil
}

func (c *Client) registerSwitchboard(sb *Switchboard) {
	if id, err := sb.SessionID(); err == nil {
		c.sbMu.Lock()
		c.switchboards[id] = sb
		c.sbMu.Unlock()
	}
}

func (c *Client) dropSwitchboard(sb *Switchboard) {
	c.sbMu.Lock()
	for id, s := range c.switchboards {
		if s == sb {
			delete(c.switchboards, id)
		}
	}
	c.sbMu.Unlock()
}

// Disconnect signs off: OUT is sent, every open switchboard is closed and
// the event stream ends after a final Disconnected. Idempotent.
func (c *Client) Disconnect() {
	_ = c.ns.WriteCommand(msnp.NewCommand("OUT"))

	c.sbMu.Lock()
	switchboards := make([]*Switchboard, 0, len(c.switchboards))
	for _, sb := range c.switchboards {
		switchboards = append(switchboards, sb)
	}
	c.switchboards = make(map[string]*Switchboard)
	c.sbMu.Unlock()

	for _, sb := range switchboards {
		sb.Disconnect()
	}

	c.ns.Close()
}

// watchDisconnect turns the reader's exit into the final Disconnected event
// and closes the stream. Pending waiters have already failed by the time
// Done fires.
func (c *Client) watchDisconnect() {
	<-c.ns.Done()
	c.enqueue(msnp.Disconnected{})

	c.eventsMu.Lock()
	c.closed = true
	close(c.events)
	c.eventsMu.Unlock()
}

func (c *Client) enqueue(event msnp.Event) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.events <- event:
	default:
		c.log.Warn().Str("event", fmt.Sprintf("%T", event)).Msg("event queue full, dropping")
	}
}

// pumpEvents delivers events to the handlers, sequentially and in receive
// order.
func (c *Client) pumpEvents() {
	for event := range c.events {
		c.handlersMu.Lock()
		handlers := make([]EventHandler, len(c.handlers))
		copy(handlers, c.handlers)
		c.handlersMu.Unlock()

		for _, handler := range handlers {
			handler(event)
		}
	}
}

func tr(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

// matchReply builds the common matcher: the named verb echoing trID
// terminates with success, any code in codes echoing trID terminates with
// its error, everything else is skipped.
func matchReply(trID uint32, verb string, codes map[string]error) msnp.MatchFunc {
	return func(cmd *msnp.Command) (bool, error) {
		if !cmd.TrIDEquals(trID) {
			return false, nil
		}
		if cmd.Verb == verb {
			return true, nil
		}
		if err, ok := codes[cmd.Verb]; ok {
			return true, err
		}
		return false, nil
	}
}

// matchEcho is matchReply with extra argument constraints on the success
// reply; a reply with mismatched arguments keeps the wait going, which
// tolerates servers that re-emit unrelated SYN tail lines between the
// request and its reply.
func matchEcho(trID uint32, verb string, codes map[string]error, args ...string) msnp.MatchFunc {
	return func(cmd *msnp.Command) (bool, error) {
		if !cmd.TrIDEquals(trID) {
			return false, nil
		}
		if cmd.Verb == verb {
			for i, want := range args {
				if !strings.EqualFold(cmd.Arg(i+1), want) {
					return false, nil
				}
			}
			return true, nil
		}
		if err, ok := codes[cmd.Verb]; ok {
			return true, err
		}
		return false, nil
	}
}
