// Package passport implements the Passport 1.4 (Tweener) HTTP handshake
// that exchanges the email, password and the authorization string from
// USR TWN I for the ticket consumed by USR TWN S.
package passport

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/campos02/msnp11-sdk/msnp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Auth performs Tweener authentication against a nexus URL.
type Auth struct {
	client   *http.Client
	nexusURL string
	log      zerolog.Logger
}

type AuthOption func(a *Auth) error

// WithHTTPClient overrides the HTTP client, mostly for tests with TLS
// test servers. The client must follow redirects; login servers commonly
// bounce through one or two before the final headers.
func WithHTTPClient(client *http.Client) AuthOption {
	return func(a *Auth) error {
		a.client = client
		return nil
	}
}

// WithLogger overrides the handshake logger.
func WithLogger(logger zerolog.Logger) AuthOption {
	return func(a *Auth) error {
		a.log = logger
		return nil
	}
}

// NewAuth creates a handle for the given nexus URL.
func NewAuth(nexusURL string, options ...AuthOption) (*Auth, error) {
	a := &Auth{
		client:   http.DefaultClient,
		nexusURL: nexusURL,
		log:      log.Logger.With().Str("caller", "Passport").Logger(),
	}

	for _, o := range options {
		if err := o(a); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// Token runs the two-step handshake and returns the ticket. The email and
// password travel only in the Authorization header of the login-SRF request
// and are never logged.
func (a *Auth) Token(ctx context.Context, email, password, authString string) (string, error) {
	loginSrf, err := a.loginSrfURL(ctx)
	if err != nil {
		return "", err
	}
	a.log.Debug().Str("url", loginSrf).Msg("got login server")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginSrf, nil)
	if err != nil {
		return "", fmt.Errorf("login srf request: %w", err)
	}
	req.Header.Set("Authorization",
		"Passport1.4 OrgVerb=GET,OrgURL=http%3A%2F%2Fmessenger%2Emsn%2Ecom,sign-in="+
			email+",pwd="+password+","+authString)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login srf request: %w", err)
	}
	resp.Body.Close()

	info := resp.Header.Get("Authentication-Info")
	if info == "" {
		return "", msnp.ErrAuthenticationHeaderNotFound
	}

	_, ticket, found := strings.Cut(info, "from-PP='")
	if !found {
		return "", msnp.ErrCouldNotGetAuthenticationString
	}

	ticket, _, found = strings.Cut(ticket, "'")
	if !found {
		return "", msnp.ErrCouldNotGetAuthenticationString
	}
	return ticket, nil
}

// loginSrfURL asks the nexus where the login server lives.
func (a *Auth) loginSrfURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.nexusURL, nil)
	if err != nil {
		return "", fmt.Errorf("nexus request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("nexus request: %w", err)
	}
	resp.Body.Close()

	urls := resp.Header.Get("PassportURLs")
	if urls == "" {
		return "", msnp.ErrAuthenticationHeaderNotFound
	}

	// The header is a comma separated list; DALogin is the only component
	// this handshake needs.
	var login string
	for _, part := range strings.Split(urls, ",") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(part), "DALogin="); ok {
			login = v
			break
		}
	}
	if login == "" {
		return "", msnp.ErrCouldNotGetAuthenticationString
	}

	if !strings.HasPrefix(login, "http") {
		login = "https://" + login
	}
	return login, nil
}
