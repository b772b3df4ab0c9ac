// Package auth implements the OAuth2 session of an installed application:
// the authorization-code flow, token persistence, expiry detection and
// refresh.
//
// The session moves through
//
//	Unconfigured -> Authorizing -> Authenticated <-> Expired
//
// and Logout returns it to Unconfigured. The interactive consent surface is
// abstracted as a CodeSource.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/fitsync/internal/common"
	"github.com/dmitrijs2005/fitsync/internal/logging"
	"github.com/dmitrijs2005/fitsync/internal/models"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

type State int

const (
	StateUnconfigured State = iota
	StateAuthorizing
	StateAuthenticated
	StateExpired
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateAuthorizing:
		return "authorizing"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	case StateLoggedOut:
		return "logged_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CodeSource obtains an authorization code for authURL. The expected OAuth
// state is the "state" query parameter of authURL.
type CodeSource interface {
	ObtainCode(ctx context.Context, authURL string) (string, error)
}

// ProfileFetcher loads the account profile with an authenticated client.
type ProfileFetcher func(ctx context.Context, client *http.Client) (*models.Profile, error)

type Option func(*Session)

// WithEndpoint overrides the Google OAuth endpoint.
func WithEndpoint(e oauth2.Endpoint) Option { return func(s *Session) { s.endpoint = e } }

func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

func WithProfileFetcher(f ProfileFetcher) Option { return func(s *Session) { s.fetchProfile = f } }

// WithGetenv replaces os.Getenv for the credential fallback.
func WithGetenv(getenv func(string) string) Option { return func(s *Session) { s.getenv = getenv } }

// WithHTTPClient sets the client used for token exchange and refresh.
func WithHTTPClient(c *http.Client) Option { return func(s *Session) { s.httpClient = c } }

// Session is safe for concurrent use. EnsureValid serializes callers so at
// most one refresh is in flight.
type Session struct {
	mu sync.Mutex

	log          logging.Logger
	store        TokenStore
	endpoint     oauth2.Endpoint
	now          func() time.Time
	getenv       func(string) string
	fetchProfile ProfileFetcher
	httpClient   *http.Client

	cfg     *oauth2.Config
	state   State
	tokens  *models.Tokens
	profile *models.Profile
}

func NewSession(store TokenStore, log logging.Logger, opts ...Option) *Session {
	s := &Session{
		log:          log,
		store:        store,
		endpoint:     google.Endpoint,
		now:          time.Now,
		getenv:       os.Getenv,
		fetchProfile: FetchUserinfo,
		state:        StateUnconfigured,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Configure sets the OAuth client. Empty credentials fall back to
// GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET; an empty redirect URI selects
// the loopback default.
func (s *Session) Configure(clientID, clientSecret, redirectURI string) error {
	if clientID == "" {
		clientID = s.getenv(common.EnvClientID)
	}
	if clientSecret == "" {
		clientSecret = s.getenv(common.EnvClientSecret)
	}
	if clientID == "" || clientSecret == "" {
		return fmt.Errorf("%w: OAuth client id and secret are required (set %s and %s)",
			common.ErrConfiguration, common.EnvClientID, common.EnvClientSecret)
	}
	if redirectURI == "" {
		redirectURI = common.DefaultRedirectURI
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       common.Scopes(),
		Endpoint:     s.endpoint,
	}
	if s.tokens == nil {
		s.state = StateUnconfigured
	}
	return nil
}

// RedirectURI returns the configured redirect URI.
func (s *Session) RedirectURI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return ""
	}
	return s.cfg.RedirectURL
}

// Authorize runs the interactive flow through src, exchanges the code and
// stores the resulting tokens. The profile is fetched best-effort.
func (s *Session) Authorize(ctx context.Context, src CodeSource) (*models.Profile, error) {
	s.mu.Lock()
	if s.cfg == nil {
		s.mu.Unlock()
		return nil, common.ErrNotConfigured
	}
	if s.state == StateAuthorizing {
		s.mu.Unlock()
		return nil, common.ErrAuthInProgress
	}
	prev := s.state
	s.state = StateAuthorizing
	cfg := s.cfg
	s.mu.Unlock()

	tok, err := s.runFlow(ctx, cfg, src)
	if err != nil {
		s.mu.Lock()
		s.state = prev
		s.mu.Unlock()
		s.log.Warn(ctx, "authorization failed", "error", err)
		return nil, err
	}

	tokens := fromOAuth(tok)
	s.mu.Lock()
	s.tokens = &tokens
	s.state = StateAuthenticated
	s.profile = nil
	s.mu.Unlock()

	s.persist(ctx, tokens)
	s.log.Info(ctx, "authorized", "expiry", tokens.Expiry)

	profile, err := s.Profile(ctx)
	if err != nil {
		s.log.Warn(ctx, "profile fetch failed", "error", err)
		return nil, nil
	}
	return profile, nil
}

func (s *Session) runFlow(ctx context.Context, cfg *oauth2.Config, src CodeSource) (*oauth2.Token, error) {
	state := uuid.NewString()
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	code, err := src.ObtainCode(ctx, authURL)
	if err != nil {
		if errors.Is(err, common.ErrUserCancelled) || errors.Is(err, common.ErrAuthorization) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", common.ErrAuthorization, err)
	}

	tok, err := cfg.Exchange(s.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: exchange code: %w", common.ErrAuthorization, err)
	}
	return tok, nil
}

// EnsureValid refreshes the access token when its expiry is unknown or at
// or before now. A failed refresh leaves the session Expired and returns
// common.ErrReauthorizationRequired.
func (s *Session) EnsureValid(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens == nil {
		return common.ErrNotAuthenticated
	}
	if !expired(s.tokens.Expiry, s.now()) {
		s.state = StateAuthenticated
		return nil
	}

	s.state = StateExpired
	if s.tokens.RefreshToken == "" {
		return fmt.Errorf("%w: no refresh token", common.ErrReauthorizationRequired)
	}
	if s.cfg == nil {
		return fmt.Errorf("%w: %w", common.ErrReauthorizationRequired, common.ErrNotConfigured)
	}

	s.log.Debug(ctx, "access token expired, refreshing", "expiry", s.tokens.Expiry)
	src := s.cfg.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: s.tokens.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		s.log.Warn(ctx, "token refresh failed", "error", err)
		return fmt.Errorf("%w: %v", common.ErrReauthorizationRequired, err)
	}

	tokens := fromOAuth(tok)
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = s.tokens.RefreshToken
	}
	s.tokens = &tokens
	s.state = StateAuthenticated
	s.persist(ctx, tokens)
	return nil
}

// RestoreCredentials seeds the session from previously persisted tokens.
func (s *Session) RestoreCredentials(tokens models.Tokens) error {
	if tokens.AccessToken == "" && tokens.RefreshToken == "" {
		return fmt.Errorf("%w: empty credentials", common.ErrNotAuthenticated)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = &tokens
	s.state = StateAuthenticated
	if expired(tokens.Expiry, s.now()) {
		s.state = StateExpired
	}
	return nil
}

// expired treats a missing expiry as expired.
func expired(expiry, now time.Time) bool {
	return expiry.IsZero() || !now.Before(expiry)
}

// RestoreFromStore loads tokens from the token store. ok is false when none
// were saved.
func (s *Session) RestoreFromStore(ctx context.Context) (ok bool, err error) {
	if s.store == nil {
		return false, nil
	}
	tokens, err := s.store.Load(ctx)
	if err != nil {
		return false, err
	}
	if tokens == nil {
		return false, nil
	}
	if err := s.RestoreCredentials(*tokens); err != nil {
		return false, err
	}
	return true, nil
}

// Logout drops the in-memory credentials and clears the token store.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.tokens = nil
	s.profile = nil
	s.state = StateUnconfigured
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear stored tokens: %w", err)
	}
	return nil
}

// Token implements oauth2.TokenSource with the current access token. It
// never refreshes; call EnsureValid first.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		return nil, common.ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: s.tokens.AccessToken, TokenType: s.tokens.TokenType}, nil
}

// HTTPClient returns a client that sends the current access token.
func (s *Session) HTTPClient(ctx context.Context) (*http.Client, error) {
	if _, err := s.Token(); err != nil {
		return nil, err
	}
	var base http.RoundTripper
	if s.httpClient != nil {
		base = s.httpClient.Transport
	}
	return &http.Client{Transport: &oauth2.Transport{Source: s, Base: base}}, nil
}

// Profile returns the cached profile, fetching it when absent.
func (s *Session) Profile(ctx context.Context) (*models.Profile, error) {
	s.mu.Lock()
	cached := s.profile
	s.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	client, err := s.HTTPClient(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.fetchProfile(ctx, client)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
	return p, nil
}

func (s *Session) persist(ctx context.Context, tokens models.Tokens) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, tokens); err != nil {
		s.log.Warn(ctx, "could not persist tokens", "error", err)
	}
}

func (s *Session) clientContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func fromOAuth(t *oauth2.Token) models.Tokens {
	return models.Tokens{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
}
