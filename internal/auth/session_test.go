package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/fitsync/internal/common"
	"github.com/dmitrijs2005/fitsync/internal/logging"
	"github.com/dmitrijs2005/fitsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// tokenServer is a minimal OAuth token endpoint.
type tokenServer struct {
	*httptest.Server
	exchanges   atomic.Int32
	refreshes   atomic.Int32
	failRefresh atomic.Bool
	lastForm    url.Values
	mu          sync.Mutex
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ts.mu.Lock()
		ts.lastForm = r.PostForm
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			ts.exchanges.Add(1)
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "access-1", "refresh_token": "refresh-1",
				"token_type": "Bearer", "expires_in": 3600,
			})
		case "refresh_token":
			ts.refreshes.Add(1)
			time.Sleep(10 * time.Millisecond)
			if ts.failRefresh.Load() {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "access-2", "token_type": "Bearer", "expires_in": 3600,
			})
		default:
			http.Error(w, "unsupported grant", http.StatusBadRequest)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   ts.URL + "/auth",
		TokenURL:  ts.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

type memTokenStore struct {
	mu     sync.Mutex
	tokens *models.Tokens
	saves  int
	err    error
}

func (m *memTokenStore) Load(context.Context) (*models.Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.tokens, nil
}

func (m *memTokenStore) Save(_ context.Context, t models.Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.tokens = &t
	m.saves++
	return nil
}

func (m *memTokenStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = nil
	return m.err
}

type codeFunc func(ctx context.Context, authURL string) (string, error)

func (f codeFunc) ObtainCode(ctx context.Context, authURL string) (string, error) { return f(ctx, authURL) }

func profileOK(context.Context, *http.Client) (*models.Profile, error) {
	return &models.Profile{ID: "42", Email: "a@example.com", Name: "A"}, nil
}

func newSession(t *testing.T, ts *tokenServer, store TokenStore, opts ...Option) *Session {
	t.Helper()
	base := []Option{
		WithEndpoint(ts.endpoint()),
		WithProfileFetcher(profileOK),
		WithGetenv(func(string) string { return "" }),
	}
	s := NewSession(store, logging.Nop(), append(base, opts...)...)
	require.NoError(t, s.Configure("client", "secret", ""))
	return s
}

func TestConfigure_RequiresCredentials(t *testing.T) {
	s := NewSession(nil, logging.Nop(), WithGetenv(func(string) string { return "" }))
	err := s.Configure("", "", "")
	require.ErrorIs(t, err, common.ErrConfiguration)

	env := map[string]string{common.EnvClientID: "id", common.EnvClientSecret: "sec"}
	s = NewSession(nil, logging.Nop(), WithGetenv(func(k string) string { return env[k] }))
	require.NoError(t, s.Configure("", "", ""))
	assert.Equal(t, common.DefaultRedirectURI, s.RedirectURI())
	assert.Equal(t, StateUnconfigured, s.State())
}

func TestAuthorize_NotConfigured(t *testing.T) {
	s := NewSession(nil, logging.Nop())
	_, err := s.Authorize(context.Background(), codeFunc(func(context.Context, string) (string, error) {
		t.Fatal("code source must not be called")
		return "", nil
	}))
	require.ErrorIs(t, err, common.ErrNotConfigured)
}

func TestAuthorize_Success(t *testing.T) {
	ts := newTokenServer(t)
	store := &memTokenStore{}
	s := newSession(t, ts, store)

	var gotURL string
	profile, err := s.Authorize(context.Background(), codeFunc(func(_ context.Context, authURL string) (string, error) {
		gotURL = authURL
		return "good-code", nil
	}))
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "a@example.com", profile.Email)
	assert.Equal(t, StateAuthenticated, s.State())

	u, err := url.Parse(gotURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, strings.Join(common.Scopes(), " "), q.Get("scope"))
	assert.NotEmpty(t, q.Get("state"))

	require.NotNil(t, store.tokens)
	assert.Equal(t, "access-1", store.tokens.AccessToken)
	assert.Equal(t, "refresh-1", store.tokens.RefreshToken)
	assert.EqualValues(t, 1, ts.exchanges.Load())
}

func TestAuthorize_ProfileFailureIsNotFatal(t *testing.T) {
	ts := newTokenServer(t)
	s := newSession(t, ts, nil, WithProfileFetcher(func(context.Context, *http.Client) (*models.Profile, error) {
		return nil, errors.New("userinfo down")
	}))

	profile, err := s.Authorize(context.Background(), codeFunc(func(context.Context, string) (string, error) {
		return "good-code", nil
	}))
	require.NoError(t, err)
	assert.Nil(t, profile)
	assert.Equal(t, StateAuthenticated, s.State())
}

func TestAuthorize_Failures(t *testing.T) {
	tests := []struct {
		name string
		src  codeFunc
		want error
	}{
		{"user closed window", func(context.Context, string) (string, error) { return "", common.ErrUserCancelled }, common.ErrUserCancelled},
		{"provider error", func(context.Context, string) (string, error) { return "", errors.New("boom") }, common.ErrAuthorization},
		{"bad code", func(context.Context, string) (string, error) { return "bad-code", nil }, common.ErrAuthorization},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTokenServer(t)
			s := newSession(t, ts, nil)

			_, err := s.Authorize(context.Background(), tc.src)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, StateUnconfigured, s.State())
		})
	}
}

func TestAuthorize_RejectsConcurrentFlow(t *testing.T) {
	ts := newTokenServer(t)
	s := newSession(t, ts, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = s.Authorize(context.Background(), codeFunc(func(context.Context, string) (string, error) {
			close(started)
			<-release
			return "good-code", nil
		}))
	}()
	<-started

	_, err := s.Authorize(context.Background(), codeFunc(func(context.Context, string) (string, error) {
		return "good-code", nil
	}))
	require.ErrorIs(t, err, common.ErrAuthInProgress)
	close(release)
}

func TestEnsureValid_NotAuthenticated(t *testing.T) {
	ts := newTokenServer(t)
	s := newSession(t, ts, nil)
	require.ErrorIs(t, s.EnsureValid(context.Background()), common.ErrNotAuthenticated)
}

func TestEnsureValid_FreshTokenNoRefresh(t *testing.T) {
	ts := newTokenServer(t)
	s := newSession(t, ts, nil)
	require.NoError(t, s.RestoreCredentials(models.Tokens{
		AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour),
	}))

	require.NoError(t, s.EnsureValid(context.Background()))
	assert.Zero(t, ts.refreshes.Load())
}

func TestEnsureValid_ExpiredRefreshesExactlyOnce(t *testing.T) {
	ts := newTokenServer(t)
	store := &memTokenStore{}
	s := newSession(t, ts, store)
	require.NoError(t, s.RestoreCredentials(models.Tokens{
		AccessToken: "stale", RefreshToken: "refresh-1", Expiry: time.Now().Add(-time.Minute),
	}))
	assert.Equal(t, StateExpired, s.State())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.EnsureValid(context.Background()))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, ts.refreshes.Load())
	assert.Equal(t, StateAuthenticated, s.State())

	tok, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok.AccessToken)

	// refresh responses without a refresh token keep the old one
	require.NotNil(t, store.tokens)
	assert.Equal(t, "refresh-1", store.tokens.RefreshToken)
	assert.Equal(t, "access-2", store.tokens.AccessToken)
}

func TestEnsureValid_ExpiryEqualToNowRefreshes(t *testing.T) {
	ts := newTokenServer(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newSession(t, ts, nil, WithClock(func() time.Time { return now }))
	require.NoError(t, s.RestoreCredentials(models.Tokens{AccessToken: "a", RefreshToken: "r", Expiry: now}))

	require.NoError(t, s.EnsureValid(context.Background()))
	assert.EqualValues(t, 1, ts.refreshes.Load())
}

func TestEnsureValid_MissingExpiryRefreshes(t *testing.T) {
	ts := newTokenServer(t)
	s := newSession(t, ts, &memTokenStore{})

	require.NoError(t, s.RestoreCredentials(models.Tokens{AccessToken: "stale", RefreshToken: "refresh-1"}))
	assert.Equal(t, StateExpired, s.State())

	require.NoError(t, s.EnsureValid(context.Background()))
	assert.EqualValues(t, 1, ts.refreshes.Load())
	assert.Equal(t, StateAuthenticated, s.State())

	tok, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok.AccessToken)
}

func TestEnsureValid_MissingExpiryWithoutRefreshTokenRequiresReauth(t *testing.T) {
	ts := newTokenServer(t)
	s := newSession(t, ts, &memTokenStore{})

	require.NoError(t, s.RestoreCredentials(models.Tokens{AccessToken: "stale"}))
	require.ErrorIs(t, s.EnsureValid(context.Background()), common.ErrReauthorizationRequired)
	assert.Zero(t, ts.refreshes.Load())
}

func TestEnsureValid_RefreshFailureRequiresReauth(t *testing.T) {
	ts := newTokenServer(t)
	ts.failRefresh.Store(true)
	s := newSession(t, ts, nil)
	require.NoError(t, s.RestoreCredentials(models.Tokens{
		AccessToken: "stale", RefreshToken: "revoked", Expiry: time.Now().Add(-time.Minute),
	}))

	err := s.EnsureValid(context.Background())
	require.ErrorIs(t, err, common.ErrReauthorizationRequired)
	assert.Equal(t, StateExpired, s.State())
}

func TestEnsureValid_NoRefreshToken(t *testing.T) {
	ts := newTokenServer(t)
	s := newSession(t, ts, nil)
	require.NoError(t, s.RestoreCredentials(models.Tokens{AccessToken: "a", Expiry: time.Now().Add(-time.Second)}))

	require.ErrorIs(t, s.EnsureValid(context.Background()), common.ErrReauthorizationRequired)
	assert.Zero(t, ts.refreshes.Load())
}

func TestRestoreFromStore_And_Logout(t *testing.T) {
	ts := newTokenServer(t)
	store := &memTokenStore{tokens: &models.Tokens{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}}
	s := newSession(t, ts, store)

	ok, err := s.RestoreFromStore(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateAuthenticated, s.State())

	require.NoError(t, s.Logout(context.Background()))
	assert.Equal(t, StateUnconfigured, s.State())
	assert.Nil(t, store.tokens)
	_, err = s.Token()
	require.ErrorIs(t, err, common.ErrNotAuthenticated)

	ok, err = s.RestoreFromStore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestoreCredentials_Empty(t *testing.T) {
	s := NewSession(nil, logging.Nop())
	require.ErrorIs(t, s.RestoreCredentials(models.Tokens{}), common.ErrNotAuthenticated)
}

func TestHTTPClient_SendsBearerWithoutRefreshing(t *testing.T) {
	ts := newTokenServer(t)
	s := newSession(t, ts, nil)

	_, err := s.HTTPClient(context.Background())
	require.ErrorIs(t, err, common.ErrNotAuthenticated)

	require.NoError(t, s.RestoreCredentials(models.Tokens{
		AccessToken: "expired-but-used", TokenType: "Bearer", RefreshToken: "r", Expiry: time.Now().Add(-time.Hour),
	}))

	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer api.Close()

	client, err := s.HTTPClient(context.Background())
	require.NoError(t, err)
	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "Bearer expired-but-used", gotAuth)
	assert.Zero(t, ts.refreshes.Load())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "state(99)", State(99).String())
}
