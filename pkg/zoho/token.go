package zoho

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// DefaultTokenURL is the Zoho accounts endpoint for the refresh exchange.
	DefaultTokenURL = "https://accounts.zoho.com/oauth/v2/token"

	defaultTokenLifetime = time.Hour
	tokenSafetyMargin    = 60 * time.Second
)

// TokenSource supplies bearer tokens for a refresh credential.
type TokenSource interface {
	AccessToken(ctx context.Context, refreshToken string) (string, error)
	Invalidate(refreshToken string)
}

// AuthError reports a failed refresh-token exchange.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("zoho: token exchange failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("zoho: token exchange failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// TokenManager exchanges refresh credentials for access tokens and caches
// them per credential until shortly before they expire.
type TokenManager struct {
	conf *oauth2.Config
	http *http.Client
	now  func() time.Time

	mu    sync.Mutex
	cache map[string]cachedToken
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithTokenHTTPClient sets the http.Client used for the exchange.
func WithTokenHTTPClient(hc *http.Client) TokenOption {
	return func(m *TokenManager) {
		m.http = hc
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) {
		m.now = now
	}
}

// NewTokenManager creates a TokenManager for the given OAuth client.
// An empty tokenURL uses DefaultTokenURL.
func NewTokenManager(tokenURL, clientID, clientSecret string, opts ...TokenOption) *TokenManager {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	m := &TokenManager{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http:  &http.Client{Timeout: 30 * time.Second},
		now:   time.Now,
		cache: make(map[string]cachedToken),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// AccessToken returns a cached token for refreshToken when it is still valid
// past the safety margin, and performs a refresh exchange otherwise.
// Failed exchanges are not cached.
func (m *TokenManager) AccessToken(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", &AuthError{Err: eris.New("zoho: empty refresh token")}
	}

	m.mu.Lock()
	cached, ok := m.cache[refreshToken]
	m.mu.Unlock()
	if ok && m.now().Before(cached.expiresAt.Add(-tokenSafetyMargin)) {
		return cached.accessToken, nil
	}

	tok, err := m.exchange(ctx, refreshToken)
	if err != nil {
		return "", err
	}

	// expires_in is relative, so only m.now decides when the token lapses.
	lifetime := defaultTokenLifetime
	if tok.ExpiresIn > 0 {
		lifetime = time.Duration(tok.ExpiresIn) * time.Second
	}

	m.mu.Lock()
	m.cache[refreshToken] = cachedToken{
		accessToken: tok.AccessToken,
		expiresAt:   m.now().Add(lifetime),
	}
	m.mu.Unlock()

	zap.L().Debug("zoho: refreshed access token", zap.Duration("lifetime", lifetime))
	return tok.AccessToken, nil
}

// Invalidate drops any cached token for refreshToken.
func (m *TokenManager) Invalidate(refreshToken string) {
	m.mu.Lock()
	delete(m.cache, refreshToken)
	m.mu.Unlock()
}

func (m *TokenManager) exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.http)
	src := m.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		authErr := &AuthError{Err: err}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			authErr.StatusCode = re.Response.StatusCode
		}
		return nil, authErr
	}
	if tok.AccessToken == "" {
		return nil, &AuthError{Err: eris.New("zoho: token response missing access_token")}
	}
	return tok, nil
}
