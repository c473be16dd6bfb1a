package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenSafetyMargin is how long before expiry a cached token is
// considered stale. A token returned by Token() is guaranteed usable
// for at least this long.
const tokenSafetyMargin = 60 * time.Second

// defaultScope is the Graph resource scope for app-only access.
const defaultScope = "https://graph.microsoft.com/.default"

// authorityFormat is the Azure AD v2.0 token endpoint, parameterized
// by tenant ID.
const authorityFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer
// (graph package) per Go convention "accept interfaces, return structs".
// Invalidate discards any cached credential so the next Token call
// performs an unconditional refresh — the client calls it on 401.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Credentials holds the app-only (client_credentials) identity.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// ClientCredentialsSource acquires and caches an app-only token via the
// OAuth2 client_credentials grant. The cached token is refreshed when it
// expires within tokenSafetyMargin. Refresh runs under a mutex: callers
// racing a stale credential block on the single in-flight refresh
// instead of issuing duplicate token requests.
type ClientCredentialsSource struct {
	cfg    *clientcredentials.Config
	logger *slog.Logger

	// now is stubbed in tests.
	now func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewClientCredentialsSource builds a token source for the given tenant.
func NewClientCredentialsSource(creds Credentials, logger *slog.Logger) *ClientCredentialsSource {
	if logger == nil {
		logger = slog.Default()
	}

	return &ClientCredentialsSource{
		cfg: &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     fmt.Sprintf(authorityFormat, creds.TenantID),
			Scopes:       []string{defaultScope},
		},
		logger: logger,
		now:    time.Now,
	}
}

// Token returns a bearer token guaranteed usable for at least
// tokenSafetyMargin. It refreshes at most once per wave of concurrent
// callers. A refresh failure is returned as *AuthError and aborts the
// run — retry policy for token acquisition lives with the caller, not
// here.
func (s *ClientCredentialsSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Add(tokenSafetyMargin).Before(s.expiry) {
		return s.token, nil
	}

	s.logger.Debug("refreshing access token")

	tok, err := s.cfg.Token(ctx)
	if err != nil {
		return "", asAuthError(err)
	}

	s.token = tok.AccessToken
	s.expiry = tok.Expiry

	s.logger.Info("access token refreshed",
		slog.Time("expiry", tok.Expiry),
	)

	return s.token, nil
}

// Invalidate discards the cached token. The next Token call refreshes
// unconditionally, regardless of the cached expiry — a downstream 401
// means the credential may have been revoked early.
func (s *ClientCredentialsSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.expiry = time.Time{}

	s.logger.Info("cached token invalidated, next call will refresh")
}

// asAuthError converts an oauth2 retrieval failure into *AuthError,
// preserving the token endpoint's status and body when available.
func asAuthError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return &AuthError{
			StatusCode: rerr.Response.StatusCode,
			Body:       string(rerr.Body),
			Err:        err,
		}
	}

	return &AuthError{Err: err}
}
