// Package auth builds the authentication headers sent with every API request.
package auth

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/errors"
)

// HeaderAccessToken carries the Admin API access token.
const HeaderAccessToken = "X-Shopify-Access-Token"

// APIKeyAuthenticator sets the access token header, and the user agent when
// one is configured. A tap creates one and shares it across all of its
// streams; it is safe for concurrent use.
type APIKeyAuthenticator struct {
	source    oauth2.TokenSource
	userAgent string
}

// NewAPIKeyAuthenticator creates an authenticator drawing tokens from source.
func NewAPIKeyAuthenticator(source oauth2.TokenSource, userAgent string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{
		source:    source,
		userAgent: userAgent,
	}
}

// StaticToken returns a token source that always yields token.
func StaticToken(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
}

// ClientCredentials returns a cached token source using the client
// credentials grant against <urlBase>/oauth/access_token. Token requests go
// through httpClient when it is not nil.
func ClientCredentials(ctx context.Context, httpClient *http.Client, urlBase, clientID, clientSecret string) oauth2.TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     strings.TrimRight(urlBase, "/") + "/oauth/access_token",
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	return oauth2.ReuseTokenSource(nil, cfg.TokenSource(ctx))
}

// FromConfig builds the authenticator for a tap configuration.
func FromConfig(ctx context.Context, cfg *config.TapConfig, httpClient *http.Client) *APIKeyAuthenticator {
	var source oauth2.TokenSource
	if cfg.AccessToken.IsZero() && cfg.UsesClientCredentials() {
		source = ClientCredentials(ctx, httpClient, cfg.URLBase(), cfg.ClientID, cfg.ClientSecret.Reveal())
	} else {
		source = StaticToken(cfg.AccessToken.Reveal())
	}
	return NewAPIKeyAuthenticator(source, cfg.UserAgent)
}

// Headers returns the headers to attach to a request.
func (a *APIKeyAuthenticator) Headers() (http.Header, error) {
	tok, err := a.source.Token()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to obtain access token")
	}

	h := make(http.Header, 2)
	h.Set(HeaderAccessToken, tok.AccessToken)
	if a.userAgent != "" {
		h.Set("User-Agent", a.userAgent)
	}
	return h, nil
}
