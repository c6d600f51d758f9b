// Package credential produces the authorization header value for REST
// calls and the token for gateway identify/resume.
package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hendrywilliam/siren/src/errs"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var ErrEmptyToken = errors.New("empty token")

type Provider interface {
	// Token returns a complete authorization value, e.g. "Bot abc" or
	// "Bearer xyz". It may perform network I/O.
	Token(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (string, error)

func (f ProviderFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

type static struct {
	value string
}

// Static returns a Provider for a fixed bot token.
func Static(botToken string) Provider {
	botToken = strings.TrimSpace(strings.TrimPrefix(botToken, "Bot "))
	return static{value: botToken}
}

func (s static) Token(ctx context.Context) (string, error) {
	if s.value == "" {
		return "", errs.E(errs.KindAuthentication, "credential.Static", ErrEmptyToken)
	}
	return fmt.Sprintf("Bot %s", s.value), nil
}

type ClientCredentialsConfig struct {
	ClientID     string
	ClientSecret string
	// TokenURL defaults to https://discord.com/api/v10/oauth2/token.
	TokenURL string
	Scopes   []string
	// HTTPClient is used for token requests when set.
	HTTPClient *http.Client
}

type clientCredentials struct {
	source oauth2.TokenSource
}

// NewClientCredentials returns a Provider backed by the OAuth2 client
// credentials grant. The access token is cached and refreshed once it
// expires.
func NewClientCredentials(ctx context.Context, cfg ClientCredentialsConfig) Provider {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = "https://discord.com/api/v10/oauth2/token"
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	// clientcredentials already wraps its source in a ReuseTokenSource.
	return &clientCredentials{source: cc.TokenSource(ctx)}
}

func (c *clientCredentials) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := c.source.Token()
	if err != nil {
		return "", classify(err)
	}
	if tok.AccessToken == "" {
		return "", errs.E(errs.KindAuthentication, "credential.ClientCredentials", ErrEmptyToken)
	}
	return fmt.Sprintf("%s %s", tok.Type(), tok.AccessToken), nil
}

func classify(err error) error {
	const op = "credential.ClientCredentials"
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		e := errs.E(errs.KindTransport, op, err)
		e.Status = re.Response.StatusCode
		if re.Response.StatusCode >= 400 && re.Response.StatusCode < 500 {
			e.Kind = errs.KindAuthentication
		}
		return e
	}
	return errs.E(errs.KindTransport, op, err)
}
