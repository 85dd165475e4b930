package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Params configures an OAuth2 token provider.
type OAuth2Params struct {
	// Flow specifies the OAuth2 grant type: "client_credentials" or "password"
	Flow         string   `mapstructure:"flow" yaml:"flow"`
	TokenURL     string   `mapstructure:"token_url" yaml:"token_url"`
	ClientID     string   `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string   `mapstructure:"client_secret" yaml:"client_secret"`
	Scopes       []string `mapstructure:"scopes" yaml:"scopes,omitempty"`
	// Username and Password are required for the password flow
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
}

// Validate checks the parameters required by the selected flow.
func (p OAuth2Params) Validate() error {
	if p.TokenURL == "" {
		return fmt.Errorf("'token_url' parameter is required")
	}
	if p.ClientID == "" {
		return fmt.Errorf("'client_id' parameter is required")
	}
	if p.ClientSecret == "" {
		return fmt.Errorf("'client_secret' parameter is required")
	}

	switch p.Flow {
	case "", "client_credentials":
		return nil
	case "password":
		if p.Username == "" {
			return fmt.Errorf("'username' parameter is required for password flow")
		}
		if p.Password == "" {
			return fmt.Errorf("'password' parameter is required for password flow")
		}
		return nil
	case "authorization_code":
		return fmt.Errorf("authorization_code flow requires manual browser interaction and is not supported. Use 'client_credentials' or 'password' flows instead")
	default:
		return fmt.Errorf("unknown flow '%s' (supported: client_credentials, password)", p.Flow)
	}
}

// OAuth2Provider obtains access tokens from an OAuth2 token endpoint. The token
// is reported expired until the first Refresh and again once its expiry has
// passed.
type OAuth2Provider struct {
	params OAuth2Params
	header string
	scheme string

	mu    sync.Mutex
	token *oauth2.Token
	now   func() time.Time
}

// expired checks Expiry directly. oauth2.Token.Valid keeps a ten second
// margin, which would reject short-lived tokens right after they are issued.
func expired(token *oauth2.Token, now time.Time) bool {
	if token == nil || token.AccessToken == "" {
		return true
	}
	return !token.Expiry.IsZero() && !now.Before(token.Expiry)
}

// NewOAuth2Provider validates params and creates the provider. header and
// scheme shape the rendered line; they default to "Authorization" and "Bearer".
func NewOAuth2Provider(params OAuth2Params, header, scheme string) (*OAuth2Provider, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if scheme == "" {
		scheme = "Bearer"
	}
	return &OAuth2Provider{params: params, header: header, scheme: scheme, now: time.Now}, nil
}

// CurrentToken returns the cached header line, or ErrTokenExpired when no
// token was fetched yet or its expiry has passed.
func (p *OAuth2Provider) CurrentToken(_ context.Context, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if expired(p.token, p.now()) {
		return "", ErrTokenExpired
	}
	return HeaderLine(p.header, p.scheme, p.token.AccessToken), nil
}

// Refresh fetches a new token from the endpoint and caches it.
func (p *OAuth2Provider) Refresh(ctx context.Context, _ string) (string, error) {
	token, err := p.fetch(ctx)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.token = token
	p.mu.Unlock()

	return HeaderLine(p.header, p.scheme, token.AccessToken), nil
}

func (p *OAuth2Provider) fetch(ctx context.Context) (*oauth2.Token, error) {
	switch p.params.Flow {
	case "password":
		config := oauth2.Config{
			ClientID:     p.params.ClientID,
			ClientSecret: p.params.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: p.params.TokenURL,
			},
			Scopes: p.params.Scopes,
		}
		token, err := config.PasswordCredentialsToken(ctx, p.params.Username, p.params.Password)
		if err != nil {
			return nil, fmt.Errorf("OAuth2 password flow failed: %w", err)
		}
		return token, nil
	default:
		config := clientcredentials.Config{
			ClientID:     p.params.ClientID,
			ClientSecret: p.params.ClientSecret,
			TokenURL:     p.params.TokenURL,
			Scopes:       p.params.Scopes,
		}
		token, err := config.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("OAuth2 client_credentials flow failed: %w", err)
		}
		return token, nil
	}
}
