package auth

import (
	"fmt"
	"time"
)

// ProviderConfig declares the provider behind one AuthToken tag.
type ProviderConfig struct {
	Tag string `mapstructure:"tag" yaml:"tag"`
	// Type is one of: static, basic, oauth2, command
	Type string `mapstructure:"type" yaml:"type"`

	// Header and Scheme shape the rendered line for static and oauth2 tokens.
	Header string `mapstructure:"header" yaml:"header,omitempty"`
	Scheme string `mapstructure:"scheme" yaml:"scheme,omitempty"`

	Token    string        `mapstructure:"token" yaml:"token,omitempty"`
	Username string        `mapstructure:"username" yaml:"username,omitempty"`
	Password string        `mapstructure:"password" yaml:"password,omitempty"`
	Command  []string      `mapstructure:"command" yaml:"command,omitempty"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval,omitempty"`
	OAuth2   OAuth2Params  `mapstructure:"oauth2" yaml:"oauth2,omitempty"`
}

// Build wires every configured provider into a Mux.
func Build(configs []ProviderConfig) (*Mux, error) {
	mux := NewMux()
	for _, c := range configs {
		if c.Tag == "" {
			return nil, fmt.Errorf("auth provider: tag is required")
		}
		p, err := build(c)
		if err != nil {
			return nil, fmt.Errorf("auth provider %s: %w", c.Tag, err)
		}
		mux.Handle(c.Tag, p)
	}
	return mux, nil
}

func build(c ProviderConfig) (TokenProvider, error) {
	switch c.Type {
	case "", "static":
		if c.Token == "" {
			return nil, fmt.Errorf("'token' is required for static providers")
		}
		return NewStaticProvider(map[string]string{c.Tag: HeaderLine(c.Header, c.Scheme, c.Token)}), nil
	case "basic":
		return NewBasicProvider(c.Tag, c.Header, c.Username, c.Password)
	case "oauth2":
		return NewOAuth2Provider(c.OAuth2, c.Header, c.Scheme)
	case "command":
		return NewCommandProvider(c.Command, c.Interval)
	default:
		return nil, fmt.Errorf("unknown provider type '%s' (use: static, basic, oauth2, command)", c.Type)
	}
}
