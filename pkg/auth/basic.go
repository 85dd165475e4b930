package auth

import (
	"encoding/base64"
	"fmt"
)

// NewBasicProvider serves an HTTP Basic credential for tag. The credential is
// encoded once and never expires.
func NewBasicProvider(tag, header, username, password string) (*StaticProvider, error) {
	if username == "" {
		return nil, fmt.Errorf("'username' parameter is required")
	}
	if password == "" {
		return nil, fmt.Errorf("'password' parameter is required")
	}

	// Encode credentials as base64
	credentials := fmt.Sprintf("%s:%s", username, password)
	encoded := base64.StdEncoding.EncodeToString([]byte(credentials))
	return NewStaticProvider(map[string]string{tag: HeaderLine(header, "Basic", encoded)}), nil
}
