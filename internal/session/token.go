package session

import (
	"fmt"
	"os"
	"strings"
)

// TokenSource supplies the auth credential attached to outgoing requests
// and to the realtime handshake. The login flow owns token acquisition;
// this package only reads what it stored.
type TokenSource interface {
	Token() (string, error)
}

// FileTokenSource reads the token from the session's token file on every
// call, so a re-login by the app is picked up without restarting.
type FileTokenSource struct {
	path string
}

// NewFileTokenSource creates a token source for the given session.
func NewFileTokenSource(sessionName string) *FileTokenSource {
	return &FileTokenSource{path: TokenPath(sessionName)}
}

// Token returns the stored credential.
func (s *FileTokenSource) Token() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("read session token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("session token file %s is empty", s.path)
	}
	return token, nil
}

// SaveToken writes the credential for a session with 0600 permissions.
func SaveToken(sessionName, token string) error {
	if err := EnsureDir(sessionName); err != nil {
		return err
	}
	return os.WriteFile(TokenPath(sessionName), []byte(token+"\n"), 0600)
}

// StaticTokenSource returns a TokenSource that always yields token.
// Used in tests and one-shot CLI invocations.
func StaticTokenSource(token string) TokenSource {
	return staticToken(token)
}

type staticToken string

func (t staticToken) Token() (string, error) {
	if t == "" {
		return "", fmt.Errorf("no auth token configured")
	}
	return string(t), nil
}
