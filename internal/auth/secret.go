package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const secretBytes = 32

// SecretSource names where the signing secret came from.
type SecretSource string

const (
	SecretFromConfig    SecretSource = "config"
	SecretFromFile      SecretSource = "file"
	SecretFromGenerated SecretSource = "file-generated"
	SecretEphemeral     SecretSource = "ephemeral"
)

// ErrNoSecret is returned when no signing secret strategy is configured.
var ErrNoSecret = errors.New("no jwt signing secret configured: set auth.jwt_secret, auth.secret_file or auth.ephemeral_secret")

// SecretOptions lists the signing-secret strategies in priority order.
type SecretOptions struct {
	Secret    string
	File      string
	Ephemeral bool
}

// ResolveSecret picks the signing secret: an explicit value, then a secret
// file (created with a random secret when missing), then an opt-in random
// per-process secret. An ephemeral secret invalidates every token on restart.
func ResolveSecret(opts SecretOptions) ([]byte, SecretSource, error) {
	if s := strings.TrimSpace(opts.Secret); s != "" {
		return []byte(s), SecretFromConfig, nil
	}

	if path := strings.TrimSpace(opts.File); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			secret := strings.TrimSpace(string(data))
			if secret == "" {
				return nil, "", fmt.Errorf("secret file %s is empty", path)
			}
			return []byte(secret), SecretFromFile, nil
		case errors.Is(err, os.ErrNotExist):
			secret, err := randomSecret()
			if err != nil {
				return nil, "", err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return nil, "", fmt.Errorf("create secret dir: %w", err)
			}
			if err := os.WriteFile(path, []byte(secret+"\n"), 0o600); err != nil {
				return nil, "", fmt.Errorf("write secret file: %w", err)
			}
			return []byte(secret), SecretFromGenerated, nil
		default:
			return nil, "", fmt.Errorf("read secret file: %w", err)
		}
	}

	if opts.Ephemeral {
		secret, err := randomSecret()
		if err != nil {
			return nil, "", err
		}
		return []byte(secret), SecretEphemeral, nil
	}

	return nil, "", ErrNoSecret
}

func randomSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
