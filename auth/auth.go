// Package auth supplies the Authorization header for chunked-graph requests.
//
// Tokens are read, in order, from an explicit value, the CAVE_TOKEN
// environment variable, or a JSON secret file such as
// ~/.cloudvolume/secrets/chunkedgraph-secret.json holding {"token": "..."}.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sumiya-kuroda/CAVEclient/internal/pathutil"
)

// EnvToken names the environment variable consulted by Load.
const EnvToken = "CAVE_TOKEN"

// DefaultTokenKey is the JSON key holding the token in a secret file.
const DefaultTokenKey = "token"

// DefaultTokenFiles are searched in order when no token file is configured.
var DefaultTokenFiles = []string{
	"~/.cloudvolume/secrets/cave-secret.json",
	"~/.cloudvolume/secrets/chunkedgraph-secret.json",
}

// HeaderProvider returns the header fields merged into every request.
type HeaderProvider interface {
	RequestHeader() (map[string]string, error)
}

// Token is a static bearer token. The zero value sends no header.
type Token string

// RequestHeader implements HeaderProvider.
func (t Token) RequestHeader() (map[string]string, error) {
	tok := strings.TrimSpace(string(t))
	if tok == "" {
		return map[string]string{}, nil
	}
	return map[string]string{"Authorization": "Bearer " + tok}, nil
}

// Options controls Load.
type Options struct {
	// Token, when set, is used verbatim.
	Token string
	// TokenFile overrides DefaultTokenFiles.
	TokenFile string
	// TokenKey overrides DefaultTokenKey.
	TokenKey string
	// SkipEnv ignores EnvToken.
	SkipEnv bool
}

// ErrTokenKey is returned when a secret file lacks the configured key.
var ErrTokenKey = errors.New("auth: token key not found in secret file")

// Load resolves a Token from opts. No token anywhere is not an error: the
// result then sends no Authorization header. An explicit TokenFile that
// does not exist is an error.
func Load(opts Options) (Token, error) {
	if tok := strings.TrimSpace(opts.Token); tok != "" {
		return Token(tok), nil
	}
	if !opts.SkipEnv {
		if tok := strings.TrimSpace(os.Getenv(EnvToken)); tok != "" {
			return Token(tok), nil
		}
	}
	key := opts.TokenKey
	if key == "" {
		key = DefaultTokenKey
	}
	if opts.TokenFile != "" {
		path, err := pathutil.ExpandUserAndEnv(opts.TokenFile)
		if err != nil {
			return "", fmt.Errorf("auth: expand token file %q: %w", opts.TokenFile, err)
		}
		return readTokenFile(path, key)
	}
	path, err := pathutil.FirstExisting(DefaultTokenFiles...)
	if err != nil {
		return "", fmt.Errorf("auth: locate token file: %w", err)
	}
	if path == "" {
		return "", nil
	}
	return readTokenFile(path, key)
}

func readTokenFile(path, key string) (Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("auth: read token file: %w", err)
	}
	var secret map[string]any
	if err := json.Unmarshal(data, &secret); err != nil {
		return "", fmt.Errorf("auth: parse token file %s: %w", path, err)
	}
	raw, ok := secret[key]
	if !ok {
		return "", fmt.Errorf("%w: %q in %s", ErrTokenKey, key, path)
	}
	tok, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("auth: token %q in %s is not a string", key, path)
	}
	return Token(strings.TrimSpace(tok)), nil
}
