// Package pathutil expands user-supplied file paths.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandUserAndEnv expands $VAR / ${VAR} references and a leading "~" in p.
// The result is not made absolute.
func ExpandUserAndEnv(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	p = os.ExpandEnv(p)
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch {
	case len(p) == 1:
		return home, nil
	case p[1] == '/' || p[1] == '\\':
		return filepath.Join(home, p[2:]), nil
	}
	return p, nil
}

// FirstExisting expands each candidate and returns the first one that exists
// as a regular file. It returns "" when none do.
func FirstExisting(candidates ...string) (string, error) {
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		expanded, err := ExpandUserAndEnv(c)
		if err != nil {
			return "", err
		}
		info, err := os.Stat(expanded)
		if err != nil || info.IsDir() {
			continue
		}
		return expanded, nil
	}
	return "", nil
}
