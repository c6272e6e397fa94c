package passphrase

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source resolves the operator keystore passphrase once and caches it, so the
// config loader and the key loader observe the same secret. Resolution order:
// the environment variable, a file named by the variable with a _FILE suffix,
// then an interactive prompt.
type Source struct {
	envVar  string
	fileVar string

	once  sync.Once
	value string
	err   error
}

// NewSource constructs a passphrase source keyed to envVar. An empty envVar
// disables the environment lookups and forces the interactive prompt.
func NewSource(envVar string) *Source {
	trimmed := strings.TrimSpace(envVar)
	s := &Source{envVar: trimmed}
	if trimmed != "" {
		s.fileVar = trimmed + "_FILE"
	}
	return s
}

// Get returns the cached passphrase, resolving it on the first call.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}

	if s.fileVar != "" {
		if path, ok := os.LookupEnv(s.fileVar); ok {
			return readPassphraseFile(s.fileVar, strings.TrimSpace(path))
		}
	}

	return s.prompt()
}

// readPassphraseFile reads the secret from disk, tolerating a trailing
// newline the way secret mounts usually deliver it.
func readPassphraseFile(fileVar, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%s is set but empty", fileVar)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read passphrase file: %w", err)
	}
	value := strings.TrimRight(string(raw), "\r\n")
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("passphrase file %s is empty", path)
	}
	return value, nil
}

func (s *Source) prompt() (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		if s.envVar != "" {
			return "", fmt.Errorf("operator keystore passphrase required; set %s or %s, or run interactively", s.envVar, s.fileVar)
		}
		return "", fmt.Errorf("operator keystore passphrase required and no terminal available")
	}

	fmt.Fprint(os.Stderr, "Enter operator keystore passphrase: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", fmt.Errorf("operator keystore passphrase cannot be empty")
	}
	return string(raw), nil
}
