package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Resolver turns project secret references of the form "provider:name"
// into their values. Supported providers:
//
//	env:NAME    read from the process environment
//	vault:NAME  read from the attached Vault
//
// A bare reference without a provider prefix is treated as env.
type Resolver struct {
	vault *Vault
}

// NewResolver creates a Resolver backed by the given vault. A nil vault
// restricts resolution to env references.
func NewResolver(vault *Vault) *Resolver {
	return &Resolver{vault: vault}
}

// Resolve returns the secret value for a reference. An unknown provider
// or an empty value is an error: callers must never fall through to an
// empty credential.
func (r *Resolver) Resolve(ref string) (string, error) {
	provider, name := "env", ref
	if i := strings.IndexByte(ref, ':'); i >= 0 {
		provider, name = ref[:i], ref[i+1:]
	}
	if name == "" {
		return "", fmt.Errorf("empty secret reference %q", ref)
	}

	var val string
	switch provider {
	case "env":
		val = os.Getenv(name)
	case "vault":
		if r.vault == nil {
			return "", fmt.Errorf("resolve %q: no vault attached", ref)
		}
		val = r.vault.Get(name)
	default:
		return "", fmt.Errorf("unknown secret provider %q", provider)
	}

	if val == "" {
		return "", fmt.Errorf("secret %q is not set", ref)
	}
	return val, nil
}
