package secrets_test

import (
	"errors"
	"testing"

	"github.com/Strob0t/ReviewLoop/internal/secrets"
)

func TestVaultReload(t *testing.T) {
	calls := 0
	v, err := secrets.NewVault(func() (map[string]string, error) {
		calls++
		if calls == 1 {
			return map[string]string{"TOKEN": "old"}, nil
		}
		return map[string]string{"TOKEN": "new"}, nil
	})
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	if got := v.Get("TOKEN"); got != "old" {
		t.Fatalf("Get = %q, want old", got)
	}
	if err := v.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := v.Get("TOKEN"); got != "new" {
		t.Fatalf("Get after reload = %q, want new", got)
	}
}

func TestVaultReloadErrorPreservesValues(t *testing.T) {
	calls := 0
	v, _ := secrets.NewVault(func() (map[string]string, error) {
		calls++
		if calls == 1 {
			return map[string]string{"KEY": "original"}, nil
		}
		return nil, errors.New("vault unavailable")
	})

	if err := v.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if got := v.Get("KEY"); got != "original" {
		t.Fatalf("Get after failed reload = %q, want original", got)
	}
}

func TestResolverEnv(t *testing.T) {
	t.Setenv("SHOP_DB_DSN", "postgres://shop")

	r := secrets.NewResolver(nil)

	got, err := r.Resolve("env:SHOP_DB_DSN")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "postgres://shop" {
		t.Fatalf("Resolve = %q", got)
	}

	// Bare references default to env.
	if got, err := r.Resolve("SHOP_DB_DSN"); err != nil || got != "postgres://shop" {
		t.Fatalf("bare Resolve = %q, %v", got, err)
	}
}

func TestResolverVault(t *testing.T) {
	v, _ := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{"api_key": "s3cret"}, nil
	})
	r := secrets.NewResolver(v)

	got, err := r.Resolve("vault:api_key")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "s3cret" {
		t.Fatalf("Resolve = %q", got)
	}
}

func TestResolverErrors(t *testing.T) {
	r := secrets.NewResolver(nil)
	for _, ref := range []string{"", "env:", "vault:key", "aws:key", "env:DOES_NOT_EXIST_42"} {
		if _, err := r.Resolve(ref); err == nil {
			t.Errorf("Resolve(%q): no error", ref)
		}
	}
}
