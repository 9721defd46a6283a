package connection

import (
	"testing"

	"github.com/signalmesh/server/internal/session"
	"github.com/signalmesh/server/internal/wire"
)

func TestToSessionCredentialsUsernamePassword(t *testing.T) {
	t.Parallel()
	out, err := toSessionCredentials(wire.Credentials{Type: wire.CredentialUsernamePassword, Username: "alice", Password: "hunter2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := out.(session.UsernamePasswordCredentials)
	if !ok {
		t.Fatalf("want session.UsernamePasswordCredentials, got %T", out)
	}
	if got.Username != "alice" || got.Password != "hunter2" {
		t.Fatalf("unexpected credentials: %+v", got)
	}
}

func TestToSessionCredentialsAdHoc(t *testing.T) {
	t.Parallel()
	out, err := toSessionCredentials(wire.Credentials{Type: wire.CredentialAdHoc, Username: "bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := out.(session.AdHocCredentials)
	if !ok {
		t.Fatalf("want session.AdHocCredentials, got %T", out)
	}
	if got.Username != "bob" {
		t.Fatalf("unexpected username: %+v", got)
	}
}

func TestToSessionCredentialsUnknownType(t *testing.T) {
	t.Parallel()
	_, err := toSessionCredentials(wire.Credentials{Type: "bogus"})
	if err == nil {
		t.Fatal("expected error for unrecognized credential type")
	}
}
