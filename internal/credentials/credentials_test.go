package credentials

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"

	"taskfold/internal/errs"
)

func TestKey(t *testing.T) {
	tests := []struct {
		url, user string
		want      string
		wantErr   bool
	}{
		{url: "https://dav.example.com/tasks", user: "alex", want: "alex@dav.example.com"},
		{url: "https://DAV.Example.com:8443/x", user: "alex", want: "alex@dav.example.com:8443"},
		{url: "https://sam@dav.example.com/", want: "sam@dav.example.com"},
		{url: "https://dav.example.com/", wantErr: true},
		{url: "not a url", user: "alex", wantErr: true},
	}
	for _, tt := range tests {
		got, err := Key(tt.url, tt.user)
		if (err != nil) != tt.wantErr {
			t.Errorf("Key(%q, %q) error = %v, wantErr %v", tt.url, tt.user, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Key(%q, %q) = %q, want %q", tt.url, tt.user, got, tt.want)
		}
	}
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	if _, err := s.Get("alex@host"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on empty store error = %v, want ErrNotFound", err)
	}
	if err := s.Set("alex@host", "hunter2"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := s.Get("alex@host")
	if err != nil || got != "hunter2" {
		t.Fatalf("Get() = %q, %v", got, err)
	}
	if err := s.Delete("alex@host"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete("alex@host"); !errs.Is(err, errs.NotFound) {
		t.Errorf("second Delete() error = %v, want not found", err)
	}
	if err := s.Set("", "x"); !errs.Is(err, errs.Validation) {
		t.Errorf("Set() with empty key error = %v, want validation", err)
	}
}

func TestKeyring(t *testing.T) {
	keyring.MockInit()
	testStore(t, NewKeyring())
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory())
}
