package errs

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestKindOf(t *testing.T) {
	sentinel := New(NotFound, "list not found")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Unknown},
		{"plain", errors.New("boom"), Unknown},
		{"sentinel", sentinel, NotFound},
		{"wrapped sentinel", fmt.Errorf("get list %q: %w", "Work", sentinel), NotFound},
		{"wrap", Wrap(IO, "write task", os.ErrPermission), IO},
		{"errorf", Errorf(Validation, "title %q is empty", ""), Validation},
		{"outermost wins", Wrap(Transport, "push", sentinel), Transport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(IO, "write task", os.ErrPermission)
	if !errors.Is(err, os.ErrPermission) {
		t.Fatalf("errors.Is(%v, os.ErrPermission) = false", err)
	}
	if got, want := err.Error(), "write task: permission denied"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if Wrap(IO, "noop", nil) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestSentinelIdentity(t *testing.T) {
	a := New(Validation, "duplicate")
	b := New(Validation, "duplicate")
	err := fmt.Errorf("add: %w", a)
	if !errors.Is(err, a) {
		t.Error("expected wrapped sentinel to match itself")
	}
	if errors.Is(err, b) {
		t.Error("distinct sentinels with the same text must not match")
	}
}
