package deskmirror

import (
	"errors"
	"testing"
)

func TestErrRateLimitExceededError(t *testing.T) {
	e := &ErrRateLimitExceeded{Method: "channel.history", Attempts: 3}
	want := "channel.history: rate limit exceeded after 3 attempts"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrTransportUnwraps(t *testing.T) {
	inner := errors.New("dial tcp: timeout")
	e := &ErrTransport{Method: "user.info", Err: inner}
	if !errors.Is(e, inner) {
		t.Error("ErrTransport should unwrap to its inner error")
	}
}

func TestErrNotFoundError(t *testing.T) {
	e := &ErrNotFound{Kind: "channel", ID: "C123"}
	want := `channel "C123" not found`
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrPermissionDeniedError(t *testing.T) {
	e := &ErrPermissionDenied{Method: "channel.history", Detail: "not a member"}
	want := "channel.history: permission denied: not a member"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrStoreConflictError(t *testing.T) {
	e := &ErrStoreConflict{Table: "messages", Key: "C1:1000.0"}
	if got := e.Error(); got == "" {
		t.Error("expected non-empty error")
	}
}

func TestErrAuthError(t *testing.T) {
	e := &ErrAuth{Detail: "invalid token"}
	want := "authentication failed: invalid token"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorTypesImplementError(t *testing.T) {
	var errs = []error{
		&ErrRateLimitExceeded{},
		&ErrTransport{},
		&ErrNotFound{},
		&ErrPermissionDenied{},
		&ErrStoreConflict{},
		&ErrAuth{},
	}
	for _, e := range errs {
		if e.Error() == "" {
			t.Errorf("%T: expected non-empty Error() even on zero value", e)
		}
	}
}
