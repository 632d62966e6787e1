package apierror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/splax/backendless/internal/repository"
)

func TestFromMapsRepositorySentinels(t *testing.T) {
	cases := map[error]Kind{
		repository.ErrNotFound:                                 KindNotFound,
		fmt.Errorf("%w: deployments_key", repository.ErrConflict): KindConflict,
		repository.ErrInvalidArgument:                          KindValidation,
		errors.New("connection reset"):                         KindInternal,
	}
	for err, want := range cases {
		if got := KindOf(err); got != want {
			t.Fatalf("KindOf(%v) = %s, want %s", err, got, want)
		}
	}
}

func TestFromKeepsClassifiedErrors(t *testing.T) {
	original := Forbidden("user lacks permission for resource")
	wrapped := fmt.Errorf("load project: %w", original)
	got := From(wrapped)
	if got != original {
		t.Fatalf("expected classified error to pass through, got %#v", got)
	}
	if !errors.Is(wrapped, &Error{Kind: KindForbidden}) {
		t.Fatal("expected errors.Is to match on kind")
	}
	if errors.Is(wrapped, &Error{Kind: KindNotFound}) {
		t.Fatal("expected errors.Is to reject a different kind")
	}
}

func TestInternalUnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Internal("write blob", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable through Unwrap")
	}
}
