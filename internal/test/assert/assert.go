// Package assert holds the fatal test checks shared by the wsupgrade tests.
package assert

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/coder/wsupgrade/internal/test/cmp"
)

// Equal fails t with a diff when got does not match exp.
// name describes the compared value in the failure message.
func Equal(t testing.TB, name string, exp, got interface{}) {
	t.Helper()

	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("%v mismatch (-exp +got):\n%v", name, diff)
	}
}

// Success fails t if err is non nil.
func Success(t testing.TB, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Error fails t if err is nil.
func Error(t testing.TB, err error) {
	t.Helper()

	if err == nil {
		t.Fatal("expected an error, got nil")
	}
}

// ErrorIs fails t unless got wraps exp.
func ErrorIs(t testing.TB, exp, got error) {
	t.Helper()

	if !errors.Is(got, exp) {
		t.Fatalf("expected error wrapping %q, got %v", exp, got)
	}
}

// Contains fails t unless the printed form of v includes sub.
func Contains(t testing.TB, v interface{}, sub string) {
	t.Helper()

	if s := fmt.Sprint(v); !strings.Contains(s, sub) {
		t.Fatalf("%q does not contain %q", s, sub)
	}
}
