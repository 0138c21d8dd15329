package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeOf(t *testing.T) {
	base := New(ErrCodeNotFound, "snapshot missing")

	if CodeOf(base) != ErrCodeNotFound {
		t.Fatalf("code=%s", CodeOf(base))
	}
	if CodeOf(fmt.Errorf("outer: %w", base)) != ErrCodeNotFound {
		t.Fatal("code lost through wrapping")
	}
	if CodeOf(stderrors.New("plain")) != ErrCodeInternal {
		t.Fatal("uncoded errors must default to INTERNAL")
	}
	if CodeOf(nil) != ErrCodeInternal {
		t.Fatal("nil must default to INTERNAL")
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrCodeUnavailable, "identity provider unreachable")

	if !stderrors.Is(err, cause) {
		t.Fatal("cause not reachable via errors.Is")
	}
	if got := err.Error(); got != "UNAVAILABLE: identity provider unreachable: connection refused" {
		t.Fatalf("msg=%q", got)
	}
	if MessageOf(err) != "identity provider unreachable" {
		t.Fatalf("message=%q", MessageOf(err))
	}
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("days_worked", "must not be negative")
	if err.Message != "days_worked: must not be negative" {
		t.Fatalf("message=%q", err.Message)
	}
	if err.Code != ErrCodeInvalidInput {
		t.Fatalf("code=%s", err.Code)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{ErrCodeInvalidInput, http.StatusBadRequest},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeConflict, http.StatusConflict},
		{ErrCodeArchivedNotReset, http.StatusConflict},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeUnavailable, http.StatusServiceUnavailable},
		{ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(New(tc.code, "x")); got != tc.want {
			t.Errorf("%s: status=%d want %d", tc.code, got, tc.want)
		}
	}
	if HTTPStatus(stderrors.New("plain")) != http.StatusInternalServerError {
		t.Error("uncoded error must map to 500")
	}
}
