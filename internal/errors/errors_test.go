package errors

import (
	"errors"
	"testing"
)

func TestError(t *testing.T) {
	err := New(KindState, "request attempted outside Ready")
	if err.Error() != "state: request attempted outside Ready" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	wrapped := Wrap(err, KindManyFailedReqs, "giving up")
	want := "many_failed_reqs: giving up: state: request attempted outside Ready"
	if wrapped.Error() != want {
		t.Errorf("expected %q, got %q", want, wrapped.Error())
	}
}

func TestGetKind(t *testing.T) {
	err := New(KindConnDown, "no session")
	if GetKind(err) != KindConnDown {
		t.Errorf("expected KindConnDown, got %v", GetKind(err))
	}

	if GetKind(errors.New("plain error")) != KindUnknown {
		t.Errorf("expected KindUnknown for a plain error")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, KindState, "x") != nil {
		t.Error("Wrap(nil, ...) should return nil")
	}
	if Wrapf(nil, KindState, "x") != nil {
		t.Error("Wrapf(nil, ...) should return nil")
	}
}

func TestIsAs(t *testing.T) {
	base := errors.New("boom")
	wrapped := Wrap(base, KindFilesystemOperation, "write cert")

	if !Is(wrapped, base) {
		t.Error("expected Is to find the underlying sentinel")
	}

	var target *Error
	if !As(wrapped, &target) {
		t.Fatal("expected As to find *Error")
	}
	if target.Kind != KindFilesystemOperation {
		t.Errorf("expected KindFilesystemOperation, got %v", target.Kind)
	}
}
