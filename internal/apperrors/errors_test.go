package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfiguration(t *testing.T) {
	t.Parallel()
	err := Configuration("channel.path", "channel path is required")

	if !errors.Is(err, ErrConfiguration) {
		t.Error("expected error to match ErrConfiguration")
	}
	if err.Error() != "channel path is required" {
		t.Errorf("expected message 'channel path is required', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "channel.path" {
		t.Errorf("expected field 'channel.path', got %q", appErr.Field)
	}
}

func TestSerialization(t *testing.T) {
	t.Parallel()
	err := Serialization("extras.callback", "extras value is not representable as JSON")

	if !errors.Is(err, ErrSerialization) {
		t.Error("expected error to match ErrSerialization")
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "extras.callback" {
		t.Errorf("expected field 'extras.callback', got %q", appErr.Field)
	}
}

func TestMissingContext(t *testing.T) {
	t.Parallel()
	err := MissingContext("JOBPIPE_CONTEXT")

	if !errors.Is(err, ErrMissingContext) {
		t.Error("expected error to match ErrMissingContext")
	}
	if err.Error() != "no bootstrap payload found in JOBPIPE_CONTEXT" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Resource != "JOBPIPE_CONTEXT" {
		t.Errorf("expected resource 'JOBPIPE_CONTEXT', got %q", appErr.Resource)
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("unexpected end of JSON input")
	err := Decode("channel.decode", cause)

	if !errors.Is(err, ErrDecode) {
		t.Error("expected error to match ErrDecode")
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Op != "channel.decode" {
		t.Errorf("expected op 'channel.decode', got %q", appErr.Op)
	}
	if appErr.Cause != cause {
		t.Error("expected cause to be preserved")
	}
}

func TestTransport(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("read: connection reset")
	err := Transport("channel.poll", "/tmp/messages.jsonl", cause)

	if !errors.Is(err, ErrTransport) {
		t.Error("expected error to match ErrTransport")
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Resource != "/tmp/messages.jsonl" {
		t.Errorf("expected resource to be the channel path, got %q", appErr.Resource)
	}
	if appErr.Cause != cause {
		t.Error("expected cause to be preserved")
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	t.Parallel()
	if errors.Is(Decode("op", fmt.Errorf("x")), ErrTransport) {
		t.Error("decode error must not classify as transport error")
	}
	if errors.Is(Transport("op", "res", fmt.Errorf("x")), ErrDecode) {
		t.Error("transport error must not classify as decode error")
	}
}
