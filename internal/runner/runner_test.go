package runner

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestErrorIs(t *testing.T) {
	err := Errorf(CodeTimeout, nil, "version", "das1", "50ms")

	if !errors.Is(err, ErrTimeout) {
		t.Error("expected errors.Is(err, ErrTimeout)")
	}
	if errors.Is(err, ErrCancelled) {
		t.Error("timeout must not match ErrCancelled")
	}

	wrapped := fmt.Errorf("batch step failed: %w", err)
	if !errors.Is(wrapped, ErrTimeout) {
		t.Error("expected wrapped error to match ErrTimeout")
	}
	if CodeOf(wrapped) != CodeTimeout {
		t.Errorf("CodeOf() = %v, want %v", CodeOf(wrapped), CodeTimeout)
	}
}

func TestErrorMessage(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := Errorf(CodeHTTPResponseIO, cause, "version", "das1")

	msg := err.Error()
	for _, want := range []string{"version", "das1", "unexpected EOF"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q should contain %q", msg, want)
		}
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected cause to be reachable through Unwrap")
	}
}

func TestSentinelMessage(t *testing.T) {
	if ErrNoJavaVM.Error() != "no Java VM found" {
		t.Errorf("sentinel message = %q", ErrNoJavaVM.Error())
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}

	typed := Errorf(CodeAuthFailed, nil, "das1", "admin")
	if Wrap(typed, "ignored") != typed {
		t.Error("Wrap should keep an existing *Error")
	}

	plain := errors.New("boom")
	got := Wrap(plain, "running %s", "version")
	if CodeOf(got) != CodeGeneric {
		t.Errorf("CodeOf() = %v, want generic", CodeOf(got))
	}
	if !strings.Contains(got.Error(), "running version: boom") {
		t.Errorf("unexpected message %q", got.Error())
	}
}

func TestEventFor(t *testing.T) {
	tests := []struct {
		err  error
		want Event
	}{
		{Errorf(CodeTimeout, nil, "a", "b", "c"), EventTimeout},
		{Errorf(CodeCancelled, nil, "a", "b"), EventCancelled},
		{Errorf(CodeServerBusy, nil, "a", "b"), EventBusy},
		{Errorf(CodeAuthFailed, nil, "a", "b"), EventAuthFailed},
		{errors.New("other"), EventFailed},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			if got := EventFor(tt.err); got != tt.want {
				t.Errorf("EventFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConvert(t *testing.T) {
	s, err := Convert[string]("hello")
	if err != nil || s != "hello" {
		t.Errorf("Convert[string] = %q, %v", s, err)
	}

	m, err := Convert[map[string]string](nil)
	if err != nil || m != nil {
		t.Errorf("Convert of nil = %v, %v", m, err)
	}

	_, err = Convert[[]string]("not a list")
	if !errors.Is(err, ErrIllegalState) {
		t.Errorf("expected illegal state, got %v", err)
	}
}

func TestFormat(t *testing.T) {
	got := Format(map[string]string{"b": "2", "a": "1"})
	if got != "a=1\nb=2" {
		t.Errorf("Format(map) = %q", got)
	}
	if Format([]string{"x", "y"}) != "x\ny" {
		t.Errorf("Format(list) = %q", Format([]string{"x", "y"}))
	}
	if Format(nil) != "" {
		t.Error("Format(nil) should be empty")
	}
}

func TestStateTerminal(t *testing.T) {
	if StateReady.Terminal() || StateRunning.Terminal() {
		t.Error("ready/running must not be terminal")
	}
	if !StateCompleted.Terminal() || !StateFailed.Terminal() {
		t.Error("completed/failed must be terminal")
	}
}

func TestMessageLines(t *testing.T) {
	msg := "hello <web>\r\n\n  other <ejb, web>\nCommand list-applications executed successfully."
	lines := MessageLines(msg)
	if len(lines) != 2 || lines[0] != "hello <web>" || lines[1] != "other <ejb, web>" {
		t.Fatalf("MessageLines() = %q", lines)
	}
	names := FirstFields(lines)
	if len(names) != 2 || names[0] != "hello" || names[1] != "other" {
		t.Errorf("FirstFields() = %q", names)
	}
	if got := MessageLines("Nothing to list."); len(got) != 0 {
		t.Errorf("expected no lines, got %q", got)
	}
}

func TestKeyValues(t *testing.T) {
	got := KeyValues([]string{"a.b=1", "c = x=y", "noequals", "=v", "a.b=2"})
	want := map[string]string{"a.b": "2", "c": "x=y"}
	if len(got) != len(want) {
		t.Fatalf("KeyValues() = %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("KeyValues()[%q] = %q, want %q", k, got[k], v)
		}
	}
}
