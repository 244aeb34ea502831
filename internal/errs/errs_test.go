package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	cause := errors.New("disk offline")
	e := New(IO, "disk.WriteChunk", cause)
	got := e.Error()
	want := "disk.WriteChunk: Io: disk offline"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	nilCause := New(NotFound, "object.Get", nil)
	if nilCause.Error() != "object.Get: NotFound" {
		t.Errorf("Error() with nil cause = %q", nilCause.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	e := New(RPC, "rpctransport.ReadChunk", cause)
	if !errors.Is(e, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestIs(t *testing.T) {
	e := New(QuorumFailed, "quorum.CheckWrite", nil)
	wrapped := fmt.Errorf("put failed: %w", e)

	if !Is(wrapped, QuorumFailed) {
		t.Error("expected Is to match through fmt.Errorf wrapping")
	}
	if Is(wrapped, NotFound) {
		t.Error("expected Is to reject a mismatched Kind")
	}
	if Is(errors.New("plain error"), IO) {
		t.Error("expected Is to reject a non-*Error")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{IO, true},
		{RPC, true},
		{NotFound, false},
		{InvalidArg, false},
		{ChecksumMismatch, false},
		{QuorumFailed, false},
	}
	for _, c := range cases {
		e := New(c.kind, "op", nil)
		if got := Retryable(e); got != c.want {
			t.Errorf("Retryable(%s) = %v, want %v", c.kind, got, c.want)
		}
	}
	if Retryable(errors.New("plain")) {
		t.Error("expected Retryable to reject a non-*Error")
	}
}

func TestKind_String(t *testing.T) {
	cases := map[Kind]string{
		InvalidArg:         "InvalidArg",
		NotFound:           "NotFound",
		InvalidMeta:        "InvalidMeta",
		ChecksumMismatch:   "ChecksumMismatch",
		InsufficientShards: "InsufficientShards",
		QuorumFailed:       "QuorumFailed",
		IO:                 "Io",
		RPC:                "Rpc",
		OOM:                "Oom",
		InvalidState:       "InvalidState",
		Unknown:            "Unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
