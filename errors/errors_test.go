package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		code         ErrorCode
		wantCategory ErrorCategory
		wantRetry    bool
	}{
		{"invalid_input", ErrCodeInvalidInput, CategoryPermanent, false},
		{"precondition", ErrCodePrecondition, CategoryPermanent, false},
		{"timeout", ErrCodeTimeout, CategoryTransient, true},
		{"canceled", ErrCodeCanceled, CategoryTransient, true},
		{"coordination", ErrCodeCoordination, CategoryInternal, false},
		{"corruption", ErrCodeCorruption, CategoryInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom")
			if err.Code() != tt.code {
				t.Errorf("Code() = %v, want %v", err.Code(), tt.code)
			}
			if err.Category() != tt.wantCategory {
				t.Errorf("Category() = %v, want %v", err.Category(), tt.wantCategory)
			}
			if err.Retryable() != tt.wantRetry {
				t.Errorf("Retryable() = %v, want %v", err.Retryable(), tt.wantRetry)
			}
			if err.Rank() != -1 {
				t.Errorf("Rank() = %d, want -1", err.Rank())
			}
			if err.Timestamp().IsZero() {
				t.Error("Timestamp() should not be zero")
			}
		})
	}
}

func TestUnknownCodeIsInternal(t *testing.T) {
	code := ErrorCode("SOMETHING_ELSE")
	if code.DefaultCategory() != CategoryInternal {
		t.Errorf("DefaultCategory() = %v, want internal", code.DefaultCategory())
	}
	if code.Description() != "unknown error" {
		t.Errorf("Description() = %q", code.Description())
	}
}

func TestOptions(t *testing.T) {
	cause := fmt.Errorf("short read")
	err := Corruption("decode pool",
		WithCause(cause),
		WithRank(3),
		WithRunID("run-1"),
		WithMetadata("bytes", "31"),
	)

	if err.Rank() != 3 {
		t.Errorf("Rank() = %d, want 3", err.Rank())
	}
	if err.RunID() != "run-1" {
		t.Errorf("RunID() = %q, want run-1", err.RunID())
	}
	if err.Metadata()["bytes"] != "31" {
		t.Errorf("metadata bytes = %q", err.Metadata()["bytes"])
	}
	if err.Error() != "decode pool: short read" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through errors.Is")
	}

	md := err.Metadata()
	md["bytes"] = "changed"
	if err.Metadata()["bytes"] != "31" {
		t.Error("Metadata() must return a copy")
	}
}

func TestWrap(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if Wrap(nil, "x") != nil {
			t.Error("Wrap(nil) should be nil")
		}
		if WrapWithCode(nil, ErrCodeInternal, "x") != nil {
			t.Error("WrapWithCode(nil) should be nil")
		}
	})

	t.Run("preserves typed error", func(t *testing.T) {
		inner := InvalidInput("iterations must be positive", WithRank(0))
		outer := Wrap(inner, "validate")
		if outer.Code() != ErrCodeInvalidInput {
			t.Errorf("Code() = %v", outer.Code())
		}
		if outer.Rank() != 0 {
			t.Errorf("Rank() = %d, want 0", outer.Rank())
		}
		if Cause(outer) != inner {
			t.Error("Cause should return the innermost error")
		}
	})

	t.Run("context errors", func(t *testing.T) {
		if got := Wrap(context.DeadlineExceeded, "recv").Code(); got != ErrCodeTimeout {
			t.Errorf("deadline -> %v, want TIMEOUT", got)
		}
		if got := Wrap(context.Canceled, "recv").Code(); got != ErrCodeCanceled {
			t.Errorf("canceled -> %v, want CANCELED", got)
		}
	})

	t.Run("foreign error", func(t *testing.T) {
		err := Wrapf(fmt.Errorf("disk"), "round %d", 4)
		if err.Code() != ErrCodeInternal {
			t.Errorf("Code() = %v, want INTERNAL", err.Code())
		}
		if err.Message() != "round 4" {
			t.Errorf("Message() = %q", err.Message())
		}
	})
}

func TestPredicates(t *testing.T) {
	err := fmt.Errorf("outer: %w", CoordinationFailure("seq mismatch"))

	if !Is(err, ErrCodeCoordination) {
		t.Error("Is should see through fmt wrapping")
	}
	if Is(err, ErrCodeTimeout) {
		t.Error("Is matched the wrong code")
	}
	if !IsCategory(err, CategoryInternal) {
		t.Error("IsCategory should match internal")
	}
	if IsRetryable(err) {
		t.Error("coordination failures are not retryable")
	}
	if Code(fmt.Errorf("plain")) != "" {
		t.Error("Code of a foreign error should be empty")
	}
	if As(fmt.Errorf("plain")) != nil {
		t.Error("As of a foreign error should be nil")
	}
	if Join(nil, nil) != nil {
		t.Error("Join of nils should be nil")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	orig := New(ErrCodeTimeout, "allgather",
		WithCause(fmt.Errorf("rank 2 silent")),
		WithRank(1),
		WithRunID("abc"),
		WithMetadata("seq", "17"),
	)

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Error
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.Code() != orig.Code() || decoded.Category() != orig.Category() {
		t.Errorf("decoded code/category = %v/%v", decoded.Code(), decoded.Category())
	}
	if decoded.Rank() != 1 || decoded.RunID() != "abc" {
		t.Errorf("decoded rank/run = %d/%q", decoded.Rank(), decoded.RunID())
	}
	if decoded.Error() != orig.Error() {
		t.Errorf("decoded Error() = %q, want %q", decoded.Error(), orig.Error())
	}
	if !decoded.Timestamp().Equal(orig.Timestamp()) {
		t.Errorf("timestamp lost: %v vs %v", decoded.Timestamp(), orig.Timestamp())
	}
}

func TestJSONWithoutRank(t *testing.T) {
	data, err := json.Marshal(InvalidInput("bad"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Error
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Rank() != -1 {
		t.Errorf("Rank() = %d, want -1", decoded.Rank())
	}
}
