package core

import (
	"errors"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  interface{ Kind() ErrorKind }
		want ErrorKind
	}{
		{"validation", NewValidationError("invalid_prompt", "empty"), KindValidation},
		{"admission", ErrQueueFull(8, "dropping"), KindAdmission},
		{"storage", &StorageError{Store: "chat_history", Operation: "append", Cause: errors.New("boom")}, KindStorage},
		{"transport", &TransportError{RemoteKey: "r1", Cause: errors.New("boom")}, KindTransport},
		{"backend", &BackendError{QueryID: "q1", Cause: errors.New("boom")}, KindBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Kind(); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStorageError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := ToStorageError("artifacts", "put", cause)

	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected errors.As to find *StorageError, got %#v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestToStorageError_NilCause(t *testing.T) {
	if err := ToStorageError("artifacts", "put", nil); err != nil {
		t.Fatalf("expected nil cause to produce a nil error, got %v", err)
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &TransportError{RemoteKey: "r1", Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestBackendError_Unwrap(t *testing.T) {
	cause := errors.New("backend crashed")
	err := &BackendError{QueryID: "q1", Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestAdmissionError_Messages(t *testing.T) {
	if err := ErrQueryPendingTimeout(500); err.Reason != AdmissionPendingTimeout {
		t.Fatalf("expected AdmissionPendingTimeout, got %v", err.Reason)
	}
	if err := ErrQueryPendingCanceled(); err.Reason != AdmissionPendingCanceled {
		t.Fatalf("expected AdmissionPendingCanceled, got %v", err.Reason)
	}
	if err := ErrQueueFull(4, "suspend"); err.Capacity != 4 || err.Strategy != "suspend" {
		t.Fatalf("expected capacity/strategy to round-trip, got %+v", err)
	}
}
