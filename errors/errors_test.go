package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorNotFound, "notfound"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"storage unavailable", ErrStorageUnavailable, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"invalid data", ErrInvalidData, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"network error", fmt.Errorf("network connection failed"), true},
		{"wrapped transient", WrapTransient(errors.New("boom"), "store", "Get", "kv read"), true},
		{"wrapped invalid", WrapInvalid(errors.New("boom"), "store", "Get", "kv read"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsTransient(test.err); got != test.expected {
				t.Errorf("IsTransient(%v) = %v, want %v", test.err, got, test.expected)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"key not found sentinel", ErrKeyNotFound, true},
		{"bucket not found sentinel", ErrBucketNotFound, true},
		{"wrapped notfound", WrapNotFound(ErrKeyNotFound, "cache", "Get", "lookup"), true},
		{"invalid data", ErrInvalidData, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsNotFound(test.err); got != test.expected {
				t.Errorf("IsNotFound(%v) = %v, want %v", test.err, got, test.expected)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"notfound wins over message heuristics", WrapNotFound(errors.New("connection lost"), "c", "m", "a"), ErrorNotFound},
		{"invalid sentinel", ErrInvalidConfig, ErrorInvalid},
		{"transient message", errors.New("dial tcp: i/o timeout"), ErrorTransient},
		{"unknown is fatal", errors.New("segfault in aisle five"), ErrorFatal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.err); got != test.expected {
				t.Errorf("Classify(%v) = %v, want %v", test.err, got, test.expected)
			}
		})
	}
}

func TestWrap_Format(t *testing.T) {
	err := Wrap(errors.New("boom"), "Ingestor", "TrackView", "primary increment")
	want := "Ingestor.TrackView: primary increment failed: boom"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
	if Wrap(nil, "a", "b", "c") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapClassified_Unwrap(t *testing.T) {
	base := errors.New("boom")
	err := WrapInvalid(base, "Ingestor", "TrackView", "validation")
	if !errors.Is(err, base) {
		t.Error("classified error should unwrap to the base error")
	}
	var ce *ClassifiedError
	if !errors.As(err, &ce) {
		t.Fatal("expected *ClassifiedError")
	}
	if ce.Component != "Ingestor" || ce.Operation != "TrackView" {
		t.Errorf("unexpected component/operation: %s/%s", ce.Component, ce.Operation)
	}
}

func TestMissingField(t *testing.T) {
	err := MissingField("entityType")
	if !IsInvalid(err) {
		t.Error("missing field errors must classify as invalid")
	}
	if !strings.Contains(err.Error(), "entityType is required") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
