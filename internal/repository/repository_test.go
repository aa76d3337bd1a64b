package repository

import (
	"errors"
	"testing"
)

func TestErrNotFound(t *testing.T) {
	// Verify ErrNotFound is properly defined
	if ErrNotFound == nil {
		t.Fatal("expected ErrNotFound to be defined")
	}

	if ErrNotFound.Error() != "record not found" {
		t.Errorf("expected 'record not found', got %q", ErrNotFound.Error())
	}
}

func TestErrNotFound_ErrorsIs(t *testing.T) {
	// Verify errors.Is works with ErrNotFound
	wrappedErr := errors.New("wrapper: " + ErrNotFound.Error())

	// Direct comparison should work
	if !errors.Is(ErrNotFound, ErrNotFound) {
		t.Error("errors.Is should return true for same error")
	}

	// Wrapped error should not match (unless using %w)
	if errors.Is(wrappedErr, ErrNotFound) {
		t.Error("wrapped error without %w should not match")
	}
}

func TestNewQuoteRepository(t *testing.T) {
	// Just testing the constructor, not database operations
	repo := NewQuoteRepository(nil)

	if repo == nil {
		t.Fatal("expected non-nil repository")
	}

	if repo.pool != nil {
		t.Error("expected nil pool")
	}
}

func TestNewBookingRepository(t *testing.T) {
	repo := NewBookingRepository(nil)

	if repo == nil {
		t.Fatal("expected non-nil repository")
	}

	if repo.pool != nil {
		t.Error("expected nil pool")
	}
}

func TestNewServiceRepository(t *testing.T) {
	repo := NewServiceRepository(nil)

	if repo == nil {
		t.Fatal("expected non-nil repository")
	}

	if repo.pool != nil {
		t.Error("expected nil pool")
	}
}

func TestNewScheduleRepository(t *testing.T) {
	repo := NewScheduleRepository(nil)

	if repo == nil {
		t.Fatal("expected non-nil repository")
	}

	if repo.pool != nil {
		t.Error("expected nil pool")
	}
}

func TestNewSequenceRepository(t *testing.T) {
	repo := NewSequenceRepository(nil)

	if repo == nil {
		t.Fatal("expected non-nil repository")
	}

	if repo.pool != nil {
		t.Error("expected nil pool")
	}
}

func TestNewChatSessionRepository(t *testing.T) {
	repo := NewChatSessionRepository(nil)

	if repo == nil {
		t.Fatal("expected non-nil repository")
	}

	if repo.pool != nil {
		t.Error("expected nil pool")
	}
}
