package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{"NotFound wraps ErrNotFound", NotFound("club", "abc123"), ErrNotFound, true},
		{"ValidationFailed wraps ErrValidation", ValidationFailed("name", "name is required"), ErrValidation, true},
		{"Conflict wraps ErrConflict", Conflict("already paused"), ErrConflict, true},
		{"DuplicateName matches ErrDuplicateName", DuplicateName("club", "Mystery Solvers"), ErrDuplicateName, true},
		{"DuplicateName also matches ErrConflict", DuplicateName("club", "Mystery Solvers"), ErrConflict, true},
		{"OwnerQuotaExceeded matches ErrConflict", OwnerQuotaExceeded(3), ErrConflict, true},
		{"OwnerQuotaUnderflow matches its sentinel", OwnerQuotaUnderflow(), ErrOwnerQuotaUnderflow, true},
		{"OwnerQuotaUnderflow is not OwnerQuotaExceeded", OwnerQuotaUnderflow(), ErrOwnerQuotaExceeded, false},
		{"Unauthorized is not Forbidden", Unauthorized("login required"), ErrForbidden, false},
		{"NotFound does NOT match ErrValidation", NotFound("book", "OL1W"), ErrValidation, false},
		{"wrapped AppError still matches", fmt.Errorf("creating club: %w", DuplicateName("club", "x")), ErrDuplicateName, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{"NotFound message includes resource and id", NotFound("club", "abc123"), "club not found with id abc123"},
		{"DuplicateName quotes the name", DuplicateName("club", "Mystery Solvers"), `a club named "Mystery Solvers" already exists`},
		{"OwnerQuotaExceeded names the limit", OwnerQuotaExceeded(3), "a club can have at most 3 owners"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUpstreamKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Upstream("book search", cause)

	if !errors.Is(err, ErrUpstream) {
		t.Errorf("errors.Is(err, ErrUpstream) = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
	if err.Error() != "book search is unavailable, try again later" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("progress", "progress must be between 0 and 100")
	if err.Field != "progress" {
		t.Errorf("Field = %q, want %q", err.Field, "progress")
	}
}
