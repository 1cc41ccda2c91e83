package types

import "testing"

func TestValidateTags_RejectsReservedPrefixForExternalCallers(t *testing.T) {
	t.Parallel()

	err := ValidateTags(map[string]string{"tensorzero::evaluation": "1"}, false)
	if err == nil {
		t.Fatal("expected error for reserved-prefix tag")
	}
	if GetErrorCode(err) != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest, got %v", GetErrorCode(err))
	}
}

func TestValidateTags_AllowsReservedPrefixForInternalCallers(t *testing.T) {
	t.Parallel()

	if err := ValidateTags(map[string]string{"tensorzero::evaluation": "1"}, true); err != nil {
		t.Fatalf("expected no error for internal caller, got %v", err)
	}
}

func TestValidateTags_AllowsOrdinaryTags(t *testing.T) {
	t.Parallel()

	if err := ValidateTags(map[string]string{"user_id": "42"}, false); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := ValidateTags(nil, false); err != nil {
		t.Fatalf("expected nil tags to be valid, got %v", err)
	}
}
