package chat

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Classification(t *testing.T) {
	bad := fmt.Errorf("edit status: %w", &APIError{Kind: KindBadRequest, Code: 400, Description: "message is not modified"})
	if !IsBadRequest(bad) || IsForbidden(bad) {
		t.Fatalf("bad request misclassified: %v", bad)
	}
	forbidden := &APIError{Kind: KindForbidden, Code: 403, Description: "bot was blocked by the user"}
	if !IsForbidden(forbidden) || IsBadRequest(forbidden) {
		t.Fatalf("forbidden misclassified")
	}
	if IsBadRequest(errors.New("network down")) {
		t.Fatalf("plain error classified as bad request")
	}
}

func TestFile_Empty(t *testing.T) {
	var nilFile *File
	if !nilFile.Empty() || !(&File{}).Empty() {
		t.Fatalf("expected empty")
	}
	if (&File{URL: "https://x"}).Empty() {
		t.Fatalf("url file reported empty")
	}
}
