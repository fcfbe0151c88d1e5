package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:      http.StatusBadRequest,
		KindConflict:        http.StatusConflict,
		KindNotFound:        http.StatusNotFound,
		KindAuthentication:  http.StatusUnauthorized,
		KindTooManyRequests: http.StatusTooManyRequests,
		KindUpstream:        http.StatusInternalServerError,
		Kind(0):             http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := kind.Status(); got != want {
			t.Fatalf("kind %d: expected %d got %d", kind, want, got)
		}
	}
}

func TestAsThroughWrapping(t *testing.T) {
	cause := errors.New("bucket unreachable")
	err := fmt.Errorf("upload avatar: %w", Upstream("Error while uploading avatar", cause))

	apiErr, ok := As(err)
	if !ok {
		t.Fatal("expected apierror in chain")
	}
	if apiErr.Message != "Error while uploading avatar" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable")
	}
	if !IsKind(err, KindUpstream) {
		t.Fatal("expected upstream kind")
	}
	if IsKind(errors.New("plain"), KindUpstream) {
		t.Fatal("plain errors carry no kind")
	}
}
