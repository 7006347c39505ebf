package translator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sweetginger/Nyogi/internal/apperr"
	"google.golang.org/api/googleapi"
)

func TestTranslate_SameLanguageSkipsCall(t *testing.T) {
	tr := &GoogleTranslator{}
	out, err := tr.Translate(context.Background(), "hello", "en", "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestTranslateError(t *testing.T) {
	err := translateError(fmt.Errorf("call: %w", &googleapi.Error{
		Code:   403,
		Errors: []googleapi.ErrorItem{{Reason: "dailyLimitExceeded"}},
	}))
	var be *apperr.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if be.Code != "dailyLimitExceeded" || be.StatusCode != 403 {
		t.Fatalf("unexpected backend error: %+v", be)
	}

	if got := apperr.BackendCode(translateError(errors.New("dial tcp"))); got != "UNKNOWN" {
		t.Fatalf("unexpected code: %q", got)
	}
}
