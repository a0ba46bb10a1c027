package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeContention, status: http.StatusServiceUnavailable, publicMsg: "resource busy, retry the request", retryable: true, detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsMatchesWrappedCode(t *testing.T) {
	cause := stdErrors.New("row changed")
	err := fmt.Errorf("checkout: %w", Wrap(CodeContention, cause, "stock busy"))
	if !Is(err, CodeContention) {
		t.Fatalf("expected contention code to be found through wrapping")
	}
	if Is(err, CodeConflict) {
		t.Fatalf("unexpected conflict match")
	}
	if Is(nil, CodeInternal) {
		t.Fatalf("nil error should not match")
	}
}

func TestIsFindsInnerCodeBehindOuterCode(t *testing.T) {
	inner := New(CodeNotFound, "sku 7 not found")
	err := Wrap(CodeInternal, fmt.Errorf("load line: %w", inner), "checkout failed")
	if !Is(err, CodeNotFound) || !Is(err, CodeInternal) {
		t.Fatalf("expected both codes in chain")
	}
	if As(err).Code() != CodeInternal {
		t.Fatalf("As should return the outermost coded error")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(fmt.Errorf("reserve: %w", Newf(CodeContention, "sku %d busy", 3))) {
		t.Fatalf("contention should be retryable")
	}
	if Retryable(New(CodeStateConflict, "order already paid")) {
		t.Fatalf("state conflicts are not retryable")
	}
	if Retryable(stdErrors.New("plain")) || Retryable(nil) {
		t.Fatalf("uncoded errors are not retryable")
	}
}

func TestLogFieldsCarriesCodeChainAndPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key", ConstraintName: "payments_trade_id_key", TableName: "payments"}
	err := Wrap(CodeConflict, fmt.Errorf("insert payment: %w", pgErr), "trade already recorded")

	fields := LogFields(err)
	if fields["error_code"] != CodeConflict {
		t.Fatalf("unexpected code %v", fields["error_code"])
	}
	if fields["pg_code"] != "23505" || fields["pg_constraint"] != "payments_trade_id_key" || fields["pg_table"] != "payments" {
		t.Fatalf("postgres details missing: %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty postgres fields should be left out: %v", fields)
	}
	if chain, ok := fields["error_chain"].([]string); !ok || len(chain) != 3 {
		t.Fatalf("expected three links in chain, got %v", fields["error_chain"])
	}
	if _, ok := fields["error_retryable"]; ok {
		t.Fatalf("conflicts are not retryable")
	}
}

func TestLogFieldsMarksRetryableCodes(t *testing.T) {
	fields := LogFields(New(CodeContention, "stock busy"))
	if fields["error_retryable"] != true {
		t.Fatalf("expected contention to be marked retryable: %v", fields)
	}
	if _, ok := fields["error_chain"]; ok {
		t.Fatalf("single error should not carry a chain: %v", fields)
	}
	if len(LogFields(nil)) != 0 {
		t.Fatalf("nil error should produce no fields")
	}
}
