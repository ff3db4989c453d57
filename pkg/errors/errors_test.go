package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
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
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded"},
		{code: CodeDecode, status: http.StatusBadGateway, publicMsg: "malformed record", detailsOK: true},
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
	wrapped := Wrap(CodeDecode, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeDecode {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeForbidden, "no entry"))
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("untyped errors should report internal")
	}
}

func TestDumpCapturesGRPCStatus(t *testing.T) {
	storeErr := status.Error(codes.PermissionDenied, "missing or insufficient permissions")
	err := Wrap(CodeForbidden, storeErr, "write visit")

	dump := Dump(err)
	if dump.Code != CodeForbidden {
		t.Fatalf("expected forbidden code, got %s", dump.Code)
	}
	if dump.GRPCCode != codes.PermissionDenied.String() {
		t.Fatalf("expected grpc code captured, got %q", dump.GRPCCode)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %d", len(dump.Chain))
	}
	if GRPCCode(err) != codes.PermissionDenied {
		t.Fatalf("expected permission denied code, got %s", GRPCCode(err))
	}
	if GRPCCode(stdErrors.New("plain")) != codes.Unknown {
		t.Fatalf("plain errors should report unknown")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	if got := New(CodeNotFound, "visit not found").Error(); got != "NOT_FOUND: visit not found" {
		t.Fatalf("unexpected error string %q", got)
	}
	wrapped := Wrapf(CodeDependency, stdErrors.New("connection reset"), "approve visit %s", "v1")
	if got := wrapped.Error(); got != "DEPENDENCY_ERROR: approve visit v1: connection reset" {
		t.Fatalf("unexpected error string %q", got)
	}
	if got := Newf(CodeValidation, "field %s required", "tenantId").Message(); got != "field tenantId required" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestIsAndRetryable(t *testing.T) {
	dep := fmt.Errorf("stream: %w", Wrap(CodeDependency, stdErrors.New("unavailable"), "listen"))
	if !Is(dep, CodeDependency) || Is(dep, CodeNotFound) {
		t.Fatalf("Is did not match the carried code")
	}
	if Is(nil, CodeInternal) {
		t.Fatalf("nil should match no code")
	}
	if !Retryable(dep) {
		t.Fatalf("dependency errors should be retryable")
	}
	if Retryable(New(CodeDecode, "bad status")) {
		t.Fatalf("decode errors should not be retryable")
	}
	if Retryable(stdErrors.New("plain")) || Retryable(nil) {
		t.Fatalf("untyped and nil errors should not be retryable")
	}
}
