package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"farewatch/internal/types"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func TestError_MapsAppErrorCodes(t *testing.T) {
	tests := []struct {
		code   types.ErrorCode
		status int
	}{
		{types.ErrCodeNotFoundWatch, http.StatusNotFound},
		{types.ErrCodeValidationWatchInactive, http.StatusBadRequest},
		{types.ErrCodeConflictConcurrent, http.StatusConflict},
		{types.ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
		{types.ErrCodeInternalDB, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(types.WithRequestID(req.Context(), "req-1"))
			rec := httptest.NewRecorder()

			cause := errors.New("pq: relation does not exist")
			Error(rec, req, fmt.Errorf("wrapped: %w", types.NewAppError(tt.code, "something failed", cause)))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			detail := decodeError(t, rec)
			if detail.Code != string(tt.code) || detail.RequestID != "req-1" {
				t.Errorf("detail = %+v", detail)
			}
			if strings.Contains(rec.Body.String(), "relation does not exist") {
				t.Error("wrapped cause leaked to client")
			}
		})
	}
}

func TestError_GenericErrorIs500(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("secret internals"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	detail := decodeError(t, rec)
	if detail.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("code = %q", detail.Code)
	}
	if strings.Contains(detail.Message, "secret") {
		t.Error("generic error message leaked")
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, map[string]any{"bad": make(chan int)})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		TargetUSD *float64 `json:"target_usd"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"target_usd": 420}`, ""},
		{"empty", ``, "must not be empty"},
		{"syntax", `{"target_usd":`, "JSON"},
		{"unknown field", `{"price": 1}`, "unknown field"},
		{"wrong type", `{"target_usd": "cheap"}`, "invalid value"},
		{"two objects", `{"target_usd": 1}{"target_usd": 2}`, "single JSON object"},
		{"too large", `{"target_usd": 1, "pad": "` + strings.Repeat("x", maxRequestBodySize) + `"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(tt.body))
			var dst payload
			err := DecodeJSON(httptest.NewRecorder(), req, &dst)

			if tt.name == "too large" {
				if types.CodeOf(err) != errCodeValidationInvalidJSON {
					t.Errorf("expected invalid json error, got %v", err)
				}
				return
			}
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if dst.TargetUSD == nil || *dst.TargetUSD != 420 {
					t.Errorf("decoded %+v", dst)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if types.CodeOf(err) != errCodeValidationInvalidJSON {
				t.Errorf("code = %q", types.CodeOf(err))
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}
