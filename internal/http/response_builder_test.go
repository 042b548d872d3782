package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"whopays/internal/core"
)

func TestJSONResponseBuilder(t *testing.T) {
	tests := []struct {
		name        string
		builder     *JSONResponseBuilder
		wantStatus  int
		wantBody    string
		wantType    string
		wantHeaders map[string]string
	}{
		{
			name:       "payload",
			builder:    NewJSONResponse().Payload(map[string]int{"a": 1}),
			wantStatus: http.StatusOK,
			wantBody:   `{"a":1}`,
			wantType:   "application/json",
		},
		{
			name:        "raw with header",
			builder:     NewJSONResponse().Header("X-Cache", "HIT").Raw([]byte(`{"x":true}`)),
			wantStatus:  http.StatusOK,
			wantBody:    `{"x":true}`,
			wantType:    "application/json",
			wantHeaders: map[string]string{"X-Cache": "HIT"},
		},
		{
			name:       "error",
			builder:    ErrorResponse(http.StatusTooManyRequests, "slow down"),
			wantStatus: http.StatusTooManyRequests,
			wantBody:   `{"error":"slow down"}`,
			wantType:   "application/json",
		},
		{
			name:       "bad request",
			builder:    BadRequestError("No provided people match prices"),
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"No provided people match prices"}`,
			wantType:   "application/json",
		},
		{
			name:       "validation",
			builder:    ValidationErrorResponse(http.StatusUnprocessableEntity, core.ValidationErrors{{Field: "name", Reason: "required"}}),
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   `{"ok":false,"errors":[{"field":"name","reason":"required"}]}`,
			wantType:   "application/json",
		},
		{
			name:       "validation without entries",
			builder:    ValidationErrorResponse(http.StatusBadRequest, nil),
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"ok":false,"errors":[]}`,
			wantType:   "application/json",
		},
		{
			name:       "no content ignores payload",
			builder:    NoContent().Payload("ignored"),
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "unencodable payload",
			builder:    NewJSONResponse().Payload(func() {}),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"internal error"}`,
			wantType:   "application/json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.builder.Write(rr)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := rr.Body.String(); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
			if got := rr.Header().Get("Content-Type"); got != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", got, tt.wantType)
			}
			for k, v := range tt.wantHeaders {
				if got := rr.Header().Get(k); got != v {
					t.Errorf("header %s = %q, want %q", k, got, v)
				}
			}
		})
	}
}
