package http

import (
	"encoding/json"
	"net/http"

	"whopays/internal/core"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
	raw        []byte
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Payload sets the value encoded as the response body.
func (b *JSONResponseBuilder) Payload(v any) *JSONResponseBuilder {
	b.payload = v
	b.raw = nil
	return b
}

// Raw sets an already encoded body.
func (b *JSONResponseBuilder) Raw(body []byte) *JSONResponseBuilder {
	b.raw = body
	b.payload = nil
	return b
}

// Bytes encodes the payload. A 204 has no body.
func (b *JSONResponseBuilder) Bytes() ([]byte, error) {
	if b.statusCode == http.StatusNoContent {
		return nil, nil
	}
	if b.raw != nil {
		return b.raw, nil
	}
	if b.payload == nil {
		return nil, nil
	}
	return json.Marshal(b.payload)
}

// Write sends the built response to the http.ResponseWriter. An encoding
// failure becomes a 500.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	body, err := b.Bytes()
	if err != nil {
		b.statusCode = http.StatusInternalServerError
		body = []byte(`{"error":"internal error"}`)
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if len(body) > 0 {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(b.statusCode)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

type validationBody struct {
	OK     bool                  `json:"ok"`
	Errors core.ValidationErrors `json:"errors"`
}

// ErrorResponse creates a {"error": message} response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Payload(errorBody{Error: message})
}

// ValidationErrorResponse lists field errors as
// {"ok": false, "errors": [{"field", "reason"}]}.
func ValidationErrorResponse(statusCode int, errs core.ValidationErrors) *JSONResponseBuilder {
	if errs == nil {
		errs = core.ValidationErrors{}
	}
	return NewJSONResponse().Status(statusCode).Payload(validationBody{OK: false, Errors: errs})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal error")
}

// NoContent creates an empty 204 response.
func NoContent() *JSONResponseBuilder {
	return NewJSONResponse().Status(http.StatusNoContent)
}
