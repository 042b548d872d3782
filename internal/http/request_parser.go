package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"whopays/internal/core"
)

// maxBodyBytes caps request bodies; every payload here is a few names.
const maxBodyBytes = 1 << 20

type (
	runRequest struct {
		People []string `json:"people"`
		Tie    string   `json:"tie"`
	}

	setPriceRequest struct {
		Name  string `json:"name"`
		Price any    `json:"price"`
	}

	priceOnlyRequest struct {
		Price any `json:"price"`
	}

	nameRequest struct {
		Name string `json:"name"`
	}

	resetBalancesRequest struct {
		ClearHistory *bool `json:"clear_history"`
	}
)

// decodeBody decodes a JSON object into dst. An empty body leaves dst
// untouched. Malformed JSON and type mismatches come back as
// core.ValidationErrors naming the offending field.
func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return core.ValidationErrors{{Field: "body", Reason: "unreadable request body"}}
	}
	if len(body) > maxBodyBytes {
		return core.ValidationErrors{{Field: "body", Reason: "request body too large"}}
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field := typeErr.Field
			if field == "" {
				field = "body"
			}
			return core.ValidationErrors{{Field: field, Reason: fmt.Sprintf("must be %s", jsonKind(typeErr.Type.Kind().String()))}}
		}
		return core.ValidationErrors{{Field: "body", Reason: "invalid JSON"}}
	}
	return nil
}

func jsonKind(goKind string) string {
	switch goKind {
	case "slice", "array":
		return "a list"
	case "string":
		return "a string"
	case "bool":
		return "a boolean"
	case "struct", "map":
		return "an object"
	default:
		return "a " + goKind
	}
}

// parseRunRequest validates every listed name, then trims and
// deduplicates them case-insensitively keeping the first spelling.
func parseRunRequest(r *http.Request) (people []string, tie string, err error) {
	var req runRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, "", err
	}

	var errs core.ValidationErrors
	for i, name := range req.People {
		if _, err := core.ValidateName(name); err != nil {
			errs = append(errs, fieldError(fmt.Sprintf("people[%d]", i), err))
		}
	}
	if len(errs) > 0 {
		return nil, "", errs
	}
	return core.DedupeNames(req.People), req.Tie, nil
}

// parseSetPriceRequest reads {name, price}; the name comes from pathName
// when the route carries it.
func parseSetPriceRequest(r *http.Request, pathName string) (string, any, error) {
	var (
		name  string
		price any
	)
	if pathName != "" {
		var req priceOnlyRequest
		if err := decodeBody(r, &req); err != nil {
			return "", nil, err
		}
		name, price = pathName, req.Price
	} else {
		var req setPriceRequest
		if err := decodeBody(r, &req); err != nil {
			return "", nil, err
		}
		name, price = req.Name, req.Price
	}

	var errs core.ValidationErrors
	validName, err := core.ValidateName(name)
	if err != nil {
		errs = append(errs, fieldError("name", err))
	}
	// The per-user route takes exact cents; the legacy route rounds.
	validatePrice := core.ValidatePrice
	if pathName != "" {
		validatePrice = core.ValidateExactPrice
	}
	if price == nil {
		errs = append(errs, core.ValidationError{Field: "price", Reason: "field required"})
	} else if _, err := validatePrice(price); err != nil {
		errs = append(errs, fieldError("price", err))
	}
	if len(errs) > 0 {
		return "", nil, errs
	}
	return validName, price, nil
}

func parseNameRequest(r *http.Request) (string, error) {
	var req nameRequest
	if err := decodeBody(r, &req); err != nil {
		return "", err
	}
	name, err := core.ValidateName(req.Name)
	if err != nil {
		return "", core.ValidationErrors{fieldError("name", err)}
	}
	return name, nil
}

func parseResetBalancesRequest(r *http.Request) (bool, error) {
	var req resetBalancesRequest
	if err := decodeBody(r, &req); err != nil {
		return false, err
	}
	return req.ClearHistory != nil && *req.ClearHistory, nil
}

// parsePeopleQuery accepts repeated ?people= parameters as well as
// comma-separated values.
func parsePeopleQuery(r *http.Request) []string {
	var people []string
	for _, v := range r.URL.Query()["people"] {
		people = append(people, strings.Split(v, ",")...)
	}
	return core.DedupeNames(people)
}

func fieldError(field string, err error) core.ValidationError {
	var ve core.ValidationError
	if errors.As(err, &ve) {
		return core.ValidationError{Field: field, Reason: ve.Reason}
	}
	return core.ValidationError{Field: field, Reason: err.Error()}
}
