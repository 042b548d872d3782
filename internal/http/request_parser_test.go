package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"whopays/internal/core"
)

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestParseRunRequest(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantPeople []string
		wantTie    string
		wantFields []string
	}{
		{name: "empty body", body: "", wantPeople: []string{}},
		{name: "empty object", body: "{}", wantPeople: []string{}},
		{
			name:       "dedupes case-insensitively",
			body:       `{"people":[" Ann ","bob","ANN"],"tie":"alpha"}`,
			wantPeople: []string{"Ann", "bob"},
			wantTie:    "alpha",
		},
		{
			name:       "invalid names are indexed",
			body:       `{"people":["Ann","B0b",""]}`,
			wantFields: []string{"people[1]", "people[2]"},
		},
		{name: "people not a list", body: `{"people":"Ann"}`, wantFields: []string{"people"}},
		{name: "malformed JSON", body: `{"people":`, wantFields: []string{"body"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			people, tie, err := parseRunRequest(jsonRequest(http.MethodPost, "/api/run", tt.body))
			if tt.wantFields != nil {
				assertFields(t, err, tt.wantFields)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(people, tt.wantPeople) {
				t.Errorf("people = %v, want %v", people, tt.wantPeople)
			}
			if tie != tt.wantTie {
				t.Errorf("tie = %q, want %q", tie, tt.wantTie)
			}
		})
	}
}

func TestParseSetPriceRequest(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		pathName   string
		wantName   string
		wantPrice  any
		wantFields []string
	}{
		{name: "number price", body: `{"name":" Ann ","price":3.5}`, wantName: "Ann", wantPrice: json.Number("3.5")},
		{name: "string price", body: `{"name":"Ann","price":"4"}`, wantName: "Ann", wantPrice: "4"},
		{name: "path name", body: `{"price":2}`, pathName: "Bob", wantName: "Bob", wantPrice: json.Number("2")},
		{name: "missing price", body: `{"name":"Ann"}`, wantFields: []string{"price"}},
		{name: "bad name and price", body: `{"name":"4nn","price":-1}`, wantFields: []string{"name", "price"}},
		{name: "non numeric price", body: `{"name":"Ann","price":"abc"}`, wantFields: []string{"price"}},
		{name: "name wrong type", body: `{"name":5,"price":1}`, wantFields: []string{"name"}},
		{name: "legacy route rounds", body: `{"name":"Ann","price":4.505}`, wantName: "Ann", wantPrice: json.Number("4.505")},
		{name: "path route needs cents", body: `{"price":4.505}`, pathName: "Bob", wantFields: []string{"price"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, price, err := parseSetPriceRequest(jsonRequest(http.MethodPost, "/api/set-price", tt.body), tt.pathName)
			if tt.wantFields != nil {
				assertFields(t, err, tt.wantFields)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if price != tt.wantPrice {
				t.Errorf("price = %#v, want %#v", price, tt.wantPrice)
			}
		})
	}
}

func TestParseNameRequest(t *testing.T) {
	name, err := parseNameRequest(jsonRequest(http.MethodPost, "/api/remove-person", `{"name":" Cat "}`))
	if err != nil || name != "Cat" {
		t.Fatalf("parseNameRequest = %q, %v", name, err)
	}

	_, err = parseNameRequest(jsonRequest(http.MethodPost, "/api/remove-person", `{}`))
	assertFields(t, err, []string{"name"})
}

func TestParseResetBalancesRequest(t *testing.T) {
	tests := []struct {
		body    string
		want    bool
		wantErr bool
	}{
		{body: "", want: false},
		{body: `{"clear_history":true}`, want: true},
		{body: `{"clear_history":false}`, want: false},
		{body: `{"clear_history":"yes"}`, wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseResetBalancesRequest(jsonRequest(http.MethodPut, "/api/balances", tt.body))
		if (err != nil) != tt.wantErr {
			t.Errorf("body %q: err = %v, wantErr %v", tt.body, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("body %q: got %v, want %v", tt.body, got, tt.want)
		}
	}
}

func TestParsePeopleQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/next?people=Ann&people=bob,Cat&people=ann", nil)
	got := parsePeopleQuery(req)
	want := []string{"Ann", "bob", "Cat"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parsePeopleQuery = %v, want %v", got, want)
	}
}

func TestDecodeBodyTooLarge(t *testing.T) {
	body := `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	var dst nameRequest
	err := decodeBody(jsonRequest(http.MethodPost, "/api/remove-person", body), &dst)
	assertFields(t, err, []string{"body"})
}

func assertFields(t *testing.T, err error, want []string) {
	t.Helper()
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("error %v does not wrap ErrValidation", err)
	}
	var list core.ValidationErrors
	if !errors.As(err, &list) {
		t.Fatalf("error %T is not ValidationErrors", err)
	}
	got := make([]string, len(list))
	for i, e := range list {
		got[i] = e.Field
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("fields = %v, want %v", got, want)
	}
}
