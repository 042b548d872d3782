package google

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"

	ports "whopays/internal/sheets"
)

const testOAuthClient = `{"installed":{"client_id":"test","client_secret":"test","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Options{})
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_InvalidOAuthClient(t *testing.T) {
	_, err := New(context.Background(), Options{
		SpreadsheetID:   "test-id",
		OAuthClientJSON: `invalid-json`,
		OAuthTokenJSON:  `{"access_token":"test"}`,
	})
	if err == nil {
		t.Fatal("expected error with invalid JSON")
	}
	if !strings.Contains(err.Error(), "oauth config") {
		t.Errorf("expected oauth config error, got: %v", err)
	}
}

func TestNewSheetsService_MissingOAuthClient(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := newSheetsService(context.Background(), Options{})
	if err == nil {
		t.Fatal("expected error for missing oauth client")
	}
	expectedMsg := "missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)"
	if err.Error() != expectedMsg {
		t.Errorf("expected %q, got %q", expectedMsg, err.Error())
	}
}

func TestNewSheetsService_MissingOAuthToken(t *testing.T) {
	_, err := newSheetsService(context.Background(), Options{OAuthClientJSON: testOAuthClient})
	if err == nil {
		t.Fatal("expected error for missing oauth token")
	}
	expectedMsg := "missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)"
	if err.Error() != expectedMsg {
		t.Errorf("expected %q, got %q", expectedMsg, err.Error())
	}
}

func TestNewSheetsService_OAuthTokenFile(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token.json")
	if err := os.WriteFile(tokenFile, []byte(`{"access_token":"test","token_type":"Bearer"}`), 0600); err != nil {
		t.Fatal(err)
	}

	svc, err := newSheetsService(context.Background(), Options{
		OAuthClientJSON: testOAuthClient,
		OAuthTokenFile:  tokenFile,
	})
	if err != nil {
		t.Fatalf("newSheetsService() error = %v", err)
	}
	if svc == nil {
		t.Fatal("newSheetsService() returned nil service")
	}
}

func TestNewSheetsService_MissingServiceAccountFile(t *testing.T) {
	_, err := newSheetsService(context.Background(), Options{
		ServiceAccountFile: filepath.Join(t.TempDir(), "missing.json"),
	})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Errorf("expected service account read error, got: %v", err)
	}
}

func TestJsonUnmarshalIndirection(t *testing.T) {
	data := []byte(`{"access_token":"test","token_type":"Bearer"}`)
	var token oauth2.Token

	if err := jsonUnmarshal(data, &token); err != nil {
		t.Fatalf("jsonUnmarshal failed: %v", err)
	}
	if token.AccessToken != "test" {
		t.Errorf("expected access token 'test', got %s", token.AccessToken)
	}

	if err := jsonUnmarshal([]byte(`{invalid json}`), &token); err == nil {
		t.Fatal("expected error with invalid JSON")
	}
}

func TestClient_AppendRoundValidation(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetName: "Rounds"} // svc is nil

	tests := []struct {
		name    string
		row     ports.RoundRow
		wantErr string
	}{
		{"missing id", ports.RoundRow{Payer: "Ann", Timestamp: "t"}, "round id is required"},
		{"missing payer", ports.RoundRow{RoundID: "r", Timestamp: "t"}, "payer is required"},
		{"missing timestamp", ports.RoundRow{RoundID: "r", Payer: "Ann"}, "timestamp is required"},
		{"nil service", ports.RoundRow{RoundID: "r", Payer: "Ann", Timestamp: "t"}, "sheets service not initialized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.AppendRound(context.Background(), tt.row)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("AppendRound() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestRowValues(t *testing.T) {
	row := ports.RoundRow{
		RoundID:   "r-1",
		Timestamp: "2025-08-11T01:23:45+00:00",
		Payer:     "Ann",
		TotalCost: decimal.RequireFromString("8"),
		People:    []string{"Ann", "Bob"},
		Tie:       "alpha",
	}

	got := rowValues(row)
	want := []any{"2025-08-11T01:23:45+00:00", "Ann", "8.00", "Ann, Bob", "alpha", "r-1"}
	if len(got) != len(want) {
		t.Fatalf("rowValues() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rowValues()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestQuoteSheet(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Rounds", "Rounds"},
		{"2025 Rounds", "'2025 Rounds'"},
		{"Bob's", "'Bob''s'"},
	}
	for _, tt := range tests {
		if got := quoteSheet(tt.in); got != tt.want {
			t.Errorf("quoteSheet(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
