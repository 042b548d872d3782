package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"

	"whopays/internal/core"
	ports "whopays/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Options configures the Sheets client. Service-account credentials win
// over OAuth when both are present.
type Options struct {
	SpreadsheetID string
	SheetName     string

	ServiceAccountJSON string
	ServiceAccountFile string

	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.RoundWriter = (*Client)(nil)

// New creates a Sheets client for the rounds mirror.
func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName := strings.TrimSpace(opts.SheetName)
	if sheetName == "" {
		sheetName = "Rounds"
	}

	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

// newSheetsService authenticates with a service account when one is
// configured (falling back to GOOGLE_APPLICATION_CREDENTIALS), otherwise
// with an OAuth client and a stored token from oauth-init.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	saJSON := strings.TrimSpace(opts.ServiceAccountJSON)
	saFile := strings.TrimSpace(opts.ServiceAccountFile)
	if saJSON == "" && saFile == "" && opts.OAuthClientJSON == "" && opts.OAuthClientFile == "" {
		saFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	if saJSON != "" || saFile != "" {
		credentialsJSON, err := readInlineOrFile(saJSON, saFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
			"credentials_size", len(credentialsJSON))
		svc, err := gsheet.NewService(ctx,
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		return svc, nil
	}

	if opts.OAuthClientJSON == "" && opts.OAuthClientFile == "" {
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	if opts.OAuthTokenJSON == "" && opts.OAuthTokenFile == "" {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}

	clientJSON, err := readInlineOrFile(opts.OAuthClientJSON, opts.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	cfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tokenJSON, err := readInlineOrFile(opts.OAuthTokenJSON, opts.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var tok oauth2.Token
	if err := jsonUnmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}

	// The OAuth transport sits on top of the pooled client.
	base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	httpClient := cfg.Client(base, &tok)

	slog.InfoContext(ctx, "Creating Google Sheets service with OAuth token")
	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// jsonUnmarshal is a seam for tests.
var jsonUnmarshal = json.Unmarshal

func readInlineOrFile(inline, path string) ([]byte, error) {
	if strings.TrimSpace(inline) != "" {
		return []byte(inline), nil
	}
	return os.ReadFile(path)
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API
// with connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// AppendRound appends one row (timestamp, payer, total, people, tie,
// round id) unless the round id is already in column F.
func (c *Client) AppendRound(ctx context.Context, row ports.RoundRow) (string, error) {
	if err := validateRow(row); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	idRange := fmt.Sprintf("%s!F:F", quoteSheet(c.sheetName))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, idRange).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read round ids from %s: %w", c.sheetName, err)
	}
	for i, r := range resp.Values {
		if len(r) > 0 && strings.TrimSpace(fmt.Sprint(r[0])) == row.RoundID {
			ref := fmt.Sprintf("%s!A%d:F%d", c.sheetName, i+1, i+1)
			slog.InfoContext(ctx, "Round already mirrored", "round_id", row.RoundID, "ref", ref)
			return ref, nil
		}
	}

	appendRange := fmt.Sprintf("%s!A:F", quoteSheet(c.sheetName))
	vr := &gsheet.ValueRange{Values: [][]any{rowValues(row)}}
	out, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, appendRange, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append round to %s: %w", c.sheetName, err)
	}

	ref := appendRange
	if out.Updates != nil && out.Updates.UpdatedRange != "" {
		ref = out.Updates.UpdatedRange
	}
	return ref, nil
}

func validateRow(row ports.RoundRow) error {
	switch {
	case row.RoundID == "":
		return errors.New("round id is required")
	case row.Payer == "":
		return errors.New("payer is required")
	case row.Timestamp == "":
		return errors.New("timestamp is required")
	}
	return nil
}

// rowValues renders a round in column order A..F.
func rowValues(row ports.RoundRow) []any {
	return []any{
		row.Timestamp,
		row.Payer,
		core.FormatMoney(row.TotalCost),
		strings.Join(row.People, ", "),
		row.Tie,
		row.RoundID,
	}
}

// quoteSheet wraps a sheet name for A1 notation when it needs quoting.
func quoteSheet(name string) string {
	if strings.ContainsAny(name, " '!") {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name
}
