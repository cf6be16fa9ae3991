// Package sheets implements counter.Table on top of the Google Sheets v4 API.
package sheets

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// Table reads and writes value ranges of one spreadsheet.
type Table struct {
	svc           *gsheets.Service
	spreadsheetID string
}

// New authenticates with a service-account credential JSON and returns a Table
// bound to spreadsheetID. The service is built once and reused by every call.
// Token refreshes outlive ctx, so a startup context that is later cancelled
// does not break requests still in flight during shutdown.
func New(ctx context.Context, spreadsheetID string, credentialsJSON []byte, opts ...option.ClientOption) (*Table, error) {
	ctx = context.WithoutCancel(ctx)
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, gsheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	return NewWithOptions(ctx, spreadsheetID, append([]option.ClientOption{option.WithCredentials(creds)}, opts...)...)
}

// NewWithOptions is New with caller-supplied client options (endpoint, HTTP client).
func NewWithOptions(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Table, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Table{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func (t *Table) Read(ctx context.Context, rng string) ([][]string, error) {
	resp, err := t.svc.Spreadsheets.Values.Get(t.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = fmt.Sprint(v)
		}
	}
	return out, nil
}

func (t *Table) Update(ctx context.Context, rng string, rows [][]any) error {
	_, err := t.svc.Spreadsheets.Values.Update(t.spreadsheetID, rng, &gsheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (t *Table) Append(ctx context.Context, rng string, rows [][]any) error {
	_, err := t.svc.Spreadsheets.Values.Append(t.spreadsheetID, rng, &gsheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}
