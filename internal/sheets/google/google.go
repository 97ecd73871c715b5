package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	ports "oshikakeibo/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Header is the first row of a mirror sheet. Columns A..F.
var Header = []any{"日付", "推し", "カテゴリ", "金額", "メモ", "ID"}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	expensesSheet string
}

// Ensure interface conformance
var _ ports.ExpenseMirror = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables and
// service-account credentials.
// Required: GOOGLE_SPREADSHEET_ID
// Optional sheet name: GOOGLE_SHEET_NAME (default "推し活支出"), prefixed
// with the current year unless it already starts with one.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	expensesBase := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if expensesBase == "" {
		expensesBase = "推し活支出"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		expensesSheet: yearPrefixedName(expensesBase, time.Now().Year()),
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := serviceAccountCredentials()
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func serviceAccountCredentials() ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	// Also check the standard Google Cloud environment variable
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// AppendExpenses writes rows after the last used row of the expenses sheet.
// An empty sheet gets the header first.
func (c *Client) AppendExpenses(ctx context.Context, rows []ports.ExpenseRow) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:A", c.expensesSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get sheet dimensions for %s: %w", c.expensesSheet, err)
	}

	values := expenseValues(rows)
	if len(resp.Values) == 0 {
		values = append([][]any{Header}, values...)
	}
	firstRow := len(resp.Values) + 1
	lastRow := firstRow + len(values) - 1

	ref := fmt.Sprintf("%s!A%d:F%d", c.expensesSheet, firstRow, lastRow)
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, ref, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update %s: %w", ref, err)
	}
	return ref, nil
}

// MirroredIDs reads the id column of the expenses sheet.
func (c *Client) MirroredIDs(ctx context.Context) (map[int64]bool, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!F:F", c.expensesSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseIDColumn(resp.Values), nil
}

func expenseValues(rows []ports.ExpenseRow) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, []any{
			r.Date.String(),
			r.PersonName,
			string(r.Category),
			r.Amount,
			r.Note,
			strconv.FormatInt(r.ID, 10),
		})
	}
	return out
}

// parseIDColumn collects numeric ids, skipping the header and blank cells.
func parseIDColumn(values [][]any) map[int64]bool {
	ids := make(map[int64]bool, len(values))
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		ids[id] = true
	}
	return ids
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
