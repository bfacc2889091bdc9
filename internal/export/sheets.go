// Package export appends completed-budget summaries and report rows to a
// Google Sheet, so households can keep a long-lived savings history outside
// the app.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"hisab/internal/core"
	"hisab/internal/ledger"
	applog "hisab/internal/log"
	"hisab/internal/report"
)

type SheetsExporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	savingsSheet  string
	reportsSheet  string
}

// NewFromEnv creates a Sheets exporter from environment variables.
// Required: GOOGLE_SPREADSHEET_ID plus service account credentials via
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional sheet names: GOOGLE_SAVINGS_SHEET_NAME (default "Savings"),
// GOOGLE_REPORTS_SHEET_NAME (default "Reports").
func NewFromEnv(ctx context.Context) (*SheetsExporter, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	savingsSheet := strings.TrimSpace(os.Getenv("GOOGLE_SAVINGS_SHEET_NAME"))
	if savingsSheet == "" {
		savingsSheet = "Savings"
	}
	reportsSheet := strings.TrimSpace(os.Getenv("GOOGLE_REPORTS_SHEET_NAME"))
	if reportsSheet == "" {
		reportsSheet = "Reports"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &SheetsExporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		savingsSheet:  savingsSheet,
		reportsSheet:  reportsSheet,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ExportBudgetCompletions appends one row per completed budget:
// date, budget name, planned spend, final savings.
func (e *SheetsExporter) ExportBudgetCompletions(ctx context.Context, completions []ledger.BudgetCompletion) error {
	if len(completions) == 0 {
		return nil
	}

	today := time.Now().Format("2006-01-02")
	values := make([][]any, 0, len(completions))
	for _, c := range completions {
		values = append(values, []any{
			today,
			c.Name,
			c.Spent.String(),
			c.Remaining.String(),
		})
	}

	if err := e.append(ctx, e.savingsSheet, "D", values); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Exported budget completions to sheet",
		"sheet", e.savingsSheet, "rows", len(values))
	return nil
}

// ExportReport appends one row per report bucket, prefixed with the owner
// and the report identity so multiple reports can share the sheet.
func (e *SheetsExporter) ExportReport(ctx context.Context, ownerID string, period core.Period, kind core.TransactionKind, rows []report.Row) error {
	if len(rows) == 0 {
		return nil
	}

	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		values = append(values, []any{
			ownerID,
			string(period),
			string(kind),
			r.PeriodKey,
			r.Amount.String(),
			r.Count,
		})
	}

	if err := e.append(ctx, e.reportsSheet, "F", values); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Exported report to sheet",
		"sheet", e.reportsSheet, applog.FieldOwnerID, ownerID, applog.FieldPeriod, period, "kind", kind, "rows", len(values))
	return nil
}

func (e *SheetsExporter) append(ctx context.Context, sheet, lastCol string, values [][]any) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:%s", sheet, lastCol)
	_, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, &gsheet.ValueRange{
		Values: values,
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", sheet, err)
	}
	return nil
}
