package sheets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/compost/internal/config"
	"github.com/mamadbah2/compost/internal/domain/models"
)

const (
	certificationsRange = "Certifications!A:F"
	advanceRunsRange    = "WeeklyAdvance!A:H"
	timestampLayout     = time.RFC3339
)

// RowWriter appends rows to a spreadsheet range.
type RowWriter interface {
	WriteRow(ctx context.Context, sheetRange string, values []interface{}) error
}

// GoogleSheetRepository implements RowWriter using the official Google Sheets API.
type GoogleSheetRepository struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetRepository builds a Google Sheets backed writer.
func NewGoogleSheetRepository(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheetRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheetRepository{
		service:       service,
		spreadsheetID: cfg.LedgerID,
		logger:        logger,
	}, nil
}

// WriteRow appends the provided values to the supplied sheet range.
func (r *GoogleSheetRepository) WriteRow(ctx context.Context, sheetRange string, values []interface{}) error {
	if sheetRange == "" {
		return fmt.Errorf("sheetRange must not be empty")
	}

	payload := &sheetsapi.ValueRange{Values: [][]interface{}{values}}

	call := r.service.Spreadsheets.Values.Append(r.spreadsheetID, sheetRange, payload).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append row into range %s: %w", sheetRange, err)
	}

	r.logger.Debug("row appended to sheet", zap.String("range", sheetRange))
	return nil
}

// Ledger is the audit trail auditors read fingerprints and weekly runs from.
type Ledger struct {
	writer RowWriter
}

// NewLedger wraps a row writer.
func NewLedger(writer RowWriter) *Ledger {
	return &Ledger{writer: writer}
}

// RecordCertification appends one certified fingerprint.
func (l *Ledger) RecordCertification(ctx context.Context, c models.Certification) error {
	values := []interface{}{
		c.CertifiedAt.UTC().Format(timestampLayout),
		c.FacilityCode,
		c.BatchCode,
		c.BatchID,
		c.Fingerprint,
		c.Version,
	}
	return l.writer.WriteRow(ctx, certificationsRange, values)
}

// RecordAdvanceRun appends the summary of one weekly advance run.
func (l *Ledger) RecordAdvanceRun(ctx context.Context, report models.WeeklyAdvanceReport) error {
	values := []interface{}{
		report.FinishedAt.UTC().Format(timestampLayout),
		report.Facility,
		report.Cycle,
		report.RunID,
		report.Advanced,
		report.Skipped,
		report.Failed,
		report.FinishedAt.Sub(report.StartedAt).String(),
	}
	return l.writer.WriteRow(ctx, advanceRunsRange, values)
}
