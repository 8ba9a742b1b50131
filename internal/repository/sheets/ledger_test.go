package sheets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/compost/internal/domain/models"
)

type recordingWriter struct {
	ranges []string
	rows   [][]interface{}
	err    error
}

func (w *recordingWriter) WriteRow(_ context.Context, sheetRange string, values []interface{}) error {
	if w.err != nil {
		return w.err
	}
	w.ranges = append(w.ranges, sheetRange)
	w.rows = append(w.rows, values)
	return nil
}

func TestRecordCertificationWritesOneRow(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	ledger := NewLedger(w)
	at := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)

	err := ledger.RecordCertification(context.Background(), models.Certification{
		BatchID: "b-1", BatchCode: "A-001", FacilityCode: "SP-01", Fingerprint: "deadbeef", Version: 4, CertifiedAt: at,
	})
	require.NoError(t, err)
	require.Len(t, w.rows, 1)
	assert.Equal(t, certificationsRange, w.ranges[0])
	assert.Equal(t, []interface{}{"2026-04-01T12:00:00Z", "SP-01", "A-001", "b-1", "deadbeef", int64(4)}, w.rows[0])
}

func TestRecordAdvanceRunPropagatesWriterError(t *testing.T) {
	t.Parallel()

	ledger := NewLedger(&recordingWriter{err: errors.New("quota exceeded")})
	err := ledger.RecordAdvanceRun(context.Background(), models.WeeklyAdvanceReport{Facility: "SP-01"})
	assert.EqualError(t, err, "quota exceeded")
}
