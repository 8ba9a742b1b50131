// Package sqlite provides a SQLite-backed batch registry.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/mamadbah2/compost/internal/domain/apperr"
	"github.com/mamadbah2/compost/internal/domain/models"
	"github.com/mamadbah2/compost/internal/repository"
	"github.com/mamadbah2/compost/internal/repository/sqlite/migrations"
)

const batchColumns = `id, code, facility_code, status, station, week, initial_mass, current_mass,
	decay_rate, started_at, closed_at, finalized_at, updated_at, creator_id, latitude, longitude,
	fingerprint, last_advance_cycle, version, deleted_at`

const contributionColumns = `id, batch_id, batch_code, mass, contributor_id, latitude, longitude,
	geofence_distance_m, outside_geofence, created_at, deleted_at`

// Store persists the registry in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ repository.Registry = (*Store)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

// Open opens a SQLite registry and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; bulk workers queue on the pool instead of failing with SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) UpsertFacility(ctx context.Context, facility models.Facility) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO facilities (code, name, latitude, longitude, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (code) DO UPDATE SET
		   name = excluded.name,
		   latitude = excluded.latitude,
		   longitude = excluded.longitude,
		   updated_at = excluded.updated_at`,
		facility.Code,
		facility.Name,
		nullFloat(facility.Latitude),
		nullFloat(facility.Longitude),
		toMillis(facility.CreatedAt),
		toMillis(facility.UpdatedAt),
	)
	if err != nil {
		return apperr.Persistence("upsert facility", facility.Code, err)
	}
	return nil
}

func (s *Store) GetFacility(ctx context.Context, code string) (models.Facility, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT code, name, latitude, longitude, created_at, updated_at
		   FROM facilities
		  WHERE code = ?`, code)

	var f models.Facility
	var lat, lon sql.NullFloat64
	var createdAt, updatedAt int64
	if err := row.Scan(&f.Code, &f.Name, &lat, &lon, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Facility{}, apperr.NotFound("get facility", code, "facility not found")
		}
		return models.Facility{}, apperr.Persistence("get facility", code, err)
	}
	f.Latitude = fromNullFloat(lat)
	f.Longitude = fromNullFloat(lon)
	f.CreatedAt = fromMillis(createdAt)
	f.UpdatedAt = fromMillis(updatedAt)
	return f, nil
}

func (s *Store) CreateBatch(ctx context.Context, b models.Batch) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO batches (`+batchColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID,
		b.Code,
		b.FacilityCode,
		string(b.Status),
		b.Station,
		b.Week,
		b.InitialMass,
		b.CurrentMass,
		nullFloat(b.DecayRate),
		toMillis(b.StartedAt),
		nullMillis(b.ClosedAt),
		nullMillis(b.FinalizedAt),
		toMillis(b.UpdatedAt),
		b.CreatorID,
		nullFloat(b.Latitude),
		nullFloat(b.Longitude),
		nullString(b.Fingerprint),
		b.LastAdvanceCycle,
		b.Version,
		nullMillis(b.DeletedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.DuplicateCode("create batch", b.Code)
		}
		return apperr.Persistence("create batch", b.Code, err)
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (models.Batch, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE id = ? AND deleted_at IS NULL`, id)
	return scanBatchRow(row, "get batch", id)
}

func (s *Store) GetBatchByCode(ctx context.Context, facilityCode, code string) (models.Batch, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM batches
		  WHERE facility_code = ? AND code = ? AND deleted_at IS NULL`, facilityCode, code)
	return scanBatchRow(row, "get batch", code)
}

func (s *Store) ListProcessingBatches(ctx context.Context, facilityCode string) ([]models.Batch, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM batches
		  WHERE facility_code = ? AND status = ? AND deleted_at IS NULL
		  ORDER BY code`, facilityCode, string(models.BatchProcessing))
	if err != nil {
		return nil, apperr.Persistence("list batches", facilityCode, err)
	}
	defer rows.Close()

	batches := make([]models.Batch, 0)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, apperr.Persistence("list batches", facilityCode, err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list batches", facilityCode, err)
	}
	return batches, nil
}

func (s *Store) UpdateBatch(ctx context.Context, b models.Batch) (models.Batch, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return models.Batch{}, apperr.Persistence("update batch", b.Code, err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE batches SET
		   status = ?,
		   station = ?,
		   week = ?,
		   current_mass = ?,
		   closed_at = ?,
		   finalized_at = ?,
		   updated_at = ?,
		   fingerprint = ?,
		   last_advance_cycle = ?,
		   version = version + 1
		 WHERE id = ? AND version = ? AND deleted_at IS NULL`,
		string(b.Status),
		b.Station,
		b.Week,
		b.CurrentMass,
		nullMillis(b.ClosedAt),
		nullMillis(b.FinalizedAt),
		toMillis(b.UpdatedAt),
		nullString(b.Fingerprint),
		b.LastAdvanceCycle,
		b.ID,
		b.Version,
	)
	if err != nil {
		_ = tx.Rollback()
		return models.Batch{}, apperr.Persistence("update batch", b.Code, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return models.Batch{}, apperr.Persistence("update batch", b.Code, err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		if _, getErr := s.GetBatch(ctx, b.ID); getErr != nil {
			return models.Batch{}, getErr
		}
		return models.Batch{}, repository.Conflict("update batch", b.Code)
	}

	stored, err := scanBatchRow(
		tx.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, b.ID),
		"update batch", b.Code)
	if err != nil {
		_ = tx.Rollback()
		return models.Batch{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Batch{}, apperr.Persistence("update batch", b.Code, err)
	}
	return stored, nil
}

func (s *Store) SoftDeleteBatch(ctx context.Context, id string, at time.Time) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE batches SET deleted_at = ?, updated_at = ?, version = version + 1
		  WHERE id = ? AND deleted_at IS NULL`, toMillis(at), toMillis(at), id)
	if err != nil {
		return apperr.Persistence("delete batch", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return apperr.Persistence("delete batch", id, err)
	} else if n == 0 {
		return repository.BatchNotFound("delete batch", id)
	}
	return nil
}

func (s *Store) AddContribution(ctx context.Context, e models.ContributionEvent) error {
	return s.withBatchTouch(ctx, "add contribution", e.BatchID, e.CreatedAt, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO contributions (`+contributionColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID,
			e.BatchID,
			e.BatchCode,
			e.Mass,
			e.ContributorID,
			nullFloat(e.Latitude),
			nullFloat(e.Longitude),
			nullInt(e.GeofenceDistanceM),
			boolToInt(e.OutsideGeofence),
			toMillis(e.CreatedAt),
			nullMillis(e.DeletedAt),
		)
		return err
	})
}

func (s *Store) GetContribution(ctx context.Context, id string) (models.ContributionEvent, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+contributionColumns+` FROM contributions WHERE id = ? AND deleted_at IS NULL`, id)
	e, err := scanContribution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ContributionEvent{}, apperr.NotFound("get contribution", id, "contribution not found")
		}
		return models.ContributionEvent{}, apperr.Persistence("get contribution", id, err)
	}
	return e, nil
}

func (s *Store) ListContributions(ctx context.Context, batchID string) ([]models.ContributionEvent, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+contributionColumns+` FROM contributions
		  WHERE batch_id = ? AND deleted_at IS NULL
		  ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, apperr.Persistence("list contributions", batchID, err)
	}
	defer rows.Close()

	events := make([]models.ContributionEvent, 0)
	for rows.Next() {
		e, err := scanContribution(rows)
		if err != nil {
			return nil, apperr.Persistence("list contributions", batchID, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list contributions", batchID, err)
	}
	return events, nil
}

func (s *Store) SoftDeleteContribution(ctx context.Context, id string, at time.Time) error {
	event, err := s.GetContribution(ctx, id)
	if err != nil {
		return err
	}
	return s.withBatchTouch(ctx, "delete contribution", event.BatchID, at, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE contributions SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, toMillis(at), id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperr.NotFound("delete contribution", id, "contribution not found")
		}
		return nil
	})
}

func (s *Store) AddPhoto(ctx context.Context, p models.PhotoRecord) error {
	return s.withBatchTouch(ctx, "add photo", p.BatchID, p.CreatedAt, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO photos (id, batch_id, contribution_id, reference, category, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.BatchID, p.ContributionID, p.Reference, string(p.Category), toMillis(p.CreatedAt))
		return err
	})
}

func (s *Store) ListPhotos(ctx context.Context, batchID string) ([]models.PhotoRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT p.id, p.batch_id, p.contribution_id, p.reference, p.category, p.created_at
		   FROM photos p
		  WHERE p.batch_id = ?
		    AND (p.contribution_id = ''
		         OR p.contribution_id IN (
		              SELECT c.id FROM contributions c
		               WHERE c.batch_id = ? AND c.deleted_at IS NULL))
		  ORDER BY p.created_at, p.id`, batchID, batchID)
	if err != nil {
		return nil, apperr.Persistence("list photos", batchID, err)
	}
	defer rows.Close()

	photos := make([]models.PhotoRecord, 0)
	for rows.Next() {
		var p models.PhotoRecord
		var category string
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.BatchID, &p.ContributionID, &p.Reference, &category, &createdAt); err != nil {
			return nil, apperr.Persistence("list photos", batchID, err)
		}
		p.Category = models.PhotoCategory(category)
		p.CreatedAt = fromMillis(createdAt)
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list photos", batchID, err)
	}
	return photos, nil
}

// withBatchTouch runs fn in a transaction that also bumps the batch version and clears
// its fingerprint.
func (s *Store) withBatchTouch(ctx context.Context, op, batchID string, at time.Time, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Persistence(op, batchID, err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE batches SET version = version + 1, fingerprint = NULL, updated_at = ?
		  WHERE id = ? AND deleted_at IS NULL`, toMillis(at), batchID)
	if err != nil {
		_ = tx.Rollback()
		return apperr.Persistence(op, batchID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		_ = tx.Rollback()
		return apperr.Persistence(op, batchID, err)
	} else if n == 0 {
		_ = tx.Rollback()
		return repository.BatchNotFound(op, batchID)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if apperr.KindOf(err) != "" {
			return err
		}
		return apperr.Persistence(op, batchID, err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Persistence(op, batchID, err)
	}
	return nil
}

func scanBatchRow(row rowScanner, op, ref string) (models.Batch, error) {
	b, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Batch{}, repository.BatchNotFound(op, ref)
		}
		return models.Batch{}, apperr.Persistence(op, ref, err)
	}
	return b, nil
}

func scanBatch(row rowScanner) (models.Batch, error) {
	var b models.Batch
	var status string
	var decayRate, lat, lon sql.NullFloat64
	var startedAt, updatedAt int64
	var closedAt, finalizedAt, deletedAt sql.NullInt64
	var fingerprint sql.NullString

	if err := row.Scan(
		&b.ID,
		&b.Code,
		&b.FacilityCode,
		&status,
		&b.Station,
		&b.Week,
		&b.InitialMass,
		&b.CurrentMass,
		&decayRate,
		&startedAt,
		&closedAt,
		&finalizedAt,
		&updatedAt,
		&b.CreatorID,
		&lat,
		&lon,
		&fingerprint,
		&b.LastAdvanceCycle,
		&b.Version,
		&deletedAt,
	); err != nil {
		return models.Batch{}, err
	}

	b.Status = models.BatchStatus(status)
	b.DecayRate = fromNullFloat(decayRate)
	b.StartedAt = fromMillis(startedAt)
	b.ClosedAt = fromNullMillis(closedAt)
	b.FinalizedAt = fromNullMillis(finalizedAt)
	b.UpdatedAt = fromMillis(updatedAt)
	b.Latitude = fromNullFloat(lat)
	b.Longitude = fromNullFloat(lon)
	if fingerprint.Valid {
		fp := fingerprint.String
		b.Fingerprint = &fp
	}
	b.DeletedAt = fromNullMillis(deletedAt)
	return b, nil
}

func scanContribution(row rowScanner) (models.ContributionEvent, error) {
	var e models.ContributionEvent
	var lat, lon sql.NullFloat64
	var distance sql.NullInt64
	var outside int64
	var createdAt int64
	var deletedAt sql.NullInt64

	if err := row.Scan(
		&e.ID,
		&e.BatchID,
		&e.BatchCode,
		&e.Mass,
		&e.ContributorID,
		&lat,
		&lon,
		&distance,
		&outside,
		&createdAt,
		&deletedAt,
	); err != nil {
		return models.ContributionEvent{}, err
	}

	e.Latitude = fromNullFloat(lat)
	e.Longitude = fromNullFloat(lon)
	if distance.Valid {
		d := int(distance.Int64)
		e.GeofenceDistanceM = &d
	}
	e.OutsideGeofence = outside != 0
	e.CreatedAt = fromMillis(createdAt)
	e.DeletedAt = fromNullMillis(deletedAt)
	return e, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullMillis(value *time.Time) any {
	if value == nil {
		return nil
	}
	return toMillis(*value)
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func nullFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func fromNullFloat(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}

func nullInt(value *int) any {
	if value == nil {
		return nil
	}
	return int64(*value)
}

func nullString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
