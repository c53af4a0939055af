package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/sample-interp-server/internal/domain"
)

// SampleRepository handles sample persistence
type SampleRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewSampleRepository creates a new sample repository
func NewSampleRepository(db *pgxpool.Pool, logger *logrus.Logger) *SampleRepository {
	return &SampleRepository{
		db:  db,
		log: logger,
	}
}

// CreateSample inserts a new sample
func (r *SampleRepository) CreateSample(ctx context.Context, sample *domain.Sample) error {
	filtersJSON, err := json.Marshal(sample.Filters)
	if err != nil {
		return fmt.Errorf("marshaling filters: %w", err)
	}
	reportsJSON, err := json.Marshal(sample.Reports)
	if err != nil {
		return fmt.Errorf("marshaling reports: %w", err)
	}
	if sample.Reports == nil {
		reportsJSON = []byte("[]")
	}

	query := `
		INSERT INTO samples (
			id, name, assay, subpanel, profile, filters, reports, done, revision
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, 0
		)`

	_, err = r.db.Exec(ctx, query,
		sample.ID,
		sample.Name,
		sample.Assay,
		sample.Subpanel,
		sample.Profile,
		filtersJSON,
		reportsJSON,
		sample.Done,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"sample_id": sample.ID,
			"assay":     sample.Assay,
			"error":     err,
		}).Error("Failed to create sample")
		return fmt.Errorf("creating sample: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"sample_id": sample.ID,
		"name":      sample.Name,
		"assay":     sample.Assay,
	}).Info("Sample created successfully")

	return nil
}

// GetSample retrieves a sample by its ID
func (r *SampleRepository) GetSample(ctx context.Context, id uuid.UUID) (*domain.Sample, error) {
	query := `
		SELECT id, name, assay, subpanel, profile, filters, reports, done,
			   revision, created_at, updated_at
		FROM samples
		WHERE id = $1`

	var sample domain.Sample
	var filtersJSON, reportsJSON []byte

	err := r.db.QueryRow(ctx, query, id).Scan(
		&sample.ID,
		&sample.Name,
		&sample.Assay,
		&sample.Subpanel,
		&sample.Profile,
		&filtersJSON,
		&reportsJSON,
		&sample.Done,
		&sample.Revision,
		&sample.CreatedAt,
		&sample.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sample not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"sample_id": id,
			"error":     err,
		}).Error("Failed to get sample")
		return nil, fmt.Errorf("getting sample: %w", err)
	}

	if err := json.Unmarshal(filtersJSON, &sample.Filters); err != nil {
		return nil, fmt.Errorf("unmarshaling filters: %w", err)
	}
	if err := json.Unmarshal(reportsJSON, &sample.Reports); err != nil {
		return nil, fmt.Errorf("unmarshaling reports: %w", err)
	}

	return &sample, nil
}

// UpdateFilters replaces the mutable filter document of a sample
func (r *SampleRepository) UpdateFilters(ctx context.Context, id uuid.UUID, filters domain.SampleFilters) error {
	filtersJSON, err := json.Marshal(filters)
	if err != nil {
		return fmt.Errorf("marshaling filters: %w", err)
	}

	query := `
		UPDATE samples
		SET filters = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, filtersJSON)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"sample_id": id,
			"error":     err,
		}).Error("Failed to update sample filters")
		return fmt.Errorf("updating sample filters: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("sample not found: %w", domain.ErrNotFound)
	}

	r.log.WithFields(logrus.Fields{
		"sample_id": id,
	}).Info("Sample filters updated")

	return nil
}

// AppendReportMeta appends one entry to the sample's report history. The
// update is guarded by a compare-and-swap on the revision column so that
// concurrent saves for the same sample cannot race on report_num allocation;
// a lost race returns ErrConflict and the caller retries against a fresh
// read of the sample.
func (r *SampleRepository) AppendReportMeta(ctx context.Context, id uuid.UUID, expectedRevision int64, meta domain.ReportMeta) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling report meta: %w", err)
	}

	query := `
		UPDATE samples
		SET reports = reports || $3::jsonb,
			revision = revision + 1,
			updated_at = NOW()
		WHERE id = $1 AND revision = $2`

	result, err := r.db.Exec(ctx, query, id, expectedRevision, metaJSON)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"sample_id": id,
			"report_id": meta.ReportID,
			"error":     err,
		}).Error("Failed to append report metadata")
		return fmt.Errorf("appending report metadata: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM samples WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("checking sample existence: %w", err)
		}
		if !exists {
			return fmt.Errorf("sample not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"sample_id": id,
			"revision":  expectedRevision,
		}).Warn("Report metadata append lost revision race")
		return domain.ErrConflict
	}

	r.log.WithFields(logrus.Fields{
		"sample_id":  id,
		"report_id":  meta.ReportID,
		"report_num": meta.ReportNum,
	}).Info("Report metadata appended")

	return nil
}
