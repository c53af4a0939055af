package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/sample-interp-server/internal/domain"
)

// SnapshotRepository persists immutable report snapshot rows. There is no
// update or delete path: the upsert exists only so that a retried save batch
// lands on the same (sample, report, identity) key instead of duplicating.
type SnapshotRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *pgxpool.Pool, logger *logrus.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: logger,
	}
}

// UpsertRow writes one snapshot row, idempotent on its key
func (r *SnapshotRepository) UpsertRow(ctx context.Context, row *domain.SnapshotRow) error {
	query := `
		INSERT INTO report_snapshots (
			sample_id, report_id, identity, gene_symbol, tier, interpretation
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		ON CONFLICT (sample_id, report_id, identity) DO UPDATE
		SET tier = EXCLUDED.tier,
			gene_symbol = EXCLUDED.gene_symbol,
			interpretation = EXCLUDED.interpretation`

	_, err := r.db.Exec(ctx, query,
		row.SampleID,
		row.ReportID,
		row.Identity,
		row.GeneSymbol,
		row.Tier,
		row.Text,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"sample_id": row.SampleID,
			"report_id": row.ReportID,
			"identity":  row.Identity,
			"error":     err,
		}).Error("Failed to upsert snapshot row")
		return fmt.Errorf("upserting snapshot row: %w", err)
	}

	return nil
}

// RowsForReport returns the frozen rows of one saved report
func (r *SnapshotRepository) RowsForReport(ctx context.Context, sampleID, reportID uuid.UUID) ([]*domain.SnapshotRow, error) {
	query := `
		SELECT sample_id, report_id, identity, gene_symbol, tier, interpretation, created_at
		FROM report_snapshots
		WHERE sample_id = $1 AND report_id = $2
		ORDER BY identity`

	rows, err := r.db.Query(ctx, query, sampleID, reportID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"sample_id": sampleID,
			"report_id": reportID,
			"error":     err,
		}).Error("Failed to get snapshot rows")
		return nil, fmt.Errorf("getting snapshot rows: %w", err)
	}
	defer rows.Close()

	var result []*domain.SnapshotRow
	for rows.Next() {
		var row domain.SnapshotRow
		err := rows.Scan(
			&row.SampleID,
			&row.ReportID,
			&row.Identity,
			&row.GeneSymbol,
			&row.Tier,
			&row.Text,
			&row.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		result = append(result, &row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot rows: %w", err)
	}

	return result, nil
}
