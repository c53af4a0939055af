package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/sample-interp-server/internal/domain"
)

// AnnotationRepository handles the shared annotation corpus. The store is
// append-only: records are inserted and queried, never updated or deleted.
// Supersession happens at read time by timestamp ordering.
type AnnotationRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAnnotationRepository creates a new annotation repository
func NewAnnotationRepository(db *pgxpool.Pool, logger *logrus.Logger) *AnnotationRepository {
	return &AnnotationRepository{
		db:  db,
		log: logger,
	}
}

// InsertClassification appends a classification record
func (r *AnnotationRepository) InsertClassification(ctx context.Context, record *domain.ClassificationRecord) error {
	query := `
		INSERT INTO annotations (
			id, record_type, gene_symbol, identity, assay, subpanel, tier, author
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)`

	_, err := r.db.Exec(ctx, query,
		record.ID,
		domain.CLASSIFICATION,
		record.GeneSymbol,
		record.Identity,
		record.Assay,
		record.Subpanel,
		record.Tier,
		record.Author,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"gene":     record.GeneSymbol,
			"identity": record.Identity,
			"assay":    record.Assay,
			"error":    err,
		}).Error("Failed to insert classification")
		return fmt.Errorf("inserting classification: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"gene":     record.GeneSymbol,
		"identity": record.Identity,
		"assay":    record.Assay,
		"subpanel": record.Subpanel,
		"tier":     record.Tier,
	}).Info("Classification recorded")

	return nil
}

// QueryClassifications returns all classification records for a gene and
// identity, newest first. Scope filtering is the matcher's concern.
func (r *AnnotationRepository) QueryClassifications(ctx context.Context, gene, identity string) ([]*domain.ClassificationRecord, error) {
	query := `
		SELECT id, gene_symbol, identity, assay, subpanel, tier, author, created_at
		FROM annotations
		WHERE gene_symbol = $1 AND identity = $2 AND record_type = $3
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, gene, identity, domain.CLASSIFICATION)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"gene":     gene,
			"identity": identity,
			"error":    err,
		}).Error("Failed to query classifications")
		return nil, fmt.Errorf("querying classifications: %w", err)
	}
	defer rows.Close()

	var records []*domain.ClassificationRecord
	for rows.Next() {
		var rec domain.ClassificationRecord
		err := rows.Scan(
			&rec.ID,
			&rec.GeneSymbol,
			&rec.Identity,
			&rec.Assay,
			&rec.Subpanel,
			&rec.Tier,
			&rec.Author,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning classification row: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating classification rows: %w", err)
	}

	return records, nil
}

// InsertText appends a free-form interpretation text record
func (r *AnnotationRepository) InsertText(ctx context.Context, record *domain.TextRecord) error {
	query := `
		INSERT INTO annotations (
			id, record_type, gene_symbol, identity, assay, subpanel, body, author
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)`

	_, err := r.db.Exec(ctx, query,
		record.ID,
		domain.TEXT,
		record.GeneSymbol,
		record.Identity,
		record.Assay,
		record.Subpanel,
		record.Text,
		record.Author,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"gene":     record.GeneSymbol,
			"identity": record.Identity,
			"error":    err,
		}).Error("Failed to insert text record")
		return fmt.Errorf("inserting text record: %w", err)
	}

	return nil
}

// QueryTexts returns all text records for a gene and identity, newest first
func (r *AnnotationRepository) QueryTexts(ctx context.Context, gene, identity string) ([]*domain.TextRecord, error) {
	query := `
		SELECT id, gene_symbol, identity, assay, subpanel, body, author, created_at
		FROM annotations
		WHERE gene_symbol = $1 AND identity = $2 AND record_type = $3
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, gene, identity, domain.TEXT)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"gene":     gene,
			"identity": identity,
			"error":    err,
		}).Error("Failed to query text records")
		return nil, fmt.Errorf("querying text records: %w", err)
	}
	defer rows.Close()

	var records []*domain.TextRecord
	for rows.Next() {
		var rec domain.TextRecord
		err := rows.Scan(
			&rec.ID,
			&rec.GeneSymbol,
			&rec.Identity,
			&rec.Assay,
			&rec.Subpanel,
			&rec.Text,
			&rec.Author,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning text row: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating text rows: %w", err)
	}

	return records, nil
}
