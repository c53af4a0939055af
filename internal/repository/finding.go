package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/sample-interp-server/internal/domain"
)

// FindingRepository handles finding persistence. Findings are immutable once
// called by the upstream pipeline; the repository offers no update path.
type FindingRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewFindingRepository creates a new finding repository
func NewFindingRepository(db *pgxpool.Pool, logger *logrus.Logger) *FindingRepository {
	return &FindingRepository{
		db:  db,
		log: logger,
	}
}

// InsertFinding inserts a normalized finding
func (r *FindingRepository) InsertFinding(ctx context.Context, finding *domain.Finding) error {
	supportJSON, err := json.Marshal(finding.Support)
	if err != nil {
		return fmt.Errorf("marshaling support metrics: %w", err)
	}

	query := `
		INSERT INTO findings (
			id, sample_id, kind, gene_symbol, hgvsp, hgvsc, chromosome,
			position, reference, alternative, transcript_id, support
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)`

	_, err = r.db.Exec(ctx, query,
		finding.ID,
		finding.SampleID,
		finding.Kind,
		finding.GeneSymbol,
		finding.HGVSp,
		finding.HGVSc,
		finding.Chromosome,
		finding.Position,
		finding.Reference,
		finding.Alternative,
		finding.TranscriptID,
		supportJSON,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"finding_id": finding.ID,
			"sample_id":  finding.SampleID,
			"gene":       finding.GeneSymbol,
			"error":      err,
		}).Error("Failed to insert finding")
		return fmt.Errorf("inserting finding: %w", err)
	}

	return nil
}

// GetFindings retrieves findings by ID
func (r *FindingRepository) GetFindings(ctx context.Context, ids []uuid.UUID) ([]*domain.Finding, error) {
	query := `
		SELECT id, sample_id, kind, gene_symbol, hgvsp, hgvsc, chromosome,
			   position, reference, alternative, transcript_id, support, created_at
		FROM findings
		WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"count": len(ids),
			"error": err,
		}).Error("Failed to get findings by ID")
		return nil, fmt.Errorf("getting findings: %w", err)
	}
	defer rows.Close()

	return r.scanFindings(rows.Next, rows.Scan, rows.Err, nil)
}

// QueryFindings retrieves a sample's findings that pass its filter document.
// Rows whose support metrics cannot be read as numbers are a known upstream
// data-quality defect: they fail the threshold predicate and are excluded
// with a warning rather than aborting the query.
func (r *FindingRepository) QueryFindings(ctx context.Context, sampleID uuid.UUID, filters domain.SampleFilters) ([]*domain.Finding, error) {
	query := `
		SELECT id, sample_id, kind, gene_symbol, hgvsp, hgvsc, chromosome,
			   position, reference, alternative, transcript_id, support, created_at
		FROM findings
		WHERE sample_id = $1
		ORDER BY gene_symbol, position`

	rows, err := r.db.Query(ctx, query, sampleID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"sample_id": sampleID,
			"error":     err,
		}).Error("Failed to query findings")
		return nil, fmt.Errorf("querying findings: %w", err)
	}
	defer rows.Close()

	return r.scanFindings(rows.Next, rows.Scan, rows.Err, &filters)
}

type scanFunc func(dest ...any) error

func (r *FindingRepository) scanFindings(next func() bool, scan scanFunc, rowsErr func() error, filters *domain.SampleFilters) ([]*domain.Finding, error) {
	var findings []*domain.Finding

	for next() {
		var finding domain.Finding
		var supportJSON []byte

		err := scan(
			&finding.ID,
			&finding.SampleID,
			&finding.Kind,
			&finding.GeneSymbol,
			&finding.HGVSp,
			&finding.HGVSc,
			&finding.Chromosome,
			&finding.Position,
			&finding.Reference,
			&finding.Alternative,
			&finding.TranscriptID,
			&supportJSON,
			&finding.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning finding row: %w", err)
		}

		support, ok := r.decodeSupport(finding.ID, supportJSON)
		if filters != nil {
			if !ok {
				// Malformed metrics exclude the row from threshold filtering
				continue
			}
			finding.Support = support
			if !passesFilters(&finding, *filters) {
				continue
			}
		} else if ok {
			finding.Support = support
		}

		findings = append(findings, &finding)
	}

	if err := rowsErr(); err != nil {
		return nil, fmt.Errorf("iterating finding rows: %w", err)
	}

	return findings, nil
}

// decodeSupport reads the raw support payload, tolerating the legacy
// string-typed numerics the pipeline is known to produce.
func (r *FindingRepository) decodeSupport(findingID uuid.UUID, raw []byte) (domain.SupportMetrics, bool) {
	var rawMap map[string]interface{}
	if err := json.Unmarshal(raw, &rawMap); err != nil {
		r.log.WithFields(logrus.Fields{
			"finding_id": findingID,
			"error":      err,
		}).Warn("Unreadable support metrics payload")
		return domain.SupportMetrics{}, false
	}

	support, err := domain.NormalizeSupport(rawMap)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"finding_id": findingID,
			"error":      err,
		}).Warn("Malformed support metrics excluded from filtering")
		return domain.SupportMetrics{}, false
	}

	return support, true
}

// passesFilters applies the sample's mutable review thresholds
func passesFilters(f *domain.Finding, filters domain.SampleFilters) bool {
	if filters.MinDepth > 0 && f.Support.Depth < filters.MinDepth {
		return false
	}
	if filters.MinFrequency > 0 && f.Support.Frequency < filters.MinFrequency {
		return false
	}
	if len(filters.AdHocGenes) > 0 {
		found := false
		for _, g := range filters.AdHocGenes {
			if g == f.GeneSymbol {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
