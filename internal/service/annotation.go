package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sample-interp-server/internal/domain"
)

// AnnotationService records analyst classifications and interpretation
// texts. Writes are append-only inserts; two analysts classifying the same
// identity concurrently simply produce two records and the later timestamp
// wins on the next read.
type AnnotationService struct {
	annotations domain.AnnotationStore
	cache       domain.ResolutionCache
	audit       domain.AuditPublisher
	log         *logrus.Logger
}

// NewAnnotationService creates a new annotation service
func NewAnnotationService(annotations domain.AnnotationStore, cache domain.ResolutionCache, audit domain.AuditPublisher, logger *logrus.Logger) *AnnotationService {
	return &AnnotationService{
		annotations: annotations,
		cache:       cache,
		audit:       audit,
		log:         logger,
	}
}

// RecordClassification appends a classification record and invalidates any
// cached resolution for its gene and identity.
func (s *AnnotationService) RecordClassification(ctx context.Context, record *domain.ClassificationRecord) error {
	if strings.TrimSpace(record.GeneSymbol) == "" {
		return &domain.ValidationError{Field: "gene_symbol", Message: "is required"}
	}
	if strings.TrimSpace(record.Identity) == "" {
		return &domain.ValidationError{Field: "identity", Message: "is required"}
	}
	if strings.TrimSpace(record.Assay) == "" {
		return &domain.ValidationError{Field: "assay", Message: "is required"}
	}
	if record.Tier < 0 {
		return &domain.ValidationError{Field: "tier", Message: "must be non-negative", Value: record.Tier}
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if err := s.annotations.InsertClassification(ctx, record); err != nil {
		return fmt.Errorf("recording classification: %w", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, record.GeneSymbol, record.Identity)
	}

	if s.audit != nil {
		if err := s.audit.Publish(ctx, "classification.recorded", map[string]interface{}{
			"gene":     record.GeneSymbol,
			"identity": record.Identity,
			"assay":    record.Assay,
			"subpanel": record.Subpanel,
			"tier":     record.Tier,
			"author":   record.Author,
		}); err != nil {
			s.log.WithError(err).Warn("Failed to publish classification audit event")
		}
	}

	return nil
}

// RecordText appends an interpretation commentary record
func (s *AnnotationService) RecordText(ctx context.Context, record *domain.TextRecord) error {
	if strings.TrimSpace(record.GeneSymbol) == "" {
		return &domain.ValidationError{Field: "gene_symbol", Message: "is required"}
	}
	if strings.TrimSpace(record.Identity) == "" {
		return &domain.ValidationError{Field: "identity", Message: "is required"}
	}
	if strings.TrimSpace(record.Text) == "" {
		return &domain.ValidationError{Field: "text", Message: "is required"}
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if err := s.annotations.InsertText(ctx, record); err != nil {
		return fmt.Errorf("recording text: %w", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, record.GeneSymbol, record.Identity)
	}

	return nil
}
