package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sample-interp-server/internal/domain"
)

// ReportService freezes resolved interpretations into immutable report
// snapshots. The save sequence is artifact, then sample metadata, then
// snapshot rows: a failed artifact write aborts before any metadata exists,
// and snapshot upserts are idempotent so a failed batch can be retried.
type ReportService struct {
	samples   domain.SampleStore
	findings  domain.FindingStore
	snapshots domain.SnapshotStore
	artifacts domain.ArtifactStore
	resolver  *Resolver
	audit     domain.AuditPublisher
	log       *logrus.Logger

	maxAttempts int
	backoff     time.Duration
}

// NewReportService creates a new report service
func NewReportService(
	samples domain.SampleStore,
	findings domain.FindingStore,
	snapshots domain.SnapshotStore,
	artifacts domain.ArtifactStore,
	resolver *Resolver,
	audit domain.AuditPublisher,
	cfg domain.ReportConfig,
	logger *logrus.Logger,
) *ReportService {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	return &ReportService{
		samples:     samples,
		findings:    findings,
		snapshots:   snapshots,
		artifacts:   artifacts,
		resolver:    resolver,
		audit:       audit,
		log:         logger,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// Preview renders the report content without persisting anything. It shares
// its builder with SaveReport: what you previewed is what gets saved.
func (s *ReportService) Preview(ctx context.Context, sampleID uuid.UUID, findingIDs []uuid.UUID) ([]byte, error) {
	sample, findings, resolutions, err := s.resolveSelection(ctx, sampleID, findingIDs)
	if err != nil {
		return nil, err
	}
	return BuildPayload(sample, findings, resolutions)
}

// SaveReport materializes the resolved tier of every selected finding into
// immutable snapshot rows and appends report metadata to the sample.
func (s *ReportService) SaveReport(ctx context.Context, sampleID uuid.UUID, findingIDs []uuid.UUID) (uuid.UUID, error) {
	sample, findings, resolutions, err := s.resolveSelection(ctx, sampleID, findingIDs)
	if err != nil {
		return uuid.Nil, err
	}
	if len(findings) == 0 {
		return uuid.Nil, fmt.Errorf("%w: no findings selected for report", domain.ErrInvalidFinding)
	}

	payload, err := BuildPayload(sample, findings, resolutions)
	if err != nil {
		return uuid.Nil, err
	}

	reportID := uuid.New()

	// Step 1: persist the rendered artifact. Failure here aborts the save
	// before any metadata exists.
	if err := s.artifacts.Put(ctx, reportID, payload); err != nil {
		s.log.WithFields(logrus.Fields{
			"sample_id": sampleID,
			"report_id": reportID,
			"error":     err,
		}).Error("Report artifact persistence failed, aborting save")
		return uuid.Nil, fmt.Errorf("persisting report artifact: %w", err)
	}

	// Step 2: allocate report_num and append metadata under a per-sample
	// compare-and-swap, retrying lost races with backoff.
	reportNum, err := s.appendReportMeta(ctx, sample, reportID)
	if err != nil {
		return uuid.Nil, err
	}

	// Step 3: freeze one snapshot row per reported finding. Upserts are
	// idempotent on (sample, report, identity) so retries cannot duplicate.
	for _, f := range findings {
		res := resolutions[f.ID]
		row := &domain.SnapshotRow{
			SampleID:   sample.ID,
			ReportID:   reportID,
			Identity:   res.Identity,
			GeneSymbol: f.GeneSymbol,
			Tier:       res.Tier,
			Text:       res.Text,
		}
		if err := s.upsertWithRetry(ctx, row); err != nil {
			return uuid.Nil, fmt.Errorf("freezing snapshot row for %s: %w", res.Identity, err)
		}
	}

	s.log.WithFields(logrus.Fields{
		"sample_id":  sample.ID,
		"report_id":  reportID,
		"report_num": reportNum,
		"findings":   len(findings),
	}).Info("Report saved")

	s.publishAudit(ctx, "report.saved", map[string]interface{}{
		"sample_id":  sample.ID.String(),
		"report_id":  reportID.String(),
		"report_num": reportNum,
		"findings":   len(findings),
	})

	return reportID, nil
}

// resolveSelection loads the sample, the selected findings (or the filtered
// finding list when no explicit selection is given) and resolves each one.
func (s *ReportService) resolveSelection(ctx context.Context, sampleID uuid.UUID, findingIDs []uuid.UUID) (*domain.Sample, []*domain.Finding, map[uuid.UUID]*domain.Resolution, error) {
	sample, err := s.samples.GetSample(ctx, sampleID)
	if err != nil {
		return nil, nil, nil, err
	}

	var findings []*domain.Finding
	if len(findingIDs) > 0 {
		findings, err = s.findings.GetFindings(ctx, findingIDs)
	} else {
		findings, err = s.findings.QueryFindings(ctx, sampleID, sample.Filters)
	}
	if err != nil {
		return nil, nil, nil, err
	}

	resolutions := make(map[uuid.UUID]*domain.Resolution, len(findings))
	for _, f := range findings {
		res, err := s.resolver.ResolveClassification(ctx, f, sample)
		if err != nil {
			return nil, nil, nil, err
		}
		resolutions[f.ID] = res
	}

	return sample, findings, resolutions, nil
}

// appendReportMeta allocates the next report_num and appends the metadata
// entry, retrying revision conflicts against a fresh read of the sample.
func (s *ReportService) appendReportMeta(ctx context.Context, sample *domain.Sample, reportID uuid.UUID) (int, error) {
	current := sample

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		meta := domain.ReportMeta{
			ReportID:  reportID,
			ReportNum: current.NextReportNum(),
			CreatedAt: time.Now().UTC(),
		}

		err := s.samples.AppendReportMeta(ctx, current.ID, current.Revision, meta)
		if err == nil {
			return meta.ReportNum, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return 0, err
		}

		s.log.WithFields(logrus.Fields{
			"sample_id": current.ID,
			"attempt":   attempt,
		}).Warn("Report metadata append conflicted, retrying")

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}

		current, err = s.samples.GetSample(ctx, current.ID)
		if err != nil {
			return 0, err
		}
	}

	return 0, fmt.Errorf("appending report metadata for sample %s: %w", sample.ID, domain.ErrRetryExhausted)
}

// upsertWithRetry retries transient snapshot store failures; the row key
// makes retries idempotent.
func (s *ReportService) upsertWithRetry(ctx context.Context, row *domain.SnapshotRow) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lastErr = s.snapshots.UpsertRow(ctx, row)
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrRetryExhausted, lastErr)
}

func (s *ReportService) publishAudit(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Publish(ctx, eventType, data); err != nil {
		// Audit failures never block the analyst workflow
		s.log.WithFields(logrus.Fields{
			"event_type": eventType,
			"error":      err,
		}).Warn("Failed to publish audit event")
	}
}
