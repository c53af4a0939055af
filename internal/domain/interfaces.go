package domain

import (
	"context"

	"github.com/google/uuid"
)

// SampleStore manages operational case records. AppendReportMeta must be
// atomic per sample: concurrent saves for the same sample must not race on
// report_num allocation.
type SampleStore interface {
	GetSample(ctx context.Context, id uuid.UUID) (*Sample, error)
	CreateSample(ctx context.Context, sample *Sample) error
	UpdateFilters(ctx context.Context, id uuid.UUID, filters SampleFilters) error
	// AppendReportMeta appends to the sample's report history using a
	// compare-and-swap on the sample revision. ErrConflict signals a lost
	// race; callers retry with backoff.
	AppendReportMeta(ctx context.Context, id uuid.UUID, expectedRevision int64, meta ReportMeta) error
}

// FindingStore queries immutable findings called by the upstream pipeline
type FindingStore interface {
	QueryFindings(ctx context.Context, sampleID uuid.UUID, filters SampleFilters) ([]*Finding, error)
	GetFindings(ctx context.Context, ids []uuid.UUID) ([]*Finding, error)
	InsertFinding(ctx context.Context, finding *Finding) error
}

// AnnotationStore is the shared, append-only annotation corpus. There are no
// update or delete operations: a record is only ever superseded by a newer
// timestamped record for the same identity and scope.
type AnnotationStore interface {
	QueryClassifications(ctx context.Context, gene, identity string) ([]*ClassificationRecord, error)
	InsertClassification(ctx context.Context, record *ClassificationRecord) error
	QueryTexts(ctx context.Context, gene, identity string) ([]*TextRecord, error)
	InsertText(ctx context.Context, record *TextRecord) error
}

// SnapshotStore persists immutable report snapshot rows. UpsertRow is
// idempotent on (sample, report, identity) so a failed batch can be retried
// without duplication.
type SnapshotStore interface {
	UpsertRow(ctx context.Context, row *SnapshotRow) error
	RowsForReport(ctx context.Context, sampleID, reportID uuid.UUID) ([]*SnapshotRow, error)
}

// ArtifactStore persists rendered report content. A failed write aborts the
// report save before any metadata is touched.
type ArtifactStore interface {
	Put(ctx context.Context, reportID uuid.UUID, content []byte) error
	Get(ctx context.Context, reportID uuid.UUID) ([]byte, error)
}

// ResolutionCache caches resolved classifications keyed by gene, identity and
// scope. A cache outage degrades to direct store reads, never to an error.
type ResolutionCache interface {
	Get(ctx context.Context, gene, identity string, scope Scope) (*Resolution, bool)
	Set(ctx context.Context, gene, identity string, scope Scope, res *Resolution)
	Invalidate(ctx context.Context, gene, identity string)
}

// AuditPublisher emits audit events for classification inserts and report
// saves. Publish failures are logged by implementations and never block the
// analyst workflow.
type AuditPublisher interface {
	Publish(ctx context.Context, eventType string, data map[string]interface{}) error
	Close() error
}

// ConfigEntityStore is the versioned governance/config store shared by
// roles, permissions, ASP, ASPC and ISGL documents.
type ConfigEntityStore interface {
	Save(ctx context.Context, kind, id string, fields map[string]interface{}) (*ConfigEntity, error)
	// Read returns the current document when version <= 0, otherwise the
	// historical view reconstructed by delta replay. Never mutates storage.
	Read(ctx context.Context, kind, id string, version int) (*ConfigEntity, error)
	History(ctx context.Context, kind, id string) ([]*ConfigVersion, error)
}
