package domain

import (
	"time"

	"github.com/google/uuid"
)

// Core Enums and Types

// FindingKind represents the type of molecular finding
type FindingKind string

const (
	VARIANT       FindingKind = "VARIANT"
	CNV           FindingKind = "CNV"
	TRANSLOCATION FindingKind = "TRANSLOCATION"
	FUSION        FindingKind = "FUSION"
)

// ScopeMode determines how annotation records are matched to a sample's assay context
type ScopeMode string

const (
	SCOPE_ASSAY_ONLY     ScopeMode = "ASSAY_ONLY"
	SCOPE_ASSAY_SUBPANEL ScopeMode = "ASSAY_SUBPANEL"
)

// RecordType distinguishes the two annotation families sharing one store
type RecordType string

const (
	CLASSIFICATION RecordType = "CLASSIFICATION"
	TEXT           RecordType = "TEXT"
)

// ResolutionSource records which stage of the fallback chain produced a tier
type ResolutionSource string

const (
	SOURCE_SUBPANEL ResolutionSource = "SUBPANEL"
	SOURCE_ASSAY    ResolutionSource = "ASSAY"
	SOURCE_SENTINEL ResolutionSource = "SENTINEL"
)

// SentinelTier is the explicit "unclassified" default returned when no scoped
// record matches. It is a reproducible value, never a silent null.
const SentinelTier = 999

// Sample Models

// SampleFilters holds the mutable per-sample review thresholds and gene lists
type SampleFilters struct {
	MinFrequency float64  `json:"min_frequency"`
	MinDepth     int      `json:"min_depth"`
	GeneLists    []string `json:"gene_lists,omitempty"`
	AdHocGenes   []string `json:"adhoc_genes,omitempty"`
}

// ReportMeta is one append-only entry in a sample's report history
type ReportMeta struct {
	ReportID  uuid.UUID `json:"report_id"`
	ReportNum int       `json:"report_num"`
	CreatedAt time.Time `json:"created_at"`
}

// Sample is the operational case record owned by the review workflow
type Sample struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Assay     string        `json:"assay"`
	Subpanel  string        `json:"subpanel,omitempty"`
	Profile   string        `json:"profile,omitempty"`
	Filters   SampleFilters `json:"filters"`
	Reports   []ReportMeta  `json:"reports"`
	Done      bool          `json:"done"`
	Revision  int64         `json:"revision"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NextReportNum returns the sequence number the next saved report will carry.
func (s *Sample) NextReportNum() int {
	max := 0
	for _, r := range s.Reports {
		if r.ReportNum > max {
			max = r.ReportNum
		}
	}
	return max + 1
}

// Finding Models

// SupportMetrics carries read-level evidence for a finding. Values are
// numeric by contract; the upstream pipeline is known to emit strings for
// some legacy rows, which the ingestion boundary rejects and the query
// layer excludes from threshold filtering.
type SupportMetrics struct {
	Depth     int     `json:"depth"`
	AltReads  int     `json:"alt_reads"`
	Frequency float64 `json:"frequency"`
}

// Finding is an immutable molecular event called by the upstream pipeline.
// It is referenced, never rewritten, by the interpretation layer.
type Finding struct {
	ID           uuid.UUID      `json:"id"`
	SampleID     uuid.UUID      `json:"sample_id"`
	Kind         FindingKind    `json:"kind"`
	GeneSymbol   string         `json:"gene_symbol"`
	HGVSp        string         `json:"hgvsp,omitempty"`
	HGVSc        string         `json:"hgvsc,omitempty"`
	Chromosome   string         `json:"chromosome"`
	Position     int64          `json:"position"`
	Reference    string         `json:"reference"`
	Alternative  string         `json:"alternative"`
	TranscriptID string         `json:"transcript_id,omitempty"`
	Support      SupportMetrics `json:"support"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Annotation Models

// Scope is the context boundary within which an annotation record applies
type Scope struct {
	Assay    string    `json:"assay"`
	Subpanel string    `json:"subpanel,omitempty"`
	Mode     ScopeMode `json:"mode"`
}

// ClassificationRecord is an append-only analyst classification. Records are
// never deleted, only superseded by a newer timestamped record for the same
// (gene, identity, scope) tuple.
type ClassificationRecord struct {
	ID         uuid.UUID `json:"id"`
	GeneSymbol string    `json:"gene_symbol"`
	Identity   string    `json:"identity"`
	Assay      string    `json:"assay"`
	Subpanel   string    `json:"subpanel,omitempty"`
	Tier       int       `json:"tier"`
	Author     string    `json:"author,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TextRecord is an append-only free-form interpretation commentary record
type TextRecord struct {
	ID         uuid.UUID `json:"id"`
	GeneSymbol string    `json:"gene_symbol"`
	Identity   string    `json:"identity"`
	Assay      string    `json:"assay"`
	Subpanel   string    `json:"subpanel,omitempty"`
	Text       string    `json:"text"`
	Author     string    `json:"author,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Resolution Models

// AlternativeResolution surfaces a transcript-aware identity that resolved to
// a different classification than the primary one, so analysts see transcript
// ambiguity instead of a silently picked winner.
type AlternativeResolution struct {
	Identity string `json:"identity"`
	Tier     int    `json:"tier"`
}

// Resolution is the currently-applicable classification for a finding
type Resolution struct {
	Identity    string                 `json:"identity"`
	Tier        int                    `json:"tier"`
	Source      ResolutionSource       `json:"source"`
	Text        string                 `json:"text,omitempty"`
	Alternative *AlternativeResolution `json:"alternative,omitempty"`
}

// Unclassified reports whether the resolution fell through to the sentinel.
func (r Resolution) Unclassified() bool {
	return r.Source == SOURCE_SENTINEL
}

// Snapshot Models

// SnapshotRow binds a report to the resolved tier of a finding at save time.
// Rows are written exactly once and never mutated or deleted; later edits to
// the shared annotation store must not alter them.
type SnapshotRow struct {
	SampleID   uuid.UUID `json:"sample_id"`
	ReportID   uuid.UUID `json:"report_id"`
	Identity   string    `json:"identity"`
	GeneSymbol string    `json:"gene_symbol"`
	Tier       int       `json:"tier"`
	Text       string    `json:"text,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Versioned Config Models

// ConfigDelta is one recorded change between consecutive versions of a
// governance entity. Set holds added or changed fields, Unset removed ones.
type ConfigDelta struct {
	Set   map[string]interface{} `json:"set,omitempty"`
	Unset []string               `json:"unset,omitempty"`
}

// ConfigVersion is one append-only entry in an entity's version history
type ConfigVersion struct {
	Version   int         `json:"version"`
	Delta     ConfigDelta `json:"delta"`
	CreatedAt time.Time   `json:"created_at"`
}

// ConfigEntity is a governance/config document (role, permission, ASP, ASPC,
// ISGL) carrying a monotonic version and its append-only history.
type ConfigEntity struct {
	Kind      string                 `json:"kind"`
	ID        string                 `json:"id"`
	Version   int                    `json:"version"`
	Document  map[string]interface{} `json:"document"`
	UpdatedAt time.Time              `json:"updated_at"`
}
