package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sample-interp-server/internal/domain"
)

// In-memory doubles backing the HTTP handler tests.

type memSampleStore struct {
	mu      sync.Mutex
	samples map[uuid.UUID]*domain.Sample
}

func newMemSampleStore() *memSampleStore {
	return &memSampleStore{samples: make(map[uuid.UUID]*domain.Sample)}
}

func (m *memSampleStore) GetSample(_ context.Context, id uuid.UUID) (*domain.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.samples[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *s
	copied.Reports = append([]domain.ReportMeta(nil), s.Reports...)
	return &copied, nil
}

func (m *memSampleStore) CreateSample(_ context.Context, sample *domain.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[sample.ID] = sample
	return nil
}

func (m *memSampleStore) UpdateFilters(_ context.Context, id uuid.UUID, filters domain.SampleFilters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.samples[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Filters = filters
	return nil
}

func (m *memSampleStore) AppendReportMeta(_ context.Context, id uuid.UUID, expectedRevision int64, meta domain.ReportMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.samples[id]
	if !ok {
		return domain.ErrNotFound
	}
	if s.Revision != expectedRevision {
		return domain.ErrConflict
	}
	s.Reports = append(s.Reports, meta)
	s.Revision++
	return nil
}

type memFindingStore struct {
	mu       sync.Mutex
	findings []*domain.Finding
}

func (m *memFindingStore) QueryFindings(_ context.Context, sampleID uuid.UUID, _ domain.SampleFilters) ([]*domain.Finding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Finding
	for _, f := range m.findings {
		if f.SampleID == sampleID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memFindingStore) GetFindings(_ context.Context, ids []uuid.UUID) ([]*domain.Finding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Finding
	for _, id := range ids {
		for _, f := range m.findings {
			if f.ID == id {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func (m *memFindingStore) InsertFinding(_ context.Context, finding *domain.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findings = append(m.findings, finding)
	return nil
}

type memAnnotationStore struct {
	mu              sync.Mutex
	classifications []*domain.ClassificationRecord
	texts           []*domain.TextRecord
}

func (m *memAnnotationStore) QueryClassifications(_ context.Context, gene, identity string) ([]*domain.ClassificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ClassificationRecord
	for _, r := range m.classifications {
		if r.GeneSymbol == gene && r.Identity == identity {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memAnnotationStore) InsertClassification(_ context.Context, record *domain.ClassificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classifications = append(m.classifications, record)
	return nil
}

func (m *memAnnotationStore) QueryTexts(_ context.Context, gene, identity string) ([]*domain.TextRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.TextRecord
	for _, r := range m.texts {
		if r.GeneSymbol == gene && r.Identity == identity {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memAnnotationStore) InsertText(_ context.Context, record *domain.TextRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, record)
	return nil
}

type memSnapshotStore struct {
	mu   sync.Mutex
	rows map[string]*domain.SnapshotRow
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{rows: make(map[string]*domain.SnapshotRow)}
}

func (m *memSnapshotStore) UpsertRow(_ context.Context, row *domain.SnapshotRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%s", row.SampleID, row.ReportID, row.Identity)
	copied := *row
	m.rows[key] = &copied
	return nil
}

func (m *memSnapshotStore) RowsForReport(_ context.Context, sampleID, reportID uuid.UUID) ([]*domain.SnapshotRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.SnapshotRow
	for _, row := range m.rows {
		if row.SampleID == sampleID && row.ReportID == reportID {
			out = append(out, row)
		}
	}
	return out, nil
}

type memArtifactStore struct {
	mu       sync.Mutex
	contents map[uuid.UUID][]byte
}

func newMemArtifactStore() *memArtifactStore {
	return &memArtifactStore{contents: make(map[uuid.UUID][]byte)}
}

func (m *memArtifactStore) Put(_ context.Context, reportID uuid.UUID, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contents[reportID] = append([]byte(nil), content...)
	return nil
}

func (m *memArtifactStore) Get(_ context.Context, reportID uuid.UUID) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contents[reportID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

type nopCache struct{}

func (nopCache) Get(context.Context, string, string, domain.Scope) (*domain.Resolution, bool) {
	return nil, false
}
func (nopCache) Set(context.Context, string, string, domain.Scope, *domain.Resolution) {}
func (nopCache) Invalidate(context.Context, string, string)                            {}

type memConfigStore struct {
	mu       sync.Mutex
	entities map[string]*domain.ConfigEntity
	history  map[string][]*domain.ConfigVersion
}

func newMemConfigStore() *memConfigStore {
	return &memConfigStore{
		entities: make(map[string]*domain.ConfigEntity),
		history:  make(map[string][]*domain.ConfigVersion),
	}
}

func configKey(kind, id string) string { return kind + "/" + id }

func (m *memConfigStore) Save(_ context.Context, kind, id string, fields map[string]interface{}) (*domain.ConfigEntity, error) {
	if kind == "" || id == "" {
		return nil, &domain.ValidationError{Field: "kind/id", Message: "are required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := configKey(kind, id)
	version := 1
	if cur, ok := m.entities[key]; ok {
		version = cur.Version + 1
	}

	entity := &domain.ConfigEntity{
		Kind: kind, ID: id, Version: version,
		Document:  fields,
		UpdatedAt: time.Now().UTC(),
	}
	m.entities[key] = entity
	m.history[key] = append(m.history[key], &domain.ConfigVersion{
		Version:   version,
		CreatedAt: entity.UpdatedAt,
	})
	return entity, nil
}

func (m *memConfigStore) Read(_ context.Context, kind, id string, version int) (*domain.ConfigEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entity, ok := m.entities[configKey(kind, id)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if version > 0 && version != entity.Version {
		return nil, domain.ErrNotFound
	}
	return entity, nil
}

func (m *memConfigStore) History(_ context.Context, kind, id string) ([]*domain.ConfigVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history[configKey(kind, id)], nil
}

type stubHealth struct {
	err error
}

func (h stubHealth) Health(context.Context) error { return h.err }

var errUnhealthy = errors.New("database unreachable")
