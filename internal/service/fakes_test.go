package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sample-interp-server/internal/domain"
)

// In-memory store doubles shared by the service tests.

type fakeAnnotationStore struct {
	mu              sync.Mutex
	classifications []*domain.ClassificationRecord
	texts           []*domain.TextRecord
	queryErr        error
}

func (f *fakeAnnotationStore) QueryClassifications(_ context.Context, gene, identity string) ([]*domain.ClassificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []*domain.ClassificationRecord
	for _, r := range f.classifications {
		if r.GeneSymbol == gene && r.Identity == identity {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAnnotationStore) InsertClassification(_ context.Context, record *domain.ClassificationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classifications = append(f.classifications, record)
	return nil
}

func (f *fakeAnnotationStore) QueryTexts(_ context.Context, gene, identity string) ([]*domain.TextRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.TextRecord
	for _, r := range f.texts {
		if r.GeneSymbol == gene && r.Identity == identity {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAnnotationStore) InsertText(_ context.Context, record *domain.TextRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, record)
	return nil
}

type fakeSampleStore struct {
	mu             sync.Mutex
	samples        map[uuid.UUID]*domain.Sample
	forceConflicts int
}

func newFakeSampleStore() *fakeSampleStore {
	return &fakeSampleStore{samples: make(map[uuid.UUID]*domain.Sample)}
}

func (f *fakeSampleStore) GetSample(_ context.Context, id uuid.UUID) (*domain.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.samples[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *s
	copied.Reports = append([]domain.ReportMeta(nil), s.Reports...)
	return &copied, nil
}

func (f *fakeSampleStore) CreateSample(_ context.Context, sample *domain.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples[sample.ID] = sample
	return nil
}

func (f *fakeSampleStore) UpdateFilters(_ context.Context, id uuid.UUID, filters domain.SampleFilters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.samples[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Filters = filters
	return nil
}

func (f *fakeSampleStore) AppendReportMeta(_ context.Context, id uuid.UUID, expectedRevision int64, meta domain.ReportMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.samples[id]
	if !ok {
		return domain.ErrNotFound
	}
	if f.forceConflicts > 0 {
		f.forceConflicts--
		s.Revision++ // simulate the competing writer
		return domain.ErrConflict
	}
	if s.Revision != expectedRevision {
		return domain.ErrConflict
	}
	s.Reports = append(s.Reports, meta)
	s.Revision++
	return nil
}

type fakeFindingStore struct {
	findings []*domain.Finding
}

func (f *fakeFindingStore) QueryFindings(_ context.Context, sampleID uuid.UUID, _ domain.SampleFilters) ([]*domain.Finding, error) {
	var out []*domain.Finding
	for _, fd := range f.findings {
		if fd.SampleID == sampleID {
			out = append(out, fd)
		}
	}
	return out, nil
}

func (f *fakeFindingStore) GetFindings(_ context.Context, ids []uuid.UUID) ([]*domain.Finding, error) {
	var out []*domain.Finding
	for _, id := range ids {
		for _, fd := range f.findings {
			if fd.ID == id {
				out = append(out, fd)
			}
		}
	}
	return out, nil
}

func (f *fakeFindingStore) InsertFinding(_ context.Context, finding *domain.Finding) error {
	f.findings = append(f.findings, finding)
	return nil
}

type fakeSnapshotStore struct {
	mu       sync.Mutex
	rows     map[string]*domain.SnapshotRow
	upserts  int
	failNext int
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{rows: make(map[string]*domain.SnapshotRow)}
}

func snapshotKey(row *domain.SnapshotRow) string {
	return fmt.Sprintf("%s|%s|%s", row.SampleID, row.ReportID, row.Identity)
}

func (f *fakeSnapshotStore) UpsertRow(_ context.Context, row *domain.SnapshotRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("snapshot store unavailable")
	}
	f.upserts++
	copied := *row
	f.rows[snapshotKey(row)] = &copied
	return nil
}

func (f *fakeSnapshotStore) RowsForReport(_ context.Context, sampleID, reportID uuid.UUID) ([]*domain.SnapshotRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.SnapshotRow
	for _, row := range f.rows {
		if row.SampleID == sampleID && row.ReportID == reportID {
			out = append(out, row)
		}
	}
	return out, nil
}

type fakeArtifactStore struct {
	mu       sync.Mutex
	contents map[uuid.UUID][]byte
	failPut  bool
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{contents: make(map[uuid.UUID][]byte)}
}

func (f *fakeArtifactStore) Put(_ context.Context, reportID uuid.UUID, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut {
		return errors.New("artifact storage unavailable")
	}
	f.contents[reportID] = append([]byte(nil), content...)
	return nil
}

func (f *fakeArtifactStore) Get(_ context.Context, reportID uuid.UUID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contents[reportID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

type fakeCache struct {
	mu            sync.Mutex
	entries       map[string]*domain.Resolution
	invalidations []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*domain.Resolution)}
}

func cacheKey(gene, identity string, scope domain.Scope) string {
	return fmt.Sprintf("%s|%s|%s|%s", gene, identity, scope.Assay, scope.Subpanel)
}

func (f *fakeCache) Get(_ context.Context, gene, identity string, scope domain.Scope) (*domain.Resolution, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.entries[cacheKey(gene, identity, scope)]
	return res, ok
}

func (f *fakeCache) Set(_ context.Context, gene, identity string, scope domain.Scope, res *domain.Resolution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[cacheKey(gene, identity, scope)] = res
}

func (f *fakeCache) Invalidate(_ context.Context, gene, identity string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations = append(f.invalidations, gene+"|"+identity)
	for key := range f.entries {
		if len(key) >= len(gene+"|"+identity) && key[:len(gene+"|"+identity)] == gene+"|"+identity {
			delete(f.entries, key)
		}
	}
}
