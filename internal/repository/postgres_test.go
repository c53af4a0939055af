package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sample-interp-server/internal/database"
	"github.com/sample-interp-server/internal/domain"
)

func generateTestPassword() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(bytes)
}

func setupTestDB(t *testing.T) (*database.DB, func()) {
	if testing.Short() {
		t.Skip("skipping container-backed repository tests in short mode")
	}
	ctx := context.Background()

	testPassword := generateTestPassword()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Docker unavailable, skipping: %v", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := domain.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		Database:        "testdb",
		Username:        "testuser",
		Password:        testPassword,
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MinConns:        2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.NewConnection(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Failed to create database connection: %v", err)
	}

	databaseURL := "pgx5://testuser:" + testPassword + "@" + host + ":" + port.Port() + "/testdb?sslmode=disable"
	migrationRunner, err := database.NewMigrationRunner(databaseURL, "../../migrations", logger)
	if err != nil {
		t.Fatalf("Failed to create migration runner: %v", err)
	}
	if err := migrationRunner.Up(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		migrationRunner.Close()
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}

	return db, cleanup
}

func testRepoLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestSampleRepository_ReportMetaCAS(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSampleRepository(db.Pool, testRepoLogger())
	ctx := context.Background()

	sample := &domain.Sample{
		ID:    uuid.New(),
		Name:  "S-1001",
		Assay: "myeloid",
	}
	if err := repo.CreateSample(ctx, sample); err != nil {
		t.Fatalf("Failed to create sample: %v", err)
	}

	meta := domain.ReportMeta{
		ReportID:  uuid.New(),
		ReportNum: 1,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.AppendReportMeta(ctx, sample.ID, 0, meta); err != nil {
		t.Fatalf("Failed to append report meta: %v", err)
	}

	// Stale revision loses the race
	err := repo.AppendReportMeta(ctx, sample.ID, 0, domain.ReportMeta{
		ReportID:  uuid.New(),
		ReportNum: 2,
		CreatedAt: time.Now().UTC(),
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Expected ErrConflict for stale revision, got %v", err)
	}

	// Fresh revision succeeds
	got, err := repo.GetSample(ctx, sample.ID)
	if err != nil {
		t.Fatalf("Failed to get sample: %v", err)
	}
	if got.Revision != 1 {
		t.Errorf("Expected revision 1, got %d", got.Revision)
	}
	if len(got.Reports) != 1 || got.Reports[0].ReportID != meta.ReportID {
		t.Errorf("Expected one report entry %s, got %+v", meta.ReportID, got.Reports)
	}

	if err := repo.AppendReportMeta(ctx, sample.ID, got.Revision, domain.ReportMeta{
		ReportID:  uuid.New(),
		ReportNum: 2,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Failed to append with fresh revision: %v", err)
	}

	missing := uuid.New()
	err = repo.AppendReportMeta(ctx, missing, 0, meta)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for missing sample, got %v", err)
	}
}

func TestSampleRepository_UpdateFilters(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSampleRepository(db.Pool, testRepoLogger())
	ctx := context.Background()

	sample := &domain.Sample{ID: uuid.New(), Name: "S-1002", Assay: "solid", Subpanel: "lung"}
	if err := repo.CreateSample(ctx, sample); err != nil {
		t.Fatalf("Failed to create sample: %v", err)
	}

	filters := domain.SampleFilters{
		MinFrequency: 0.05,
		MinDepth:     200,
		AdHocGenes:   []string{"EGFR", "KRAS"},
	}
	if err := repo.UpdateFilters(ctx, sample.ID, filters); err != nil {
		t.Fatalf("Failed to update filters: %v", err)
	}

	got, err := repo.GetSample(ctx, sample.ID)
	if err != nil {
		t.Fatalf("Failed to get sample: %v", err)
	}
	if got.Filters.MinDepth != 200 || got.Filters.MinFrequency != 0.05 {
		t.Errorf("Filters not persisted, got %+v", got.Filters)
	}
	if got.Subpanel != "lung" {
		t.Errorf("Expected subpanel lung, got %s", got.Subpanel)
	}

	if err := repo.UpdateFilters(ctx, uuid.New(), filters); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for missing sample, got %v", err)
	}
}

func TestFindingRepository_QueryWithFilters(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	samples := NewSampleRepository(db.Pool, testRepoLogger())
	repo := NewFindingRepository(db.Pool, testRepoLogger())
	ctx := context.Background()

	sample := &domain.Sample{ID: uuid.New(), Name: "S-1003", Assay: "myeloid"}
	if err := samples.CreateSample(ctx, sample); err != nil {
		t.Fatalf("Failed to create sample: %v", err)
	}

	deep := &domain.Finding{
		ID: uuid.New(), SampleID: sample.ID, Kind: domain.VARIANT,
		GeneSymbol: "BRAF", HGVSp: "p.V600E",
		Chromosome: "7", Position: 140453136, Reference: "A", Alternative: "T",
		Support: domain.SupportMetrics{Depth: 500, AltReads: 120, Frequency: 0.24},
	}
	shallow := &domain.Finding{
		ID: uuid.New(), SampleID: sample.ID, Kind: domain.VARIANT,
		GeneSymbol: "KRAS", HGVSp: "p.G12D",
		Chromosome: "12", Position: 25398284, Reference: "C", Alternative: "T",
		Support: domain.SupportMetrics{Depth: 40, AltReads: 3, Frequency: 0.02},
	}
	for _, f := range []*domain.Finding{deep, shallow} {
		if err := repo.InsertFinding(ctx, f); err != nil {
			t.Fatalf("Failed to insert finding: %v", err)
		}
	}

	all, err := repo.QueryFindings(ctx, sample.ID, domain.SampleFilters{})
	if err != nil {
		t.Fatalf("Failed to query findings: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 findings, got %d", len(all))
	}

	filtered, err := repo.QueryFindings(ctx, sample.ID, domain.SampleFilters{MinDepth: 100, MinFrequency: 0.05})
	if err != nil {
		t.Fatalf("Failed to query filtered findings: %v", err)
	}
	if len(filtered) != 1 || filtered[0].GeneSymbol != "BRAF" {
		t.Errorf("Expected only the BRAF finding to pass thresholds, got %+v", filtered)
	}

	byID, err := repo.GetFindings(ctx, []uuid.UUID{shallow.ID})
	if err != nil {
		t.Fatalf("Failed to get findings by ID: %v", err)
	}
	if len(byID) != 1 || byID[0].ID != shallow.ID {
		t.Errorf("Expected the shallow finding by ID, got %+v", byID)
	}
}

func TestAnnotationRepository_AppendOnly(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAnnotationRepository(db.Pool, testRepoLogger())
	ctx := context.Background()

	first := &domain.ClassificationRecord{
		ID: uuid.New(), GeneSymbol: "BRAF", Identity: "p.V600E",
		Assay: "myeloid", Tier: 2, Author: "analyst-a",
	}
	if err := repo.InsertClassification(ctx, first); err != nil {
		t.Fatalf("Failed to insert classification: %v", err)
	}

	// Reclassification appends, never replaces
	second := &domain.ClassificationRecord{
		ID: uuid.New(), GeneSymbol: "BRAF", Identity: "p.V600E",
		Assay: "myeloid", Tier: 1, Author: "analyst-b",
	}
	if err := repo.InsertClassification(ctx, second); err != nil {
		t.Fatalf("Failed to insert second classification: %v", err)
	}

	text := &domain.TextRecord{
		ID: uuid.New(), GeneSymbol: "BRAF", Identity: "p.V600E",
		Assay: "myeloid", Text: "Activating kinase domain mutation.",
	}
	if err := repo.InsertText(ctx, text); err != nil {
		t.Fatalf("Failed to insert text record: %v", err)
	}

	classifications, err := repo.QueryClassifications(ctx, "BRAF", "p.V600E")
	if err != nil {
		t.Fatalf("Failed to query classifications: %v", err)
	}
	if len(classifications) != 2 {
		t.Fatalf("Expected both classification records, got %d", len(classifications))
	}

	texts, err := repo.QueryTexts(ctx, "BRAF", "p.V600E")
	if err != nil {
		t.Fatalf("Failed to query texts: %v", err)
	}
	if len(texts) != 1 || texts[0].Text != text.Text {
		t.Errorf("Expected one text record, got %+v", texts)
	}
}

func TestSnapshotRepository_UpsertIdempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSnapshotRepository(db.Pool, testRepoLogger())
	ctx := context.Background()

	row := &domain.SnapshotRow{
		SampleID:   uuid.New(),
		ReportID:   uuid.New(),
		Identity:   "p.V600E",
		GeneSymbol: "BRAF",
		Tier:       2,
		Text:       "Activating kinase domain mutation.",
	}

	if err := repo.UpsertRow(ctx, row); err != nil {
		t.Fatalf("Failed to upsert snapshot row: %v", err)
	}
	// Retried batch lands on the same key
	if err := repo.UpsertRow(ctx, row); err != nil {
		t.Fatalf("Failed to re-upsert snapshot row: %v", err)
	}

	rows, err := repo.RowsForReport(ctx, row.SampleID, row.ReportID)
	if err != nil {
		t.Fatalf("Failed to get snapshot rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected exactly one row after retry, got %d", len(rows))
	}
	if rows[0].Tier != 2 || rows[0].Text != row.Text {
		t.Errorf("Snapshot row content mismatch: %+v", rows[0])
	}
}
