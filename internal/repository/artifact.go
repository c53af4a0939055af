package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sample-interp-server/internal/domain"
)

// FilesystemArtifactStore persists rendered report content as files under a
// base directory, one file per report id. Writes go through a temp file and
// rename so a crashed write never leaves a half-written artifact behind.
type FilesystemArtifactStore struct {
	baseDir string
	log     *logrus.Logger
}

// NewFilesystemArtifactStore creates the store and its base directory
func NewFilesystemArtifactStore(baseDir string, logger *logrus.Logger) (*FilesystemArtifactStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &FilesystemArtifactStore{
		baseDir: baseDir,
		log:     logger,
	}, nil
}

func (s *FilesystemArtifactStore) path(reportID uuid.UUID) string {
	return filepath.Join(s.baseDir, reportID.String()+".json")
}

// Put persists the rendered content for a report
func (s *FilesystemArtifactStore) Put(ctx context.Context, reportID uuid.UUID, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.baseDir, "report-*.tmp")
	if err != nil {
		return fmt.Errorf("creating artifact temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing artifact temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path(reportID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalizing artifact: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"report_id": reportID,
		"bytes":     len(content),
	}).Info("Report artifact persisted")

	return nil
}

// Get reads back a persisted report artifact
func (s *FilesystemArtifactStore) Get(ctx context.Context, reportID uuid.UUID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(s.path(reportID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact for report %s: %w", reportID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	return content, nil
}
