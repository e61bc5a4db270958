package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codebuildervaibhav/vodchat/internal/pipeline"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

// LocalStorage writes each item's transcript to the local filesystem
type LocalStorage struct {
	outputDir string
	now       func() time.Time
}

// NewLocalStorage creates a new local storage exporter
func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// Dir returns the export root
func (ls *LocalStorage) Dir() string {
	return ls.outputDir
}

// Name implements pipeline.Exporter
func (ls *LocalStorage) Name() string {
	return "local"
}

// Export implements pipeline.Exporter
func (ls *LocalStorage) Export(_ context.Context, run pipeline.RunInfo, res pipeline.ItemResult, recs []types.CommentRecord) error {
	_, err := ls.Save(run, res, recs)
	return err
}

// Save writes <dir>/YYYY/MM/DD/<stamp>_<platform>_<title>.txt and its
// _meta.json, returning the transcript path.
func (ls *LocalStorage) Save(run pipeline.RunInfo, res pipeline.ItemResult, recs []types.CommentRecord) (string, error) {
	now := ls.now()
	dateDir := filepath.Join(append([]string{ls.outputDir}, datePath(now)...)...)
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create date directory: %w", err)
	}

	base := baseFilename(now, res.Item)
	txtPath := filepath.Join(dateDir, base+".txt")
	metaPath := filepath.Join(dateDir, base+"_meta.json")

	t, err := newTranscript(now, run, res, recs, txtPath)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(txtPath, t.text, 0o644); err != nil {
		return "", fmt.Errorf("failed to save transcript: %w", err)
	}
	if err := os.WriteFile(metaPath, t.meta, 0o644); err != nil {
		return "", fmt.Errorf("failed to save metadata: %w", err)
	}
	return txtPath, nil
}
