package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/vodchat/internal/pipeline"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

var (
	testRun = pipeline.RunInfo{ID: "run-1", StartedAt: time.Date(2025, 1, 23, 14, 30, 22, 0, time.UTC), Filter: "lul"}
	testRes = pipeline.ItemResult{
		Item:    types.WorkItem{ID: "v1", Title: "Speedrun: any%", Platform: types.PlatformTwitch},
		Status:  types.StatusCompleted,
		Matched: 2,
	}
	testRecs = []types.CommentRecord{
		{Timestamp: 5, Author: "a", Text: "LUL"},
		{Timestamp: 3661, Author: "b", Text: "lul"},
	}
)

func openArchive(t *testing.T) *ArchiveDB {
	t.Helper()
	db, err := NewArchiveDB(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestArchiveRoundTrip(t *testing.T) {
	db := openArchive(t)
	ctx := context.Background()

	require.NoError(t, db.Export(ctx, testRun, testRes, testRecs))

	failed := pipeline.ItemResult{
		Item:   types.WorkItem{ID: "v2", Title: "Broken", Platform: types.PlatformTwitch},
		Status: types.StatusFailed,
		Err:    errors.New("connection reset"),
	}
	require.NoError(t, db.Export(ctx, testRun, failed, nil))

	runs, err := db.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunSummary{
		RunID:     "run-1",
		StartedAt: time.Unix(testRun.StartedAt.Unix(), 0),
		Filter:    "lul",
		Items:     2,
		Matched:   2,
		Failed:    1,
	}, runs[0])

	recs, err := db.Records(ctx, "run-1", "v1")
	require.NoError(t, err)
	if diff := cmp.Diff(testRecs, recs); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestArchivePrune(t *testing.T) {
	db := openArchive(t)
	ctx := context.Background()

	old := pipeline.RunInfo{ID: "old", StartedAt: time.Now().Add(-48 * time.Hour)}
	fresh := pipeline.RunInfo{ID: "fresh", StartedAt: time.Now()}
	require.NoError(t, db.Export(ctx, old, testRes, testRecs))
	require.NoError(t, db.Export(ctx, fresh, testRes, testRecs))

	n, err := db.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err := db.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "fresh", runs[0].RunID)

	recs, err := db.Records(ctx, "old", "v1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestLocalStorageWritesTranscriptAndMeta(t *testing.T) {
	dir := t.TempDir()
	ls := NewLocalStorage(dir)
	ls.now = func() time.Time { return testRun.StartedAt }

	path, err := ls.Save(testRun, testRes, testRecs)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "2025", "01", "23", "20250123_143022_twitch_Speedrun_ any%.txt"), path)

	text, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[00:00:05][a]: LUL\n[01:01:01][b]: lul\n", string(text))

	raw, err := os.ReadFile(strings.TrimSuffix(path, ".txt") + "_meta.json")
	require.NoError(t, err)
	var meta transcriptMeta
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "run-1", meta.RunID)
	assert.Equal(t, "lul", meta.Filter)
	assert.Equal(t, 2, meta.Matched)
	assert.Equal(t, path, meta.LocalPath)
	assert.Empty(t, meta.Error)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitizeFilename("a/b:c"))
	assert.Equal(t, "a_b_c", sanitizeFilename(`a\b|c`))
	assert.Equal(t, "untitled", sanitizeFilename("  "))
	assert.Len(t, []rune(sanitizeFilename(strings.Repeat("가", 150))), 100)
}

// fakeDrive answers every Drive call: lists find nothing, creates succeed
type fakeDrive struct {
	mu      sync.Mutex
	folders []string
	uploads []string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet:
		io.WriteString(w, `{"files":[]}`)
	case r.URL.Query().Get("uploadType") != "":
		body, _ := io.ReadAll(r.Body)
		f.uploads = append(f.uploads, string(body))
		fmt.Fprintf(w, `{"id":"file-%d"}`, len(f.uploads))
	default:
		var file struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&file)
		f.folders = append(f.folders, file.Name)
		fmt.Fprintf(w, `{"id":"folder-%d"}`, len(f.folders))
	}
}

func TestDriveUploadCreatesDatedFolders(t *testing.T) {
	fake := &fakeDrive{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	dc, err := NewDriveClientWithOptions(ctx, "vodchat",
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	dc.now = func() time.Time { return testRun.StartedAt }

	link, err := dc.Upload(ctx, testRun, testRes, testRecs)
	require.NoError(t, err)

	assert.Equal(t, "https://drive.google.com/file/d/file-2/view", link)
	assert.Equal(t, []string{"vodchat", "2025", "01", "23"}, fake.folders)
	require.Len(t, fake.uploads, 2)
	assert.Contains(t, fake.uploads[0], "[01:01:01][b]: lul")
	assert.Contains(t, fake.uploads[1], `"run_id": "run-1"`)
}

func TestNewDriveClientWithoutTokenIsNonInteractive(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(creds, []byte(`{"installed":{"client_id":"id","client_secret":"s",
		"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",
		"redirect_uris":["urn:ietf:wg:oauth:2.0:oob"]}}`), 0o600))

	_, err := NewDriveClient(context.Background(), creds, filepath.Join(dir, "token.json"), "vodchat", nil)
	assert.ErrorIs(t, err, ErrNoToken)
}

type flakyExporter struct {
	fails int
	calls int
}

func (f *flakyExporter) Name() string { return "flaky" }

func (f *flakyExporter) Export(context.Context, pipeline.RunInfo, pipeline.ItemResult, []types.CommentRecord) error {
	f.calls++
	if f.calls <= f.fails {
		return errors.New("503 backend error")
	}
	return nil
}

func TestRetryingExporter(t *testing.T) {
	ctx := context.Background()

	flaky := &flakyExporter{fails: 2}
	r := WithRetry(flaky, 3)
	r.backoff = func(int) time.Duration { return 0 }
	require.NoError(t, r.Export(ctx, testRun, testRes, testRecs))
	assert.Equal(t, 3, flaky.calls)

	broken := &flakyExporter{fails: 10}
	r = WithRetry(broken, 2)
	r.backoff = func(int) time.Duration { return 0 }
	err := r.Export(ctx, testRun, testRes, testRecs)
	assert.ErrorContains(t, err, "flaky export failed after 2 attempts")
	assert.Equal(t, 2, broken.calls)
	assert.Equal(t, "flaky", r.Name())
}
