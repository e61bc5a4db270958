package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/codebuildervaibhav/vodchat/internal/pipeline"
	"github.com/codebuildervaibhav/vodchat/internal/render"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

var plain = render.New(io.Discard, false)

// transcript is the text/metadata pair written by the file exporters
type transcript struct {
	base string
	text []byte
	meta []byte
}

type transcriptMeta struct {
	RunID     string    `json:"run_id"`
	ItemID    string    `json:"item_id"`
	Title     string    `json:"title"`
	Platform  string    `json:"platform"`
	Filter    string    `json:"filter"`
	Status    string    `json:"status"`
	Matched   int       `json:"matched"`
	Skipped   int       `json:"skipped"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	LocalPath string    `json:"local_path,omitempty"`
}

func newTranscript(now time.Time, run pipeline.RunInfo, res pipeline.ItemResult, recs []types.CommentRecord, localPath string) (transcript, error) {
	var b strings.Builder
	for _, rec := range recs {
		b.WriteString(plain.Line(rec))
		b.WriteByte('\n')
	}

	meta := transcriptMeta{
		RunID:     run.ID,
		ItemID:    res.Item.ID,
		Title:     res.Item.Title,
		Platform:  res.Item.Platform,
		Filter:    run.Filter,
		Status:    res.Status,
		Matched:   res.Matched,
		Skipped:   res.Skipped,
		CreatedAt: now,
		LocalPath: localPath,
	}
	if res.Err != nil {
		meta.Error = res.Err.Error()
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return transcript{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return transcript{
		base: baseFilename(now, res.Item),
		text: []byte(b.String()),
		meta: metaJSON,
	}, nil
}

// baseFilename gives 20250123_143022_<platform>_<title>
func baseFilename(now time.Time, item types.WorkItem) string {
	name := item.Title
	if name == "" {
		name = item.ID
	}
	return fmt.Sprintf("%s_%s_%s", now.Format("20060102_150405"), item.Platform, sanitizeFilename(name))
}

// sanitizeFilename replaces characters that are invalid in file names
func sanitizeFilename(name string) string {
	result := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < ' ' {
			return -1
		}
		return r
	}, strings.TrimSpace(name))

	if runes := []rune(result); len(runes) > 100 {
		result = string(runes[:100])
	}
	if result == "" {
		result = "untitled"
	}
	return result
}

func datePath(t time.Time) []string {
	return []string{
		fmt.Sprintf("%d", t.Year()),
		fmt.Sprintf("%02d", t.Month()),
		fmt.Sprintf("%02d", t.Day()),
	}
}
