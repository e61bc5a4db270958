package render

import (
	"io"
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"

	"github.com/codebuildervaibhav/vodchat/internal/types"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seconds uint32
		want    string
	}{
		{0, "00:00:00"},
		{59, "00:00:59"},
		{61, "00:01:01"},
		{3600, "01:00:00"},
		{3661, "01:01:01"},
		{86399, "23:59:59"},
		{360000, "100:00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimestamp(tt.seconds), "seconds=%d", tt.seconds)
	}
}

func TestLinePlain(t *testing.T) {
	r := New(io.Discard, false)
	rec := types.CommentRecord{Timestamp: 75, Author: "viewer", Text: "hello chat", Color: "#FF0000"}

	assert.Equal(t, "[00:01:15][viewer]: hello chat", r.Line(rec))
}

func TestLineColored(t *testing.T) {
	r := New(io.Discard, true, WithProfile(termenv.TrueColor))
	rec := types.CommentRecord{Timestamp: 1, Author: "viewer", Text: "hi", Color: "#1E90FF"}

	line := r.Line(rec)
	assert.True(t, strings.HasPrefix(line, "[00:00:01]["))
	assert.Contains(t, line, "viewer")
	assert.Contains(t, line, "\x1b[")
	assert.True(t, strings.HasSuffix(line, "]: hi"))
}

func TestLineBadColorFallsBack(t *testing.T) {
	r := New(io.Discard, true, WithProfile(termenv.TrueColor))

	for _, hint := range []string{"", "red", "#12345", "#GGGGGG", "1234567"} {
		rec := types.CommentRecord{Timestamp: 0, Author: "a", Text: "b", Color: hint}
		assert.Equal(t, "[00:00:00][a]: b", r.Line(rec), "hint %q", hint)
	}
}

func TestParseColor(t *testing.T) {
	c, ok := ParseColor("#ABCDEF")
	assert.True(t, ok)
	assert.Equal(t, "#abcdef", c)

	c, ok = ParseColor("00ff00")
	assert.True(t, ok)
	assert.Equal(t, "#00ff00", c)

	_, ok = ParseColor("blue")
	assert.False(t, ok)
}

func TestHeader(t *testing.T) {
	r := New(io.Discard, false)
	assert.Equal(t, "\nSpeedrun (123)", r.Header(types.WorkItem{ID: "123", Title: "Speedrun"}))
	assert.Equal(t, "\nuntitled (9)", r.Header(types.WorkItem{ID: "9"}))
}
