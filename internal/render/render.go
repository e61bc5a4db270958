// Package render formats chat records into console lines.
package render

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/codebuildervaibhav/vodchat/internal/types"
)

var hexColor = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)

// Renderer turns records into display lines. It holds no per-record state
// and is safe for concurrent use.
type Renderer struct {
	styles *lipgloss.Renderer
}

// Option configures a Renderer
type Option func(*Renderer)

// WithProfile forces the terminal colour profile instead of detecting it
// from the output writer.
func WithProfile(p termenv.Profile) Option {
	return func(r *Renderer) {
		if r.styles != nil {
			r.styles.SetColorProfile(p)
		}
	}
}

// New creates a renderer. When color is false author colours are never emitted.
func New(w io.Writer, color bool, opts ...Option) *Renderer {
	r := &Renderer{}
	if color {
		r.styles = lipgloss.NewRenderer(w)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FormatTimestamp renders seconds as HH:MM:SS. Hours are not wrapped.
func FormatTimestamp(seconds uint32) string {
	h := seconds / 3600
	m := seconds / 60 % 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Line formats one record as [HH:MM:SS][author]: text
func (r *Renderer) Line(rec types.CommentRecord) string {
	return fmt.Sprintf("[%s][%s]: %s", FormatTimestamp(rec.Timestamp), r.author(rec), rec.Text)
}

// Header formats the title line printed before an item's records
func (r *Renderer) Header(item types.WorkItem) string {
	title := item.Title
	if title == "" {
		title = "untitled"
	}
	return fmt.Sprintf("\n%s (%s)", title, item.ID)
}

func (r *Renderer) author(rec types.CommentRecord) string {
	if r == nil || r.styles == nil {
		return rec.Author
	}
	color, ok := ParseColor(rec.Color)
	if !ok {
		return rec.Author
	}
	return r.styles.NewStyle().Foreground(lipgloss.Color(color)).Render(rec.Author)
}

// ParseColor normalises a 6-hex-digit RGB hint to #rrggbb.
func ParseColor(hint string) (string, bool) {
	hint = strings.TrimSpace(hint)
	if !hexColor.MatchString(hint) {
		return "", false
	}
	return "#" + strings.ToLower(strings.TrimPrefix(hint, "#")), true
}
