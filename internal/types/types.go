package types

// Item status constants
const (
	StatusQueued    = "QUEUED"
	StatusFetching  = "FETCHING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Platform constants
const (
	PlatformTwitch  = "twitch"
	PlatformAfreeca = "afreecatv"
	PlatformYouTube = "youtube"
)

// WorkItem identifies one transcript to retrieve
type WorkItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Platform string `json:"platform"`
}

// RawRecord is a chat record as decoded from the wire.
// A nil pointer means the upstream omitted a required field.
type RawRecord struct {
	Offset *float64
	Author *string
	Text   *string
	Color  string
}

// CommentRecord is a normalized chat record
type CommentRecord struct {
	Timestamp uint32 `json:"timestamp"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	Color     string `json:"color,omitempty"`
}

// Page is one batch from a cursor-paginated source.
// An empty Next marks the end of the transcript.
type Page struct {
	Records []RawRecord
	Next    string
}

// Segment is a bounded sub-range of a transcript, iterated in fixed windows.
type Segment struct {
	Key      string
	Duration uint32
}
