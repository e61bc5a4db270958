// Package filter compiles the user supplied record pattern.
package filter

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidPattern is returned when the pattern does not compile.
var ErrInvalidPattern = errors.New("invalid filter pattern")

// Filter matches record text case-insensitively. A nil Filter matches everything.
type Filter struct {
	pattern string
	re      *regexp.Regexp
}

// New compiles pattern once. An empty pattern matches every record.
func New(pattern string) (*Filter, error) {
	if pattern == "" {
		return &Filter{}, nil
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
	}

	return &Filter{pattern: pattern, re: re}, nil
}

// Match reports whether text passes the filter
func (f *Filter) Match(text string) bool {
	if f == nil || f.re == nil {
		return true
	}
	return f.re.MatchString(text)
}

// String returns the pattern as entered by the user
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.pattern
}
